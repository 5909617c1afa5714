package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"meetscribe/internal/logger"
	"meetscribe/internal/media"
	"meetscribe/internal/transcribe"
)

const (
	transcribeMaxAttempts = 3
	transcribeRetryDelay  = 250 * time.Millisecond
)

// Status classifies the terminal state of one segment unit.
type Status string

const (
	StatusOK               Status = "ok"
	StatusCutFailed        Status = "cut_failed"
	StatusTranscribeFailed Status = "transcribe_failed"
)

// SegmentResult is the outcome of one segment's cut-then-transcribe unit.
// Failed segments carry their error; Text is set only when Status is ok.
type SegmentResult struct {
	Index     int
	StartSecs int
	Text      string
	Status    Status
	Err       error
}

// RunResult holds the per-segment outcomes of one pipeline run, in
// segment index order.
type RunResult struct {
	Plan     SegmentPlan
	Segments []SegmentResult
}

// Transcript joins the texts of all successful segments, in index order,
// with a single separating space. Failed segments leave no gap marker.
func (r *RunResult) Transcript() string {
	texts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if seg.Status == StatusOK {
			texts = append(texts, seg.Text)
		}
	}
	return strings.Join(texts, " ")
}

// Failed returns the number of segments that did not produce text.
func (r *RunResult) Failed() int {
	failed := 0
	for _, seg := range r.Segments {
		if seg.Status != StatusOK {
			failed++
		}
	}
	return failed
}

// Options configures an Orchestrator.
type Options struct {
	// WorkDir is the parent directory for per-run segment directories.
	WorkDir string
	// MaxSegmentBytes bounds the encoded size of each segment.
	MaxSegmentBytes int
	// Workers bounds how many segment units run at once.
	Workers int
	// SegmentTimeout bounds one segment's cut plus transcription.
	SegmentTimeout time.Duration
}

// Orchestrator plans, schedules, and reassembles the segment pipeline for
// one source file at a time. It probes the source synchronously, fans the
// plan out to a bounded worker pool, and joins before reading any result
// slot, so the output order always matches chronological order no matter
// how the units finish.
type Orchestrator struct {
	inspector   media.Inspector
	cutter      media.Cutter
	transcriber transcribe.Transcriber
	logger      logger.Logger
	opts        Options
}

// NewOrchestrator wires a pipeline from its collaborators.
func NewOrchestrator(log logger.Logger, inspector media.Inspector, cutter media.Cutter, transcriber transcribe.Transcriber, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.SegmentTimeout <= 0 {
		opts.SegmentTimeout = 5 * time.Minute
	}

	return &Orchestrator{
		inspector:   inspector,
		cutter:      cutter,
		transcriber: transcriber,
		logger:      log,
		opts:        opts,
	}
}

// Run splits the source into bounded segments, transcribes them
// concurrently, and returns the per-segment results in segment order.
//
// A probe or configuration failure aborts the run before any segment work
// is scheduled. After fan-out, a segment's failure is recorded in its
// result slot and never interrupts its siblings; the run itself still
// succeeds. Cancelling ctx cancels all in-flight units.
func (o *Orchestrator) Run(ctx context.Context, sourcePath string) (*RunResult, error) {
	segmentDurationSecs, err := SegmentDurationFor(o.opts.MaxSegmentBytes)
	if err != nil {
		return nil, err
	}

	totalDurationSecs, err := o.inspector.Duration(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("planning segments for %s: %w", sourcePath, err)
	}

	plan := NewPlan(totalDurationSecs, segmentDurationSecs)
	result := &RunResult{
		Plan:     plan,
		Segments: make([]SegmentResult, plan.SegmentCount),
	}

	if plan.SegmentCount == 0 {
		o.logger.Infof("Source %s has zero duration, nothing to transcribe", sourcePath)
		return result, nil
	}

	stem := sourceStem(sourcePath)
	if err := os.MkdirAll(o.opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	runDir, err := os.MkdirTemp(o.opts.WorkDir, stem+"-")
	if err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	defer os.RemoveAll(runDir)

	o.logger.Infof("Transcribing %s: %d seconds in %d segments of up to %d seconds",
		sourcePath, totalDurationSecs, plan.SegmentCount, segmentDurationSecs)

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := o.opts.Workers
	if workers > plan.SegmentCount {
		workers = plan.SegmentCount
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// Slot i is written only by the unit that owns index i.
				result.Segments[i] = o.runSegment(ctx, sourcePath, stem, runDir, plan, i)
			}
		}()
	}

	for i := 0; i < plan.SegmentCount; i++ {
		jobs <- i
	}
	close(jobs)

	// Join barrier: every unit reaches a terminal state before any slot
	// is read.
	wg.Wait()

	if failed := result.Failed(); failed > 0 {
		o.logger.Warnf("Run for %s finished with %d of %d segments failed",
			sourcePath, failed, plan.SegmentCount)
	} else {
		o.logger.Infof("Run for %s finished, all %d segments transcribed",
			sourcePath, plan.SegmentCount)
	}

	return result, nil
}

// runSegment executes one cut-then-transcribe unit. Errors are returned
// inside the result, never propagated.
func (o *Orchestrator) runSegment(ctx context.Context, sourcePath, stem, runDir string, plan SegmentPlan, index int) SegmentResult {
	segCtx, cancel := context.WithTimeout(ctx, o.opts.SegmentTimeout)
	defer cancel()

	result := SegmentResult{
		Index:     index,
		StartSecs: index * plan.SegmentDurationSecs,
	}
	outPath := filepath.Join(runDir, fmt.Sprintf("%s_part%d%s", stem, index+1, media.OutputExtension))

	if err := o.cutter.Cut(segCtx, sourcePath, result.StartSecs, plan.SegmentDurationSecs, outPath); err != nil {
		o.logger.Warnf("Segment %d of %s failed to cut: %v", index, sourcePath, err)
		result.Status = StatusCutFailed
		result.Err = err
		return result
	}
	defer os.Remove(outPath)

	text, err := o.transcribeWithRetry(segCtx, outPath)
	if err != nil {
		o.logger.Warnf("Segment %d of %s failed to transcribe: %v", index, sourcePath, err)
		result.Status = StatusTranscribeFailed
		result.Err = err
		return result
	}

	result.Status = StatusOK
	result.Text = text
	return result
}

// transcribeWithRetry makes a bounded number of transcription attempts
// with a short delay between them. Only the network call is retried;
// cut failures are deterministic and local.
func (o *Orchestrator) transcribeWithRetry(ctx context.Context, segmentPath string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= transcribeMaxAttempts; attempt++ {
		text, err := o.transcriber.Transcribe(ctx, segmentPath)
		if err == nil {
			return text, nil
		}
		lastErr = err
		o.logger.Debugf("Transcription attempt %d/%d for %s failed: %v",
			attempt, transcribeMaxAttempts, segmentPath, err)

		if attempt == transcribeMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("segment cancelled after attempt %d: %w", attempt, lastErr)
		case <-time.After(transcribeRetryDelay):
		}
	}
	return "", fmt.Errorf("transcription failed after %d attempts: %w", transcribeMaxAttempts, lastErr)
}

// sourceStem derives the deterministic segment name prefix from the
// source's base name.
func sourceStem(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "audio"
	}
	return stem
}
