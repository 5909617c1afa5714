package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetscribe/internal/logger"
	"meetscribe/internal/media"
	"meetscribe/internal/transcribe"
)

type fakeInspector struct {
	durationSecs int
	err          error
	calls        int32
}

func (f *fakeInspector) Duration(ctx context.Context, source string) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return 0, f.err
	}
	return f.durationSecs, nil
}

type fakeCutter struct {
	failIndex int // -1 to never fail
	calls     int32
}

func (f *fakeCutter) Cut(ctx context.Context, source string, startSecs, durationSecs int, outPath string) error {
	atomic.AddInt32(&f.calls, 1)
	if f.failIndex >= 0 && startSecs/durationSecs == f.failIndex {
		return &media.CutError{Source: source, OutPath: outPath, Err: errors.New("boom")}
	}
	return os.WriteFile(outPath, []byte("segment bytes"), 0o644)
}

type fakeTranscriber struct {
	transcribe func(index int) (string, error)
	calls      int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, filePath string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.transcribe(partIndex(filePath))
}

// partIndex recovers the zero-based segment index from the deterministic
// segment file name "<stem>_part<n>.mp3".
func partIndex(filePath string) int {
	base := strings.TrimSuffix(filepath.Base(filePath), media.OutputExtension)
	n, err := strconv.Atoi(base[strings.LastIndex(base, "_part")+len("_part"):])
	if err != nil {
		panic(fmt.Sprintf("unexpected segment file name %q", filePath))
	}
	return n - 1
}

func newTestOrchestrator(t *testing.T, inspector media.Inspector, cutter media.Cutter, tr transcribe.Transcriber, workers int) *Orchestrator {
	t.Helper()
	return NewOrchestrator(logger.Discard(), inspector, cutter, tr, Options{
		WorkDir: t.TempDir(),
		// 10 seconds of encoded audio per segment.
		MaxSegmentBytes: 10 * media.BitrateBytesPerSec,
		Workers:         workers,
		SegmentTimeout:  10 * time.Second,
	})
}

// Output order must match segment order no matter how the units finish,
// so later segments are made to complete first.
func TestRun_OrderStableUnderReversedCompletion(t *testing.T) {
	const segments = 10

	inspector := &fakeInspector{durationSecs: segments * 10}
	cutter := &fakeCutter{failIndex: -1}
	transcriber := &fakeTranscriber{
		transcribe: func(index int) (string, error) {
			time.Sleep(time.Duration(segments-index) * 5 * time.Millisecond)
			return fmt.Sprintf("text-%d", index), nil
		},
	}

	o := newTestOrchestrator(t, inspector, cutter, transcriber, 4)
	result, err := o.Run(context.Background(), "/audio/meeting.mp3")
	require.NoError(t, err)
	require.Len(t, result.Segments, segments)

	expected := make([]string, segments)
	for i, seg := range result.Segments {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, i*10, seg.StartSecs)
		assert.Equal(t, StatusOK, seg.Status)
		assert.Equal(t, fmt.Sprintf("text-%d", i), seg.Text)
		expected[i] = seg.Text
	}
	assert.Equal(t, strings.Join(expected, " "), result.Transcript())
}

func TestRun_TranscriptionFailureIsIsolated(t *testing.T) {
	inspector := &fakeInspector{durationSecs: 50} // 5 segments
	cutter := &fakeCutter{failIndex: -1}
	transcriber := &fakeTranscriber{
		transcribe: func(index int) (string, error) {
			if index == 2 {
				return "", &transcribe.RequestError{Reason: "simulated network error"}
			}
			return fmt.Sprintf("text-%d", index), nil
		},
	}

	o := newTestOrchestrator(t, inspector, cutter, transcriber, 2)
	result, err := o.Run(context.Background(), "/audio/meeting.mp3")
	require.NoError(t, err, "a failed segment must not fail the run")

	assert.Equal(t, 1, result.Failed())
	assert.Equal(t, StatusTranscribeFailed, result.Segments[2].Status)
	assert.Error(t, result.Segments[2].Err)
	assert.Equal(t, "text-0 text-1 text-3 text-4", result.Transcript())
}

func TestRun_CutFailureSkipsTranscription(t *testing.T) {
	inspector := &fakeInspector{durationSecs: 30} // 3 segments
	cutter := &fakeCutter{failIndex: 1}
	transcriber := &fakeTranscriber{
		transcribe: func(index int) (string, error) {
			return fmt.Sprintf("text-%d", index), nil
		},
	}

	o := newTestOrchestrator(t, inspector, cutter, transcriber, 3)
	result, err := o.Run(context.Background(), "/audio/meeting.mp3")
	require.NoError(t, err)

	assert.Equal(t, StatusCutFailed, result.Segments[1].Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&transcriber.calls),
		"the failed cut's segment must never reach the transcriber")
	assert.Equal(t, "text-0 text-2", result.Transcript())
}

func TestRun_ProbeFailureSchedulesNoWork(t *testing.T) {
	inspector := &fakeInspector{err: &media.ProbeError{Source: "bad.mp3", Err: errors.New("duration marker not found")}}
	cutter := &fakeCutter{failIndex: -1}
	transcriber := &fakeTranscriber{transcribe: func(int) (string, error) { return "", nil }}

	o := newTestOrchestrator(t, inspector, cutter, transcriber, 2)
	_, err := o.Run(context.Background(), "bad.mp3")
	require.Error(t, err)

	var probeErr *media.ProbeError
	assert.True(t, errors.As(err, &probeErr))
	assert.Equal(t, int32(0), atomic.LoadInt32(&cutter.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&transcriber.calls))
}

func TestRun_ZeroDurationSucceedsEmpty(t *testing.T) {
	inspector := &fakeInspector{durationSecs: 0}
	cutter := &fakeCutter{failIndex: -1}
	transcriber := &fakeTranscriber{transcribe: func(int) (string, error) { return "", nil }}

	o := newTestOrchestrator(t, inspector, cutter, transcriber, 2)
	result, err := o.Run(context.Background(), "/audio/empty.mp3")
	require.NoError(t, err)

	assert.Empty(t, result.Segments)
	assert.Equal(t, "", result.Transcript())
	assert.Equal(t, int32(0), atomic.LoadInt32(&cutter.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&transcriber.calls))
}

func TestRun_RejectsUndersizedSegmentBound(t *testing.T) {
	inspector := &fakeInspector{durationSecs: 100}
	o := NewOrchestrator(logger.Discard(), inspector, &fakeCutter{failIndex: -1},
		&fakeTranscriber{transcribe: func(int) (string, error) { return "", nil }},
		Options{
			WorkDir:         t.TempDir(),
			MaxSegmentBytes: 100,
		})

	_, err := o.Run(context.Background(), "/audio/meeting.mp3")
	assert.ErrorIs(t, err, ErrSegmentSizeTooSmall)
	assert.Equal(t, int32(0), atomic.LoadInt32(&inspector.calls),
		"configuration must be rejected before probing")
}

func TestRun_TranscriptionRetriesTransientFailures(t *testing.T) {
	inspector := &fakeInspector{durationSecs: 10} // 1 segment
	cutter := &fakeCutter{failIndex: -1}

	var attempts int32
	transcriber := &fakeTranscriber{
		transcribe: func(index int) (string, error) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return "", &transcribe.RequestError{Reason: "simulated network error"}
			}
			return "recovered", nil
		},
	}

	o := newTestOrchestrator(t, inspector, cutter, transcriber, 1)
	result, err := o.Run(context.Background(), "/audio/meeting.mp3")
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, StatusOK, result.Segments[0].Status)
	assert.Equal(t, "recovered", result.Transcript())
}

// The run directory and every segment file are transient artifacts.
func TestRun_CleansUpRunDirectory(t *testing.T) {
	workDir := t.TempDir()
	inspector := &fakeInspector{durationSecs: 30}
	cutter := &fakeCutter{failIndex: -1}
	transcriber := &fakeTranscriber{
		transcribe: func(index int) (string, error) { return "x", nil },
	}

	o := NewOrchestrator(logger.Discard(), inspector, cutter, transcriber, Options{
		WorkDir:         workDir,
		MaxSegmentBytes: 10 * media.BitrateBytesPerSec,
		Workers:         2,
		SegmentTimeout:  10 * time.Second,
	})

	_, err := o.Run(context.Background(), "/audio/meeting.mp3")
	require.NoError(t, err)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
