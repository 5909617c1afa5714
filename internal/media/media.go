package media

import (
	"context"
	"fmt"
)

const (
	// BitrateBytesPerSec is the byte rate of the fixed segment encode
	// (mp3 at 128 kbps). It drives the size-to-duration conversion used
	// when planning segments.
	BitrateBytesPerSec = 128000 / 8

	// OutputExtension is the file extension of every cut segment.
	OutputExtension = ".mp3"
)

// Inspector reports the total duration of a media source.
type Inspector interface {
	// Duration returns the total duration of the source in whole seconds.
	Duration(ctx context.Context, source string) (int, error)
}

// Cutter extracts a time range of a media source into a new file,
// re-encoded to the fixed segment format.
type Cutter interface {
	// Cut writes [startSecs, startSecs+durationSecs) of the source to
	// outPath, overwriting any existing file there.
	Cut(ctx context.Context, source string, startSecs, durationSecs int, outPath string) error
}

// ProbeError indicates the source duration could not be determined.
// A probe failure aborts a pipeline run before any segment work starts.
type ProbeError struct {
	Source string
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("failed to probe duration of %s: %v", e.Source, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// CutError indicates a single segment could not be produced. It affects
// only the segment it belongs to.
type CutError struct {
	Source  string
	OutPath string
	Err     error
}

func (e *CutError) Error() string {
	return fmt.Sprintf("failed to cut segment %s from %s: %v", e.OutPath, e.Source, e.Err)
}

func (e *CutError) Unwrap() error {
	return e.Err
}
