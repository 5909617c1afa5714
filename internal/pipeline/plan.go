package pipeline

import (
	"errors"
	"fmt"

	"meetscribe/internal/media"
)

// ErrSegmentSizeTooSmall is returned when the configured maximum segment
// size is smaller than one second of encoded audio.
var ErrSegmentSizeTooSmall = errors.New("max segment size below one second of encoded audio")

// SegmentPlan is the derived partitioning of a source: how many segments
// to cut and how long each one is. Segments tile the source back to back;
// only the final segment may be shorter.
type SegmentPlan struct {
	SegmentCount        int
	SegmentDurationSecs int
}

// NewPlan computes the plan for a source of totalDurationSecs. A
// zero-length source yields a zero-segment plan.
func NewPlan(totalDurationSecs, segmentDurationSecs int) SegmentPlan {
	return SegmentPlan{
		SegmentCount:        (totalDurationSecs + segmentDurationSecs - 1) / segmentDurationSecs,
		SegmentDurationSecs: segmentDurationSecs,
	}
}

// SegmentDurationFor converts a maximum segment size in bytes to a
// per-segment duration using the fixed encode bitrate.
func SegmentDurationFor(maxSegmentBytes int) (int, error) {
	durationSecs := maxSegmentBytes / media.BitrateBytesPerSec
	if durationSecs < 1 {
		return 0, fmt.Errorf("%d bytes yields no playable duration at %d bytes/sec: %w",
			maxSegmentBytes, media.BitrateBytesPerSec, ErrSegmentSizeTooSmall)
	}
	return durationSecs, nil
}
