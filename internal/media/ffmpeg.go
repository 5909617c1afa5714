package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"meetscribe/internal/logger"
)

// FFmpeg implements Inspector and Cutter by shelling out to the ffmpeg
// binary. A single instance is safe for concurrent use.
type FFmpeg struct {
	path   string
	runner commandRunner
	logger logger.Logger
}

// NewFFmpeg creates an ffmpeg wrapper using the binary found on PATH.
func NewFFmpeg(log logger.Logger) *FFmpeg {
	return &FFmpeg{
		path:   "ffmpeg",
		runner: &execRunner{},
		logger: log,
	}
}

// Duration probes the source with the null muxer and parses the duration
// from ffmpeg's diagnostic output. The probe writes no output file and
// ffmpeg may exit non-zero; the diagnostic text is parsed regardless.
func (f *FFmpeg) Duration(ctx context.Context, source string) (int, error) {
	args := buildProbeArgs(source)
	f.logger.Debugf("Probing duration: %s %s", f.path, strings.Join(args, " "))

	result, runErr := f.runner.Run(ctx, f.path, args...)
	if runErr != nil && result.Stderr == "" {
		return 0, &ProbeError{Source: source, Err: runErr}
	}

	secs, err := parseDurationSecs(result.Stderr)
	if err != nil {
		return 0, &ProbeError{Source: source, Err: err}
	}

	f.logger.Debugf("Probed %s: %d seconds", source, secs)
	return secs, nil
}

// Cut extracts one segment of the source into outPath, re-encoded to the
// fixed mp3 target. Any existing file at outPath is overwritten.
func (f *FFmpeg) Cut(ctx context.Context, source string, startSecs, durationSecs int, outPath string) error {
	args := buildCutArgs(source, startSecs, durationSecs, outPath)
	f.logger.Debugf("Cutting segment: %s %s", f.path, strings.Join(args, " "))

	result, runErr := f.runner.Run(ctx, f.path, args...)
	if runErr != nil {
		return &CutError{
			Source:  source,
			OutPath: outPath,
			Err:     fmt.Errorf("ffmpeg exited with code %d: %w", result.ExitCode, runErr),
		}
	}

	return nil
}

// buildProbeArgs decodes the source to the null muxer so ffmpeg reports
// stream metadata without producing output.
func buildProbeArgs(source string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", source,
		"-f", "null",
		"-",
	}
}

// buildCutArgs produces the fixed-format segment encode.
func buildCutArgs(source string, startSecs, durationSecs int, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", source,
		"-ss", strconv.Itoa(startSecs),
		"-t", strconv.Itoa(durationSecs),
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		outPath,
	}
}

// parseDurationSecs extracts the total duration from ffmpeg diagnostic
// output. The marker line looks like:
//
//	Duration: 01:02:03.45, start: 0.000000, bitrate: 128 kb/s
//
// The HH:MM:SS value is converted to whole seconds, truncating any
// fractional part.
func parseDurationSecs(diagnostic string) (int, error) {
	var durationLine string
	for _, line := range strings.Split(diagnostic, "\n") {
		if strings.Contains(line, "Duration") {
			durationLine = line
			break
		}
	}
	if durationLine == "" {
		return 0, fmt.Errorf("duration marker not found in ffmpeg output")
	}

	fields := strings.Fields(durationLine)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed duration line: %q", durationLine)
	}

	stamp := strings.TrimSuffix(fields[1], ",")
	parts := strings.Split(stamp, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed duration value: %q", stamp)
	}

	var total float64
	for i, mult := range []float64{3600, 60, 1} {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, fmt.Errorf("malformed duration value: %q", stamp)
		}
		total += v * mult
	}

	return int(total), nil
}
