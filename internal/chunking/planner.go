// Package chunking plans time windows over a long recording and cuts the
// encoded container into independently decodable chunk payloads.
package chunking

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultChunkDurationSec = 420.0
	DefaultOverlapSec       = 3.0

	// MaxWindows bounds a single plan. A step that would need more windows
	// comes from an overlap set almost equal to the chunk duration.
	MaxWindows = 100_000
)

// ErrInvalidOptions is returned when chunk duration and overlap cannot
// produce a terminating plan.
var ErrInvalidOptions = errors.New("invalid chunking options")

// ErrInvalidDuration is returned for non-positive or non-finite durations.
var ErrInvalidDuration = errors.New("total duration must be a positive number of seconds")

// Options bounds window length and the overlap between consecutive windows.
type Options struct {
	ChunkDurationSec float64 `json:"chunkDurationSec"`
	OverlapSec       float64 `json:"overlapSec"`
}

// DefaultOptions returns 7 minute windows with a 3 second overlap.
func DefaultOptions() Options {
	return Options{
		ChunkDurationSec: DefaultChunkDurationSec,
		OverlapSec:       DefaultOverlapSec,
	}
}

// Validate rejects options whose step would not be strictly positive.
func (o Options) Validate() error {
	if !isFinite(o.ChunkDurationSec) || o.ChunkDurationSec <= 0 {
		return fmt.Errorf("%w: chunk duration must be positive, got %v", ErrInvalidOptions, o.ChunkDurationSec)
	}
	if !isFinite(o.OverlapSec) || o.OverlapSec < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %v", ErrInvalidOptions, o.OverlapSec)
	}
	if o.OverlapSec >= o.ChunkDurationSec {
		return fmt.Errorf("%w: overlap %v must be less than chunk duration %v", ErrInvalidOptions, o.OverlapSec, o.ChunkDurationSec)
	}
	return nil
}

// Window is a [Start, End] span of the recording in seconds.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// NeedsChunking reports whether a recording is longer than one window.
func NeedsChunking(totalDurationSec float64, opts Options) bool {
	return totalDurationSec > opts.ChunkDurationSec
}

// Plan splits [0, totalDurationSec] into overlapping windows. Consecutive
// starts differ by ChunkDurationSec-OverlapSec and the final window ends at
// totalDurationSec exactly.
func Plan(totalDurationSec float64, opts Options) ([]Window, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !isFinite(totalDurationSec) || totalDurationSec <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, totalDurationSec)
	}

	if !NeedsChunking(totalDurationSec, opts) {
		return []Window{{Start: 0, End: totalDurationSec}}, nil
	}

	step := opts.ChunkDurationSec - opts.OverlapSec
	count := WindowCount(totalDurationSec, opts)
	if count > MaxWindows {
		return nil, fmt.Errorf("%w: %gs step over %gs needs %.0f windows, limit is %d",
			ErrInvalidOptions, step, totalDurationSec, count, MaxWindows)
	}

	n := int(count)
	windows := make([]Window, 0, n)
	start := 0.0
	for {
		end := start + opts.ChunkDurationSec
		if end >= totalDurationSec || len(windows) == n-1 {
			end = totalDurationSec
		}
		windows = append(windows, Window{Start: start, End: end})
		if end == totalDurationSec {
			return windows, nil
		}
		start += step
	}
}

// WindowCount returns how many windows Plan needs for a recording. Options
// are assumed valid.
func WindowCount(totalDurationSec float64, opts Options) float64 {
	if !NeedsChunking(totalDurationSec, opts) {
		return 1
	}
	step := opts.ChunkDurationSec - opts.OverlapSec
	return math.Ceil((totalDurationSec-opts.ChunkDurationSec)/step) + 1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
