package transcribe

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Prober reads media duration with ffprobe.
type Prober struct {
	ffprobePath string
	runner      commandRunner
}

// NewProber constructs a prober that runs ffprobe from PATH.
func NewProber() *Prober {
	return &Prober{ffprobePath: "ffprobe", runner: &execRunner{}}
}

// Duration returns the container duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	args := buildFFprobeArgs(path)
	result, err := p.runner.Run(ctx, p.ffprobePath, args...)
	if err != nil {
		return 0, &CommandError{
			Step:    "probing",
			Chunk:   -1,
			Message: "ffprobe failed",
			CommandLog: CommandLog{
				Command:  p.ffprobePath,
				Args:     args,
				ExitCode: result.ExitCode,
				Stdout:   result.Stdout,
				Stderr:   result.Stderr,
			},
			Err: err,
		}
	}

	raw := strings.TrimSpace(result.Stdout)
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(sec) || math.IsInf(sec, 0) || sec <= 0 {
		return 0, fmt.Errorf("ffprobe returned no usable duration for %s: %q", path, raw)
	}
	return sec, nil
}

// buildFFprobeArgs prints only the container duration.
func buildFFprobeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// NewProberForTests constructs a prober with an injectable runner.
func NewProberForTests(ffprobePath string, runner commandRunner) *Prober {
	return &Prober{ffprobePath: ffprobePath, runner: runner}
}
