package chunking

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultHeaderPrefixBytes covers the metadata block of typical
	// MediaRecorder webm output. It is a heuristic, not a structural bound.
	DefaultHeaderPrefixBytes = 4096

	// DefaultFormat is assumed when the source has no usable extension.
	DefaultFormat = ".webm"
)

// ErrEmptySource is returned when there are no bytes to split.
var ErrEmptySource = errors.New("source audio is empty")

// Chunk is one bounded slice of a recording with a self-contained payload.
type Chunk struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Payload   []byte  `json:"-"`
	Location  string  `json:"location"`
	Format    string  `json:"format"`
}

// Result is the chunk set produced once per source recording.
type Result struct {
	Chunks        []Chunk `json:"chunks"`
	TotalDuration float64 `json:"totalDuration"`
	TotalChunks   int     `json:"totalChunks"`
}

// Stager persists a chunk payload and returns its location.
type Stager interface {
	Write(index int, payload []byte) (string, error)
}

// Splitter maps time windows onto proportional byte ranges.
type Splitter struct {
	headerPrefixBytes int
	readFile          func(name string) ([]byte, error)
}

// NewSplitter builds a splitter that prepends up to headerPrefixBytes of the
// source to every non-first chunk. Non-positive values use the default.
func NewSplitter(headerPrefixBytes int) *Splitter {
	if headerPrefixBytes <= 0 {
		headerPrefixBytes = DefaultHeaderPrefixBytes
	}
	return &Splitter{
		headerPrefixBytes: headerPrefixBytes,
		readFile:          os.ReadFile,
	}
}

// HeaderPrefixBytes returns the configured header prefix size.
func (s *Splitter) HeaderPrefixBytes() int {
	return s.headerPrefixBytes
}

// SplitFile reads the recording at path and splits it. The container format
// is taken from the file extension.
func (s *Splitter) SplitFile(path string, windows []Window, totalDurationSec float64, stager Stager) (Result, error) {
	data, err := s.readFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read source audio %s: %w", path, err)
	}
	return s.Split(data, windows, totalDurationSec, FormatOf(path), stager)
}

// Split cuts data into one payload per window. Offsets are estimated as
// floor(time/total*size), which assumes a roughly constant bitrate; the
// overlap between windows absorbs the resulting drift. The first payload
// starts at byte 0 so it keeps the original header. Later payloads are the
// header prefix followed by the window's own byte range.
//
// When stager is non-nil every payload is staged before Split returns. Any
// staging failure discards the whole set.
func (s *Splitter) Split(data []byte, windows []Window, totalDurationSec float64, format string, stager Stager) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptySource
	}
	if !isFinite(totalDurationSec) || totalDurationSec <= 0 {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidDuration, totalDurationSec)
	}
	if len(windows) == 0 {
		return Result{}, errors.New("no windows to split")
	}
	format = NormalizeFormat(format)

	size := len(data)
	chunks := make([]Chunk, 0, len(windows))
	for i, w := range windows {
		endOff := ByteOffset(w.End, totalDurationSec, size)

		var payload []byte
		if i == 0 {
			payload = append([]byte(nil), data[:endOff]...)
		} else {
			startOff := ByteOffset(w.Start, totalDurationSec, size)
			if startOff > endOff {
				startOff = endOff
			}
			prefix := s.headerPrefixBytes
			if prefix > startOff {
				prefix = startOff
			}
			payload = make([]byte, 0, prefix+endOff-startOff)
			payload = append(payload, data[:prefix]...)
			payload = append(payload, data[startOff:endOff]...)
		}

		chunk := Chunk{
			Index:     i,
			StartTime: w.Start,
			EndTime:   w.End,
			Payload:   payload,
			Format:    format,
		}
		if stager != nil {
			location, err := stager.Write(i, payload)
			if err != nil {
				return Result{}, fmt.Errorf("stage chunk %d: %w", i, err)
			}
			chunk.Location = location
		}
		chunks = append(chunks, chunk)
	}

	return Result{
		Chunks:        chunks,
		TotalDuration: totalDurationSec,
		TotalChunks:   len(chunks),
	}, nil
}

// ByteOffset maps a time in seconds onto a byte offset of a size-byte file.
func ByteOffset(timeSec, totalDurationSec float64, size int) int {
	if timeSec <= 0 || totalDurationSec <= 0 {
		return 0
	}
	if timeSec >= totalDurationSec {
		return size
	}
	off := int(math.Floor(timeSec / totalDurationSec * float64(size)))
	if off > size {
		return size
	}
	return off
}

// FormatOf returns the lower-cased extension of path, or DefaultFormat.
func FormatOf(path string) string {
	return NormalizeFormat(filepath.Ext(path))
}

// NormalizeFormat lower-cases format and ensures a leading dot.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" || f == "." {
		return DefaultFormat
	}
	if !strings.HasPrefix(f, ".") {
		f = "." + f
	}
	return f
}
