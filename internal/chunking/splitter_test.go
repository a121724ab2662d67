package chunking

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// fakeStager records staged payloads in memory.
type fakeStager struct {
	payloads map[int][]byte
	failAt   int
}

// Write stores payload or fails at the configured index.
func (f *fakeStager) Write(index int, payload []byte) (string, error) {
	if f.failAt >= 0 && index == f.failAt {
		return "", errors.New("disk full")
	}
	if f.payloads == nil {
		f.payloads = map[int][]byte{}
	}
	f.payloads[index] = payload
	return fmt.Sprintf("/staging/chunks/chunk-%03d.webm", index), nil
}

// sourceBytes builds a deterministic fake container with a recognizable header.
func sourceBytes(size, header int) []byte {
	data := make([]byte, size)
	for i := range data {
		if i < header {
			data[i] = 0xAA
			continue
		}
		data[i] = byte(i % 251)
	}
	return data
}

// TestSplitFirstChunkStartsAtZero checks header preservation of chunk 0.
func TestSplitFirstChunkStartsAtZero(t *testing.T) {
	data := sourceBytes(100_000, 64)
	for _, total := range []float64{300, 1000, 5000} {
		windows, err := Plan(total, DefaultOptions())
		if err != nil {
			t.Fatalf("Plan(%v) error = %v", total, err)
		}

		result, err := NewSplitter(4096).Split(data, windows, total, ".webm", nil)
		if err != nil {
			t.Fatalf("Split() error = %v", err)
		}
		if result.TotalChunks != len(windows) || len(result.Chunks) != len(windows) {
			t.Fatalf("chunks = %d, want %d", len(result.Chunks), len(windows))
		}

		first := result.Chunks[0].Payload
		wantLen := ByteOffset(windows[0].End, total, len(data))
		if !bytes.Equal(first, data[:wantLen]) {
			t.Fatalf("first payload is not data[0:%d]", wantLen)
		}
	}
}

// TestSplitSingleWindowKeepsWholeFile checks the no-split case.
func TestSplitSingleWindowKeepsWholeFile(t *testing.T) {
	data := sourceBytes(10_000, 128)
	result, err := NewSplitter(0).Split(data, []Window{{0, 300}}, 300, "webm", nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(result.Chunks))
	}
	if !bytes.Equal(result.Chunks[0].Payload, data) {
		t.Fatal("single payload should equal the source")
	}
	if result.Chunks[0].Format != ".webm" {
		t.Fatalf("format = %q, want .webm", result.Chunks[0].Format)
	}
}

// TestSplitPrependsHeaderToLaterChunks checks the header-preservation property.
func TestSplitPrependsHeaderToLaterChunks(t *testing.T) {
	const header = 4096
	data := sourceBytes(1_000_000, header)
	windows, err := Plan(1000, Options{ChunkDurationSec: 420, OverlapSec: 3})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	result, err := NewSplitter(header).Split(data, windows, 1000, ".webm", nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	firstHeader := result.Chunks[0].Payload[:header]
	for _, chunk := range result.Chunks[1:] {
		if !bytes.HasPrefix(chunk.Payload, firstHeader) {
			t.Fatalf("chunk %d does not start with the source header", chunk.Index)
		}

		startOff := ByteOffset(chunk.StartTime, 1000, len(data))
		endOff := ByteOffset(chunk.EndTime, 1000, len(data))
		if !bytes.Equal(chunk.Payload[header:], data[startOff:endOff]) {
			t.Fatalf("chunk %d body does not match data[%d:%d]", chunk.Index, startOff, endOff)
		}
	}
}

// TestSplitCapsHeaderAtStartOffset checks the prefix never exceeds the window start.
func TestSplitCapsHeaderAtStartOffset(t *testing.T) {
	data := sourceBytes(1000, 16)
	windows := []Window{{0, 10}, {1, 11}, {2, 20}}
	result, err := NewSplitter(4096).Split(data, windows, 20, ".ogg", nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	// window 1 starts at byte 50, so at most 50 header bytes are copied.
	chunk := result.Chunks[1]
	startOff := ByteOffset(1, 20, len(data))
	endOff := ByteOffset(11, 20, len(data))
	if got, want := len(chunk.Payload), startOff+(endOff-startOff); got != want {
		t.Fatalf("payload len = %d, want %d", got, want)
	}
	if !bytes.Equal(chunk.Payload[:startOff], data[:startOff]) {
		t.Fatal("capped prefix should still be the leading source bytes")
	}
}

// TestByteOffsetIsProportional documents the constant-bitrate approximation:
// offsets track time proportionally, not decoded audio frames.
func TestByteOffsetIsProportional(t *testing.T) {
	cases := []struct {
		time, total float64
		size, want  int
	}{
		{0, 1000, 1000, 0},
		{417, 1000, 1000, 417},
		{834, 1000, 999, 833},
		{1000, 1000, 999, 999},
		{1500, 1000, 999, 999},
		{-1, 1000, 999, 0},
	}
	for _, tc := range cases {
		if got := ByteOffset(tc.time, tc.total, tc.size); got != tc.want {
			t.Fatalf("ByteOffset(%v, %v, %d) = %d, want %d", tc.time, tc.total, tc.size, got, tc.want)
		}
	}
}

// TestSplitStagesEveryChunk checks locations are attached in order.
func TestSplitStagesEveryChunk(t *testing.T) {
	data := sourceBytes(50_000, 32)
	windows, _ := Plan(1000, DefaultOptions())
	stager := &fakeStager{failAt: -1}

	result, err := NewSplitter(32).Split(data, windows, 1000, ".webm", stager)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for i, chunk := range result.Chunks {
		want := fmt.Sprintf("/staging/chunks/chunk-%03d.webm", i)
		if chunk.Location != want {
			t.Fatalf("chunk %d location = %q, want %q", i, chunk.Location, want)
		}
		if !bytes.Equal(stager.payloads[i], chunk.Payload) {
			t.Fatalf("chunk %d staged payload mismatch", i)
		}
	}
}

// TestSplitStagingFailureReturnsNoChunks checks the all-or-nothing contract.
func TestSplitStagingFailureReturnsNoChunks(t *testing.T) {
	data := sourceBytes(50_000, 32)
	windows, _ := Plan(1000, DefaultOptions())

	result, err := NewSplitter(32).Split(data, windows, 1000, ".webm", &fakeStager{failAt: 1})
	if err == nil {
		t.Fatal("expected staging error")
	}
	if len(result.Chunks) != 0 {
		t.Fatalf("chunks = %d, want 0 on failure", len(result.Chunks))
	}
}

// TestSplitFileReadsSourceAndFormat checks file input and extension handling.
func TestSplitFileReadsSourceAndFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Lecture.M4A")
	data := sourceBytes(20_000, 64)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	windows, _ := Plan(1000, DefaultOptions())
	result, err := NewSplitter(64).SplitFile(path, windows, 1000, nil)
	if err != nil {
		t.Fatalf("SplitFile() error = %v", err)
	}
	if result.Chunks[0].Format != ".m4a" {
		t.Fatalf("format = %q, want .m4a", result.Chunks[0].Format)
	}
}

// TestSplitFileMissingSourceFails checks the I/O error path.
func TestSplitFileMissingSourceFails(t *testing.T) {
	windows, _ := Plan(1000, DefaultOptions())
	result, err := NewSplitter(0).SplitFile(filepath.Join(t.TempDir(), "missing.webm"), windows, 1000, nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want not-exist", err)
	}
	if len(result.Chunks) != 0 {
		t.Fatal("expected no chunks on read failure")
	}
}

// TestSplitRejectsEmptySource checks empty input.
func TestSplitRejectsEmptySource(t *testing.T) {
	if _, err := NewSplitter(0).Split(nil, []Window{{0, 1}}, 1, ".webm", nil); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("error = %v, want %v", err, ErrEmptySource)
	}
}
