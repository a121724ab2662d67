package chunkstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewRunCreatesTaggedDirectory checks run directory placement.
func TestNewRunCreatesTaggedDirectory(t *testing.T) {
	store := NewStore(t.TempDir())
	run, err := store.NewRun(".webm")
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	defer run.Cleanup()

	if !HasSafetyTag(run.Dir()) {
		t.Fatalf("run dir %q lacks safety tag", run.Dir())
	}
	if filepath.Dir(run.Dir()) != filepath.Join(store.Root(), SafetyTag) {
		t.Fatalf("run dir parent = %q", filepath.Dir(run.Dir()))
	}
	if !strings.HasPrefix(filepath.Base(run.Dir()), "run-") {
		t.Fatalf("run dir name = %q, want run- prefix", filepath.Base(run.Dir()))
	}
}

// TestNewRunIsUniqueForSameInstant checks concurrent runs never collide.
func TestNewRunIsUniqueForSameInstant(t *testing.T) {
	store := NewStore(t.TempDir())
	fixed := time.Unix(1700000000, 0)
	store.now = func() time.Time { return fixed }

	a, err := store.NewRun(".webm")
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	b, err := store.NewRun(".webm")
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	if a.Dir() == b.Dir() {
		t.Fatalf("run dirs collide: %s", a.Dir())
	}
}

// TestRunWriteReadAndCleanup checks the staging lifecycle.
func TestRunWriteReadAndCleanup(t *testing.T) {
	store := NewStore(t.TempDir())
	run, err := store.NewRun(".webm")
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}

	var locations []string
	for i := 0; i < 3; i++ {
		loc, err := run.Write(i, []byte{byte(i), 1, 2})
		if err != nil {
			t.Fatalf("Write(%d) error = %v", i, err)
		}
		locations = append(locations, loc)
	}

	if got := filepath.Base(locations[2]); got != "chunk-000002.webm" {
		t.Fatalf("file name = %q, want chunk-000002.webm", got)
	}
	data, err := run.Read(locations[1])
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if data[0] != 1 {
		t.Fatalf("payload = %v", data)
	}
	if len(run.Locations()) != 3 {
		t.Fatalf("locations = %d, want 3", len(run.Locations()))
	}

	run.Cleanup()
	run.Cleanup()

	for _, loc := range locations {
		if _, err := os.Stat(loc); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("chunk %s should be removed, stat err = %v", loc, err)
		}
	}
	if _, err := os.Stat(run.Dir()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("run dir should be removed, stat err = %v", err)
	}
	if _, err := run.Write(4, []byte("late")); err == nil {
		t.Fatal("expected write after cleanup to fail")
	}
}

// TestCleanupSkipsUntaggedPaths checks the safety-tag guard.
func TestCleanupSkipsUntaggedPaths(t *testing.T) {
	root := t.TempDir()
	untagged := filepath.Join(root, "notes", "keep.webm")
	if err := os.MkdirAll(filepath.Dir(untagged), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(untagged, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewStore(root)
	var removed []string
	store.remove = func(name string) error {
		removed = append(removed, name)
		return os.Remove(name)
	}

	if n := store.Cleanup([]string{untagged, "", filepath.Join(root, "chunks-old", "x")}, filepath.Join(root, "notes")); n != 0 {
		t.Fatalf("removed = %d, want 0", n)
	}
	if len(removed) != 0 {
		t.Fatalf("remove called for %v", removed)
	}
	if _, err := os.Stat(untagged); err != nil {
		t.Fatalf("untagged file should survive: %v", err)
	}
}

// TestCleanupToleratesNonEmptyDirectory checks best-effort directory removal.
func TestCleanupToleratesNonEmptyDirectory(t *testing.T) {
	store := NewStore(t.TempDir())
	run, err := store.NewRun(".webm")
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	loc, err := run.Write(0, []byte("a"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	stray := filepath.Join(run.Dir(), "stray.tmp")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	run.Cleanup()

	if _, err := os.Stat(loc); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("chunk should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(run.Dir()); err != nil {
		t.Fatalf("non-empty dir should be left in place: %v", err)
	}
}

// TestHasSafetyTag checks segment matching rather than substring matching.
func TestHasSafetyTag(t *testing.T) {
	cases := map[string]bool{
		"/tmp/app/chunks/run-1/chunk-000.webm": true,
		"chunks/chunk-000.webm":                true,
		"/tmp/app/mychunks/chunk-000.webm":     false,
		"/tmp/app/chunks-old/chunk-000.webm":   false,
		"/home/user/notes/recording.webm":      false,
	}
	for path, want := range cases {
		if got := HasSafetyTag(path); got != want {
			t.Fatalf("HasSafetyTag(%q) = %v, want %v", path, got, want)
		}
	}
}

// TestChunkFileName checks zero padding and extension handling.
func TestChunkFileName(t *testing.T) {
	if got := ChunkFileName(7, "webm"); got != "chunk-000007.webm" {
		t.Fatalf("ChunkFileName = %q", got)
	}
	if got := ChunkFileName(12, ".ogg"); got != "chunk-000012.ogg" {
		t.Fatalf("ChunkFileName = %q", got)
	}
}

// TestChunkFileNameSortsPastThousand checks lexical order across digit
// boundaries for long runs.
func TestChunkFileNameSortsPastThousand(t *testing.T) {
	indices := []int{0, 9, 99, 999, 1000, 1030, 99_999}
	for i := 1; i < len(indices); i++ {
		prev := ChunkFileName(indices[i-1], "webm")
		next := ChunkFileName(indices[i], "webm")
		if prev >= next {
			t.Fatalf("%q should sort before %q", prev, next)
		}
	}
}
