// Package chunkstore stages chunk payloads in run-scoped temporary
// directories and removes them when a run ends.
package chunkstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SafetyTag is the path segment every staged file must contain before
// cleanup is allowed to delete it.
const SafetyTag = "chunks"

// Store allocates run directories under <root>/chunks.
type Store struct {
	root      string
	now       func() time.Time
	mkdirAll  func(path string, perm os.FileMode) error
	mkdirTemp func(dir, pattern string) (string, error)
	writeFile func(name string, data []byte, perm os.FileMode) error
	readFile  func(name string) ([]byte, error)
	remove    func(name string) error
}

// NewStore creates a store rooted at root, or at the OS temp dir when empty.
func NewStore(root string) *Store {
	root = strings.TrimSpace(root)
	if root == "" {
		root = filepath.Join(os.TempDir(), "longform-transcriber")
	}
	return &Store{
		root:      root,
		now:       time.Now,
		mkdirAll:  os.MkdirAll,
		mkdirTemp: os.MkdirTemp,
		writeFile: os.WriteFile,
		readFile:  os.ReadFile,
		remove:    os.Remove,
	}
}

// Root returns the directory that holds the chunks namespace.
func (s *Store) Root() string {
	return s.root
}

// NewRun allocates a fresh directory for one processing run. The name is
// derived from the current time; MkdirTemp adds a random suffix so two runs
// started in the same instant still get distinct directories.
func (s *Store) NewRun(format string) (*Run, error) {
	base := filepath.Join(s.root, SafetyTag)
	if err := s.mkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root %s: %w", base, err)
	}

	pattern := fmt.Sprintf("run-%d-*", s.now().UnixNano())
	dir, err := s.mkdirTemp(base, pattern)
	if err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	return &Run{
		store:  s,
		dir:    dir,
		format: format,
	}, nil
}

// Cleanup deletes the given files and then tries to remove dir. Paths without
// the safety tag are skipped. Failures are logged and never returned. It
// reports how many files were removed.
func (s *Store) Cleanup(locations []string, dir string) int {
	removed := 0
	for _, location := range locations {
		if location == "" {
			continue
		}
		if !HasSafetyTag(location) {
			log.Printf("chunkstore: refusing to delete untagged path=%s", location)
			continue
		}
		if err := s.remove(location); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Printf("chunkstore: remove file path=%s err=%v", location, err)
			}
			continue
		}
		removed++
	}

	if dir != "" && HasSafetyTag(dir) {
		if err := s.remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			// A directory that is not empty yet is expected when a file removal failed.
			log.Printf("chunkstore: remove run dir path=%s err=%v", dir, err)
		}
	}
	return removed
}

// HasSafetyTag reports whether one path element equals SafetyTag.
func HasSafetyTag(path string) bool {
	clean := filepath.ToSlash(filepath.Clean(path))
	for _, part := range strings.Split(clean, "/") {
		if part == SafetyTag {
			return true
		}
	}
	return false
}

// Run is the staging area owned by a single processing run.
type Run struct {
	store  *Store
	dir    string
	format string

	mu     sync.Mutex
	files  []string
	closed bool
}

// Dir returns the run directory.
func (r *Run) Dir() string {
	return r.dir
}

// Write stores payload as chunk-NNN<format> and returns its location.
func (r *Run) Write(index int, payload []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", fmt.Errorf("write chunk %d: run already cleaned up", index)
	}

	path := filepath.Join(r.dir, ChunkFileName(index, r.format))
	if err := r.store.writeFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write chunk %d: %w", index, err)
	}
	r.files = append(r.files, path)
	return path, nil
}

// Read loads a staged payload.
func (r *Run) Read(location string) ([]byte, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("read %s: run already cleaned up", location)
	}
	return r.store.readFile(location)
}

// Locations returns the staged file paths in write order.
func (r *Run) Locations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// Cleanup removes every staged file and the run directory. Calling it more
// than once is a no-op.
func (r *Run) Cleanup() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	files := r.files
	r.files = nil
	r.mu.Unlock()

	r.store.Cleanup(files, r.dir)
}

// ordinalDigits covers every index the planner can produce, so names sort
// lexically in chunk order.
const ordinalDigits = 6

// ChunkFileName builds the zero-padded staged file name for index.
func ChunkFileName(index int, format string) string {
	format = strings.TrimSpace(format)
	if format != "" && !strings.HasPrefix(format, ".") {
		format = "." + format
	}
	return fmt.Sprintf("chunk-%0*d%s", ordinalDigits, index, format)
}
