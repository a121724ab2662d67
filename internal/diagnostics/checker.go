package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"longform-transcriber/internal/chunking"
	"longform-transcriber/internal/domain"
)

// Checker validates external tools, credentials and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	getenv     func(string) string
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		getenv:     os.Getenv,
	}
}

// Run executes all startup checks for the selected backend and returns a
// combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{c.checkTool("ffprobe")}
	if settings.Backend == domain.BackendOpenAI {
		items = append(items, c.checkAPIKey())
	} else {
		items = append(items,
			c.checkTool("ffmpeg"),
			c.checkTool("whisper.cpp"),
			c.checkModelPath(settings.ModelPath),
		)
	}
	items = append(items,
		c.checkChunking(settings),
		c.checkWritableDir("staging_dir", "Staging directory", settings.StagingDir),
		c.checkWritableDir("output_dir", "Output directory", settings.OutputDir),
	)

	backend := settings.Backend
	if backend == "" {
		backend = domain.BackendWhisper
	}
	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		Backend:     backend,
		HasFailures: lo.SomeBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:       "tool_" + name,
			Name:     name,
			Category: domain.DiagnosticCategoryTool,
			Status:   domain.DiagnosticStatusFail,
			Message:  fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:     "Install it and ensure the binary is available on PATH before processing a recording.",
		}
	}

	return domain.DiagnosticItem{
		ID:       "tool_" + name,
		Name:     name,
		Category: domain.DiagnosticCategoryTool,
		Status:   domain.DiagnosticStatusPass,
		Message:  fmt.Sprintf("Found at %s", path),
	}
}

// checkAPIKey verifies credentials for the HTTP backends.
func (c *Checker) checkAPIKey() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:       "api_key",
		Name:     "API key",
		Category: domain.DiagnosticCategoryCredential,
	}
	if strings.TrimSpace(c.getenv("OPENAI_API_KEY")) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "OPENAI_API_KEY is not set."
		item.Hint = "Export OPENAI_API_KEY or add it to a .env file next to the app."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = "OPENAI_API_KEY is set."
	return item
}

// checkChunking validates chunk duration and overlap.
func (c *Checker) checkChunking(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:       "chunking",
		Name:     "Chunk settings",
		Category: domain.DiagnosticCategoryChunking,
	}
	opts := chunking.Options{
		ChunkDurationSec: settings.ChunkDurationSec,
		OverlapSec:       settings.OverlapSec,
	}
	if err := opts.Validate(); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = "Chunk duration must be positive and larger than the overlap."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%gs chunks with %gs overlap", opts.ChunkDurationSec, opts.OverlapSec)
	return item
}

// checkModelPath validates configured model file or model directory.
func (c *Checker) checkModelPath(modelPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:       "model_path",
		Name:     "Model path",
		Category: domain.DiagnosticCategoryTool,
	}

	if strings.TrimSpace(modelPath) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Model path is empty."
		item.Hint = "Set a valid model file path or a directory containing whisper models."
		return item
	}

	info, err := c.stat(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Model path does not exist: %s", modelPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access model path: %s", modelPath)
		}
		item.Hint = "Download a whisper.cpp model and configure the path in settings."
		return item
	}

	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Model file found: %s", modelPath)
		return item
	}

	entries, err := c.readDir(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read model directory: %s", modelPath)
		item.Hint = "Check permissions for the model directory."
		return item
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model directory is valid: %s", modelPath)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelPath)
	item.Hint = "Place a .bin or .gguf model file in this directory or point to a model file directly."
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:       id,
		Name:     name,
		Category: domain.DiagnosticCategoryStorage,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = "Set a writable directory in settings."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	getenv func(string) string,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		getenv:     getenv,
	}
}
