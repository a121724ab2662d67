package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"longform-transcriber/internal/chunking"
	"longform-transcriber/internal/chunkstore"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// WhisperBackend transcribes chunks locally: ffmpeg normalizes the chunk to
// 16 kHz mono WAV, then whisper.cpp writes a .txt transcript. Safe for
// concurrent use; every call works in its own temp directory.
type WhisperBackend struct {
	ffmpegPath  string
	whisperPath string
	modelPath   string
	language    string
	onLog       func(log CommandLog)
	runner      commandRunner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	stat        func(name string) (os.FileInfo, error)
	readDir     func(name string) ([]os.DirEntry, error)
	readFile    func(name string) ([]byte, error)
	writeFile   func(name string, data []byte, perm os.FileMode) error
}

// NewWhisperBackend constructs the production backend with OS dependencies.
func NewWhisperBackend(modelPath, language string, onLog func(log CommandLog)) *WhisperBackend {
	return &WhisperBackend{
		ffmpegPath:  "ffmpeg",
		whisperPath: "whisper.cpp",
		modelPath:   modelPath,
		language:    language,
		onLog:       onLog,
		runner:      &execRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
		writeFile:   os.WriteFile,
	}
}

// Transcribe converts one chunk and returns its trimmed transcript text.
func (b *WhisperBackend) Transcribe(ctx context.Context, chunk chunking.Chunk) (string, error) {
	modelPath, err := b.resolveModelPath(b.modelPath)
	if err != nil {
		return "", &CommandError{
			Step:    "transcribing",
			Chunk:   chunk.Index,
			Message: err.Error(),
			Err:     err,
		}
	}

	tempDir, err := b.mkdirTemp("", "longform-whisper-*")
	if err != nil {
		return "", &CommandError{
			Step:    "preprocessing",
			Chunk:   chunk.Index,
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}
	defer func() { _ = b.removeAll(tempDir) }()

	inputPath, err := b.chunkInput(tempDir, chunk)
	if err != nil {
		return "", &CommandError{
			Step:    "preprocessing",
			Chunk:   chunk.Index,
			Message: "chunk audio is not available",
			Err:     err,
		}
	}

	wavPath := filepath.Join(tempDir, "chunk-16k-mono.wav")
	args := buildFFmpegArgs(inputPath, wavPath)
	cmdResult, runErr := b.runner.Run(ctx, b.ffmpegPath, args...)
	ffmpegLog := CommandLog{
		Command:  b.ffmpegPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	emitLog(b.onLog, ffmpegLog)
	if runErr != nil {
		return "", &CommandError{
			Step:       "preprocessing",
			Chunk:      chunk.Index,
			Message:    "ffmpeg audio conversion failed",
			CommandLog: ffmpegLog,
			Err:        runErr,
		}
	}
	if _, err := b.stat(wavPath); err != nil {
		return "", &CommandError{
			Step:       "preprocessing",
			Chunk:      chunk.Index,
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: ffmpegLog,
			Err:        err,
		}
	}

	textBase := filepath.Join(tempDir, "transcript")
	whisperArgs := buildWhisperArgs(modelPath, wavPath, textBase, b.language)
	whisperResult, runErr := b.runner.Run(ctx, b.whisperPath, whisperArgs...)
	whisperLog := CommandLog{
		Command:  b.whisperPath,
		Args:     whisperArgs,
		ExitCode: whisperResult.ExitCode,
		Stdout:   whisperResult.Stdout,
		Stderr:   whisperResult.Stderr,
	}
	emitLog(b.onLog, whisperLog)
	if runErr != nil {
		return "", &CommandError{
			Step:       "transcribing",
			Chunk:      chunk.Index,
			Message:    "whisper.cpp transcription failed",
			CommandLog: whisperLog,
			Err:        runErr,
		}
	}

	content, err := b.readFile(textBase + ".txt")
	if err != nil {
		return "", &CommandError{
			Step:       "transcribing",
			Chunk:      chunk.Index,
			Message:    "whisper.cpp completed but transcript .txt file is missing",
			CommandLog: whisperLog,
			Err:        err,
		}
	}

	return strings.TrimSpace(string(content)), nil
}

// chunkInput returns a path ffmpeg can read: the staged location when it
// still exists, otherwise the in-memory payload written into tempDir.
func (b *WhisperBackend) chunkInput(tempDir string, chunk chunking.Chunk) (string, error) {
	if chunk.Location != "" {
		if _, err := b.stat(chunk.Location); err == nil {
			return chunk.Location, nil
		}
	}
	if len(chunk.Payload) == 0 {
		return "", fmt.Errorf("chunk %d has neither a staged file nor a payload", chunk.Index)
	}

	path := filepath.Join(tempDir, chunkstore.ChunkFileName(chunk.Index, chunking.NormalizeFormat(chunk.Format)))
	if err := b.writeFile(path, chunk.Payload, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// resolveModelPath returns model file path from file or directory input.
func (b *WhisperBackend) resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := b.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := b.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs builds whisper.cpp args for txt transcript export.
func buildWhisperArgs(modelPath, audioPath, textBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
		"-nt",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}

	return args
}

// NewWhisperBackendForTests constructs a backend with injectable dependencies.
func NewWhisperBackendForTests(
	ffmpegPath string,
	whisperPath string,
	modelPath string,
	language string,
	runner commandRunner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	onLog func(log CommandLog),
) *WhisperBackend {
	return &WhisperBackend{
		ffmpegPath:  ffmpegPath,
		whisperPath: whisperPath,
		modelPath:   modelPath,
		language:    language,
		onLog:       onLog,
		runner:      runner,
		mkdirTemp:   mkdirTemp,
		removeAll:   removeAll,
		stat:        os.Stat,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
		writeFile:   os.WriteFile,
	}
}
