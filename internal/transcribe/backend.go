package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"longform-transcriber/internal/chunking"
	"longform-transcriber/internal/domain"
)

// ErrMissingAPIKey is returned when the HTTP backend has no credentials.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// Backend converts one staged chunk into text.
type Backend interface {
	Transcribe(ctx context.Context, chunk chunking.Chunk) (string, error)
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// CommandError is a step-aware backend error with optional command context.
type CommandError struct {
	Step       string     `json:"step"`
	Chunk      int        `json:"chunk"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats backend failures for logs and UI.
func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s chunk %d: %s", e.Step, e.Chunk, e.Message)
	}

	return fmt.Sprintf(
		"%s chunk %d: %s (cmd=%s exit=%d)",
		e.Step,
		e.Chunk,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewFromSettings builds the backend selected in settings.
func NewFromSettings(settings domain.Settings, apiKey string, onLog func(CommandLog)) (Backend, error) {
	switch settings.Backend {
	case domain.BackendOpenAI:
		if strings.TrimSpace(apiKey) == "" {
			return nil, ErrMissingAPIKey
		}
		return NewOpenAIBackend(settings.APIBaseURL, apiKey, settings.TranscribeModel, settings.Language), nil
	case domain.BackendWhisper, "":
		return NewWhisperBackend(settings.ModelPath, settings.Language, onLog), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", settings.Backend)
	}
}

// normalizeLanguage maps "auto" and empty language to no override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}
