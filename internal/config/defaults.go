package config

import (
	"os"
	"path/filepath"
	"strings"

	"longform-transcriber/internal/domain"
)

const (
	defaultChunkDurationSec  = 420
	defaultOverlapSec        = 3
	defaultHeaderPrefixBytes = 4096
	defaultConcurrency       = 3
	defaultMaxRetries        = 1
	maxConcurrency           = 16
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		Backend:           domain.BackendWhisper,
		ModelPath:         filepath.Join(homeDir, ".longform-transcriber", "models"),
		OutputDir:         filepath.Join(homeDir, "Documents", "Transcripts"),
		StagingDir:        filepath.Join(os.TempDir(), "longform-transcriber"),
		Language:          "auto",
		ChunkDurationSec:  defaultChunkDurationSec,
		OverlapSec:        defaultOverlapSec,
		HeaderPrefixBytes: defaultHeaderPrefixBytes,
		Concurrency:       defaultConcurrency,
		MaxRetries:        defaultMaxRetries,
		RefineMode:        domain.RefineModeChunks,
		OutputFormat:      "paragraphs",
		APIBaseURL:        "https://api.openai.com",
		TranscribeModel:   "whisper-1",
		RefineModel:       "gpt-4o-mini",
		SummaryModel:      "gpt-4o-mini",
	}
}

// WithDefaults fills zero-valued fields from DefaultSettings and clamps
// numeric ranges. Overlap is left as-is so invalid chunk options still
// surface as configuration errors.
func WithDefaults(s domain.Settings) domain.Settings {
	d := DefaultSettings()

	s.ModelPath = strings.TrimSpace(s.ModelPath)
	s.OutputDir = strings.TrimSpace(s.OutputDir)
	s.StagingDir = strings.TrimSpace(s.StagingDir)
	s.Language = strings.TrimSpace(s.Language)

	if s.Backend == "" {
		s.Backend = d.Backend
	}
	if s.ModelPath == "" {
		s.ModelPath = d.ModelPath
	}
	if s.OutputDir == "" {
		s.OutputDir = d.OutputDir
	}
	if s.StagingDir == "" {
		s.StagingDir = d.StagingDir
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.ChunkDurationSec == 0 {
		s.ChunkDurationSec = d.ChunkDurationSec
	}
	if s.HeaderPrefixBytes <= 0 {
		s.HeaderPrefixBytes = d.HeaderPrefixBytes
	}
	if s.Concurrency <= 0 {
		s.Concurrency = d.Concurrency
	}
	if s.Concurrency > maxConcurrency {
		s.Concurrency = maxConcurrency
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.RefineMode != domain.RefineModeMerged {
		s.RefineMode = domain.RefineModeChunks
	}
	if strings.TrimSpace(s.OutputFormat) == "" {
		s.OutputFormat = d.OutputFormat
	}
	if strings.TrimSpace(s.APIBaseURL) == "" {
		s.APIBaseURL = d.APIBaseURL
	}
	if strings.TrimSpace(s.TranscribeModel) == "" {
		s.TranscribeModel = d.TranscribeModel
	}
	if strings.TrimSpace(s.RefineModel) == "" {
		s.RefineModel = d.RefineModel
	}
	if strings.TrimSpace(s.SummaryModel) == "" {
		s.SummaryModel = s.RefineModel
	}
	return s
}

// APIKey returns the OpenAI-compatible API key from the environment.
func APIKey() string {
	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
