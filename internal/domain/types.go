package domain

import "time"

// Stage is one ordered phase of the audio processing pipeline.
type Stage string

const (
	StageChunking     Stage = "chunking"
	StageTranscribing Stage = "transcribing"
	StageMerging      Stage = "merging"
	StageRefining     Stage = "refining"
	StageSummarizing  Stage = "summarizing"
)

// Stages lists every pipeline stage in execution order.
var Stages = []Stage{
	StageChunking,
	StageTranscribing,
	StageMerging,
	StageRefining,
	StageSummarizing,
}

// StageProgress is one progress snapshot emitted while a run executes.
type StageProgress struct {
	Stage                  Stage         `json:"stage"`
	CurrentChunk           int           `json:"currentChunk"`
	TotalChunks            int           `json:"totalChunks"`
	OverallProgress        float64       `json:"overallProgress"`
	EstimatedRemainingTime time.Duration `json:"estimatedRemainingTime,omitempty"`
	ChunkResults           int           `json:"chunkResults"`
	ChunkErrors            int           `json:"chunkErrors"`
}

// PartialOutcome summarizes a stage that finished with failed chunks.
type PartialOutcome struct {
	Stage        Stage `json:"stage"`
	TotalChunks  int   `json:"totalChunks"`
	FailedChunks int   `json:"failedChunks"`
	SuccessRate  int   `json:"successRate"`
	FailedIndex  []int `json:"failedIndex,omitempty"`
	Attempt      int   `json:"attempt"`
	RetriesLeft  int   `json:"retriesLeft"`
}

// JobStatus tracks the lifecycle of a single recording processing job.
type JobStatus string

const (
	JobStatusIdle         JobStatus = "idle"
	JobStatusChunking     JobStatus = JobStatus(StageChunking)
	JobStatusTranscribing JobStatus = JobStatus(StageTranscribing)
	JobStatusMerging      JobStatus = JobStatus(StageMerging)
	JobStatusRefining     JobStatus = JobStatus(StageRefining)
	JobStatusSummarizing  JobStatus = JobStatus(StageSummarizing)
	JobStatusReviewing    JobStatus = "reviewing"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// Backend names a speech-to-text implementation.
type Backend string

const (
	BackendWhisper Backend = "whisper"
	BackendOpenAI  Backend = "openai"
)

// RefineMode selects whether refinement runs per chunk or once on merged text.
type RefineMode string

const (
	RefineModeChunks RefineMode = "chunks"
	RefineModeMerged RefineMode = "merged"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	Backend           Backend    `json:"backend" yaml:"backend"`
	ModelPath         string     `json:"modelPath" yaml:"model_path"`
	Language          string     `json:"language" yaml:"language"`
	OutputDir         string     `json:"outputDir" yaml:"output_dir"`
	StagingDir        string     `json:"stagingDir" yaml:"staging_dir"`
	ChunkDurationSec  float64    `json:"chunkDurationSec" yaml:"chunk_duration_sec"`
	OverlapSec        float64    `json:"overlapSec" yaml:"overlap_sec"`
	HeaderPrefixBytes int        `json:"headerPrefixBytes" yaml:"header_prefix_bytes"`
	Concurrency       int        `json:"concurrency" yaml:"concurrency"`
	MaxRetries        int        `json:"maxRetries" yaml:"max_retries"`
	RefineMode        RefineMode `json:"refineMode" yaml:"refine_mode"`
	OutputFormat      string     `json:"outputFormat" yaml:"output_format"`
	APIBaseURL        string     `json:"apiBaseURL" yaml:"api_base_url"`
	TranscribeModel   string     `json:"transcribeModel" yaml:"transcribe_model"`
	RefineModel       string     `json:"refineModel" yaml:"refine_model"`
	SummaryModel      string     `json:"summaryModel" yaml:"summary_model"`
}

// Job stores the current job identity, lifecycle status and the latest
// progress snapshot polled by the UI.
type Job struct {
	ID        string          `json:"id"`
	Status    JobStatus       `json:"status"`
	InputPath string          `json:"inputPath,omitempty"`
	Progress  StageProgress   `json:"progress"`
	Pending   *PartialOutcome `json:"pending,omitempty"`
}
