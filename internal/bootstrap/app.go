package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"longform-transcriber/internal/chunking"
	"longform-transcriber/internal/chunkstore"
	"longform-transcriber/internal/config"
	"longform-transcriber/internal/diagnostics"
	"longform-transcriber/internal/domain"
	"longform-transcriber/internal/jobs"
	"longform-transcriber/internal/pipeline"
	"longform-transcriber/internal/refine"
	"longform-transcriber/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrNoPendingDecision is returned when ResolvePartial has nothing to answer.
var ErrNoPendingDecision = errors.New("no partial result awaiting a decision")

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Recordings",
		Pattern:     "*.webm;*.ogg;*.opus;*.mp3;*.m4a;*.wav;*.flac;*.aac;*.mp4;*.mkv",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, jobs, pipeline, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	newPipeline pipelineFactory
	probe       func(ctx context.Context, path string) (float64, error)

	mu          sync.Mutex
	activeJobID string
	cancel      context.CancelFunc
	decision    chan pipeline.Decision
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// pipelineRunner isolates the stage pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// pipelineFactory builds a pipeline for the settings of one job.
type pipelineFactory func(settings domain.Settings, onLog func(log transcribe.CommandLog)) (pipelineRunner, error)

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewFileStore(settingsPath(homeDir))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	return &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		newPipeline: defaultPipelineFactory,
		probe:       transcribe.NewProber().Duration,
		events:      jobs.NewEventBus(1000),
	}, nil
}

// defaultPipelineFactory wires the configured speech-to-text backend and,
// when an API key is present, the refinement and summary client.
func defaultPipelineFactory(settings domain.Settings, onLog func(log transcribe.CommandLog)) (pipelineRunner, error) {
	apiKey := config.APIKey()
	backend, err := transcribe.NewFromSettings(settings, apiKey, onLog)
	if err != nil {
		return nil, err
	}

	var refiner pipeline.Refiner
	var summarizer pipeline.Summarizer
	if apiKey != "" {
		client := refine.NewClient(nil, refine.Config{
			BaseURL:      settings.APIBaseURL,
			APIKey:       apiKey,
			RefineModel:  settings.RefineModel,
			SummaryModel: settings.SummaryModel,
		})
		refiner, summarizer = client, client
	}

	return pipeline.New(
		pipeline.ConfigFromSettings(settings),
		chunkstore.NewStore(settings.StagingDir),
		backend,
		refiner,
		summarizer,
	), nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Longform Transcriber",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and starts the
// settings file watcher.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	store, ok := a.Store.(*config.FileStore)
	if !ok {
		return
	}
	if err := config.Watch(ctx, store, a.applySettings); err != nil {
		log.Printf("bootstrap: settings watch disabled path=%s err=%v", store.Path(), err)
	}
}

// adoptSettings makes settings current and reruns the readiness checks
// against them.
func (a *App) adoptSettings(settings domain.Settings) (domain.DiagnosticReport, context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics, a.runtimeCtx
}

// applySettings handles a settings file reload from the watcher.
func (a *App) applySettings(settings domain.Settings) {
	report, ctx := a.adoptSettings(settings)
	log.Printf("bootstrap: settings reloaded backend=%s chunk_sec=%g overlap_sec=%g failures=%d",
		settings.Backend, settings.ChunkDurationSec, settings.OverlapSec, len(report.Failures()))
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "settings:changed", settings)
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings returns the persisted settings and makes them current.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	a.adoptSettings(settings)
	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// Chunk options the planner would reject are not saved.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.WithDefaults(settings)
	opts := chunking.Options{
		ChunkDurationSec: normalized.ChunkDurationSec,
		OverlapSec:       normalized.OverlapSec,
	}
	if err := opts.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	a.adoptSettings(normalized)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns the readiness checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	report, _ := a.adoptSettings(settings)
	return report, nil
}

// PickInputFile opens a native file dialog for recording selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select recording",
		Filters: audioDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// StartProcessing creates a job for one recording and runs it
// asynchronously. A non-positive durationSec is probed from the file.
func (a *App) StartProcessing(inputPath string, durationSec float64) (domain.Job, error) {
	inputPath = strings.TrimSpace(inputPath)
	if inputPath == "" {
		return domain.Job{}, fmt.Errorf("input recording path is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	jobID := "job-" + uuid.NewString()
	if err := a.Jobs.Start(jobID, inputPath); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeJobID = jobID
	a.cancel = cancel
	a.Settings = settings
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusChunking, "Job started")

	go a.runProcessingJob(ctx, jobID, inputPath, durationSec, settings)
	return a.Jobs.Current(), nil
}

// CancelProcessing cancels the currently running job, if any. Outstanding
// collaborator calls are abandoned and staged chunks are removed.
func (a *App) CancelProcessing() error {
	a.mu.Lock()
	cancel := a.cancel
	activeJobID := a.activeJobID
	a.decision = nil
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningJob
	}

	cancel()
	if err := a.Jobs.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}

	if activeJobID != "" {
		a.publishStatus(activeJobID, domain.JobStatusCancelled, "Cancellation requested")
	}
	return nil
}

// ResolvePartial answers a pending partial result: retry re-runs only the
// failed chunks, otherwise the degraded result is accepted.
func (a *App) ResolvePartial(retry bool) error {
	a.mu.Lock()
	ch := a.decision
	a.decision = nil
	a.mu.Unlock()

	if ch == nil {
		return ErrNoPendingDecision
	}

	decision := pipeline.DecisionAccept
	if retry {
		decision = pipeline.DecisionRetry
	}
	ch <- decision
	return nil
}

// CurrentJob returns current job metadata, status and latest progress.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// CurrentJobEvents returns events of the current job only.
func (a *App) CurrentJobEvents(sinceSeq int64) []jobs.Event {
	return a.events.ForJob(a.Jobs.Current().ID, sinceSeq)
}

// LastResult returns the export event of the current job, if it finished.
func (a *App) LastResult() (jobs.Event, error) {
	event, ok := a.events.Last(a.Jobs.Current().ID, jobs.EventTypeResult)
	if !ok {
		return jobs.Event{}, fmt.Errorf("current job has no exported result")
	}
	return event, nil
}

// runProcessingJob executes the pipeline and maps outcomes to job events.
func (a *App) runProcessingJob(ctx context.Context, jobID, inputPath string, durationSec float64, settings domain.Settings) {
	onLog := func(log transcribe.CommandLog) {
		a.publishEvent(jobs.Event{
			JobID:    jobID,
			Type:     jobs.EventTypeLog,
			Message:  "Command completed",
			Command:  log.Command,
			Args:     log.Args,
			ExitCode: log.ExitCode,
			Stdout:   log.Stdout,
			Stderr:   log.Stderr,
		})
	}

	runner, err := a.newPipeline(settings, onLog)
	if err != nil {
		a.failJob(jobID, fmt.Errorf("configure pipeline: %w", err))
		return
	}

	if durationSec <= 0 {
		if a.probe == nil {
			a.failJob(jobID, fmt.Errorf("recording duration is unknown"))
			return
		}
		durationSec, err = a.probe(ctx, inputPath)
		if err != nil {
			a.failJob(jobID, fmt.Errorf("probe recording duration: %w", err))
			return
		}
	}

	result, err := runner.Run(ctx, pipeline.Request{
		InputPath:        inputPath,
		TotalDurationSec: durationSec,
		MaxRetries:       settings.MaxRetries,
		Observer: pipeline.ObserverFunc(func(p domain.StageProgress) {
			a.onProgress(jobID, p)
		}),
		Resolver: pipeline.ResolverFunc(func(ctx context.Context, o domain.PartialOutcome) (pipeline.Decision, error) {
			return a.awaitDecision(ctx, jobID, o)
		}),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_ = a.Jobs.Transition(domain.JobStatusCancelled)
			a.publishStatus(jobID, domain.JobStatusCancelled, "Job cancelled")
			a.clearActiveJob(jobID)
			return
		}
		a.failJob(jobID, err)
		return
	}

	textPath, summaryPath, err := exportResult(settings.OutputDir, inputPath, result)
	if err != nil {
		a.failJob(jobID, err)
		return
	}
	if result.SummaryError != "" {
		a.publishEvent(jobs.Event{
			JobID:   jobID,
			Type:    jobs.EventTypeError,
			Message: "Summary unavailable: " + result.SummaryError,
		})
	}

	progress := result.Progress
	a.publishEvent(jobs.Event{
		JobID:       jobID,
		Type:        jobs.EventTypeResult,
		Status:      domain.JobStatusDone,
		Message:     fmt.Sprintf("Transcript exported (%d chunks, %d partial stages)", result.TotalChunks, len(result.Partials)),
		TextPath:    textPath,
		SummaryPath: summaryPath,
		Progress:    &progress,
	})
	if err := a.Jobs.Transition(domain.JobStatusDone); err == nil {
		a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	}
	log.Printf("bootstrap: job=%s status=done chunks=%d text=%s", jobID, result.TotalChunks, textPath)
	a.clearActiveJob(jobID)
}

// onProgress moves the job to the snapshot's stage and publishes it.
func (a *App) onProgress(jobID string, progress domain.StageProgress) {
	current := a.Jobs.Current()
	if current.ID != jobID || !a.Jobs.IsRunning() {
		return
	}
	status := domain.JobStatus(progress.Stage)
	if current.Status != status {
		if err := a.Jobs.Transition(status); err == nil {
			a.publishStatus(jobID, status, "Running "+string(progress.Stage)+" stage")
		}
	}
	a.Jobs.UpdateProgress(progress)
	a.publishEvent(jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeProgress,
		Status:   status,
		Progress: &progress,
	})
}

// awaitDecision surfaces a partial outcome and blocks until ResolvePartial
// or cancellation. With no retries left the partial result is accepted
// without asking.
func (a *App) awaitDecision(ctx context.Context, jobID string, outcome domain.PartialOutcome) (pipeline.Decision, error) {
	message := pipeline.Describe(outcome)
	if outcome.RetriesLeft <= 0 {
		a.publishEvent(jobs.Event{
			JobID:   jobID,
			Type:    jobs.EventTypePartial,
			Message: message + "; retry budget exhausted, keeping partial result",
			Partial: &outcome,
		})
		return pipeline.DecisionAccept, nil
	}

	ch := make(chan pipeline.Decision, 1)
	a.mu.Lock()
	a.decision = ch
	a.mu.Unlock()

	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypePartial,
		Status:  domain.JobStatusReviewing,
		Message: message,
		Partial: &outcome,
	})
	if err := a.Jobs.Review(outcome); err != nil {
		log.Printf("bootstrap: job=%s review transition: %v", jobID, err)
	}
	a.publishStatus(jobID, domain.JobStatusReviewing, message)

	select {
	case d := <-ch:
		log.Printf("bootstrap: job=%s stage=%s decision=%s", jobID, outcome.Stage, d)
		return d, nil
	case <-ctx.Done():
		a.mu.Lock()
		if a.decision == ch {
			a.decision = nil
		}
		a.mu.Unlock()
		return "", ctx.Err()
	}
}

// failJob marks the job failed and publishes the error.
func (a *App) failJob(jobID string, err error) {
	log.Printf("bootstrap: job=%s status=failed err=%v", jobID, err)
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Status:  domain.JobStatusFailed,
		Message: err.Error(),
	})

	var cmdErr *transcribe.CommandError
	if errors.As(err, &cmdErr) && cmdErr.CommandLog.Command != "" {
		a.publishEvent(jobs.Event{
			JobID:    jobID,
			Type:     jobs.EventTypeLog,
			Message:  "Failed command",
			Command:  cmdErr.CommandLog.Command,
			Args:     cmdErr.CommandLog.Args,
			ExitCode: cmdErr.CommandLog.ExitCode,
			Stdout:   cmdErr.CommandLog.Stdout,
			Stderr:   cmdErr.CommandLog.Stderr,
		})
	}
	_ = a.Jobs.Transition(domain.JobStatusFailed)
	a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")
	a.clearActiveJob(jobID)
}

// exportResult writes the final text and optional summary next to each other.
func exportResult(outputDir, inputPath string, result pipeline.Result) (string, string, error) {
	if strings.TrimSpace(outputDir) == "" {
		return "", "", fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	text := result.RefinedText
	if strings.TrimSpace(text) == "" {
		text = result.Transcript
	}
	textPath := filepath.Join(outputDir, transcriptFileName(inputPath, ""))
	if err := os.WriteFile(textPath, []byte(text+"\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("write transcript: %w", err)
	}

	if strings.TrimSpace(result.Summary) == "" {
		return textPath, "", nil
	}
	summaryPath := filepath.Join(outputDir, transcriptFileName(inputPath, ".summary"))
	if err := os.WriteFile(summaryPath, []byte(result.Summary+"\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("write summary: %w", err)
	}
	return textPath, summaryPath, nil
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		if a.cancel != nil {
			a.cancel()
		}
		a.cancel = nil
		a.decision = nil
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}
