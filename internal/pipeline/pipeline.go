// Package pipeline drives a long recording through chunking, transcription,
// merging, refinement and summarization with per-chunk failure tolerance.
package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"longform-transcriber/internal/chunking"
	"longform-transcriber/internal/chunkstore"
	"longform-transcriber/internal/domain"
)

// Transcriber converts one chunk payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk chunking.Chunk) (string, error)
}

// Refiner rewrites raw transcript text into the requested format.
type Refiner interface {
	Refine(ctx context.Context, text, format string) (string, error)
}

// Summarizer produces a summary of the final text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Config holds the tunables of one pipeline instance.
type Config struct {
	Chunking          chunking.Options
	HeaderPrefixBytes int
	Concurrency       int
	RefineMode        domain.RefineMode
	OutputFormat      string
}

// ConfigFromSettings maps persisted settings onto pipeline config.
func ConfigFromSettings(settings domain.Settings) Config {
	return Config{
		Chunking: chunking.Options{
			ChunkDurationSec: settings.ChunkDurationSec,
			OverlapSec:       settings.OverlapSec,
		},
		HeaderPrefixBytes: settings.HeaderPrefixBytes,
		Concurrency:       settings.Concurrency,
		RefineMode:        settings.RefineMode,
		OutputFormat:      settings.OutputFormat,
	}
}

// Request describes one recording to process. Audio takes precedence over
// InputPath when both are set.
type Request struct {
	InputPath        string
	Audio            []byte
	Format           string
	TotalDurationSec float64
	MaxRetries       int
	Observer         Observer
	Resolver         Resolver
}

// Result is the merged output of one run.
type Result struct {
	Transcript    string                  `json:"transcript"`
	RefinedText   string                  `json:"refinedText"`
	Summary       string                  `json:"summary,omitempty"`
	SummaryError  string                  `json:"summaryError,omitempty"`
	TotalChunks   int                     `json:"totalChunks"`
	TotalDuration float64                 `json:"totalDuration"`
	ChunkTexts    []string                `json:"chunkTexts"`
	Partials      []domain.PartialOutcome `json:"partials,omitempty"`
	Progress      domain.StageProgress    `json:"progress"`
}

// Pipeline orchestrates the stages for one recording at a time per Run call.
// Concurrent Runs share nothing but the staging root.
type Pipeline struct {
	cfg         Config
	store       *chunkstore.Store
	splitter    *chunking.Splitter
	transcriber Transcriber
	refiner     Refiner
	summarizer  Summarizer
	now         func() time.Time
}

// New constructs a pipeline. refiner and summarizer may be nil, in which
// case their stages pass text through unchanged.
func New(cfg Config, store *chunkstore.Store, transcriber Transcriber, refiner Refiner, summarizer Summarizer) *Pipeline {
	if store == nil {
		store = chunkstore.NewStore("")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RefineMode == "" {
		cfg.RefineMode = domain.RefineModeChunks
	}
	return &Pipeline{
		cfg:         cfg,
		store:       store,
		splitter:    chunking.NewSplitter(cfg.HeaderPrefixBytes),
		transcriber: transcriber,
		refiner:     refiner,
		summarizer:  summarizer,
		now:         time.Now,
	}
}

// Run processes one recording. Staged chunk files are removed before Run
// returns, on success, failure and cancellation alike.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if err := p.cfg.Chunking.Validate(); err != nil {
		return Result{}, &PipelineError{
			Stage:   domain.StageChunking,
			Message: "invalid chunking configuration",
			Err:     err,
		}
	}
	if p.transcriber == nil {
		return Result{}, &PipelineError{
			Stage:   domain.StageTranscribing,
			Message: "speech-to-text backend is not configured",
		}
	}
	if req.Resolver == nil {
		req.Resolver = AcceptPartial
	}

	tr := newTracker(req.Observer, p.now)
	chunks, run, err := p.chunk(ctx, req, tr)
	if err != nil {
		return Result{}, err
	}
	defer run.Cleanup()

	result := Result{
		TotalChunks:   chunks.TotalChunks,
		TotalDuration: chunks.TotalDuration,
	}

	texts, outcome, err := p.runChunkStage(ctx, req, tr, domain.StageTranscribing, len(chunks.Chunks),
		func(ctx context.Context, i int) (string, error) {
			return p.transcriber.Transcribe(ctx, chunks.Chunks[i])
		},
		func(i int) string {
			return FallbackTranscript(chunks.Chunks[i])
		},
	)
	if err != nil {
		return Result{}, err
	}
	untranscribed := map[int]bool{}
	if outcome != nil {
		result.Partials = append(result.Partials, *outcome)
		for _, i := range outcome.FailedIndex {
			untranscribed[i] = true
		}
	}
	result.ChunkTexts = texts

	log.Printf("pipeline: stage=%s chunks=%d", domain.StageMerging, len(texts))
	tr.begin(domain.StageMerging, len(texts))
	result.Transcript = Merge(texts)
	tr.record(len(texts))
	tr.finish()

	refined, outcome, err := p.refine(ctx, req, tr, texts, untranscribed, result.Transcript)
	if err != nil {
		return Result{}, err
	}
	if outcome != nil {
		result.Partials = append(result.Partials, *outcome)
	}
	result.RefinedText = refined

	summary, summaryErr, err := p.summarize(ctx, tr, refined)
	if err != nil {
		return Result{}, err
	}
	result.Summary = summary
	if summaryErr != nil {
		result.SummaryError = summaryErr.Error()
	}

	result.Progress = tr.snapshot()
	log.Printf("pipeline: run complete chunks=%d partial_stages=%d", result.TotalChunks, len(result.Partials))
	return result, nil
}

// chunk plans windows, allocates the run directory and stages payloads.
func (p *Pipeline) chunk(ctx context.Context, req Request, tr *tracker) (chunking.Result, *chunkstore.Run, error) {
	log.Printf("pipeline: stage=%s duration_sec=%.1f", domain.StageChunking, req.TotalDurationSec)
	tr.begin(domain.StageChunking, 0)

	windows, err := chunking.Plan(req.TotalDurationSec, p.cfg.Chunking)
	if err != nil {
		return chunking.Result{}, nil, &PipelineError{
			Stage:   domain.StageChunking,
			Message: "cannot plan chunk boundaries",
			Err:     err,
		}
	}

	format := req.Format
	if strings.TrimSpace(format) == "" {
		format = chunking.FormatOf(req.InputPath)
	}
	format = chunking.NormalizeFormat(format)

	run, err := p.store.NewRun(format)
	if err != nil {
		return chunking.Result{}, nil, &PipelineError{
			Stage:   domain.StageChunking,
			Message: "cannot create staging directory",
			Err:     err,
		}
	}

	var chunks chunking.Result
	if len(req.Audio) > 0 {
		chunks, err = p.splitter.Split(req.Audio, windows, req.TotalDurationSec, format, run)
	} else {
		chunks, err = p.splitter.SplitFile(req.InputPath, windows, req.TotalDurationSec, run)
	}
	if err != nil {
		run.Cleanup()
		return chunking.Result{}, nil, &PipelineError{
			Stage:   domain.StageChunking,
			Message: "failed to split source audio",
			Err:     err,
		}
	}
	if len(chunks.Chunks) == 0 {
		run.Cleanup()
		return chunking.Result{}, nil, &PipelineError{
			Stage:   domain.StageChunking,
			Message: "splitter produced no chunks",
			Err:     ErrNoChunks,
		}
	}
	if err := ctx.Err(); err != nil {
		run.Cleanup()
		return chunking.Result{}, nil, &PipelineError{
			Stage:   domain.StageChunking,
			Message: "run cancelled",
			Err:     err,
		}
	}

	tr.setTotal(len(chunks.Chunks))
	tr.record(len(chunks.Chunks))
	tr.finish()
	return chunks, run, nil
}

// refine runs the refinement stage per chunk or once on the merged text.
func (p *Pipeline) refine(
	ctx context.Context,
	req Request,
	tr *tracker,
	texts []string,
	untranscribed map[int]bool,
	merged string,
) (string, *domain.PartialOutcome, error) {
	if p.refiner == nil {
		tr.begin(domain.StageRefining, 0)
		tr.finish()
		return merged, nil, nil
	}
	format := p.cfg.OutputFormat

	if p.cfg.RefineMode == domain.RefineModeMerged || len(texts) == 1 {
		out, outcome, err := p.runChunkStage(ctx, req, tr, domain.StageRefining, 1,
			func(ctx context.Context, _ int) (string, error) {
				if strings.TrimSpace(merged) == "" {
					return "", nil
				}
				return p.refiner.Refine(ctx, merged, format)
			},
			func(int) string { return merged },
		)
		if err != nil {
			return "", nil, err
		}
		return out[0], outcome, nil
	}

	out, outcome, err := p.runChunkStage(ctx, req, tr, domain.StageRefining, len(texts),
		func(ctx context.Context, i int) (string, error) {
			if untranscribed[i] || strings.TrimSpace(texts[i]) == "" {
				return texts[i], nil
			}
			return p.refiner.Refine(ctx, texts[i], format)
		},
		func(i int) string { return texts[i] },
	)
	if err != nil {
		return "", nil, err
	}
	return Merge(out), outcome, nil
}

// summarize runs the single-shot summarization stage. A collaborator
// failure is returned as summaryErr and does not fail the run.
func (p *Pipeline) summarize(ctx context.Context, tr *tracker, text string) (summary string, summaryErr error, err error) {
	log.Printf("pipeline: stage=%s", domain.StageSummarizing)
	if p.summarizer == nil || strings.TrimSpace(text) == "" {
		tr.begin(domain.StageSummarizing, 0)
		tr.finish()
		return "", nil, nil
	}

	tr.begin(domain.StageSummarizing, 1)
	summary, summaryErr = p.summarizer.Summarize(ctx, text)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", nil, &PipelineError{
			Stage:   domain.StageSummarizing,
			Message: "run cancelled",
			Err:     ctxErr,
		}
	}
	if summaryErr != nil {
		log.Printf("pipeline: stage=%s err=%v", domain.StageSummarizing, summaryErr)
		summary = ""
	}
	tr.chunkDone(summaryErr == nil)
	tr.finish()
	return strings.TrimSpace(summary), summaryErr, nil
}

// runChunkStage runs task for every unit, consults the resolver while units
// keep failing, and substitutes fallback text for units that stay failed.
// Outputs are addressed by index so completion order never matters.
func (p *Pipeline) runChunkStage(
	ctx context.Context,
	req Request,
	tr *tracker,
	stage domain.Stage,
	total int,
	task func(ctx context.Context, i int) (string, error),
	fallback func(i int) string,
) ([]string, *domain.PartialOutcome, error) {
	if total <= 0 {
		return nil, nil, &PipelineError{Stage: stage, Message: "stage started without chunks", Err: ErrNoChunks}
	}

	log.Printf("pipeline: stage=%s chunks=%d", stage, total)
	tr.begin(stage, total)

	outputs := make([]string, total)
	errs := make([]error, total)
	pending := make([]int, total)
	for i := range pending {
		pending[i] = i
	}

	var accepted *domain.PartialOutcome
	for attempt := 0; ; attempt++ {
		if err := p.dispatch(ctx, tr, stage, pending, outputs, errs, task); err != nil {
			return nil, nil, &PipelineError{Stage: stage, Message: "run cancelled", Err: err}
		}

		failed := FailedIndices(errs)
		if len(failed) == 0 {
			break
		}

		outcome, err := Evaluate(total, len(failed), stage)
		if err != nil {
			return nil, nil, &PipelineError{Stage: stage, Message: "cannot evaluate partial result", Err: err}
		}
		outcome.FailedIndex = failed
		outcome.Attempt = attempt
		outcome.RetriesLeft = req.MaxRetries - attempt
		if outcome.RetriesLeft < 0 {
			outcome.RetriesLeft = 0
		}
		log.Printf("pipeline: partial %s", Describe(outcome))

		decision, err := req.Resolver.Resolve(ctx, outcome)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return nil, nil, &PipelineError{Stage: stage, Message: "partial result decision failed", Err: err}
		}

		if decision == DecisionRetry && outcome.RetriesLeft > 0 {
			log.Printf("pipeline: stage=%s retry attempt=%d chunks=%v", stage, attempt+1, failed)
			tr.retry(len(failed))
			for _, i := range failed {
				errs[i] = nil
			}
			pending = failed
			continue
		}
		if decision == DecisionRetry {
			log.Printf("pipeline: stage=%s retry budget exhausted, accepting partial result", stage)
		}

		for _, i := range failed {
			outputs[i] = fallback(i)
		}
		accepted = &outcome
		break
	}

	tr.finish()
	return outputs, accepted, nil
}

// dispatch runs task for indices with at most cfg.Concurrency in flight and
// waits for all started calls before returning.
func (p *Pipeline) dispatch(
	ctx context.Context,
	tr *tracker,
	stage domain.Stage,
	indices []int,
	outputs []string,
	errs []error,
	task func(ctx context.Context, i int) (string, error),
) error {
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

loop:
	for _, idx := range indices {
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			text, err := task(ctx, i)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("pipeline: stage=%s chunk=%d err=%v", stage, i, err)
				}
				errs[i] = err
				tr.chunkDone(false)
				return
			}
			outputs[i] = strings.TrimSpace(text)
			errs[i] = nil
			tr.chunkDone(true)
		}(idx)
	}

	wg.Wait()
	return ctx.Err()
}
