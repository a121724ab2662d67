package pipeline

import (
	"sync"
	"time"

	"longform-transcriber/internal/domain"
)

// Observer receives progress snapshots. Calls are serialized and made
// synchronously at stage start, after each chunk and at stage end.
type Observer interface {
	OnProgress(progress domain.StageProgress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(progress domain.StageProgress)

// OnProgress calls f.
func (f ObserverFunc) OnProgress(progress domain.StageProgress) {
	f(progress)
}

// stageWeights approximates the wall-clock share of each stage. Network
// bound stages dominate.
var stageWeights = map[domain.Stage]float64{
	domain.StageChunking:     5,
	domain.StageTranscribing: 55,
	domain.StageMerging:      2,
	domain.StageRefining:     30,
	domain.StageSummarizing:  8,
}

// stageOffset returns the percentage completed before stage starts.
func stageOffset(stage domain.Stage) float64 {
	offset := 0.0
	for _, s := range domain.Stages {
		if s == stage {
			return offset
		}
		offset += stageWeights[s]
	}
	return offset
}

// tracker owns the per-run progress handle. overallProgress and
// currentChunk never decrease within a run.
type tracker struct {
	mu       sync.Mutex
	observer Observer
	now      func() time.Time
	started  time.Time
	base     float64
	current  domain.StageProgress
}

func newTracker(observer Observer, now func() time.Time) *tracker {
	if now == nil {
		now = time.Now
	}
	return &tracker{
		observer: observer,
		now:      now,
		started:  now(),
	}
}

// begin enters stage with total units of work.
func (t *tracker) begin(stage domain.Stage, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.base = stageOffset(stage)
	t.current = domain.StageProgress{
		Stage:           stage,
		TotalChunks:     total,
		OverallProgress: maxFloat(t.current.OverallProgress, t.base),
	}
	t.emitLocked()
}

// setTotal updates the unit count once it is known.
func (t *tracker) setTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.TotalChunks = total
}

// chunkDone records one finished unit.
func (t *tracker) chunkDone(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ok {
		t.current.ChunkResults++
	} else {
		t.current.ChunkErrors++
	}
	done := t.current.ChunkResults + t.current.ChunkErrors
	if done > t.current.CurrentChunk {
		t.current.CurrentChunk = done
	}
	t.advanceLocked()
	t.emitLocked()
}

// retry moves n failed units back to pending.
func (t *tracker) retry(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current.ChunkErrors -= n
	if t.current.ChunkErrors < 0 {
		t.current.ChunkErrors = 0
	}
	t.emitLocked()
}

// record counts n units finished together, for stages without per-unit
// workers.
func (t *tracker) record(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current.ChunkResults += n
	done := t.current.ChunkResults + t.current.ChunkErrors
	if done > t.current.CurrentChunk {
		t.current.CurrentChunk = done
	}
	t.advanceLocked()
	t.emitLocked()
}

// finish closes the current stage. Unit counts are left as reported.
func (t *tracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current.OverallProgress = maxFloat(t.current.OverallProgress, t.base+stageWeights[t.current.Stage])
	t.emitLocked()
}

// snapshot returns the latest progress.
func (t *tracker) snapshot() domain.StageProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *tracker) advanceLocked() {
	total := t.current.TotalChunks
	if total <= 0 {
		return
	}
	done := t.current.ChunkResults + t.current.ChunkErrors
	if done > total {
		done = total
	}
	weight := stageWeights[t.current.Stage]
	next := t.base + weight*float64(done)/float64(total)
	t.current.OverallProgress = maxFloat(t.current.OverallProgress, next)
}

func (t *tracker) emitLocked() {
	if t.current.OverallProgress > 100 {
		t.current.OverallProgress = 100
	}
	t.current.EstimatedRemainingTime = 0
	if p := t.current.OverallProgress; p > 0 && p < 100 {
		elapsed := t.now().Sub(t.started)
		remaining := time.Duration(float64(elapsed) * (100 - p) / p)
		t.current.EstimatedRemainingTime = remaining.Round(time.Second)
	}
	if t.observer != nil {
		t.observer.OnProgress(t.current)
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
