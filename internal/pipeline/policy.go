package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/samber/lo"

	"longform-transcriber/internal/domain"
)

// Decision is the caller's answer to a partial stage result.
type Decision string

const (
	// DecisionAccept keeps fallback text for failed chunks and moves on.
	DecisionAccept Decision = "accept"
	// DecisionRetry re-runs only the failed chunks through the same stage.
	DecisionRetry Decision = "retry"
)

// Resolver decides what to do when a stage finishes with failed chunks.
type Resolver interface {
	Resolve(ctx context.Context, outcome domain.PartialOutcome) (Decision, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, outcome domain.PartialOutcome) (Decision, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, outcome domain.PartialOutcome) (Decision, error) {
	return f(ctx, outcome)
}

// AcceptPartial always accepts the degraded result.
var AcceptPartial Resolver = ResolverFunc(func(context.Context, domain.PartialOutcome) (Decision, error) {
	return DecisionAccept, nil
})

// RetryFailed retries while budget remains, then accepts.
var RetryFailed Resolver = ResolverFunc(func(_ context.Context, outcome domain.PartialOutcome) (Decision, error) {
	if outcome.RetriesLeft > 0 {
		return DecisionRetry, nil
	}
	return DecisionAccept, nil
})

// Evaluate builds the partial outcome for a finished stage.
func Evaluate(totalChunks, failedChunks int, stage domain.Stage) (domain.PartialOutcome, error) {
	if totalChunks <= 0 {
		return domain.PartialOutcome{}, ErrNoChunks
	}
	if failedChunks < 0 || failedChunks > totalChunks {
		return domain.PartialOutcome{}, fmt.Errorf("failed chunks %d out of range [0, %d]", failedChunks, totalChunks)
	}

	return domain.PartialOutcome{
		Stage:        stage,
		TotalChunks:  totalChunks,
		FailedChunks: failedChunks,
		SuccessRate:  SuccessRate(totalChunks, failedChunks),
	}, nil
}

// SuccessRate returns round((total-failed)/total*100).
func SuccessRate(totalChunks, failedChunks int) int {
	if totalChunks <= 0 {
		return 0
	}
	return int(math.Round(float64(totalChunks-failedChunks) / float64(totalChunks) * 100))
}

// Describe renders an outcome for status lines.
func Describe(outcome domain.PartialOutcome) string {
	return fmt.Sprintf(
		"%s: %d of %d chunks succeeded (%d%%), %d failed",
		outcome.Stage,
		outcome.TotalChunks-outcome.FailedChunks,
		outcome.TotalChunks,
		outcome.SuccessRate,
		outcome.FailedChunks,
	)
}

// FailedIndices returns the indexes of non-nil errors in ascending order.
func FailedIndices(errs []error) []int {
	return lo.FilterMap(errs, func(err error, i int) (int, bool) {
		return i, err != nil
	})
}
