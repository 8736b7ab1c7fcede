// Package sentiment scores short feedback text on a continuous polarity
// scale and buckets it into positive/neutral/negative, using an ordered
// fallback chain of classifier stages.
package sentiment

import (
	"context"
	"errors"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/textutil"
)

// ErrUnavailable signals that a stage cannot classify and the chain should
// fall through to the next stage.
var ErrUnavailable = errors.New("sentiment stage unavailable")

// Result is a sentiment classification outcome. Score is in [-1, 1] and its
// sign is always consistent with Label, modulo the neutral band.
type Result struct {
	Label  domain.Sentiment `json:"label"`
	Score  float64          `json:"score"`
	Method string           `json:"method"`
}

// Neutral is the degenerate result used for empty text and total stage
// failure.
func Neutral(method string) Result {
	return Result{Label: domain.SentimentNeutral, Score: 0, Method: method}
}

// Stage is one classifier in the fallback chain. Implementations return
// ErrUnavailable (possibly wrapped) when they cannot serve the request.
type Stage interface {
	Name() string
	Classify(ctx context.Context, text string) (Result, error)
}

// minTextLength is the minimum normalized character count before
// classification is attempted.
const minTextLength = 3

// Chain tries stages in order, degrading on error. It never propagates a
// failure: if every stage fails the result is neutral/0 tagged "error".
type Chain struct {
	stages []Stage
	logger logger.Logger
}

// NewChain creates a fallback chain over the given stages.
func NewChain(log logger.Logger, stages ...Stage) *Chain {
	return &Chain{stages: stages, logger: log}
}

// Classify scores text. Empty or too-short text short-circuits to neutral.
func (c *Chain) Classify(ctx context.Context, text string) Result {
	if normalizedLength(text) < minTextLength {
		return Neutral("short_text")
	}

	for _, stage := range c.stages {
		result, err := c.tryStage(ctx, stage, text)
		if err == nil {
			return result
		}
		if !errors.Is(err, ErrUnavailable) {
			c.logger.Warn("sentiment stage failed",
				logger.String("stage", stage.Name()),
				logger.Error(err))
		}
	}

	return Neutral("error")
}

// tryStage runs one stage, converting a panic into a stage failure so a
// broken stage can never take down the consumer pool.
func (c *Chain) tryStage(ctx context.Context, stage Stage, text string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("sentiment stage panicked",
				logger.String("stage", stage.Name()),
				logger.Any("panic", r))
			err = ErrUnavailable
		}
	}()
	return stage.Classify(ctx, text)
}

func normalizedLength(text string) int {
	n := 0
	for _, tok := range textutil.Normalize(text) {
		n += len(tok)
	}
	return n
}
