// Package issueclass assigns an operational issue category from a closed
// taxonomy to negative feedback text, using an ordered fallback chain.
package issueclass

import (
	"context"
	"errors"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
)

// ErrUnavailable signals that a stage cannot classify (unreachable backend,
// no signal, or confidence below its acceptance threshold) and the chain
// should fall through.
var ErrUnavailable = errors.New("issue stage unavailable")

// Result is an issue classification outcome.
type Result struct {
	IssueType  domain.IssueType `json:"issueType"`
	Confidence float64          `json:"confidence"`
	Method     string           `json:"method"`
}

// Stage is one classifier in the fallback chain.
type Stage interface {
	Name() string
	Classify(ctx context.Context, text string) (Result, error)
}

// MethodDefault tags the terminal default-to-other result.
const MethodDefault = "default"

// defaultConfidence is assigned when every stage falls through.
const defaultConfidence = 0.3

// Chain tries stages in order and defaults to the "other" category when all
// of them fall through. It never propagates a failure.
type Chain struct {
	stages []Stage
	logger logger.Logger
}

// NewChain creates a fallback chain over the given stages.
func NewChain(log logger.Logger, stages ...Stage) *Chain {
	return &Chain{stages: stages, logger: log}
}

// Classify assigns an issue category. Only meaningful for negative text; the
// caller gates on sentiment.
func (c *Chain) Classify(ctx context.Context, text string) Result {
	for _, stage := range c.stages {
		result, err := c.tryStage(ctx, stage, text)
		if err == nil {
			return result
		}
		if !errors.Is(err, ErrUnavailable) {
			c.logger.Warn("issue stage failed",
				logger.String("stage", stage.Name()),
				logger.Error(err))
		}
	}

	return Result{IssueType: domain.IssueOther, Confidence: defaultConfidence, Method: MethodDefault}
}

func (c *Chain) tryStage(ctx context.Context, stage Stage, text string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("issue stage panicked",
				logger.String("stage", stage.Name()),
				logger.Any("panic", r))
			err = ErrUnavailable
		}
	}()
	return stage.Classify(ctx, text)
}
