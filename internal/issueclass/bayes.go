package issueclass

import (
	"context"
	"math"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/textutil"
)

// MethodBayes tags results produced by the statistical stage.
const MethodBayes = "naive_bayes"

// bayesAcceptThreshold is the minimum posterior probability to accept.
const bayesAcceptThreshold = 0.3

// BayesStage is a lightweight multinomial naive-Bayes classifier trained
// over the taxonomy keyword corpus with Laplace smoothing. It sits between
// the keyword-overlap stage and the terminal default.
type BayesStage struct {
	categories []domain.IssueType
	tokenFreq  map[domain.IssueType]map[string]int
	totalFreq  map[domain.IssueType]int
	vocabSize  int
}

// NewBayesStage trains the classifier from the category keyword lists.
func NewBayesStage() *BayesStage {
	s := &BayesStage{
		tokenFreq: make(map[domain.IssueType]map[string]int),
		totalFreq: make(map[domain.IssueType]int),
	}

	vocab := make(map[string]bool)
	for _, category := range domain.IssueTypes {
		keywords := categoryKeywords[category]
		if len(keywords) == 0 {
			continue
		}
		s.categories = append(s.categories, category)
		s.tokenFreq[category] = make(map[string]int)
		for _, kw := range keywords {
			s.tokenFreq[category][kw]++
			s.totalFreq[category]++
			vocab[kw] = true
		}
	}
	s.vocabSize = len(vocab)

	return s
}

// Name implements Stage.
func (s *BayesStage) Name() string { return MethodBayes }

// Classify implements Stage. Falls through when the top posterior is at or
// below the acceptance threshold.
func (s *BayesStage) Classify(_ context.Context, text string) (Result, error) {
	tokens := textutil.Normalize(text)
	if len(tokens) == 0 || len(s.categories) == 0 {
		return Result{}, ErrUnavailable
	}

	// Uniform prior; log-likelihood per category with Laplace smoothing.
	logProbs := make([]float64, len(s.categories))
	for i, category := range s.categories {
		var ll float64
		for _, tok := range tokens {
			count := s.tokenFreq[category][tok]
			ll += math.Log(float64(count+1) / float64(s.totalFreq[category]+s.vocabSize))
		}
		logProbs[i] = ll
	}

	// Normalize to posteriors via log-sum-exp.
	maxLog := logProbs[0]
	for _, lp := range logProbs[1:] {
		if lp > maxLog {
			maxLog = lp
		}
	}
	var sum float64
	for i, lp := range logProbs {
		logProbs[i] = math.Exp(lp - maxLog)
		sum += logProbs[i]
	}

	best := 0
	for i := range logProbs {
		logProbs[i] /= sum
		if logProbs[i] > logProbs[best] {
			best = i
		}
	}

	if logProbs[best] <= bayesAcceptThreshold {
		return Result{}, ErrUnavailable
	}
	return Result{
		IssueType:  s.categories[best],
		Confidence: logProbs[best],
		Method:     MethodBayes,
	}, nil
}
