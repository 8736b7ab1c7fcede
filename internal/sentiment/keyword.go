package sentiment

import (
	"context"
	"regexp"

	"github.com/eventpulse/eventpulse/internal/domain"
)

// MethodKeyword tags results produced by the keyword-heuristic fallback.
const MethodKeyword = "keyword"

// keywordScore is the fixed magnitude assigned by the keyword fallback.
const keywordScore = 0.7

var (
	positiveKeywords = regexp.MustCompile(`(?i)\b(good|great|awesome|amazing|love|excellent|fantastic|perfect|best|enjoy)\b`)
	negativeKeywords = regexp.MustCompile(`(?i)\b(bad|terrible|awful|horrible|worst|hate|broken|unsafe|disappointing|refund)\b`)
)

// KeywordStage is the last-resort heuristic: a regex match against small
// positive/negative keyword lists with fixed +/-0.7 scores. It is always
// available.
type KeywordStage struct{}

// NewKeywordStage creates the keyword fallback stage.
func NewKeywordStage() *KeywordStage { return &KeywordStage{} }

// Name implements Stage.
func (s *KeywordStage) Name() string { return MethodKeyword }

// Classify implements Stage. Negative matches win over positive when both
// appear, since negative signal is what drives alerting downstream.
func (s *KeywordStage) Classify(_ context.Context, text string) (Result, error) {
	if negativeKeywords.MatchString(text) {
		return Result{Label: domain.SentimentNegative, Score: -keywordScore, Method: MethodKeyword}, nil
	}
	if positiveKeywords.MatchString(text) {
		return Result{Label: domain.SentimentPositive, Score: keywordScore, Method: MethodKeyword}, nil
	}
	return Neutral(MethodKeyword), nil
}
