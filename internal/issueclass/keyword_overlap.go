package issueclass

import (
	"context"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/textutil"
)

// MethodKeywordOverlap tags results produced by the keyword-overlap stage.
const MethodKeywordOverlap = "keyword_overlap"

const (
	overlapDivisor       = 3.0
	overlapMaxConfidence = 0.9
)

type keywordMapping struct {
	category domain.IssueType
	keyword  string
}

// KeywordOverlapStage matches per-category keyword lists against the text in
// a single automaton pass and picks the category with the most unique
// keyword matches. Ties break toward the first category in taxonomy order.
type KeywordOverlapStage struct {
	matcher  *ahocorasick.Matcher
	mappings []keywordMapping
}

// NewKeywordOverlapStage builds the keyword automaton from the taxonomy's
// category keyword lists.
func NewKeywordOverlapStage() *KeywordOverlapStage {
	var keywords []string
	var mappings []keywordMapping

	for _, category := range domain.IssueTypes {
		for _, kw := range categoryKeywords[category] {
			keywords = append(keywords, kw)
			mappings = append(mappings, keywordMapping{category: category, keyword: kw})
		}
	}

	return &KeywordOverlapStage{
		matcher:  ahocorasick.NewStringMatcher(keywords),
		mappings: mappings,
	}
}

// Name implements Stage.
func (s *KeywordOverlapStage) Name() string { return MethodKeywordOverlap }

// Classify implements Stage. Falls through when no keyword matches.
func (s *KeywordOverlapStage) Classify(_ context.Context, text string) (Result, error) {
	tokens := textutil.Normalize(text)
	if len(tokens) == 0 {
		return Result{}, ErrUnavailable
	}
	// Token-bounded haystack so "hot" cannot match inside "hotel".
	haystack := " " + strings.Join(tokens, " ") + " "

	matched := make(map[domain.IssueType]map[string]bool)
	for _, hit := range s.matcher.Match([]byte(haystack)) {
		if hit >= len(s.mappings) {
			continue
		}
		m := s.mappings[hit]
		if !strings.Contains(haystack, " "+m.keyword+" ") {
			continue
		}
		if matched[m.category] == nil {
			matched[m.category] = make(map[string]bool)
		}
		matched[m.category][m.keyword] = true
	}

	best := domain.IssueOther
	bestCount := 0
	for _, category := range domain.IssueTypes {
		if count := len(matched[category]); count > bestCount {
			best = category
			bestCount = count
		}
	}

	if bestCount == 0 {
		return Result{}, ErrUnavailable
	}

	confidence := float64(bestCount) / overlapDivisor
	if confidence > overlapMaxConfidence {
		confidence = overlapMaxConfidence
	}
	return Result{IssueType: best, Confidence: confidence, Method: MethodKeywordOverlap}, nil
}
