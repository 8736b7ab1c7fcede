package sentiment

import (
	"context"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/textutil"
)

// MethodLexicon tags results produced by the lexicon-sum stage.
const MethodLexicon = "lexicon"

// Lexicon thresholds and scaling.
const (
	lexiconThreshold = 0.1
	lexiconScale     = 2.0
	hashtagBoost     = 0.3
)

// defaultLexicon maps stopword-filtered tokens to sentiment weights.
var defaultLexicon = map[string]float64{
	// positive
	"good": 1, "great": 2, "awesome": 2, "amazing": 2, "excellent": 2,
	"love": 2, "loved": 2, "fantastic": 2, "perfect": 2, "best": 2,
	"fun": 1, "enjoyable": 1, "enjoyed": 1, "happy": 1, "nice": 1,
	"wonderful": 2, "brilliant": 2, "smooth": 1, "helpful": 1, "clean": 1,
	"friendly": 1, "impressive": 1, "incredible": 2, "thanks": 1,
	"thank": 1, "recommend": 1,
	// negative
	"bad": -1, "terrible": -2, "awful": -2, "horrible": -2, "worst": -2,
	"hate": -2, "hated": -2, "disappointing": -2, "disappointed": -2,
	"poor": -1, "boring": -1, "slow": -1, "broken": -2, "dirty": -2,
	"rude": -2, "annoying": -1, "crowded": -1, "loud": -1, "cold": -1,
	"hot": -1, "waiting": -1, "wait": -1, "delayed": -1, "cancelled": -2,
	"unsafe": -2, "dangerous": -2, "useless": -2, "disaster": -2,
	"mess": -1, "refund": -1, "ridiculous": -1, "frustrating": -2,
}

// positiveHashtags and negativeHashtags each add a fixed boost per match.
var positiveHashtags = map[string]bool{
	"love": true, "awesome": true, "great": true, "amazing": true,
	"bestever": true, "fun": true, "winning": true,
}

var negativeHashtags = map[string]bool{
	"fail": true, "worst": true, "disaster": true, "epicfail": true,
	"never": true, "refund": true, "disappointed": true,
}

// LexiconStage scores text by summing per-token sentiment weights over
// stopword-filtered tokens, with a hashtag boost, then thresholds the sum.
type LexiconStage struct {
	lexicon map[string]float64
}

// NewLexiconStage creates a lexicon stage. A nil lexicon uses the built-in
// default.
func NewLexiconStage(lexicon map[string]float64) *LexiconStage {
	if lexicon == nil {
		lexicon = defaultLexicon
	}
	return &LexiconStage{lexicon: lexicon}
}

// Name implements Stage.
func (s *LexiconStage) Name() string { return MethodLexicon }

// Classify implements Stage. Sum > 0.1 maps to positive, sum < -0.1 to
// negative, scaled by half and capped at +/-1; anything between is neutral.
func (s *LexiconStage) Classify(_ context.Context, text string) (Result, error) {
	var sum float64
	for _, tok := range textutil.Normalize(text) {
		sum += s.lexicon[tok]
	}
	for _, tag := range textutil.ExtractHashtags(text) {
		if positiveHashtags[tag] {
			sum += hashtagBoost
		}
		if negativeHashtags[tag] {
			sum -= hashtagBoost
		}
	}

	switch {
	case sum > lexiconThreshold:
		return Result{
			Label:  domain.SentimentPositive,
			Score:  clamp(sum / lexiconScale),
			Method: MethodLexicon,
		}, nil
	case sum < -lexiconThreshold:
		return Result{
			Label:  domain.SentimentNegative,
			Score:  clamp(sum / lexiconScale),
			Method: MethodLexicon,
		}, nil
	default:
		return Neutral(MethodLexicon), nil
	}
}
