package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eventpulse/eventpulse/internal/domain"
)

// MethodModel tags results produced by the primary model stage.
const MethodModel = "model"

const defaultModelTimeout = 5 * time.Second

// ModelStage calls an external sentiment model sidecar over HTTP. The call
// is bounded by a timeout; any transport or decode failure is reported as
// ErrUnavailable so the chain falls through.
type ModelStage struct {
	baseURL string
	client  *http.Client
}

// NewModelStage creates a model stage against the given base URL. A zero
// timeout uses the default.
func NewModelStage(baseURL string, timeout time.Duration) *ModelStage {
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	return &ModelStage{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Stage.
func (s *ModelStage) Name() string { return MethodModel }

type modelRequest struct {
	Text string `json:"text"`
}

// modelResponse carries a raw confidence in [0,1] per polarity.
type modelResponse struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Classify sends POST /sentiment to the model service. The label is chosen
// by argmax over the polarity confidences and the score is the winning
// confidence, negated for the negative polarity and zero for neutral.
func (s *ModelStage) Classify(ctx context.Context, text string) (Result, error) {
	if s.baseURL == "" {
		return Result{}, ErrUnavailable
	}

	body, err := json.Marshal(modelRequest{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal request: %w", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sentiment", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: create request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: model service returned %d", ErrUnavailable, resp.StatusCode)
	}

	var mr modelResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&mr); decodeErr != nil {
		return Result{}, fmt.Errorf("%w: decode response: %w", ErrUnavailable, decodeErr)
	}

	return mr.toResult(), nil
}

func (r modelResponse) toResult() Result {
	label := domain.SentimentNeutral
	score := 0.0
	best := r.Neutral

	if r.Positive > best {
		label = domain.SentimentPositive
		best = r.Positive
		score = r.Positive
	}
	if r.Negative > best {
		label = domain.SentimentNegative
		score = -r.Negative
	}

	return Result{Label: label, Score: clamp(score), Method: MethodModel}
}

func clamp(score float64) float64 {
	switch {
	case score > 1:
		return 1
	case score < -1:
		return -1
	default:
		return score
	}
}
