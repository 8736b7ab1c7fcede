package issueclass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eventpulse/eventpulse/internal/domain"
)

// MethodModel tags results produced by the zero-shot model stage.
const MethodModel = "model"

const (
	defaultModelTimeout  = 5 * time.Second
	modelAcceptThreshold = 0.6
)

// ModelStage calls an external zero-shot classification service with the
// taxonomy's natural-language category descriptions as candidate labels.
// Results are accepted only when the top score clears 0.6.
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
	Text       string            `json:"text"`
	Candidates map[string]string `json:"candidates"`
}

type modelResponse struct {
	// Scores maps category name to zero-shot score in [0,1].
	Scores map[string]float64 `json:"scores"`
}

// Classify sends POST /classify to the model service.
func (s *ModelStage) Classify(ctx context.Context, text string) (Result, error) {
	if s.baseURL == "" {
		return Result{}, ErrUnavailable
	}

	candidates := make(map[string]string, len(categoryDescriptions))
	for category, description := range categoryDescriptions {
		candidates[string(category)] = description
	}

	body, err := json.Marshal(modelRequest{Text: text, Candidates: candidates})
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal request: %w", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/classify", bytes.NewReader(body))
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

	var best domain.IssueType
	var bestScore float64
	for _, category := range domain.IssueTypes {
		if score, ok := mr.Scores[string(category)]; ok && score > bestScore {
			best = category
			bestScore = score
		}
	}

	if bestScore <= modelAcceptThreshold {
		return Result{}, fmt.Errorf("%w: top score %.2f below threshold", ErrUnavailable, bestScore)
	}
	return Result{IssueType: best, Confidence: bestScore, Method: MethodModel}, nil
}
