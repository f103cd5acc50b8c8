package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/grievancegenie/platform/internal/shared/config"
)

// ErrScorerUnavailable wraps every failure to obtain a score. It is a
// distinct outcome from a high score.
var ErrScorerUnavailable = errors.New("authenticity scorer unavailable")

// Scorer returns the likelihood in [0,1] that an image is synthetic.
type Scorer interface {
	Score(ctx context.Context, image []byte) (float64, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, image []byte) (float64, error)

func (f ScorerFunc) Score(ctx context.Context, image []byte) (float64, error) {
	return f(ctx, image)
}

// HTTPScorer calls a Sightengine-compatible check endpoint with the genai
// model and reads type.ai_generated from the response.
type HTTPScorer struct {
	url        string
	apiUser    string
	apiSecret  string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewHTTPScorer(cfg config.ScorerConfig) *HTTPScorer {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	return &HTTPScorer{
		url:       cfg.URL,
		apiUser:   cfg.APIUser,
		apiSecret: cfg.APISecret,
		model:     cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type scorerResponse struct {
	Status string `json:"status"`
	Type   struct {
		AIGenerated *float64 `json:"ai_generated"`
	} `json:"type"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *HTTPScorer) Score(ctx context.Context, image []byte) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: rate limit: %v", ErrScorerUnavailable, err)
	}

	body, contentType, err := s.form(image)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("%w: status %d", ErrScorerUnavailable, resp.StatusCode)
	}

	var result scorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrScorerUnavailable, err)
	}
	if result.Status != "success" {
		msg := "unknown error"
		if result.Error != nil {
			msg = result.Error.Message
		}
		return 0, fmt.Errorf("%w: %s", ErrScorerUnavailable, msg)
	}
	if result.Type.AIGenerated == nil {
		return 0, fmt.Errorf("%w: response has no ai_generated score", ErrScorerUnavailable)
	}

	score := *result.Type.AIGenerated
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("%w: score %v out of range", ErrScorerUnavailable, score)
	}
	return score, nil
}

func (s *HTTPScorer) form(image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"models":     s.model,
		"api_user":   s.apiUser,
		"api_secret": s.apiSecret,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	part, err := w.CreateFormFile("media", "photo.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
