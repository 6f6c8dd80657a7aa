// Package oracle is the HTTP client for the external valuation adapter.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/knowton/ipbond/internal/domain"
)

// ClientConfig holds connection parameters for the valuation adapter.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

// Client talks to the valuation adapter service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates an oracle Client.
func New(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type valuationRequest struct {
	TokenID  string         `json:"token_id"`
	Metadata map[string]any `json:"metadata"`
}

type valuationResponse struct {
	EstimatedValue     float64   `json:"estimated_value"`
	ConfidenceInterval []float64 `json:"confidence_interval"`
	ModelUncertainty   float64   `json:"model_uncertainty"`
}

// Valuation asks the adapter for a USD valuation of the asset. It returns the
// estimate and a confidence in [0, 1] derived from the model uncertainty.
func (c *Client) Valuation(ctx context.Context, assetID string, meta *domain.IPMetadata) (float64, float64, error) {
	reqBody := valuationRequest{
		TokenID: assetID,
		Metadata: map[string]any{
			"category":   meta.Category,
			"creator":    meta.Creator,
			"created_at": meta.CreatedAt.Format(time.RFC3339),
			"views":      meta.Views,
			"likes":      meta.Likes,
			"tags":       meta.Tags,
		},
	}

	var resp valuationResponse
	if err := c.post(ctx, "/api/v1/oracle/valuation", reqBody, &resp); err != nil {
		return 0, 0, err
	}

	confidence := 1.0 - resp.ModelUncertainty
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return resp.EstimatedValue, confidence, nil
}

// HealthCheck verifies that the adapter is reachable and healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("oracle: build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle: unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle: %s returned status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("oracle: decode response: %w", err)
	}
	return nil
}
