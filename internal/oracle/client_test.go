package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/ipbond/internal/domain"
)

func testMeta() *domain.IPMetadata {
	return &domain.IPMetadata{
		Category:  "music",
		Creator:   "0xcreator",
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Views:     1200,
		Likes:     80,
		Tags:      []string{"jazz"},
	}
}

func TestValuation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/oracle/valuation", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "asset-1", req["token_id"])

		json.NewEncoder(w).Encode(map[string]any{
			"estimated_value":   250000.0,
			"model_uncertainty": 0.25,
		})
	}))
	defer srv.Close()

	c := New(ClientConfig{BaseURL: srv.URL, APIKey: "secret"})
	usd, conf, err := c.Valuation(context.Background(), "asset-1", testMeta())
	require.NoError(t, err)
	assert.Equal(t, 250000.0, usd)
	assert.InDelta(t, 0.75, conf, 1e-9)
}

func TestValuationServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(ClientConfig{BaseURL: srv.URL})
	_, _, err := c.Valuation(context.Background(), "asset-1", testMeta())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(ClientConfig{BaseURL: srv.URL})
	assert.NoError(t, c.HealthCheck(context.Background()))
}
