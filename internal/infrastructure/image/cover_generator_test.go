package image

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable-ai-api/internal/config"
)

func newServer(t *testing.T, handler http.HandlerFunc) *CoverGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewCoverGenerator(&config.ImageConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	return g
}

func TestGenerateCover(t *testing.T) {
	var got map[string]any
	g := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://img.example/cover.png"}]}`))
	})

	url, err := g.GenerateCover(context.Background(), "Pip et la lune", "Un renard cherche la lune.")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/cover.png", url)
	assert.Contains(t, got["prompt"], `"Pip et la lune"`)
	assert.Contains(t, got["prompt"], "Un renard cherche la lune.")
	assert.Equal(t, "url", got["response_format"])
}

func TestGenerateCover_Errors(t *testing.T) {
	empty := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[]}`))
	})
	_, err := empty.GenerateCover(context.Background(), "t", "s")
	assert.ErrorIs(t, err, ErrNoImage)

	failing := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy","type":"invalid_request_error"}}`))
	})
	_, err = failing.GenerateCover(context.Background(), "t", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content policy")
}

func TestNewCoverGenerator_RequiresKey(t *testing.T) {
	_, err := NewCoverGenerator(&config.ImageConfig{})
	assert.Error(t, err)
}
