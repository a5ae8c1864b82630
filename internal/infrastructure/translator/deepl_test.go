package translator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable-ai-api/internal/application/translation"
	"fable-ai-api/internal/config"
)

func newDeepL(t *testing.T, handler http.HandlerFunc) *DeepL {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	d, err := NewDeepL(config.TranslatorConfig{APIKey: "key:fx", BaseURL: srv.URL + "/"}, 0, 0)
	require.NoError(t, err)
	return d
}

func TestDeepL_Translate(t *testing.T) {
	var got deeplRequest
	d := newDeepL(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/translate", r.URL.Path)
		assert.Equal(t, "DeepL-Auth-Key key:fx", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"translations":[{"detected_source_language":"FR","text":"こんにちは"}]}`))
	})

	out, err := d.Translate(context.Background(), "Bonjour", "fr", "ja")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", out)
	assert.Equal(t, []string{"Bonjour"}, got.Text)
	assert.Equal(t, "FR", got.SourceLang)
	assert.Equal(t, "JA", got.TargetLang)
}

func TestDeepL_ErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{456, false},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		d := newDeepL(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		})
		_, err := d.Translate(context.Background(), "Bonjour", "FR", "JA")

		var pe *translation.ProviderError
		require.True(t, errors.As(err, &pe), "status %d", tc.status)
		assert.Equal(t, tc.status, pe.StatusCode)
		assert.Equal(t, tc.transient, pe.Transient, "status %d", tc.status)
		assert.Equal(t, "deepl", pe.Provider)
		assert.Contains(t, pe.Error(), "nope")
	}
}

func TestDeepL_EmptyResponseIsTransient(t *testing.T) {
	d := newDeepL(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"translations":[]}`))
	})
	_, err := d.Translate(context.Background(), "Bonjour", "FR", "JA")
	assert.True(t, translation.IsTransient(err))
}

func TestNewDeepL_BaseURL(t *testing.T) {
	free, err := NewDeepL(config.TranslatorConfig{APIKey: "abc:fx"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, deeplFreeURL, free.baseURL)

	pro, err := NewDeepL(config.TranslatorConfig{APIKey: "abc"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, deeplProURL, pro.baseURL)

	_, err = NewDeepL(config.TranslatorConfig{}, 0, 0)
	assert.Error(t, err)
}
