package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/config"
)

func embedServer(t *testing.T, check func(r *http.Request), vectors ...[]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		var req embedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			v := []float32{1, 0}
			if i < len(vectors) {
				v = vectors[i]
			}
			data[i] = map[string]any{"embedding": v, "index": i}
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
	}))
}

func TestEmbedTextNormalizesVectors(t *testing.T) {
	ts := embedServer(t, nil, []float32{3, 4})
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"}
	vecs, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)

	var norm float64
	for _, x := range vecs[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestEmbedTextLegacyAuthHeader(t *testing.T) {
	ts := embedServer(t, func(r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
	})
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", APIHeader: "Authorization", APIKey: "secret"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
}

func TestEmbedTextExtraHeadersWin(t *testing.T) {
	ts := embedServer(t, func(r *http.Request) {
		assert.Equal(t, "abc", r.Header.Get("x-api-key"))
		assert.Equal(t, "Token override", r.Header.Get("Authorization"))
	})
	defer ts.Close()

	cfg := config.EmbeddingConfig{
		BaseURL: ts.URL, Path: "/", Model: "m",
		APIHeader: "Authorization", APIKey: "s",
		Headers: map[string]string{"x-api-key": "abc", "Authorization": "Token override"},
	}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
}

func TestEmbedTextBatchesLargeInputs(t *testing.T) {
	var requests int
	ts := embedServer(t, func(*http.Request) { requests++ })
	defer ts.Close()

	inputs := make([]string, maxBatch+5)
	for i := range inputs {
		inputs[i] = "chunk"
	}
	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"}
	vecs, err := EmbedText(context.Background(), cfg, inputs)
	require.NoError(t, err)
	assert.Len(t, vecs, len(inputs))
	assert.Equal(t, 2, requests)
}

func TestEmbedTextCountMismatchErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	assert.Error(t, err)
}

func TestClientEmbedAppliesInstructPrefix(t *testing.T) {
	var gotInput string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotInput = req.Input[0]
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"embedding": []float32{1, 0}, "index": 0}}})
	}))
	defer ts.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", InstructPrefix: "query: "})
	_, err := c.Embed(context.Background(), "C30 strength")
	require.NoError(t, err)
	assert.Equal(t, "query: C30 strength", gotInput)
}
