package memory

import (
	"bytes"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// EmbeddingProvider turns text into a fixed-dimension vector. When the
// only available provider is the deterministic fallback below, recall
// still ranks by cosine similarity, but over hash vectors that carry no
// semantic meaning.
type EmbeddingProvider interface {
	Embed(text string) ([]float32, error)
	EmbedBatch(texts []string) ([][]float32, error)
	Dimensions() int
}

// HTTPEmbedding calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedding struct {
	baseURL    string
	model      string
	client     *http.Client
	dimensions int
}

// NewHTTPEmbedding creates a provider against an OpenAI-compatible server
// (LM Studio, llama.cpp server, vLLM, etc).
func NewHTTPEmbedding(baseURL, model string) *HTTPEmbedding {
	return &HTTPEmbedding{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		dimensions: 1536, // updated on first successful call
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (h *HTTPEmbedding) Embed(text string) ([]float32, error) {
	req := embeddingRequest{Input: text, Model: h.model}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	resp, err := h.client.Post(h.baseURL+"/embeddings", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error: %s - %s", resp.Status, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	vec := embResp.Data[0].Embedding
	h.dimensions = len(vec)
	return vec, nil
}

func (h *HTTPEmbedding) EmbedBatch(texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

func (h *HTTPEmbedding) Dimensions() int {
	return h.dimensions
}

// HashEmbedding is the deterministic fallback: a SHA-384 digest of the
// lower-cased text, mapped to [-0.5, 0.5] and L2-normalized. Not
// semantic — equal only up to hash collision — but keeps recall,
// lifecycle scoring, and context injection operational without a model
// endpoint present.
type HashEmbedding struct{}

func NewHashEmbedding() *HashEmbedding { return &HashEmbedding{} }

func (h *HashEmbedding) Embed(text string) ([]float32, error) {
	sum := sha512.Sum384([]byte(strings.ToLower(text)))

	vec := make([]float32, len(sum))
	var sumSq float64
	for i, b := range sum {
		v := float64(b)/255.0 - 0.5
		vec[i] = float32(v)
		sumSq += v * v
	}

	norm := math.Sqrt(sumSq)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (h *HashEmbedding) EmbedBatch(texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _ := h.Embed(text)
		results[i] = vec
	}
	return results, nil
}

func (h *HashEmbedding) Dimensions() int { return sha512.Size384 }

// cosineSimilarity returns the cosine similarity of two equal-length
// vectors, or 0 when lengths differ or either norm is zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
