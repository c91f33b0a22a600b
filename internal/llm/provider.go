// Package llm wraps calls to the configured LLM endpoint behind a
// single-method abstraction, so the build pipeline and classifier
// never depend on a specific provider's wire format.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider is the abstract LLM the rest of the system programs
// against: a single prompt in, a single text completion out.
type Provider interface {
	Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// HTTPProvider calls an OpenAI-chat-completions-compatible endpoint,
// trying each model in models in order and uniformly retrying a
// 429/5xx response against the same model before falling through to
// the next one. A token-bucket limiter guards against hammering the
// endpoint across concurrent build-pipeline instances.
type HTTPProvider struct {
	endpoint   string
	models     []string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPProvider builds a provider against endpoint (an OpenAI-style
// base URL, e.g. "http://localhost:1234/v1"), trying models in order,
// reading the API key from apiKeyEnv if set. ratePerSec/burst bound
// request rate across all callers of this provider.
func NewHTTPProvider(endpoint string, models []string, apiKeyEnv string, ratePerSec float64, burst int) *HTTPProvider {
	return &HTTPProvider{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		models:     models,
		apiKey:     os.Getenv(apiKeyEnv),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete tries each configured model in order, retrying once within
// a model on a transient (429/5xx) response before moving to the next
// model. The first model to produce a completion wins; if every model
// is exhausted the last error is returned.
func (p *HTTPProvider) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for _, model := range p.models {
		text, err := p.completeWithModel(callCtx, model, prompt)
		if err == nil {
			return cleanCodeFences(text), nil
		}
		log.Printf("[LLM] model %q failed: %v", model, err)
		lastErr = err
	}
	return "", fmt.Errorf("all models exhausted: %w", lastErr)
}

func (p *HTTPProvider) completeWithModel(ctx context.Context, model, prompt string) (string, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, transient, err := p.doRequest(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !transient {
			return "", err
		}
		log.Printf("[LLM] transient error on model %q attempt %d/%d: %v", model, attempt, maxAttempts, err)
	}
	return "", lastErr
}

// doRequest returns (text, transient, err): transient marks a
// 429/5xx response, which the caller retries; anything else is final.
func (p *HTTPProvider) doRequest(ctx context.Context, model, prompt string) (string, bool, error) {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("llm endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", false, fmt.Errorf("model %q not found at endpoint", model)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("llm endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("llm error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("llm response had no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

// cleanCodeFences strips a leading/trailing ``` fence (with an
// optional language tag) that chat models routinely wrap generated
// source in, and trims surrounding whitespace.
func cleanCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
