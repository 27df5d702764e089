package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Provider identifies an OpenAI-compatible chat-completions backend.
type Provider string

const (
	ProviderDeepSeek Provider = "deepseek"
	ProviderGroq     Provider = "groq"
	ProviderCustom   Provider = "custom"
)

// Client is a thin chat-completions client. All supported providers speak the
// OpenAI wire format, so one request/response shape covers them.
type Client struct {
	Provider    Provider
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	UseFullURL  bool // when set, BaseURL already points at the completions endpoint

	initOnce   sync.Once
	transport  *http.Transport
	httpClient *http.Client
}

// New returns a client with the default Groq configuration.
func New() *Client {
	return &Client{
		Provider:    ProviderGroq,
		BaseURL:     "https://api.groq.com/openai/v1",
		Model:       "llama-3.1-70b-versatile",
		Temperature: 0.7,
		MaxTokens:   1024,
		Timeout:     120 * time.Second,
	}
}

// SetGroqAPIKey configures the Groq backend.
func (cfg *Client) SetGroqAPIKey(apiKey, model string) {
	cfg.Provider = ProviderGroq
	cfg.APIKey = apiKey
	cfg.BaseURL = "https://api.groq.com/openai/v1"
	if model != "" {
		cfg.Model = model
	} else {
		cfg.Model = "llama-3.1-70b-versatile"
	}
}

// SetDeepSeekAPIKey configures the DeepSeek backend.
func (cfg *Client) SetDeepSeekAPIKey(apiKey string) {
	cfg.Provider = ProviderDeepSeek
	cfg.APIKey = apiKey
	cfg.BaseURL = "https://api.deepseek.com/v1"
	cfg.Model = "deepseek-chat"
}

// SetCustomAPI configures an arbitrary OpenAI-compatible endpoint. A trailing
// '#' on the URL marks it as a full completions URL rather than a base path.
func (cfg *Client) SetCustomAPI(apiURL, apiKey, modelName string) {
	cfg.Provider = ProviderCustom
	cfg.APIKey = apiKey
	if strings.HasSuffix(apiURL, "#") {
		cfg.BaseURL = strings.TrimSuffix(apiURL, "#")
		cfg.UseFullURL = true
	} else {
		cfg.BaseURL = apiURL
		cfg.UseFullURL = false
	}
	cfg.Model = modelName
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one prompt and returns the raw model text. Transient
// transport and 5xx/429 failures are retried with exponential backoff;
// anything else fails immediately.
func (cfg *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if cfg.APIKey == "" {
		return "", fmt.Errorf("LLM API key not set, call SetGroqAPIKey/SetDeepSeekAPIKey/SetCustomAPI first")
	}

	var result string
	operation := func() error {
		text, err := cfg.callOnce(ctx, systemPrompt, userPrompt)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = text
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 3 * time.Minute

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, 4), ctx)); err != nil {
		return "", fmt.Errorf("model call failed after retries: %w", err)
	}
	return result, nil
}

func (cfg *Client) callOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []chatMessage{}
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(chatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize request: %w", err)
	}

	url := cfg.BaseURL
	if !cfg.UseFullURL {
		url = fmt.Sprintf("%s/chat/completions", cfg.BaseURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey))

	resp, err := cfg.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &httpStatusError{status: resp.StatusCode, body: truncate(string(data), 200)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// client builds the pooled HTTP client on first use so connections are reused
// across retries and cycles. The cycle goroutine and feedback handlers share
// one Client, so the init is guarded.
func (cfg *Client) client() *http.Client {
	cfg.initOnce.Do(func() {
		cfg.transport = &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 120 * time.Second
		}
		cfg.httpClient = &http.Client{Transport: cfg.transport, Timeout: timeout}
	})
	return cfg.httpClient
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.status, e.body)
}

func isRetryable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "no such host")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
