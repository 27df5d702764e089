package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatBody(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q}}]}`, content)
}

func TestCompleteReturnsModelText(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotReq))
		fmt.Fprint(w, chatBody("BUY\nConfidence: 80%"))
	}))
	defer server.Close()

	client := New()
	client.SetCustomAPI(server.URL+"#", "secret-key", "test-model")

	text, err := client.Complete(context.Background(), "be terse", "analyze TOKEN1")
	require.NoError(t, err)
	assert.Equal(t, "BUY\nConfidence: 80%", text)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "be terse", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
}

func TestCompleteConcurrentFirstUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatBody("NOTHING"))
	}))
	defer server.Close()

	client := New()
	client.SetCustomAPI(server.URL+"#", "secret-key", "test-model")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Complete(context.Background(), "", "analyze TOKEN1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestCompleteOmitsEmptySystemPrompt(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotReq))
		fmt.Fprint(w, chatBody("NOTHING"))
	}))
	defer server.Close()

	client := New()
	client.SetCustomAPI(server.URL+"#", "secret-key", "test-model")

	_, err := client.Complete(context.Background(), "", "analyze TOKEN1")
	require.NoError(t, err)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := New()
	_, err := client.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not set")
}

func TestCompleteBadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad prompt"}}`)
	}))
	defer server.Close()

	client := New()
	client.SetCustomAPI(server.URL+"#", "secret-key", "test-model")

	_, err := client.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteAPIErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"model overloaded","type":"server"}}`)
	}))
	defer server.Close()

	client := New()
	client.SetCustomAPI(server.URL+"#", "secret-key", "test-model")

	_, err := client.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestIsRetryableClassification(t *testing.T) {
	assert.True(t, isRetryable(&httpStatusError{status: http.StatusTooManyRequests}))
	assert.True(t, isRetryable(&httpStatusError{status: http.StatusInternalServerError}))
	assert.True(t, isRetryable(fmt.Errorf("wrapped: %w", &httpStatusError{status: 503})))
	assert.False(t, isRetryable(fmt.Errorf("API returned status 400")))
}

func TestProviderSetters(t *testing.T) {
	client := New()
	assert.Equal(t, ProviderGroq, client.Provider)

	client.SetDeepSeekAPIKey("k")
	assert.Equal(t, ProviderDeepSeek, client.Provider)
	assert.Equal(t, "deepseek-chat", client.Model)

	client.SetCustomAPI("https://example.com/v1", "k", "m")
	assert.False(t, client.UseFullURL)
	assert.Equal(t, "https://example.com/v1", client.BaseURL)

	client.SetCustomAPI("https://example.com/full#", "k", "m")
	assert.True(t, client.UseFullURL)
	assert.Equal(t, "https://example.com/full", client.BaseURL)

	client.SetGroqAPIKey("k", "")
	assert.Equal(t, ProviderGroq, client.Provider)
	assert.Equal(t, "llama-3.1-70b-versatile", client.Model)
}
