package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberBerto/inference-server-mvp/internal/backend"
	"github.com/CyberBerto/inference-server-mvp/internal/config"
	"github.com/CyberBerto/inference-server-mvp/internal/mocks"
	"github.com/CyberBerto/inference-server-mvp/internal/models"
	"github.com/CyberBerto/inference-server-mvp/internal/state"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(client backend.Client) *Server {
	return New(config.Defaults(), client, state.New())
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's Context.Stream
// requires, which httptest.ResponseRecorder does not implement.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(closeNotifyRecorder{w}, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(backend.NewMockClient())
	w := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var health models.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.GreaterOrEqual(t, health.UptimeSeconds, 0.0)
	assert.Equal(t, int64(0), health.TotalRequests)
	assert.Equal(t, 0.0, health.ErrorRate)
	assert.True(t, health.VLLMConnected)
}

func TestHealthEndpointBackendDown(t *testing.T) {
	client := &mocks.BackendClient{
		IsHealthyFunc: func(ctx context.Context) bool { return false },
	}
	srv := newTestServer(client)
	w := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)

	// The health endpoint itself never fails; backend state is a field.
	require.Equal(t, http.StatusOK, w.Code)

	var health models.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.VLLMConnected)
}

func TestListModels(t *testing.T) {
	cfg := config.Defaults()
	cfg.Model.ID = "acme/llama"
	cfg.Model.DisplayName = "Llama"
	cfg.Model.Organization = "acme"
	srv := New(cfg, backend.NewMockClient(), state.New())

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.ModelList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)

	info := list.Data[0]
	assert.Equal(t, "acme/llama", info.ID)
	assert.Equal(t, "model", info.Object)
	assert.Equal(t, "acme", info.OwnedBy)
	assert.Equal(t, "Llama", info.Name)
	assert.Equal(t, 131072, info.ContextLength)
	assert.Equal(t, "fp16", info.Quantization)
	assert.Equal(t, "0.000008", info.Pricing.Prompt)
	assert.Equal(t, "0.000024", info.Pricing.Completion)
}

func TestChatCompletion(t *testing.T) {
	srv := newTestServer(backend.NewMockClient())

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chat/completions", models.ChatCompletionRequest{
		Model:    "m",
		Messages: []models.ChatMessage{{Role: "user", Content: "Hello"}},
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, `^chatcmpl-[0-9a-f]{24}$`, resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "m", resp.Model)
	assert.Contains(t, resp.Choices[0].Message.Content, "Hello")
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestChatCompletionValidation(t *testing.T) {
	srv := newTestServer(backend.NewMockClient())
	router := srv.Router()

	testCases := []struct {
		name          string
		body          string
		wantInMessage string
	}{
		{
			name:          "Temperature out of range",
			body:          `{"model":"m","messages":[{"role":"user","content":"hi"}],"temperature":3.0}`,
			wantInMessage: "temperature",
		},
		{
			name:          "Missing model",
			body:          `{"messages":[{"role":"user","content":"hi"}]}`,
			wantInMessage: "model is required",
		},
		{
			name:          "Empty messages",
			body:          `{"model":"m","messages":[]}`,
			wantInMessage: "messages",
		},
		{
			name:          "Bad role",
			body:          `{"model":"m","messages":[{"role":"wizard","content":"hi"}]}`,
			wantInMessage: "role must be one of",
		},
		{
			name:          "User only before system",
			body:          `{"model":"m","messages":[{"role":"user","content":"hi"},{"role":"system","content":"be helpful"}]}`,
			wantInMessage: "user message",
		},
		{
			name:          "Malformed body",
			body:          `{"model":`,
			wantInMessage: "request body is not valid JSON",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/completions", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnprocessableEntity, w.Code)

			var envelope models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
			assert.Equal(t, "api_error", envelope.Error.Type)
			assert.Equal(t, http.StatusUnprocessableEntity, envelope.Error.Code)
			assert.Contains(t, envelope.Error.Message, tc.wantInMessage)
			// Validation messages speak in wire field names, never Go
			// struct paths.
			assert.NotContains(t, envelope.Error.Message, "ChatCompletionRequest")
		})
	}
}

func TestChatCompletionBackendError(t *testing.T) {
	client := &mocks.BackendClient{
		GenerateFunc: func(ctx context.Context, p backend.Params) (*backend.Reply, error) {
			return nil, &backend.Error{Status: 503, Message: "model overloaded"}
		},
	}
	srv := newTestServer(client)

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chat/completions", models.ChatCompletionRequest{
		Model:    "m",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var envelope models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "model overloaded", envelope.Error.Message)
	assert.Equal(t, "api_error", envelope.Error.Type)
	assert.Equal(t, http.StatusInternalServerError, envelope.Error.Code)
}

func TestChatCompletionBackendUnavailable(t *testing.T) {
	client := &mocks.BackendClient{
		GenerateFunc: func(ctx context.Context, p backend.Params) (*backend.Reply, error) {
			return nil, &backend.UnavailableError{Err: context.DeadlineExceeded}
		},
	}
	srv := newTestServer(client)

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chat/completions", models.ChatCompletionRequest{
		Model:    "m",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var envelope models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	// Transport detail is never echoed to the client.
	assert.Equal(t, "inference backend unavailable", envelope.Error.Message)
	assert.NotContains(t, envelope.Error.Message, "deadline")
}

func TestChatCompletionStreaming(t *testing.T) {
	srv := newTestServer(backend.NewMockClient())

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chat/completions", models.ChatCompletionRequest{
		Model:    "m",
		Messages: []models.ChatMessage{{Role: "user", Content: "Hello"}},
		Stream:   true,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Regexp(t, `^chatcmpl-[0-9a-f]{24}$`, w.Header().Get("X-Request-ID"))

	var chunks []models.ChatCompletionChunk
	sawDone := false
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		assert.False(t, sawDone, "no frames may follow [DONE]")

		var chunk models.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		chunks = append(chunks, chunk)
	}

	require.True(t, sawDone, "stream must end with [DONE]")
	require.GreaterOrEqual(t, len(chunks), 3)

	requestID := w.Header().Get("X-Request-ID")
	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	var text string
	for _, chunk := range chunks {
		assert.Equal(t, requestID, chunk.ID, "all chunks share the request id")
		assert.Equal(t, chunks[0].Created, chunk.Created)
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		text += chunk.Choices[0].Delta.Content
	}
	assert.Contains(t, text, "Hello")

	last := chunks[len(chunks)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(backend.NewMockClient())
	w := doJSON(t, srv.Router(), http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gateway_streaming_connections_active")
}

func TestMetricsEndpointDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Metrics.Enabled = false
	srv := New(cfg, backend.NewMockClient(), state.New())

	w := doJSON(t, srv.Router(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(backend.NewMockClient())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
