package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savanahq/savana/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLoggerWithWriter(io.Discard, "test", slog.LevelError)
}

func newTestGemini(t *testing.T, baseURL string) *Gemini {
	t.Helper()
	g, err := NewGemini(GeminiConfig{APIKey: "test-key", BaseURL: baseURL}, testLogger())
	require.NoError(t, err)
	return g
}

func geminiHandler(t *testing.T, replyText string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)

		resp := geminiResponse{}
		resp.Candidates = []struct {
			Content geminiContent `json:"content"`
		}{
			{Content: geminiContent{Parts: []geminiPart{{Text: replyText}}}},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestNewGeminiRequiresAPIKey(t *testing.T) {
	_, err := NewGemini(GeminiConfig{}, testLogger())
	assert.Error(t, err)
}

func TestNewGeminiDefaults(t *testing.T) {
	g, err := NewGemini(GeminiConfig{APIKey: "k"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, g.cfg.BaseURL)
	assert.Equal(t, defaultModel, g.cfg.Model)
	assert.Equal(t, defaultTimeout, g.cfg.Timeout)
	assert.Nil(t, g.limiter)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(geminiHandler(t, `{"text":"hello there"}`))
	defer srv.Close()

	g := newTestGemini(t, srv.URL)
	reply, err := g.Generate(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply.Text)
	assert.Empty(t, reply.FileTree)
}

func TestGenerateWithFileTree(t *testing.T) {
	srv := httptest.NewServer(geminiHandler(t,
		`{"text":"made it","fileTree":{"main.go":{"file":{"contents":"package main"}}}}`))
	defer srv.Close()

	g := newTestGemini(t, srv.URL)
	reply, err := g.Generate(context.Background(), "make main.go")
	require.NoError(t, err)
	assert.Equal(t, "made it", reply.Text)
	assert.NotEmpty(t, reply.FileTree)
}

func TestGenerateEmptyPrompt(t *testing.T) {
	g := newTestGemini(t, "http://unused.invalid")
	_, err := g.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL)
	_, err := g.Generate(context.Background(), "hello")
	assert.Error(t, err)
}

func TestGenerateNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	g := newTestGemini(t, srv.URL)
	_, err := g.Generate(context.Background(), "hello")
	assert.Error(t, err)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
	}{
		{"json envelope", `{"text":"hi"}`, "hi"},
		{"bare prose fallback", "just some prose", "just some prose"},
		{"json without text field", `{"foo":"bar"}`, `{"foo":"bar"}`},
		{"whitespace trimmed", "  {\"text\":\"hi\"}  ", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := parseReply(tt.raw)
			require.NotNil(t, reply)
			assert.Equal(t, tt.wantText, reply.Text)
		})
	}
}

func TestTruncatePrompt(t *testing.T) {
	g := newTestGemini(t, "http://unused.invalid")

	short := "a short prompt"
	assert.Equal(t, short, g.truncatePrompt(short))

	long := ""
	for i := 0; i < maxPromptTokens+100; i++ {
		long += "word "
	}
	truncated := g.truncatePrompt(long)
	assert.Less(t, len(truncated), len(long))
}

// When the tokenizer data cannot be fetched the budget degrades to a
// character estimate instead of failing the request.
func TestTruncatePromptEstimationFallback(t *testing.T) {
	g := newTestGemini(t, "http://unused.invalid")
	g.encoderOnce.Do(func() {})
	g.encoderErr = errors.New("tokenizer data unavailable")

	short := "a short prompt"
	assert.Equal(t, short, g.truncatePrompt(short))

	budget := maxPromptTokens * estimatedCharsPerToken
	long := strings.Repeat("x", budget+100)
	truncated := g.truncatePrompt(long)
	assert.Len(t, truncated, budget)
}

func TestDisabledGenerator(t *testing.T) {
	_, err := Disabled().Generate(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrGenerationDisabled)
}
