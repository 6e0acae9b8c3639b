package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/savanahq/savana/pkg/observability"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 2 * time.Minute

	// maxPromptTokens caps what we forward to the model; overlong prompts are
	// truncated rather than rejected so chat keeps flowing.
	maxPromptTokens = 8192

	// tokenizerEncoding is used only for counting; Gemini's own tokenizer
	// differs slightly but cl100k_base is close enough for a budget cap.
	tokenizerEncoding = "cl100k_base"

	// estimatedCharsPerToken is the rough budget used when the tokenizer
	// data cannot be fetched.
	estimatedCharsPerToken = 4
)

// systemInstruction shapes replies into the JSON envelope the chat clients
// expect: always a text field, plus a fileTree when the user asked for code.
const systemInstruction = `You are SAVANA, a collaborative coding assistant embedded in a project chat.
Always respond with a single JSON object of the form {"text": "..."} and, when the
user asks you to create or modify project files, include a "fileTree" field mapping
file paths to {"file": {"contents": "..."}} objects. Do not wrap the JSON in
markdown fences. Keep "text" conversational and concise.`

// GeminiConfig configures the Gemini generation client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string        // defaults to the public Gemini endpoint
	Model   string        // defaults to gemini-2.0-flash
	Timeout time.Duration // per-request HTTP timeout
	RPS     float64       // requests per second; 0 disables rate limiting
}

// Gemini calls the Gemini generateContent API.
type Gemini struct {
	cfg        GeminiConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *observability.Logger

	// The tiktoken encoder downloads its data file on first use, so it is
	// initialized lazily and failures degrade to character estimation.
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
	encoderErr  error
}

// NewGemini builds a Gemini generation client.
func NewGemini(cfg GeminiConfig, logger *observability.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &Gemini{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Generate sends the prompt to Gemini and parses the JSON reply envelope.
func (g *Gemini) Generate(ctx context.Context, prompt string) (*Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	prompt = g.truncatePrompt(prompt)

	ctx, span := observability.StartSpan(ctx, "ai.generate",
		trace.WithAttributes(
			observability.AttrModelID.String(g.cfg.Model),
			observability.AttrPromptLen.Int(len(prompt)),
		),
	)
	defer span.End()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			observability.RecordError(ctx, err)
			return nil, fmt.Errorf("gemini: rate limit wait: %w", err)
		}
	}

	start := time.Now()
	raw, err := g.generateContent(ctx, prompt)
	observability.GenerationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}

	return parseReply(raw), nil
}

func (g *Gemini) generateContent(ctx context.Context, prompt string) (string, error) {
	payload := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemInstruction}},
		},
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: prompt}},
			},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseMIMEType: "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.cfg.BaseURL, url.PathEscape(g.cfg.Model), url.QueryEscape(g.cfg.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini request failed: %s", resp.Status)
	}

	var genResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", err
	}
	if len(genResp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates returned")
	}

	var textParts []string
	for _, part := range genResp.Candidates[0].Content.Parts {
		textParts = append(textParts, part.Text)
	}
	return strings.Join(textParts, "\n"), nil
}

// truncatePrompt enforces the prompt token budget. When the tokenizer is
// unavailable it falls back to a character-based estimate so generation
// keeps working offline.
func (g *Gemini) truncatePrompt(prompt string) string {
	g.encoderOnce.Do(func() {
		g.encoder, g.encoderErr = tiktoken.GetEncoding(tokenizerEncoding)
		if g.encoderErr != nil && g.logger != nil {
			g.logger.Warn("tokenizer unavailable, estimating token counts",
				"error", g.encoderErr.Error(),
			)
		}
	})

	if g.encoderErr != nil {
		budget := maxPromptTokens * estimatedCharsPerToken
		if len(prompt) <= budget {
			return prompt
		}
		return prompt[:budget]
	}

	tokens := g.encoder.Encode(prompt, nil, nil)
	if len(tokens) <= maxPromptTokens {
		return prompt
	}
	truncated := g.encoder.Decode(tokens[:maxPromptTokens])
	if g.logger != nil {
		g.logger.Warn("prompt truncated to token budget",
			"original_tokens", len(tokens),
			"budget", maxPromptTokens,
		)
	}
	return truncated
}

// parseReply decodes the model's JSON envelope. Models occasionally return
// bare prose despite the instruction; that becomes a text-only reply.
func parseReply(raw string) *Reply {
	raw = strings.TrimSpace(raw)

	var reply Reply
	if err := json.Unmarshal([]byte(raw), &reply); err == nil && reply.Text != "" {
		return &reply
	}
	return &Reply{Text: raw}
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}
