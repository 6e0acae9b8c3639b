// Package ai is the generation gateway: it turns a chat prompt into an
// assistant reply, optionally carrying a generated project file tree.
package ai

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrEmptyPrompt is returned when a prompt contains no usable text.
var ErrEmptyPrompt = errors.New("ai: empty prompt")

// ErrGenerationDisabled is returned when no generation backend is configured.
var ErrGenerationDisabled = errors.New("ai: generation disabled, no api key configured")

// Reply is a generated assistant response. Text is always set on success;
// FileTree is present only when the model produced one.
type Reply struct {
	Text     string          `json:"text"`
	FileTree json.RawMessage `json:"fileTree,omitempty"`
}

// Generator produces a reply for a prompt. Implementations may block for a
// long time; callers dispatch off the hot path and honor ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Reply, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (*Reply, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (*Reply, error) {
	return f(ctx, prompt)
}

// Disabled returns a Generator that rejects every request. It lets the
// server run without an API key; assistant replies are simply unavailable.
func Disabled() Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string) (*Reply, error) {
		return nil, ErrGenerationDisabled
	})
}
