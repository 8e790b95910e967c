package llm

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces one reply from a persona prompt, a grounding block,
// prior turns, and the new customer message.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, contextBlock string, history []ChatMessage, newMessage string) (string, error)
}

// GeneratorConfig tunes every request sent by a ClientGenerator.
type GeneratorConfig struct {
	Model       string
	MaxTokens   int32
	Temperature float32
	// TopP is left to the provider default when zero.
	TopP float32
}

// ClientGenerator adapts an LLMClient to the Generator contract.
type ClientGenerator struct {
	client LLMClient
	cfg    GeneratorConfig
}

func NewGenerator(client LLMClient, cfg GeneratorConfig) *ClientGenerator {
	if client == nil {
		panic("llm: client cannot be nil")
	}
	return &ClientGenerator{client: client, cfg: cfg}
}

// Generate returns ErrEmptyGeneration when the model answered with nothing.
func (g *ClientGenerator) Generate(ctx context.Context, systemPrompt, contextBlock string, history []ChatMessage, newMessage string) (string, error) {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: newMessage})

	system := []string{systemPrompt}
	if strings.TrimSpace(contextBlock) != "" {
		system = append(system, contextBlock)
	}

	resp, err := g.client.Complete(ctx, LLMRequest{
		Model:       g.cfg.Model,
		System:      system,
		Messages:    mergeConsecutiveRoles(messages),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

// mergeConsecutiveRoles folds back-to-back turns of the same role into one.
// Converse rejects two user turns in a row, which happens when a customer
// sends several messages before the bot answers.
func mergeConsecutiveRoles(msgs []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	// Converse also requires the conversation to open with a user turn.
	for len(out) > 0 && out[0].Role == ChatRoleAssistant {
		out = out[1:]
	}
	return out
}
