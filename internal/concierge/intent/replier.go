package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ChatReplier composes free-form guest replies through the same
// OpenAI-compatible chat API as the classification provider, but with plain
// text output instead of JSON mode. It satisfies the router's Replier
// interface.
type ChatReplier struct {
	cfg    Config
	client *http.Client
}

// NewReplier returns a ChatReplier. Config defaults mirror NewProvider.
func NewReplier(cfg Config) *ChatReplier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &ChatReplier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Chat sends the system prompt, up to three trailing history turns and the
// guest message, and returns the model's reply text. Unlike Classify there is
// no retry: the caller degrades to a canned message on any failure, and a
// guest waiting on WhatsApp is better served by that than by a second slow
// round trip.
func (r *ChatReplier) Chat(ctx context.Context, systemPrompt string, history []HistoryTurn, userMessage string) (string, error) {
	messages := []oaiMessage{{Role: "system", Content: systemPrompt}}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, h := range history {
		role := h.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, oaiMessage{Role: role, Content: h.Content})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: userMessage})

	body := oaiRequest{
		Model:     r.cfg.Model,
		Messages:  messages,
		MaxTokens: 512,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("intent: marshal reply request: %w", err)
	}

	content, err := postChat(ctx, r.client, r.cfg, data)
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(content)
	if reply == "" {
		return "", fmt.Errorf("intent: %w: empty reply content", ErrMalformedOutput)
	}
	return reply, nil
}
