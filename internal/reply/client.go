// Package reply generates assistant replies through an OpenAI-compatible
// chat completions endpoint.
package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyReply is returned when the provider answers without content.
var ErrEmptyReply = errors.New("provider returned an empty reply")

// Turn is one prior exchange supplied as model context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls a chat-completions provider. It is injected into the engine so
// tests can substitute a fake without any global state.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
	http    *http.Client
}

// NewClient creates a reply client for the given provider endpoint.
func NewClient(log *slog.Logger, baseURL, apiKey, model string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("reply client: base url is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("reply client: model is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		logger:  log.With(slog.String("client", "reply")),
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate produces one assistant reply for the visitor message, given the
// system instruction and the visible history. The returned text is raw model
// output; signal markers are the caller's concern.
func (c *Client) Generate(ctx context.Context, systemPrompt string, history []Turn, visitorText string) (string, error) {
	if strings.TrimSpace(visitorText) == "" {
		return "", fmt.Errorf("visitor text is required")
	}
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: toModelRole(turn.Role), Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: visitorText})

	content, err := c.callChat(ctx, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

func toModelRole(role string) string {
	switch role {
	case "assistant":
		return "assistant"
	default:
		return "user"
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) callChat(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Temperature: 0.7,
		Messages:    messages,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("provider error: %s", strings.TrimSpace(string(b)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return parsed.Choices[0].Message.Content, nil
}
