// Package genai provides GenAI-backed flow operations using the OpenAI API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// defaultSystemPrompt frames generated replies for the conversational flow.
const defaultSystemPrompt = "Você é um assistente virtual educado e objetivo. Responda em português, em no máximo duas frases."

// chatCompleter is the slice of the OpenAI client used here, extracted for
// testing.
type chatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
}

// Option defines a configuration option for client construction.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat chatCompleter
}

// NewClient initializes a GenAI client, falling back to the OPENAI_API_KEY
// environment variable when no key option is given.
func NewClient(options ...Option) (*Client, error) {
	var opts Opts
	for _, opt := range options {
		opt(&opts)
	}
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	cli := openai.NewClient(option.WithAPIKey(opts.APIKey))
	return &Client{chat: &cli.Chat.Completions}, nil
}

// NewClientWithCompleter creates a Client over an explicit completion
// backend, used in tests.
func NewClientWithCompleter(chat chatCompleter) *Client {
	return &Client{chat: chat}
}

// GenerateReply produces a completion for the given prompts.
func (c *Client) GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// OptinHandler adapts the client to the flow engine's optin contract: it
// takes the first captured input as the user prompt and returns the reply
// under the "ai_reply" key.
func (c *Client) OptinHandler() func(inputs map[string]string) map[string]string {
	return func(inputs map[string]string) map[string]string {
		var prompt string
		for _, v := range inputs {
			prompt = v
			break
		}
		reply, err := c.GenerateReply(context.Background(), "", prompt)
		if err != nil {
			slog.Error("GenAI optin failed", "error", err)
			return map[string]string{}
		}
		return map[string]string{"ai_reply": reply}
	}
}
