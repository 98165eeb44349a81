package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) New(_ context.Context, _ openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func TestGenerateReply(t *testing.T) {
	c := NewClientWithCompleter(&fakeCompleter{reply: "Olá!"})
	got, err := c.GenerateReply(context.Background(), "", "oi")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if got != "Olá!" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestGenerateReplyError(t *testing.T) {
	c := NewClientWithCompleter(&fakeCompleter{err: errors.New("rate limited")})
	if _, err := c.GenerateReply(context.Background(), "", "oi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOptinHandler(t *testing.T) {
	c := NewClientWithCompleter(&fakeCompleter{reply: "Tudo bem?"})
	result := c.OptinHandler()(map[string]string{"ask_text": "como vai"})
	if result["ai_reply"] != "Tudo bem?" {
		t.Errorf("unexpected result %v", result)
	}

	c = NewClientWithCompleter(&fakeCompleter{err: errors.New("down")})
	result = c.OptinHandler()(map[string]string{"ask_text": "oi"})
	if len(result) != 0 {
		t.Errorf("expected empty result on failure, got %v", result)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without API key")
	}
}
