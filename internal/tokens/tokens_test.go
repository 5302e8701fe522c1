package tokens

import (
	"testing"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
)

func TestEstimator_Count(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		name      string
		msgs      []*domain.Message
		minTokens int
		maxTokens int
	}{
		{
			name:      "simple message",
			msgs:      []*domain.Message{domain.NewMessage(domain.RoleUser, "Hello, how are you?")},
			minTokens: 5,
			maxTokens: 15,
		},
		{
			name: "multiple messages",
			msgs: []*domain.Message{
				domain.NewMessage(domain.RoleUser, "What is 2+2?"),
				domain.NewMessage(domain.RoleAssistant, "2+2 equals 4."),
				domain.NewMessage(domain.RoleUser, "Thanks!"),
			},
			minTokens: 10,
			maxTokens: 30,
		},
		{
			name:      "opaque entries ignored",
			msgs:      []*domain.Message{domain.NewOpaqueMessage("loose string")},
			minTokens: 0,
			maxTokens: 0,
		},
		{
			name:      "empty",
			msgs:      nil,
			minTokens: 0,
			maxTokens: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Count("test-model", tt.msgs)
			if got < tt.minTokens || got > tt.maxTokens {
				t.Errorf("Count() = %d, want between %d and %d", got, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestOpenAICounter_Count(t *testing.T) {
	c, err := NewOpenAICounter()
	if err != nil {
		t.Fatalf("NewOpenAICounter() error = %v", err)
	}

	msgs := []*domain.Message{
		domain.NewMessage(domain.RoleSystem, "You are a helpful assistant."),
		domain.NewMessage(domain.RoleUser, "Hello!"),
	}

	got := c.Count("gpt-4o", msgs)
	// 2 messages * 4 overhead + 3 reply priming + content tokens
	if got <= 11 || got > 30 {
		t.Errorf("Count() = %d, want a small positive count above the fixed overhead", got)
	}
}

func TestOpenAICounter_SupportsModel(t *testing.T) {
	c, err := NewOpenAICounter()
	if err != nil {
		t.Fatalf("NewOpenAICounter() error = %v", err)
	}

	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-4o-mini", true},
		{"GPT-4", true},
		{"o3-mini", true},
		{"text-embedding-3-small", true},
		{"davinci", true},
		{"claude-3-5-sonnet", false},
		{"llama3", false},
	}
	for _, tt := range tests {
		if got := c.SupportsModel(tt.model); got != tt.want {
			t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestModelToEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  tokenizer.Encoding
	}{
		{"gpt-4o", tokenizer.O200kBase},
		{"gpt-4.1-mini", tokenizer.O200kBase},
		{"o1-preview", tokenizer.O200kBase},
		{"gpt-4-turbo", tokenizer.Cl100kBase},
		{"gpt-3.5-turbo", tokenizer.Cl100kBase},
		{"text-davinci-003", tokenizer.P50kBase},
		{"ada", tokenizer.R50kBase},
		{"mystery-model", tokenizer.O200kBase},
	}
	for _, tt := range tests {
		if got := modelToEncoding(tt.model); got != tt.want {
			t.Errorf("modelToEncoding(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestRegistry_CounterFor(t *testing.T) {
	c, err := NewOpenAICounter()
	if err != nil {
		t.Fatalf("NewOpenAICounter() error = %v", err)
	}
	r := NewRegistry(c)

	if r.CounterFor("gpt-4o") != Counter(c) {
		t.Error("expected OpenAI counter for gpt-4o")
	}
	if _, ok := r.CounterFor("claude-3-haiku").(*Estimator); !ok {
		t.Error("expected estimator fallback for unknown model")
	}
}
