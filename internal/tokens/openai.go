package tokens

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
)

// Token overhead per message for chat models, per OpenAI's cookbook:
// 3 tokens of framing per message, 1 for the role, and 3 priming the reply.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	tokensPerReply   = 3
)

// OpenAICounter counts tokens for OpenAI models using tiktoken.
// Codecs are loaded at construction and only read afterwards.
type OpenAICounter struct {
	matcher *ModelMatcher
	codecs  map[tokenizer.Encoding]tokenizer.Codec
}

// NewOpenAICounter loads the codecs used by current OpenAI models.
func NewOpenAICounter() (*OpenAICounter, error) {
	c := &OpenAICounter{
		matcher: NewModelMatcher(
			// "o" prefixes match the o1/o3/o4 reasoning models
			[]string{"gpt-", "o1", "o3", "o4", "text-embedding", "text-davinci"},
			[]string{"davinci", "curie", "babbage", "ada"},
		),
		codecs: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
	for _, enc := range []tokenizer.Encoding{tokenizer.O200kBase, tokenizer.Cl100kBase, tokenizer.P50kBase, tokenizer.R50kBase} {
		codec, err := tokenizer.Get(enc)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer encoding %s: %w", enc, err)
		}
		c.codecs[enc] = codec
	}
	return c, nil
}

// SupportsModel returns true for OpenAI model names.
func (c *OpenAICounter) SupportsModel(model string) bool {
	return c.matcher.Matches(strings.ToLower(model))
}

// Count counts chat prompt tokens.
func (c *OpenAICounter) Count(model string, msgs []*domain.Message) int {
	codec := c.codecs[modelToEncoding(model)]

	total := 0
	for _, msg := range msgs {
		if !msg.IsRecord() {
			continue
		}
		total += tokensPerMessage + tokensPerRole
		ids, _, _ := codec.Encode(messageText(msg))
		total += len(ids)
		if name, ok := msg.Extra["name"].(string); ok {
			ids, _, _ := codec.Encode(name)
			total += len(ids)
		}
	}
	return total + tokensPerReply
}

// modelToEncoding maps model names to encoding names.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, O1, O3, O4-mini and newer models
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
// - P50kBase: text-davinci-003, text-davinci-002
// - R50kBase: davinci, curie, babbage, ada (legacy)
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-41"),
		strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase

	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"),
		strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase

	case strings.HasPrefix(model, "text-davinci"):
		return tokenizer.P50kBase

	case model == "davinci" || model == "curie" || model == "babbage" || model == "ada":
		return tokenizer.R50kBase

	default:
		// Unknown/future models most likely use o200k_base
		return tokenizer.O200kBase
	}
}
