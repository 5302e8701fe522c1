package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

// CombineSystemMessagesName is the registry identifier of CombineSystemMessages.
const CombineSystemMessagesName = "combine_system_messages"

// CombineSystemMessages folds every system message into the first one.
//
// Contents are joined with "\n" in original order, with "" for a missing
// content. The merged message keeps its position and extension fields; the
// other system messages are dropped and everything else keeps its order.
type CombineSystemMessages struct{}

// NewCombineSystemMessages creates the stage.
func NewCombineSystemMessages() *CombineSystemMessages {
	return &CombineSystemMessages{}
}

// Name returns the stage identifier.
func (s *CombineSystemMessages) Name() string {
	return CombineSystemMessagesName
}

// Process merges system messages.
func (s *CombineSystemMessages) Process(ctx context.Context, in *ports.StageInput) (*domain.Payload, error) {
	p := in.Payload
	if !carriesMessages(in) {
		return p, nil
	}

	var system []int
	for i, m := range p.Messages {
		if m.IsRecord() && m.Role == domain.RoleSystem {
			system = append(system, i)
		}
	}
	if len(system) < 2 {
		return p, nil
	}

	parts := make([]string, len(system))
	for i, idx := range system {
		text, err := domain.ContentText(p.Messages[idx].Content)
		if err != nil {
			return nil, fmt.Errorf("system message %d: %w", idx, err)
		}
		parts[i] = text
	}

	first := p.Messages[system[0]]
	first.SetContent(strings.Join(parts, "\n"))

	drop := make(map[int]struct{}, len(system)-1)
	for _, idx := range system[1:] {
		drop[idx] = struct{}{}
	}
	kept := make([]*domain.Message, 0, len(p.Messages)-len(drop))
	for i, m := range p.Messages {
		if _, ok := drop[i]; !ok {
			kept = append(kept, m)
		}
	}
	p.Messages = kept

	return p, nil
}

// carriesMessages reports whether message-level stages should act on the input.
// The call type is not consulted: any payload whose messages field is a list
// qualifies.
func carriesMessages(in *ports.StageInput) bool {
	return in.Payload != nil && in.Payload.HasMessages
}
