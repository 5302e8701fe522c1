package pipeline

import (
	"context"
	"fmt"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

// StripField removes one extension field from every message that has it.
// Message order, roles, and content are never touched, so applying it twice
// is the same as applying it once.
type StripField struct {
	name  string
	field string
	roles map[domain.Role]struct{}
}

// StripFieldConfig configures a StripField stage.
type StripFieldConfig struct {
	// Name overrides the default "strip_<field>" identifier.
	Name string
	// Field is the key to remove.
	Field string
	// Roles limits stripping to messages with these roles. Empty means all.
	Roles []domain.Role
}

// NewStripField creates the stage. Role and content cannot be stripped.
func NewStripField(cfg StripFieldConfig) (*StripField, error) {
	switch cfg.Field {
	case "":
		return nil, fmt.Errorf("strip field: field name required")
	case "role", "content":
		return nil, fmt.Errorf("strip field: %q cannot be removed", cfg.Field)
	}

	name := cfg.Name
	if name == "" {
		name = "strip_" + cfg.Field
	}

	s := &StripField{name: name, field: cfg.Field}
	if len(cfg.Roles) > 0 {
		s.roles = make(map[domain.Role]struct{}, len(cfg.Roles))
		for _, r := range cfg.Roles {
			s.roles[r] = struct{}{}
		}
	}
	return s, nil
}

// NewRemoveName returns the stage that drops the "name" field, which several
// providers reject.
func NewRemoveName() *StripField {
	s, _ := NewStripField(StripFieldConfig{Name: "remove_name", Field: "name"})
	return s
}

// Name returns the stage identifier.
func (s *StripField) Name() string {
	return s.name
}

// Field returns the key this stage removes.
func (s *StripField) Field() string {
	return s.field
}

// Process removes the field.
func (s *StripField) Process(ctx context.Context, in *ports.StageInput) (*domain.Payload, error) {
	p := in.Payload
	if !carriesMessages(in) {
		return p, nil
	}

	for _, m := range p.Messages {
		if !m.IsRecord() {
			continue
		}
		if s.roles != nil {
			if _, ok := s.roles[m.Role]; !ok {
				continue
			}
		}
		m.Delete(s.field)
	}
	return p, nil
}
