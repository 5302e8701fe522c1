package pipeline

import (
	"context"
	"testing"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

func TestStripField_Process(t *testing.T) {
	tests := []struct {
		name string
		cfg  StripFieldConfig
		in   string
		want string
	}{
		{
			name: "removes name",
			cfg:  StripFieldConfig{Field: "name"},
			in:   `{"messages":[{"role":"user","content":"hi","name":"bob"}]}`,
			want: `{"messages":[{"content":"hi","role":"user"}]}`,
		},
		{
			name: "every role",
			cfg:  StripFieldConfig{Field: "name"},
			in:   `{"messages":[{"role":"system","content":"s","name":"x"},{"role":"assistant","content":"a","name":"y"},{"role":"tool","content":"t","tool_call_id":"c1"}]}`,
			want: `{"messages":[{"content":"s","role":"system"},{"content":"a","role":"assistant"},{"content":"t","role":"tool","tool_call_id":"c1"}]}`,
		},
		{
			name: "role filter",
			cfg:  StripFieldConfig{Field: "name", Roles: []domain.Role{domain.RoleUser}},
			in:   `{"messages":[{"role":"system","content":"s","name":"x"},{"role":"user","content":"u","name":"bob"}]}`,
			want: `{"messages":[{"content":"s","name":"x","role":"system"},{"content":"u","role":"user"}]}`,
		},
		{
			name: "other fields and non-records untouched",
			cfg:  StripFieldConfig{Field: "tool_call_id"},
			in:   `{"messages":["raw",42,{"role":"tool","content":"t","tool_call_id":"c1","name":"fn"},{"role":"user","content":null}]}`,
			want: `{"messages":["raw",42,{"content":"t","name":"fn","role":"tool"},{"content":null,"role":"user"}]}`,
		},
		{
			name: "no messages",
			cfg:  StripFieldConfig{Field: "name"},
			in:   `{"model":"m","name":"top-level stays"}`,
			want: `{"model":"m","name":"top-level stays"}`,
		},
		{
			name: "messages not a sequence",
			cfg:  StripFieldConfig{Field: "name"},
			in:   `{"messages":"hello"}`,
			want: `{"messages":"hello"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, err := NewStripField(tt.cfg)
			if err != nil {
				t.Fatalf("NewStripField() error = %v", err)
			}

			out, err := stage.Process(context.Background(), completionInput(decodePayload(t, tt.in)))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			got := encodePayload(t, out)
			if got != tt.want {
				t.Errorf("Process()\n got: %s\nwant: %s", got, tt.want)
			}

			again, err := stage.Process(context.Background(), completionInput(out))
			if err != nil {
				t.Fatalf("second Process() error = %v", err)
			}
			if encodePayload(t, again) != got {
				t.Error("StripField is not idempotent")
			}
		})
	}
}

func TestStripField_PreservesIdentity(t *testing.T) {
	stage := NewRemoveName()
	p := domain.NewPayload("m", named(domain.RoleUser, "hi", "bob"), domain.NewMessage(domain.RoleAssistant, "yo"))
	first, second := p.Messages[0], p.Messages[1]

	out, err := stage.Process(context.Background(), completionInput(p))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.Messages[0] != first || out.Messages[1] != second {
		t.Error("messages should be edited in place")
	}
	if first.Has("name") {
		t.Error("name still present")
	}
}

func TestStripField_AnyCallType(t *testing.T) {
	stage := NewRemoveName()
	in := `{"messages":[{"role":"user","content":"hi","name":"bob"}]}`

	for _, ct := range []domain.CallType{"", domain.CallTextCompletion, domain.CallModeration} {
		out, err := stage.Process(context.Background(), &ports.StageInput{Payload: decodePayload(t, in), CallType: ct})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if got := encodePayload(t, out); got != `{"messages":[{"content":"hi","role":"user"}]}` {
			t.Errorf("call type %q: got %s", ct, got)
		}
	}
}

func TestNewStripField_Validation(t *testing.T) {
	for _, field := range []string{"", "role", "content"} {
		if _, err := NewStripField(StripFieldConfig{Field: field}); err == nil {
			t.Errorf("NewStripField(%q) should fail", field)
		}
	}

	s, err := NewStripField(StripFieldConfig{Field: "tool_call_id"})
	if err != nil {
		t.Fatalf("NewStripField() error = %v", err)
	}
	if s.Name() != "strip_tool_call_id" || s.Field() != "tool_call_id" {
		t.Errorf("unexpected defaults: name=%q field=%q", s.Name(), s.Field())
	}
	if NewRemoveName().Name() != "remove_name" {
		t.Error("remove_name stage has the wrong name")
	}
}
