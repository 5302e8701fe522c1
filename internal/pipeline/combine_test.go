package pipeline

import (
	"context"
	"testing"

	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
)

func TestCombineSystemMessages_Process(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "two system messages around a user turn",
			in:   `{"messages":[{"role":"system","content":"A"},{"role":"user","content":"hi"},{"role":"system","content":"B"}]}`,
			want: `{"messages":[{"content":"A\nB","role":"system"},{"content":"hi","role":"user"}]}`,
		},
		{
			name: "single system message untouched",
			in:   `{"messages":[{"role":"system","content":"only"}]}`,
			want: `{"messages":[{"content":"only","role":"system"}]}`,
		},
		{
			name: "missing content contributes an empty line",
			in:   `{"messages":[{"role":"system","content":"A"},{"role":"system"}]}`,
			want: `{"messages":[{"content":"A\n","role":"system"}]}`,
		},
		{
			name: "first system message keeps extension fields and position",
			in:   `{"model":"m","messages":[{"role":"user","content":"u1"},{"role":"system","content":"A","name":"policy"},{"role":"assistant","content":"a1"},{"role":"system","content":"B","name":"other"},{"role":"system","content":"C"},{"role":"user","content":"u2"}]}`,
			want: `{"messages":[{"content":"u1","role":"user"},{"content":"A\nB\nC","name":"policy","role":"system"},{"content":"a1","role":"assistant"},{"content":"u2","role":"user"}],"model":"m"}`,
		},
		{
			name: "first system message without content gains one",
			in:   `{"messages":[{"role":"system"},{"role":"system","content":"B"}]}`,
			want: `{"messages":[{"content":"\nB","role":"system"}]}`,
		},
		{
			name: "no trimming or deduplication",
			in:   `{"messages":[{"role":"system","content":" A "},{"role":"system","content":" A "}]}`,
			want: `{"messages":[{"content":" A \n A ","role":"system"}]}`,
		},
		{
			name: "text parts are flattened",
			in:   `{"messages":[{"role":"system","content":[{"type":"text","text":"A"},{"type":"text","text":"B"}]},{"role":"system","content":"C"}]}`,
			want: `{"messages":[{"content":"AB\nC","role":"system"}]}`,
		},
		{
			name: "missing or non-string role is never system",
			in:   `{"messages":[{"content":"x"},{"role":1,"content":"y"},{"role":"system","content":"A"}]}`,
			want: `{"messages":[{"content":"x"},{"content":"y","role":1},{"content":"A","role":"system"}]}`,
		},
		{
			name: "non-record entries are kept in place",
			in:   `{"messages":["raw",{"role":"system","content":"A"},null,{"role":"system","content":"B"}]}`,
			want: `{"messages":["raw",{"content":"A\nB","role":"system"},null]}`,
		},
		{
			name: "no messages key",
			in:   `{"model":"m","input":"embed me"}`,
			want: `{"input":"embed me","model":"m"}`,
		},
		{
			name: "messages not a sequence",
			in:   `{"messages":{"role":"system","content":"A"}}`,
			want: `{"messages":{"content":"A","role":"system"}}`,
		},
		{
			name: "empty messages",
			in:   `{"messages":[]}`,
			want: `{"messages":[]}`,
		},
	}

	stage := NewCombineSystemMessages()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := stage.Process(context.Background(), completionInput(decodePayload(t, tt.in)))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if got := encodePayload(t, out); got != tt.want {
				t.Errorf("Process()\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestCombineSystemMessages_Idempotent(t *testing.T) {
	stage := NewCombineSystemMessages()
	in := `{"messages":[{"role":"system","content":"A"},{"role":"user","content":"hi"},{"role":"system","content":"B"},{"role":"system"}]}`

	once, err := stage.Process(context.Background(), completionInput(decodePayload(t, in)))
	if err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	first := encodePayload(t, once)

	twice, err := stage.Process(context.Background(), completionInput(once))
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	if got := encodePayload(t, twice); got != first {
		t.Errorf("not idempotent\n once: %s\ntwice: %s", first, got)
	}
}

func TestCombineSystemMessages_OtherCallTypes(t *testing.T) {
	stage := NewCombineSystemMessages()
	in := `{"messages":[{"role":"system","content":"A"},{"role":"system","content":"B"}]}`

	callTypes := append([]domain.CallType{""}, domain.CallTypes...)
	for _, ct := range callTypes {
		t.Run("call_type="+string(ct), func(t *testing.T) {
			out, err := stage.Process(context.Background(), &ports.StageInput{Payload: decodePayload(t, in), CallType: ct})
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if got := encodePayload(t, out); got != `{"messages":[{"content":"A\nB","role":"system"}]}` {
				t.Errorf("expected merge for %q, got %s", ct, got)
			}
		})
	}

	// Without a messages list the call type makes no difference either.
	out, err := stage.Process(context.Background(), &ports.StageInput{Payload: decodePayload(t, `{"input":"x"}`), CallType: domain.CallEmbeddings})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := encodePayload(t, out); got != `{"input":"x"}` {
		t.Errorf("got %s", got)
	}
}

func TestCombineSystemMessages_UnmergeableContent(t *testing.T) {
	stage := NewCombineSystemMessages()
	in := `{"messages":[{"role":"system","content":[{"type":"image_url","image_url":{"url":"x"}}]},{"role":"system","content":"B"}]}`

	if _, err := stage.Process(context.Background(), completionInput(decodePayload(t, in))); err == nil {
		t.Fatal("expected error for non-text system content")
	}

	// Through the runner the request still goes out untouched.
	r := newTestRunner(t, discardLogs(), stage)
	out := r.Run(context.Background(), completionInput(decodePayload(t, in)))
	if got := encodePayload(t, out); got != `{"messages":[{"content":[{"image_url":{"url":"x"},"type":"image_url"}],"role":"system"},{"content":"B","role":"system"}]}` {
		t.Errorf("fail-open output = %s", got)
	}
}
