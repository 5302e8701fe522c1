package normalizer_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/tjfontaine/polyglot-normalizer/pkg/normalizer"
)

type memorySink struct {
	mu      sync.Mutex
	records []*normalizer.DispatchRecord
}

func (s *memorySink) Record(ctx context.Context, rec *normalizer.DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error { return nil }

// tagModel is an embedder-defined stage.
type tagModel struct{}

func (tagModel) Name() string { return "tag_model" }

func (tagModel) Process(ctx context.Context, in *normalizer.StageInput) (*normalizer.Payload, error) {
	in.Payload.Params["model"] = in.Payload.Model() + "-tagged"
	return in.Payload, nil
}

func testConfig(stages ...normalizer.PipelineStageConfig) *normalizer.Config {
	return &normalizer.Config{
		Server:   normalizer.ServerConfig{Timeout: "5s"},
		Pipeline: normalizer.PipelineConfig{Stages: stages},
		Sink:     normalizer.SinkConfig{Type: normalizer.SinkNone},
	}
}

func newNormalizer(t *testing.T, opts ...normalizer.Option) *normalizer.Normalizer {
	t.Helper()
	opts = append(opts, normalizer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	n, err := normalizer.New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { n.Shutdown(context.Background()) })
	return n
}

func TestRunner_Embedded(t *testing.T) {
	n := newNormalizer(t, normalizer.WithConfig(testConfig(normalizer.DefaultStages()...)), normalizer.WithSink(&memorySink{}))

	in := normalizer.NewPayload("gpt-4o",
		normalizer.NewMessage(normalizer.RoleSystem, "A"),
		normalizer.NewMessage(normalizer.RoleSystem, "B"),
		normalizer.NewMessage(normalizer.RoleUser, "hi"),
	)
	out := n.Runner().Run(context.Background(), &normalizer.StageInput{Payload: in, CallType: normalizer.CallCompletion})

	got, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"messages":[{"content":"A\nB","role":"system"},{"content":"hi","role":"user"}],"model":"gpt-4o"}`
	if string(got) != want {
		t.Errorf("Run()\n got: %s\nwant: %s", got, want)
	}
}

func TestRunner_DecodedPayload(t *testing.T) {
	n := newNormalizer(t, normalizer.WithConfig(testConfig(normalizer.DefaultStages()...)), normalizer.WithSink(&memorySink{}))

	var p normalizer.Payload
	if err := json.Unmarshal([]byte(`{"prompt":"x","messages":[{"role":"user","content":"hi","name":"bob"}]}`), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	ct, err := normalizer.ParseCallType("text_completion")
	if err != nil {
		t.Fatalf("ParseCallType failed: %v", err)
	}

	out := n.Runner().Run(context.Background(), &normalizer.StageInput{Payload: &p, CallType: ct})
	got, _ := json.Marshal(out)
	if string(got) != `{"messages":[{"content":"hi","role":"user"}],"prompt":"x"}` {
		t.Errorf("Run() = %s", got)
	}
}

func TestWithStageRegistry_CustomStage(t *testing.T) {
	reg := normalizer.NewRegistry()
	reg.Register("tag_model", func(normalizer.PipelineStageConfig, normalizer.Deps) (normalizer.Stage, error) {
		return tagModel{}, nil
	})

	n := newNormalizer(t,
		normalizer.WithConfig(testConfig(normalizer.PipelineStageConfig{Type: "tag_model"})),
		normalizer.WithStageRegistry(reg),
	)

	out := n.Runner().Run(context.Background(), &normalizer.StageInput{
		Payload:  normalizer.NewPayload("m"),
		CallType: normalizer.CallEmbeddings,
	})
	if out.Model() != "m-tagged" {
		t.Errorf("Model() = %q", out.Model())
	}
}
