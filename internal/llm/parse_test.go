package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeGenerator struct {
	outputs []string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	out := f.outputs[f.calls]
	if f.calls < len(f.outputs)-1 {
		f.calls++
	}
	return out, nil
}

type hookPayload struct {
	Hook  string `json:"hook"`
	Angle string `json:"angle"`
}

func TestGenerateJSONFirstTry(t *testing.T) {
	g := &fakeGenerator{outputs: []string{`{"hook":"h","angle":"a"}`}}

	res, err := GenerateJSON[hookPayload](context.Background(), g, "sys", "prompt")
	if err != nil {
		t.Fatalf("GenerateJSON() error: %v", err)
	}
	if !res.OK() || res.Value.Hook != "h" || res.Retried {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestGenerateJSONToleratesFences(t *testing.T) {
	g := &fakeGenerator{outputs: []string{"Here you go:\n```json\n{\"hook\":\"h\"}\n```"}}

	res, err := GenerateJSON[hookPayload](context.Background(), g, "sys", "prompt")
	if err != nil {
		t.Fatalf("GenerateJSON() error: %v", err)
	}
	if !res.OK() || res.Value.Hook != "h" {
		t.Errorf("fenced JSON not decoded: %+v", res)
	}
}

func TestGenerateJSONRepairRetry(t *testing.T) {
	g := &fakeGenerator{outputs: []string{
		"sorry, I can't produce JSON right now",
		`{"hook":"fixed"}`,
	}}

	res, err := GenerateJSON[hookPayload](context.Background(), g, "sys", "prompt")
	if err != nil {
		t.Fatalf("GenerateJSON() error: %v", err)
	}
	if !res.Retried {
		t.Error("expected a repair retry")
	}
	if !res.OK() || res.Value.Hook != "fixed" {
		t.Errorf("repair retry result: %+v", res)
	}
	if len(g.prompts) != 2 {
		t.Fatalf("generator called %d times, want 2", len(g.prompts))
	}
	if g.prompts[1] == g.prompts[0] {
		t.Error("retry prompt missing the repair instruction")
	}
}

func TestGenerateJSONBoundedRetry(t *testing.T) {
	g := &fakeGenerator{outputs: []string{"not json", "still not json"}}

	res, err := GenerateJSON[hookPayload](context.Background(), g, "sys", "prompt")
	if err != nil {
		t.Fatalf("transport error not expected: %v", err)
	}
	if res.OK() {
		t.Error("expected parse failure after exhausted retry")
	}
	if len(g.prompts) != 2 {
		t.Errorf("generator called %d times, want exactly 2 (one retry)", len(g.prompts))
	}
}

func TestGenerateJSONTransportError(t *testing.T) {
	g := &fakeGenerator{err: errors.New("timeout")}

	_, err := GenerateJSON[hookPayload](context.Background(), g, "sys", "prompt")
	if err == nil {
		t.Fatal("expected transport error to surface")
	}
}
