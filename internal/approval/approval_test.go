package approval

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestAuto(t *testing.T) {
	ctx := context.Background()

	var a Auto
	if ok, _ := a.ApprovePlan(ctx, ""); !ok {
		t.Error("zero Auto should approve plans")
	}
	if ok, _ := a.ApproveWave(ctx, 1, ""); !ok {
		t.Error("zero Auto should approve waves")
	}
	if ok, _ := a.ApproveRollback(ctx, "snap", ""); ok {
		t.Error("zero Auto should decline rollback")
	}

	strict := Auto{RejectPlan: true, RejectWaves: true, Rollback: true}
	if ok, _ := strict.ApprovePlan(ctx, ""); ok {
		t.Error("RejectPlan ignored")
	}
	if ok, _ := strict.ApproveWave(ctx, 0, ""); ok {
		t.Error("RejectWaves ignored")
	}
	if ok, _ := strict.ApproveRollback(ctx, "snap", ""); !ok {
		t.Error("Rollback ignored")
	}
}

func TestFuncs(t *testing.T) {
	ctx := context.Background()
	var calledWith int
	f := Funcs{Wave: func(_ context.Context, i int, _ string) (bool, error) {
		calledWith = i
		return false, nil
	}}

	if ok, _ := f.ApprovePlan(ctx, ""); !ok {
		t.Error("nil Plan func should approve")
	}
	if ok, _ := f.ApproveWave(ctx, 3, ""); ok || calledWith != 3 {
		t.Errorf("Wave func not used, got %v/%d", ok, calledWith)
	}
}

func TestPrompt_Answers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompt(strings.NewReader(tt.input), &out)
			got, err := p.ApprovePlan(context.Background(), "! [0] write x")
			if err != nil {
				t.Fatalf("ApprovePlan() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ApprovePlan(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "! [0] write x") || !strings.Contains(out.String(), "[y/N]") {
				t.Errorf("prompt output = %q", out.String())
			}
		})
	}
}

func TestPrompt_SequentialQuestions(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompt(strings.NewReader("y\nn\ny\n"), &out)
	ctx := context.Background()

	plan, _ := p.ApprovePlan(ctx, "")
	wave, _ := p.ApproveWave(ctx, 2, "")
	rollback, _ := p.ApproveRollback(ctx, "snapshot-x", "step 1 failed")

	if !plan || wave || !rollback {
		t.Errorf("answers = %v %v %v", plan, wave, rollback)
	}
	if !strings.Contains(out.String(), "Run destructive wave 2?") || !strings.Contains(out.String(), "Restore snapshot snapshot-x?") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrompt_ContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	p := NewPrompt(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ok, err := p.ApprovePlan(ctx, "")
	if ok || err == nil {
		t.Errorf("ApprovePlan() = %v, %v; want refusal with context error", ok, err)
	}
}
