package loop

import (
	"context"
	"errors"
	"testing"
)

func TestComponentsDefaults(t *testing.T) {
	dom, acq, inner, obj, err := Components(Spec{Objective: "sphere", Seed: 1})
	if err != nil {
		t.Fatalf("Components failed: %v", err)
	}
	if dom == nil || acq == nil || inner == nil || obj == nil {
		t.Fatal("expected all components")
	}
	if obj.Outputs() != 1 {
		t.Errorf("sphere should have 1 output, got %d", obj.Outputs())
	}
}

func TestComponentsConstrainedObjective(t *testing.T) {
	dom, acq, inner, obj, err := Components(Spec{Objective: "constrained-sphere", Acquisition: "ei", Optimizer: "random", Seed: 1})
	if err != nil {
		t.Fatalf("Components failed: %v", err)
	}
	if obj.Outputs() != 2 {
		t.Fatalf("expected 2 output columns, got %d", obj.Outputs())
	}

	// The composed acquisition must accept both output columns end to end.
	l, err := New(dom, acq, inner, obj, Config{NIter: 1, InitialDesign: InitialDesign(5), Seed: 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res := l.Run(context.Background())
	if !res.Success {
		t.Fatalf("run failed: reason=%s err=%v", res.Reason, res.Err)
	}
	if len(res.Y[0]) != 2 {
		t.Errorf("history rows should carry both columns, got %d", len(res.Y[0]))
	}
}

func TestComponentsUnknownNames(t *testing.T) {
	cases := []Spec{
		{Objective: "no-such-benchmark"},
		{Objective: "sphere", Acquisition: "thompson"},
		{Objective: "sphere", Optimizer: "gradient"},
	}
	for _, spec := range cases {
		_, _, _, _, err := Components(spec)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("spec %+v: expected ConfigurationError, got %v", spec, err)
		}
	}
}

func TestInitialDesign(t *testing.T) {
	if InitialDesign(0) != nil {
		t.Error("zero samples should yield nil generator")
	}
	if InitialDesign(5) == nil {
		t.Error("positive samples should yield a generator")
	}
}
