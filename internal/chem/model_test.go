package chem

import (
	"context"
	"math"
	"testing"
)

func TestModelEvaluatorLinearResponse(t *testing.T) {
	model := NewModelEvaluator().
		SetBase("pH", 6.8).
		SetResponse("NaOH", "pH", Response{Slope: 0.5})

	recipe := NewRecipe(Water{PH: 6.8}, Dose{Formula: "NaOH", Amount: 3.4, Unit: "mg/L"})
	obs, err := model.Evaluate(context.Background(), recipe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := obs.Value("pH")
	if !ok {
		t.Fatal("expected pH in observation")
	}
	if math.Abs(got-8.5) > 1e-9 {
		t.Errorf("pH = %f, want 8.5", got)
	}
	if !obs.Converged {
		t.Error("model evaluation should always converge")
	}
}

func TestModelEvaluatorSaturatingResponse(t *testing.T) {
	model := NewModelEvaluator().
		SetBase("SI_Calcite", -0.4).
		SetResponse("Ca(OH)2", "SI_Calcite", Response{Slope: 0.2, Saturation: 10})

	// At dose == saturation, the contribution is half the linear one.
	recipe := NewRecipe(Water{PH: 7}, Dose{Formula: "Ca(OH)2", Amount: 10, Unit: "mg/L"})
	obs, err := model.Evaluate(context.Background(), recipe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := obs.Value("SI_Calcite")
	want := -0.4 + 0.2*10/2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("SI_Calcite = %f, want %f", got, want)
	}
}

func TestModelEvaluatorUnknownFormula(t *testing.T) {
	model := NewModelEvaluator().SetBase("pH", 7)

	recipe := NewRecipe(Water{PH: 7}, Dose{Formula: "Unobtainium", Amount: 1, Unit: "mg/L"})
	_, err := model.Evaluate(context.Background(), recipe)
	if err == nil {
		t.Fatal("expected error for unknown formula")
	}
	if KindOf(err) != KindInvalidInput {
		t.Errorf("expected invalid_input, got %s", KindOf(err))
	}
}

func TestModelEvaluatorUsesWaterPH(t *testing.T) {
	model := NewModelEvaluator().SetResponse("NaOH", "pH", Response{Slope: 1})

	recipe := NewRecipe(Water{PH: 7.3}, Dose{Formula: "NaOH", Amount: 0.5, Unit: "mg/L"})
	obs, err := model.Evaluate(context.Background(), recipe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := obs.Value("pH")
	if math.Abs(got-7.8) > 1e-9 {
		t.Errorf("pH = %f, want 7.8", got)
	}
}

func TestModelEvaluatorCancelledContext(t *testing.T) {
	model := NewModelEvaluator().SetBase("pH", 7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := model.Evaluate(ctx, NewRecipe(Water{PH: 7}))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if KindOf(err) != KindTimeout {
		t.Errorf("expected timeout kind, got %s", KindOf(err))
	}
}

func TestModelEvaluatorIdempotent(t *testing.T) {
	model := NewModelEvaluator().
		SetBase("pH", 7).
		SetResponse("NaOH", "pH", Response{Slope: 0.5})
	recipe := NewRecipe(Water{PH: 7}, Dose{Formula: "NaOH", Amount: 2, Unit: "mg/L"})

	obs1, err := model.Evaluate(context.Background(), recipe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs2, err := model.Evaluate(context.Background(), recipe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v1, _ := obs1.Value("pH")
	v2, _ := obs2.Value("pH")
	if v1 != v2 {
		t.Errorf("expected bit-identical results, got %v and %v", v1, v2)
	}
}
