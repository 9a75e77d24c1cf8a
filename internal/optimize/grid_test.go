package optimize

import (
	"math"
	"testing"

	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

func TestAxisPoints(t *testing.T) {
	stepped := chem.Reagent{Formula: "NaOH", Min: 0, Max: 2, Step: 1}
	got := axisPoints(stepped, 10)
	want := []float64{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("stepped axis = %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("stepped axis[%d] = %f, want %f", i, got[i], want[i])
		}
	}

	// A step that does not divide the range evenly must still include Max.
	uneven := axisPoints(chem.Reagent{Formula: "X", Min: 0, Max: 2, Step: 0.8}, 10)
	wantUneven := []float64{0, 0.8, 1.6, 2}
	if len(uneven) != len(wantUneven) {
		t.Fatalf("uneven-step axis = %v, want %v", uneven, wantUneven)
	}
	for i := range wantUneven {
		if math.Abs(uneven[i]-wantUneven[i]) > 1e-12 {
			t.Errorf("uneven-step axis[%d] = %f, want %f", i, uneven[i], wantUneven[i])
		}
	}
	if uneven[len(uneven)-1] != 2 {
		t.Errorf("uneven-step axis omits the upper bound: %v", uneven)
	}

	linear := axisPoints(chem.Reagent{Formula: "X", Min: 0, Max: 10}, 5)
	if len(linear) != 5 || linear[0] != 0 || linear[4] != 10 {
		t.Errorf("linspace axis = %v, want 5 points spanning [0,10]", linear)
	}

	degenerate := axisPoints(chem.Reagent{Formula: "X", Min: 3, Max: 3}, 5)
	if len(degenerate) != 1 || degenerate[0] != 3 {
		t.Errorf("degenerate axis = %v, want [3]", degenerate)
	}
}

func TestCartesianOrder(t *testing.T) {
	axes := [][]float64{{0, 1}, {10, 20}}
	combos := cartesian(axes)
	want := [][]float64{{0, 10}, {0, 20}, {1, 10}, {1, 20}}
	if len(combos) != len(want) {
		t.Fatalf("got %d combinations, want %d", len(combos), len(want))
	}
	for i := range want {
		if combos[i][0] != want[i][0] || combos[i][1] != want[i][1] {
			t.Errorf("combination %d = %v, want %v", i, combos[i], want[i])
		}
	}
}

func TestCombinationCountSaturates(t *testing.T) {
	axes := [][]float64{make([]float64, 100), make([]float64, 100), make([]float64, 100)}
	n := combinationCount(axes, 5000)
	if n <= 5000 {
		t.Errorf("count = %d, expected saturation above the limit", n)
	}
}

func TestPlanAxesHalvesResolution(t *testing.T) {
	reagents := []chem.Reagent{
		{Formula: "A", Min: 0, Max: 1},
		{Formula: "B", Min: 0, Max: 1},
		{Formula: "C", Min: 0, Max: 1},
	}

	axes, res, err := planAxes(reagents, 10, 1, 150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != 5 {
		t.Errorf("resolution = %d, want 5 after one halving (125 <= 150)", res)
	}
	if n := combinationCount(axes, 1 << 20); n != 125 {
		t.Errorf("combinations = %d, want 125", n)
	}

	// Budget too small for even the coarsest grid.
	if _, _, err := planAxes(reagents, 10, 1, 4); err == nil {
		t.Error("expected error when the budget cannot fit any grid")
	}
}

func TestLatinHypercubeStratification(t *testing.T) {
	reagents := []chem.Reagent{
		{Formula: "A", Min: 0, Max: 10},
		{Formula: "B", Min: -5, Max: 5},
	}
	rng := utils.NewRandSource(7)
	samples := latinHypercube(reagents, 8, rng)
	if len(samples) != 8 {
		t.Fatalf("got %d samples, want 8", len(samples))
	}

	// Every sample inside bounds, and exactly one per stratum per axis.
	for ax, r := range reagents {
		seen := make([]bool, 8)
		width := (r.Max - r.Min) / 8
		for _, s := range samples {
			v := s[ax]
			if v < r.Min || v > r.Max {
				t.Fatalf("axis %d sample %f out of [%f,%f]", ax, v, r.Min, r.Max)
			}
			stratum := int((v - r.Min) / width)
			if stratum == 8 {
				stratum = 7
			}
			if seen[stratum] {
				t.Errorf("axis %d stratum %d hit twice", ax, stratum)
			}
			seen[stratum] = true
		}
	}

	// Same seed reproduces the same design.
	again := latinHypercube(reagents, 8, utils.NewRandSource(7))
	for i := range samples {
		for ax := range samples[i] {
			if samples[i][ax] != again[i][ax] {
				t.Fatal("latin hypercube not deterministic for a fixed seed")
			}
		}
	}
}
