package numsim

import (
	"math"
	"testing"

	"github.com/gonum/floats"
)

func TestAdaptiveExponentialDecay(t *testing.T) {
	control := NewStepSizeControl(1e-8, 1, 1e-10, 1e-10)
	ad := NewAdaptive(control, Fehlberg45())
	f := func(t float64, y []float64) []float64 { return []float64{-y[0]} }
	y, err := ad.Integrate(0, 2, []float64{1}, f)
	if err != nil {
		t.Fatalf("integration failed: %s", err)
	}
	if !floats.EqualWithinAbs(y[0], math.Exp(-2), 1e-7) {
		t.Fatalf("expected %f, got %f", math.Exp(-2), y[0])
	}
	stats := ad.Stats()
	if stats.Accepted == 0 {
		t.Fatal("expected accepted steps")
	}
	if stats.Evaluations <= stats.Accepted {
		t.Fatalf("expected more evaluations (%d) than steps (%d)", stats.Evaluations, stats.Accepted)
	}
	if math.Abs(stats.LastStepSize) > control.MaxStep() {
		t.Fatalf("last step %f beyond the maximal step", stats.LastStepSize)
	}
}

func TestAdaptiveHarmonicOscillator(t *testing.T) {
	control := NewStepSizeControl(1e-8, 0.5, 1e-10, 1e-12)
	ad := NewAdaptive(control, Fehlberg45())
	f := func(t float64, y []float64) []float64 { return []float64{y[1], -y[0]} }
	y, err := ad.Integrate(0, 2*math.Pi, []float64{1, 0}, f)
	if err != nil {
		t.Fatalf("integration failed: %s", err)
	}
	if !floats.EqualWithinAbs(y[0], 1, 1e-6) || !floats.EqualWithinAbs(y[1], 0, 1e-6) {
		t.Fatalf("expected a full period back to (1, 0), got (%f, %f)", y[0], y[1])
	}
}

func TestAdaptiveBackward(t *testing.T) {
	control := NewStepSizeControl(1e-8, 1, 1e-10, 1e-10)
	ad := NewAdaptive(control, Fehlberg45())
	f := func(t float64, y []float64) []float64 { return []float64{-y[0]} }
	// Integrate backward from the forward solution: must recover y(0)=1.
	y, err := ad.Integrate(2, 0, []float64{math.Exp(-2)}, f)
	if err != nil {
		t.Fatalf("backward integration failed: %s", err)
	}
	if !floats.EqualWithinAbs(y[0], 1, 1e-7) {
		t.Fatalf("expected 1, got %f", y[0])
	}
}

func TestAdaptiveMinStepFailure(t *testing.T) {
	// A stiff problem with a coarse minimal step cannot satisfy the
	// tolerance and must fail with the step-too-small condition.
	control := NewStepSizeControl(0.5, 10, 1e-12, 1e-12)
	ad := NewAdaptive(control, Fehlberg45())
	f := func(t float64, y []float64) []float64 { return []float64{-1e6 * y[0]} }
	_, err := ad.Integrate(0, 100, []float64{1}, f)
	if err == nil {
		t.Fatal("expected a small step failure")
	}
	if _, ok := err.(SmallStepError); !ok {
		t.Fatalf("expected a SmallStepError, got %T: %s", err, err)
	}
}

func TestAdaptiveVectorToleranceMismatch(t *testing.T) {
	control := NewVectorStepSizeControl(1e-8, 1, make([]float64, 3), make([]float64, 3))
	ad := NewAdaptive(control, Fehlberg45())
	ad.MainSetDimension = 2
	f := func(t float64, y []float64) []float64 { return []float64{y[1], -y[0]} }
	if err := ad.Start(0, 1, []float64{1, 0}, f); err == nil {
		t.Fatal("expected the dimension mismatch to fail the start")
	}
}

func TestAdaptiveMainSetDimension(t *testing.T) {
	// Error control on the primary pair only: the third component rides
	// along and must still be integrated.
	control := NewStepSizeControl(1e-8, 0.5, 1e-10, 1e-12)
	ad := NewAdaptive(control, Fehlberg45())
	ad.MainSetDimension = 2
	f := func(t float64, y []float64) []float64 { return []float64{y[1], -y[0], 2 * t} }
	y, err := ad.Integrate(0, 2, []float64{1, 0, 0}, f)
	if err != nil {
		t.Fatalf("integration failed: %s", err)
	}
	if !floats.EqualWithinAbs(y[2], 4, 1e-9) {
		t.Fatalf("expected the secondary component t^2 = 4, got %f", y[2])
	}
}

func TestFehlberg45Consistency(t *testing.T) {
	c, a, b := Fehlberg45().Tableau()
	if len(c) != len(a) || len(c) != len(b) {
		t.Fatalf("inconsistent tableau sizes: %d, %d, %d", len(c), len(a), len(b))
	}
	if !floats.EqualWithinAbs(floats.Sum(b), 1, 1e-15) {
		t.Fatalf("weights do not sum to 1: %.17f", floats.Sum(b))
	}
	for s := 1; s < len(a); s++ {
		if !floats.EqualWithinAbs(floats.Sum(a[s]), c[s], 1e-14) {
			t.Fatalf("row %d does not sum to its node %f", s, c[s])
		}
	}
	if len(Fehlberg45().ErrorWeights()) != len(b) {
		t.Fatal("error weights do not match the stage count")
	}
}
