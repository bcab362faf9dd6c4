package numsim

import (
	"testing"

	"github.com/gonum/floats"
)

func TestOrbitRV(t *testing.T) {
	R := []float64{6953.137, 0, 0}
	V := []float64{0, 7.5715, 0}
	o := NewOrbitFromRV(R, V)
	if !floats.EqualWithinAbs(o.RNorm(), 6953.137, 1e-12) {
		t.Fatalf("unexpected radius norm %f", o.RNorm())
	}
	if !floats.EqualWithinAbs(o.VNorm(), 7.5715, 1e-12) {
		t.Fatalf("unexpected velocity norm %f", o.VNorm())
	}
	// The accessors copy: mutating their result leaves the orbit alone.
	gotR, gotV := o.RV()
	gotR[0] = -1
	gotV[1] = -1
	if o.RNorm() != 6953.137 || o.VNorm() != 7.5715 {
		t.Fatal("orbit aliases its accessor results")
	}
	// Mutating the construction inputs leaves it alone too.
	R[0] = -1
	if o.RNorm() != 6953.137 {
		t.Fatal("orbit aliases its construction inputs")
	}
	if ξ := o.Energyξ(Earthμ); ξ >= 0 {
		t.Fatalf("expected a bound orbit, got ξ=%f", ξ)
	}
}

func TestTwoBody(t *testing.T) {
	f := TwoBody(Earthμ)
	y := []float64{6953.137, 0, 0, 0, 7.5715, 0}
	yDot := f(0, y)
	// Velocity copies through, acceleration points back to the center.
	if !floats.Equal(yDot[:3], y[3:]) {
		t.Fatalf("unexpected velocity derivative: %+v", yDot[:3])
	}
	r := norm(y[:3])
	expected := -Earthμ / (r * r)
	if !floats.EqualWithinAbs(yDot[3], expected, 1e-12) {
		t.Fatalf("expected radial acceleration %.12f, got %.12f", expected, yDot[3])
	}
	if yDot[4] != 0 || yDot[5] != 0 {
		t.Fatalf("unexpected off axis acceleration: %+v", yDot[3:])
	}
}
