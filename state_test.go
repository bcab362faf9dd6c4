package numsim

import (
	"testing"
	"time"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/num/quat"
)

func TestSpacecraftStateImmutable(t *testing.T) {
	spin := []float64{1, 2, 3}
	additional := map[string][]float64{RotAccKey: {0.1, 0.2, 0.3}}
	s := NewSpacecraftState(time.Now(), leoOrbit(), AttitudeState{Rotation: quat.Number{Real: 1}, Spin: spin}, 1.04, additional)
	// Mutating the inputs after construction must not reach the snapshot.
	spin[0] = -99
	additional[RotAccKey][0] = -99
	if s.Attitude.Spin[0] != 1 {
		t.Fatalf("snapshot aliases its spin input: %+v", s.Attitude.Spin)
	}
	rotAcc, err := s.AdditionalState(RotAccKey)
	if err != nil {
		t.Fatalf("AdditionalState failed: %s", err)
	}
	if rotAcc[0] != 0.1 {
		t.Fatalf("snapshot aliases its additional state input: %+v", rotAcc)
	}
	// Mutating an accessor result must not reach the snapshot either.
	rotAcc[1] = -99
	again, _ := s.AdditionalState(RotAccKey)
	if again[1] != 0.2 {
		t.Fatalf("accessor returned an aliased slice: %+v", again)
	}
	all := s.AdditionalStates()
	all[RotAccKey][2] = -99
	again, _ = s.AdditionalState(RotAccKey)
	if again[2] != 0.3 {
		t.Fatalf("AdditionalStates returned an aliased map: %+v", again)
	}
}

func TestSpacecraftStateUnknown(t *testing.T) {
	s := NewSpacecraftState(time.Now(), leoOrbit(), AttitudeState{Rotation: quat.Number{Real: 1}}, 1.04, nil)
	_, err := s.AdditionalState("NoSuchState")
	if err == nil {
		t.Fatal("expected an unknown state error")
	}
	unknown, ok := err.(UnknownStateError)
	if !ok {
		t.Fatalf("expected an UnknownStateError, got %T", err)
	}
	if unknown.Name != "NoSuchState" {
		t.Fatalf("unexpected error content: %+v", unknown)
	}
}

func TestWithBuilders(t *testing.T) {
	s := NewSpacecraftState(time.Now(), leoOrbit(), AttitudeState{Rotation: quat.Number{Real: 1}}, 1.04, nil)
	next := s.WithAdditionalState(RotAccKey, []float64{1, 2, 3})
	if _, err := s.AdditionalState(RotAccKey); err == nil {
		t.Fatal("WithAdditionalState mutated its receiver")
	}
	if vals, err := next.AdditionalState(RotAccKey); err != nil || vals[0] != 1 {
		t.Fatalf("expected the new snapshot to hold the state, got %+v (%v)", vals, err)
	}
	att := AttitudeState{Rotation: quat.Number{Imag: 1}, Spin: []float64{0.5, 0, 0}}
	rotated := next.WithAttitude(att)
	if rotated.Attitude.Rotation.Imag != 1 || next.Attitude.Rotation.Real != 1 {
		t.Fatal("WithAttitude must replace only the new snapshot's attitude")
	}
	if rotated.Mass != next.Mass || !rotated.DT.Equal(next.DT) {
		t.Fatal("WithAttitude altered unrelated members")
	}
}

func TestDCM(t *testing.T) {
	identity := AttitudeState{Rotation: quat.Number{Real: 1}}
	dcm := identity.DCM()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			expected := 0.0
			if i == j {
				expected = 1
			}
			if !floats.EqualWithinAbs(dcm.At(i, j), expected, 1e-15) {
				t.Fatalf("identity DCM (%d,%d) = %f", i, j, dcm.At(i, j))
			}
		}
	}
	// Any rotation DCM is orthonormal.
	att := AttitudeState{Rotation: quat.Number{Real: 0.3, Imag: -0.1, Jmag: 0.7, Kmag: 0.2}}
	dcm = att.DCM()
	var prod mat64.Dense
	prod.Mul(dcm, dcm.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			expected := 0.0
			if i == j {
				expected = 1
			}
			if !floats.EqualWithinAbs(prod.At(i, j), expected, 1e-12) {
				t.Fatalf("DCM not orthonormal at (%d,%d): %f", i, j, prod.At(i, j))
			}
		}
	}
}
