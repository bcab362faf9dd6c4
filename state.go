package numsim

import (
	"fmt"
	"time"

	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/num/quat"
)

const (
	// RotAccKey is the name of the rotational acceleration additional state.
	RotAccKey = "RotAcc"
	// SecondaryKey is the name of the integrated secondary block, laid out
	// as spin then theta.
	SecondaryKey = "Secondary"
)

// UnknownStateError is returned when a named additional state does not exist
// on a snapshot.
type UnknownStateError struct {
	Name string
}

func (e UnknownStateError) Error() string {
	return fmt.Sprintf("unknown additional state %q", e.Name)
}

// AttitudeState defines the orientation, spin and rotational acceleration of
// the body frame.
type AttitudeState struct {
	Rotation quat.Number
	Spin     []float64
	RotAcc   []float64
}

// DCM returns the direction cosine matrix of the rotation.
func (a AttitudeState) DCM() *mat64.Dense {
	q := Unit(a.Rotation)
	q0, q1, q2, q3 := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat64.NewDense(3, 3, []float64{
		1 - 2*(q2*q2+q3*q3), 2 * (q1*q2 + q0*q3), 2 * (q1*q3 - q0*q2),
		2 * (q1*q2 - q0*q3), 1 - 2*(q1*q1+q3*q3), 2 * (q2*q3 + q0*q1),
		2 * (q1*q3 + q0*q2), 2 * (q2*q3 - q0*q1), 1 - 2*(q1*q1+q2*q2),
	})
}

func copyAttitude(a AttitudeState) AttitudeState {
	return AttitudeState{
		Rotation: a.Rotation,
		Spin:     append([]float64(nil), a.Spin...),
		RotAcc:   append([]float64(nil), a.RotAcc...),
	}
}

// SpacecraftState is an immutable snapshot of the satellite at a given date.
// Builders return fresh values and accessors copy the mutable members, so a
// propagation step never alters the prior snapshot it reads from.
type SpacecraftState struct {
	DT       time.Time
	Orbit    Orbit
	Attitude AttitudeState
	Mass     float64

	additional map[string][]float64
}

// NewSpacecraftState returns a snapshot owning copies of all its inputs.
func NewSpacecraftState(dt time.Time, orbit Orbit, att AttitudeState, mass float64, additional map[string][]float64) SpacecraftState {
	s := SpacecraftState{DT: dt, Orbit: orbit, Attitude: copyAttitude(att), Mass: mass, additional: make(map[string][]float64, len(additional))}
	for name, vals := range additional {
		s.additional[name] = append([]float64(nil), vals...)
	}
	return s
}

// AdditionalState returns a copy of the named additional state.
func (s SpacecraftState) AdditionalState(name string) ([]float64, error) {
	vals, found := s.additional[name]
	if !found {
		return nil, UnknownStateError{name}
	}
	return append([]float64(nil), vals...), nil
}

// AdditionalStates returns a copy of all the named additional states.
func (s SpacecraftState) AdditionalStates() map[string][]float64 {
	out := make(map[string][]float64, len(s.additional))
	for name, vals := range s.additional {
		out[name] = append([]float64(nil), vals...)
	}
	return out
}

// WithAttitude returns a new snapshot with only the attitude replaced.
func (s SpacecraftState) WithAttitude(att AttitudeState) SpacecraftState {
	return NewSpacecraftState(s.DT, s.Orbit, att, s.Mass, s.additional)
}

// WithAdditionalState returns a new snapshot with the named state set.
func (s SpacecraftState) WithAdditionalState(name string, vals []float64) SpacecraftState {
	next := NewSpacecraftState(s.DT, s.Orbit, s.Attitude, s.Mass, s.additional)
	next.additional[name] = append([]float64(nil), vals...)
	return next
}
