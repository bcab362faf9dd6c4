package numsim

import "fmt"

// PrimaryDim is the dimension of the primary orbital state {R, V}.
const PrimaryDim = 6

// SecondaryDim is the total length of the secondary block appended to the
// primary state inside the combined state vector.
const SecondaryDim = 6

// SecondaryState identifies a named sub-block inside the secondary portion
// of the flat state vector.
type SecondaryState struct {
	Name              string
	Offset, Dimension int
}

var (
	// Spin is the instantaneous rotational speed of the body frame.
	Spin = SecondaryState{"Spin", 0, 3}
	// Theta is the rotation vector accumulated from the spin; its increment
	// between two steps drives the quaternion update.
	Theta = SecondaryState{"Theta", 3, 3}
)

// OffsetError is returned when a named sub-block does not fit in the
// secondary block it is extracted from or injected into.
type OffsetError struct {
	State  SecondaryState
	Length int
}

func (e OffsetError) Error() string {
	return fmt.Sprintf("state %s [%d:%d] out of bounds of a %d-long secondary block", e.State.Name, e.State.Offset, e.State.Offset+e.State.Dimension, e.Length)
}

// ExtractState returns a copy of the named sub-block of a secondary block.
func ExtractState(block []float64, s SecondaryState) ([]float64, error) {
	if s.Offset < 0 || s.Offset+s.Dimension > len(block) {
		return nil, OffsetError{s, len(block)}
	}
	out := make([]float64, s.Dimension)
	copy(out, block[s.Offset:s.Offset+s.Dimension])
	return out, nil
}

// InjectState writes the named sub-block into a secondary block in place.
func InjectState(block []float64, s SecondaryState, v []float64) error {
	if len(v) != s.Dimension {
		return DimensionMismatchError{s.Dimension, len(v)}
	}
	if s.Offset < 0 || s.Offset+s.Dimension > len(block) {
		return OffsetError{s, len(block)}
	}
	copy(block[s.Offset:s.Offset+s.Dimension], v)
	return nil
}

// RotAccProvider supplies the rotational acceleration of the satellite at a
// given time, typically from the torque processing.
type RotAccProvider interface {
	RotAcc(t float64) []float64
}

// ConstantRotAcc is a RotAccProvider holding a fixed rotational acceleration.
type ConstantRotAcc [3]float64

// RotAcc implements the RotAccProvider interface.
func (c ConstantRotAcc) RotAcc(t float64) []float64 {
	return []float64{c[0], c[1], c[2]}
}

// SecondaryEquations provides the per-step derivatives of the secondary
// block: the spin derivative is the rotational acceleration, the theta
// derivative is the spin.
type SecondaryEquations struct {
	Provider RotAccProvider
}

// Derivatives returns d(secondary)/dt for the given secondary block.
func (eq SecondaryEquations) Derivatives(t float64, secondary []float64) []float64 {
	sDot := make([]float64, SecondaryDim)
	copy(sDot[Spin.Offset:Spin.Offset+Spin.Dimension], eq.Provider.RotAcc(t))
	copy(sDot[Theta.Offset:Theta.Offset+Theta.Dimension], secondary[Spin.Offset:Spin.Offset+Spin.Dimension])
	return sDot
}
