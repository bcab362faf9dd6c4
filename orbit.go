package numsim

import "math"

// Earthμ is the Earth gravitational parameter in km^3/s^2.
const Earthμ = 398600.4418

// Orbit defines an orbit via its Cartesian position and velocity.
type Orbit struct {
	rVec, vVec []float64
}

// NewOrbitFromRV returns an orbit from the position and velocity vectors, in
// km and km/s respectively.
func NewOrbitFromRV(R, V []float64) Orbit {
	return Orbit{append([]float64(nil), R...), append([]float64(nil), V...)}
}

// R returns a copy of the radius vector.
func (o Orbit) R() []float64 { return append([]float64(nil), o.rVec...) }

// V returns a copy of the velocity vector.
func (o Orbit) V() []float64 { return append([]float64(nil), o.vVec...) }

// RV returns copies of both the radius and velocity vectors.
func (o Orbit) RV() ([]float64, []float64) { return o.R(), o.V() }

// RNorm returns the norm of the radius vector.
func (o Orbit) RNorm() float64 { return norm(o.rVec) }

// VNorm returns the norm of the velocity vector.
func (o Orbit) VNorm() float64 { return norm(o.vVec) }

// Energyξ returns the specific mechanical energy ξ about the given body.
func (o Orbit) Energyξ(μ float64) float64 {
	v := o.VNorm()
	return v*v/2 - μ/o.RNorm()
}

// TwoBody returns the derivative function of the Keplerian two body problem
// for the given gravitational parameter. It serves as the default orbital
// force model; a force model aggregator may supply any other Derivatives.
func TwoBody(μ float64) Derivatives {
	return func(t float64, y []float64) []float64 {
		fDot := make([]float64, PrimaryDim)
		bodyAcc := -μ / math.Pow(norm(y[:3]), 3)
		for i := 0; i < 3; i++ {
			fDot[i] = y[i+3]
			fDot[i+3] = bodyAcc * y[i]
		}
		return fDot
	}
}
