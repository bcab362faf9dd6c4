package numsim

import (
	"fmt"
	"math"
)

// Derivatives evaluates the time derivative of the state vector y at time t.
// It must return a new slice and leave y untouched.
type Derivatives func(t float64, y []float64) []float64

// DimensionMismatchError is returned when a vector disagrees with the
// expected dimension, e.g. a vector tolerance shorter than the primary state.
type DimensionMismatchError struct {
	Expected, Actual int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d components, got %d", e.Expected, e.Actual)
}

// SmallStepError is returned when a filtered step falls below the minimal
// step size and small steps are not accepted.
type SmallStepError struct {
	StepSize, MinStep float64
}

func (e SmallStepError) Error() string {
	return fmt.Sprintf("minimal step size %g reached during integration (|h|=%g)", e.MinStep, e.StepSize)
}

// StepSizeControl owns the step size bounds and the error tolerances of the
// adaptive integration. The bounds are stored as absolute values and are
// independent of the integration direction. Tolerances are either a scalar
// pair applied to every component, or a vector pair matching the primary
// state dimension; the two modes are mutually exclusive.
type StepSizeControl struct {
	minStep, maxStep       float64
	initialStep            float64
	scalAbsTol, scalRelTol float64
	vecAbsTol, vecRelTol   []float64
}

// NewStepSizeControl returns a step size control with scalar tolerances.
func NewStepSizeControl(minStep, maxStep, absTol, relTol float64) *StepSizeControl {
	c := new(StepSizeControl)
	c.SetStepSizeControl(minStep, maxStep, absTol, relTol)
	return c
}

// NewVectorStepSizeControl returns a step size control with per-component
// tolerances. The vectors must match the primary state dimension, which is
// checked by Validate before integration starts.
func NewVectorStepSizeControl(minStep, maxStep float64, absTol, relTol []float64) *StepSizeControl {
	c := new(StepSizeControl)
	c.SetStepSizeControlVector(minStep, maxStep, absTol, relTol)
	return c
}

// SetStepSizeControl sets the bounds and scalar tolerances. Any vector
// tolerances are cleared and the initial step is reset to auto-compute.
func (c *StepSizeControl) SetStepSizeControl(minStep, maxStep, absTol, relTol float64) {
	c.minStep = math.Abs(minStep)
	c.maxStep = math.Abs(maxStep)
	c.initialStep = -1

	c.scalAbsTol = absTol
	c.scalRelTol = relTol
	c.vecAbsTol = nil
	c.vecRelTol = nil
}

// SetStepSizeControlVector sets the bounds and per-component tolerances. Any
// scalar tolerances are cleared and the initial step is reset to auto-compute.
func (c *StepSizeControl) SetStepSizeControlVector(minStep, maxStep float64, absTol, relTol []float64) {
	c.minStep = math.Abs(minStep)
	c.maxStep = math.Abs(maxStep)
	c.initialStep = -1

	c.scalAbsTol = 0
	c.scalRelTol = 0
	c.vecAbsTol = append([]float64(nil), absTol...)
	c.vecRelTol = append([]float64(nil), relTol...)
}

// SetInitialStepSize sets the user provided initial step, which must be
// positive even for backward integration. A value outside of the min/max
// interval silently reverts to auto-compute: downstream callers rely on this
// leniency, so no error is raised.
func (c *StepSizeControl) SetInitialStepSize(initialStepSize float64) {
	if initialStepSize < c.minStep || initialStepSize > c.maxStep {
		c.initialStep = -1
	} else {
		c.initialStep = initialStepSize
	}
}

// MinStep returns the minimal step size.
func (c *StepSizeControl) MinStep() float64 { return c.minStep }

// MaxStep returns the maximal step size.
func (c *StepSizeControl) MaxStep() float64 { return c.maxStep }

// Validate checks the vector tolerances against the primary state dimension.
// The same DimensionMismatchError is returned on every call for a given
// configuration.
func (c *StepSizeControl) Validate(mainSetDimension int) error {
	if c.vecAbsTol != nil && len(c.vecAbsTol) != mainSetDimension {
		return DimensionMismatchError{mainSetDimension, len(c.vecAbsTol)}
	}
	if c.vecRelTol != nil && len(c.vecRelTol) != mainSetDimension {
		return DimensionMismatchError{mainSetDimension, len(c.vecRelTol)}
	}
	return nil
}

// Tolerance returns the absolute and relative tolerance of component i.
func (c *StepSizeControl) Tolerance(i int) (absTol, relTol float64) {
	if c.vecAbsTol != nil {
		return c.vecAbsTol[i], c.vecRelTol[i]
	}
	return c.scalAbsTol, c.scalRelTol
}

// InitializeStep computes the first integration step. A valid user provided
// initial step is returned signed by direction. Otherwise the step is
// estimated from the first two derivatives of the solution: a rough Euler
// guess h = 0.01*||y/scale||/||y'/scale||, one Euler step to probe y'', and
// h1 such that h1^order * max(||y'/scale||, ||y''/scale||) = 0.01. The scale
// vector may be shorter than the state vector; only its components are used.
func (c *StepSizeControl) InitializeStep(forward bool, order int, scale []float64, t0 float64, y0, yDot0 []float64, f Derivatives) float64 {
	if c.initialStep > 0 {
		if forward {
			return c.initialStep
		}
		return -c.initialStep
	}

	// Rough first guess, used below to perform an Euler step.
	var yOnScale2, yDotOnScale2 float64
	for j := range scale {
		ratio := y0[j] / scale[j]
		yOnScale2 += ratio * ratio
		ratioDot := yDot0[j] / scale[j]
		yDotOnScale2 += ratioDot * ratioDot
	}
	h := 1e-6
	if yOnScale2 >= 1e-10 && yDotOnScale2 >= 1e-10 {
		h = 0.01 * math.Sqrt(yOnScale2/yDotOnScale2)
	}
	if !forward {
		h = -h
	}

	// Euler step with the rough guess.
	y1 := make([]float64, len(y0))
	for j := range y0 {
		y1[j] = y0[j] + h*yDot0[j]
	}
	yDot1 := f(t0+h, y1)

	// Estimate the second derivative of the solution on the scale.
	var yDDotOnScale float64
	for j := range scale {
		ratioDotDot := (yDot1[j] - yDot0[j]) / scale[j]
		yDDotOnScale += ratioDotDot * ratioDotDot
	}
	yDDotOnScale = math.Sqrt(yDDotOnScale) / h

	// Step size such that h^order * max(||y'/tol||, ||y''/tol||) = 0.01.
	maxInv2 := math.Max(math.Sqrt(yDotOnScale2), yDDotOnScale)
	var h1 float64
	if maxInv2 < 1e-15 {
		h1 = math.Max(1e-6, 0.001*math.Abs(h))
	} else {
		h1 = math.Pow(0.01/maxInv2, 1/float64(order))
	}
	h = math.Min(100*math.Abs(h), h1)
	h = math.Max(h, 1e-12*math.Abs(t0)) // avoids cancellation when computing t1 - t0
	if h < c.minStep {
		h = c.minStep
	}
	if h > c.maxStep {
		h = c.maxStep
	}
	if !forward {
		h = -h
	}
	return h
}

// FilterStep bounds the signed step h. A step below the minimal size is
// silently raised to it when acceptSmall is set, and fails with a
// SmallStepError otherwise; the magnitude is then clamped to the maximal
// step.
func (c *StepSizeControl) FilterStep(h float64, forward, acceptSmall bool) (float64, error) {
	filteredH := h
	if math.Abs(h) < c.minStep {
		if !acceptSmall {
			return filteredH, SmallStepError{math.Abs(h), c.minStep}
		}
		if forward {
			filteredH = c.minStep
		} else {
			filteredH = -c.minStep
		}
	}

	if filteredH > c.maxStep {
		filteredH = c.maxStep
	} else if filteredH < -c.maxStep {
		filteredH = -c.maxStep
	}
	return filteredH, nil
}
