package numsim

import (
	"math"
)

const (
	stepSafety       = 0.9
	minStepReduction = 0.2
	maxStepGrowth    = 10.0
)

// EmbeddedRK describes an explicit embedded Runge-Kutta pair: the Butcher
// tableau of the higher order solution and the weights of the embedded error
// estimate. The concrete pair is the pluggable part of the adaptive stepper.
type EmbeddedRK interface {
	// Order is the order used for the step size scaling exponent.
	Order() int
	// Tableau returns the nodes c, the coefficients a and the weights b.
	Tableau() (c []float64, a [][]float64, b []float64)
	// ErrorWeights returns e_i = b_i - b̂_i, with b̂ the embedded lower
	// order weights.
	ErrorWeights() []float64
}

type fehlberg45 struct{}

// Fehlberg45 returns the Fehlberg 4(5) embedded pair.
func Fehlberg45() EmbeddedRK { return fehlberg45{} }

func (fehlberg45) Order() int { return 5 }

func (fehlberg45) Tableau() (c []float64, a [][]float64, b []float64) {
	c = []float64{0, 1. / 4, 3. / 8, 12. / 13, 1, 1. / 2}
	a = [][]float64{
		{},
		{1. / 4},
		{3. / 32, 9. / 32},
		{1932. / 2197, -7200. / 2197, 7296. / 2197},
		{439. / 216, -8, 3680. / 513, -845. / 4104},
		{-8. / 27, 2, -3544. / 2565, 1859. / 4104, -11. / 40},
	}
	b = []float64{16. / 135, 0, 6656. / 12825, 28561. / 56430, -9. / 50, 2. / 55}
	return
}

func (fehlberg45) ErrorWeights() []float64 {
	// Fifth minus fourth order weights {25/216, 0, 1408/2565, 2197/4104, -1/5, 0}.
	return []float64{
		16./135 - 25./216,
		0,
		6656./12825 - 1408./2565,
		28561./56430 - 2197./4104,
		-9./50 + 1./5,
		2. / 55,
	}
}

// Stats reports the work performed by an integration run.
type Stats struct {
	Accepted, Rejected, Evaluations uint
	LastStepSize                    float64
}

// Adaptive integrates a first order ODE y' = f(t, y) with step size control.
// Error control applies to the first MainSetDimension components only (the
// primary set); the remaining components ride along in the same steps. The
// zero value of MainSetDimension means the whole state is controlled.
type Adaptive struct {
	Control *StepSizeControl
	Method  EmbeddedRK
	// MainSetDimension is the number of leading components under error
	// control.
	MainSetDimension int
	// Metrics optionally mirrors the run statistics to Prometheus.
	Metrics *StepMetrics

	f       Derivatives
	t, tEnd float64
	forward bool
	y, yDot []float64
	h       float64
	started bool
	stats   Stats
}

// NewAdaptive returns an adaptive integrator using the given step size
// control and embedded pair.
func NewAdaptive(control *StepSizeControl, method EmbeddedRK) *Adaptive {
	return &Adaptive{Control: control, Method: method}
}

// Stats returns the statistics of the current (or last) run.
func (ad *Adaptive) Stats() Stats { return ad.stats }

// Time returns the current integration time.
func (ad *Adaptive) Time() float64 { return ad.t }

// State returns a copy of the current state vector.
func (ad *Adaptive) State() []float64 { return append([]float64(nil), ad.y...) }

func (ad *Adaptive) mainDim() int {
	if ad.MainSetDimension > 0 && ad.MainSetDimension <= len(ad.y) {
		return ad.MainSetDimension
	}
	return len(ad.y)
}

func (ad *Adaptive) eval(t float64, y []float64) []float64 {
	ad.stats.Evaluations++
	if ad.Metrics != nil {
		ad.Metrics.Evaluations.Inc()
	}
	return ad.f(t, y)
}

// Start validates the configuration and computes the first step size for an
// integration from t0 to t1.
func (ad *Adaptive) Start(t0, t1 float64, y0 []float64, f Derivatives) error {
	ad.f = f
	ad.t = t0
	ad.tEnd = t1
	ad.forward = t1 >= t0
	ad.y = append([]float64(nil), y0...)
	ad.stats = Stats{}
	ad.started = true

	n := ad.mainDim()
	if err := ad.Control.Validate(n); err != nil {
		return err
	}
	ad.yDot = ad.eval(ad.t, ad.y)
	scale := make([]float64, n)
	for i := 0; i < n; i++ {
		absTol, relTol := ad.Control.Tolerance(i)
		scale[i] = absTol + relTol*math.Abs(ad.y[i])
	}
	ad.h = ad.Control.InitializeStep(ad.forward, ad.Method.Order(), scale, ad.t, ad.y, ad.yDot, ad.eval)
	return nil
}

// Done returns whether the target time has been reached.
func (ad *Adaptive) Done() bool {
	if !ad.started {
		return true
	}
	if ad.forward {
		return ad.t >= ad.tEnd
	}
	return ad.t <= ad.tEnd
}

// Step advances the state by a single accepted step, attempting smaller
// steps until the error estimate passes. The final step is truncated to land
// exactly on the target time and may be smaller than the minimal step.
func (ad *Adaptive) Step() (float64, []float64, error) {
	c, a, b := ad.Method.Tableau()
	e := ad.Method.ErrorWeights()
	stages := len(b)
	n := ad.mainDim()
	k := make([][]float64, stages)
	yTmp := make([]float64, len(ad.y))

	for {
		lastStep := false
		if ad.forward && ad.t+ad.h >= ad.tEnd {
			ad.h = ad.tEnd - ad.t
			lastStep = true
		} else if !ad.forward && ad.t+ad.h <= ad.tEnd {
			ad.h = ad.tEnd - ad.t
			lastStep = true
		}
		if !lastStep {
			var err error
			ad.h, err = ad.Control.FilterStep(ad.h, ad.forward, false)
			if err != nil {
				return ad.t, ad.State(), err
			}
		}

		// Evaluate the stages.
		k[0] = ad.yDot
		for s := 1; s < stages; s++ {
			for i := range ad.y {
				sum := 0.0
				for j := 0; j < s; j++ {
					sum += a[s][j] * k[j][i]
				}
				yTmp[i] = ad.y[i] + ad.h*sum
			}
			k[s] = ad.eval(ad.t+c[s]*ad.h, yTmp)
		}
		yNew := make([]float64, len(ad.y))
		for i := range ad.y {
			sum := 0.0
			for j := 0; j < stages; j++ {
				sum += b[j] * k[j][i]
			}
			yNew[i] = ad.y[i] + ad.h*sum
		}

		// Normalized error over the primary set:
		// sqrt(sum((errEst_i/threshold_i)^2)/n) with
		// threshold_i = absTol_i + relTol_i*max(|y_i|, |yNew_i|).
		errRatio2 := 0.0
		for i := 0; i < n; i++ {
			errEst := 0.0
			for j := 0; j < stages; j++ {
				errEst += e[j] * k[j][i]
			}
			errEst *= ad.h
			absTol, relTol := ad.Control.Tolerance(i)
			threshold := absTol + relTol*math.Max(math.Abs(ad.y[i]), math.Abs(yNew[i]))
			ratio := errEst / threshold
			errRatio2 += ratio * ratio
		}
		errNorm := math.Sqrt(errRatio2 / float64(n))

		accepted := errNorm <= 1
		h := ad.h
		factor := maxStepGrowth
		if errNorm > 0 {
			factor = math.Min(maxStepGrowth, math.Max(minStepReduction, stepSafety*math.Pow(errNorm, -1/float64(ad.Method.Order()))))
		}
		ad.h = h * factor

		if !accepted {
			ad.stats.Rejected++
			if ad.Metrics != nil {
				ad.Metrics.RejectedSteps.Inc()
			}
			continue
		}

		if lastStep {
			ad.t = ad.tEnd
		} else {
			ad.t += h
		}
		ad.y = yNew
		ad.yDot = ad.eval(ad.t, ad.y)
		ad.stats.Accepted++
		ad.stats.LastStepSize = h
		if ad.Metrics != nil {
			ad.Metrics.AcceptedSteps.Inc()
			ad.Metrics.LastStepSize.Set(math.Abs(h))
		}
		return ad.t, ad.State(), nil
	}
}

// Integrate advances y0 from t0 to t1 and returns the final state.
func (ad *Adaptive) Integrate(t0, t1 float64, y0 []float64, f Derivatives) ([]float64, error) {
	if err := ad.Start(t0, t1, y0, f); err != nil {
		return nil, err
	}
	for !ad.Done() {
		if _, _, err := ad.Step(); err != nil {
			return nil, err
		}
	}
	return ad.State(), nil
}
