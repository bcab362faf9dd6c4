package numsim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChristopherRabotin/ode"
	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/num/quat"
)

/* Handles the combined orbital and attitude propagation. */

// AttitudeProvider seeds the initial orientation of the satellite.
type AttitudeProvider interface {
	InitialAttitude(dt time.Time, o Orbit) (quat.Number, error)
}

// FixedAttitude is an AttitudeProvider returning a constant orientation.
type FixedAttitude quat.Number

// InitialAttitude implements the AttitudeProvider interface.
func (f FixedAttitude) InitialAttitude(dt time.Time, o Orbit) (quat.Number, error) {
	return Unit(quat.Number(f)), nil
}

// Wilcox propagates the unit quaternion Qi through the small rotation vector
// theta accumulated over the step dt. The spin direction is considered
// constant over the step; when it is not, an error of commutation appears
// and Edwards should be used instead.
func Wilcox(Qi quat.Number, theta []float64, dt float64) quat.Number {
	normSq := dot(theta, theta)
	dQ := quat.Number{
		Real: 1 - normSq/8,
		Imag: theta[0] / 2 * (1 - normSq/24),
		Jmag: theta[1] / 2 * (1 - normSq/24),
		Kmag: theta[2] / 2 * (1 - normSq/24),
	}
	return Unit(quat.Mul(Qi, dQ))
}

// Edwards adds the commutation correction to the Wilcox update for steps
// where the spin direction varies. When spin and theta are collinear the
// correction vanishes and both algorithms coincide.
func Edwards(Qi quat.Number, theta, spin []float64, dt float64) quat.Number {
	commutation := cross(
		[]float64{spin[0] / 2, spin[1] / 2, spin[2] / 2},
		[]float64{theta[0] / 2, theta[1] / 2, theta[2] / 2})
	normSq := dot(theta, theta)
	factor := (1 - normSq/24) / 2
	dQ := quat.Number{
		Real: 1 - normSq/8,
		Imag: theta[0]*factor + commutation[0]/12,
		Jmag: theta[1]*factor + commutation[1]/12,
		Kmag: theta[2]*factor + commutation[2]/12,
	}
	return Unit(quat.Mul(Qi, dQ))
}

// InitialState builds the first snapshot of a run, seeding the orientation
// from the provider and a zero accumulated rotation vector.
func InitialState(dt time.Time, o Orbit, provider AttitudeProvider, spin, rotAcc []float64, mass float64) (SpacecraftState, error) {
	q, err := provider.InitialAttitude(dt, o)
	if err != nil {
		return SpacecraftState{}, err
	}
	secondary := make([]float64, SecondaryDim)
	if err = InjectState(secondary, Spin, spin); err != nil {
		return SpacecraftState{}, err
	}
	att := AttitudeState{Rotation: Unit(q), Spin: spin, RotAcc: rotAcc}
	additional := map[string][]float64{RotAccKey: rotAcc, SecondaryKey: secondary}
	return NewSpacecraftState(dt, o, att, mass, additional), nil
}

// Propagation advances the satellite state step by step: each outer step
// integrates the combined orbital and secondary state vector (one adaptive
// step, or one fixed RK4 step when FixedStep is set), then derives the new
// attitude quaternion from the integrated angular data and rebuilds the
// snapshot.
type Propagation struct {
	Forces    Derivatives // orbital force model aggregator f(t, y)
	Secondary SecondaryEquations
	Control   *StepSizeControl
	// UseEdwards selects the commutation corrected quaternion update for
	// runs where the spin direction varies within a step.
	UseEdwards bool
	// FixedStep, when positive, integrates with the fixed step RK4 instead
	// of the adaptive stepper.
	FixedStep time.Duration

	StartDT, StopDT time.Time

	current   atomic.Pointer[SpacecraftState]
	integ     *Adaptive
	currentDT time.Time // fixed step bookkeeping, advanced in Stop
	failure   error
	histChan chan SpacecraftState
	histOnce sync.Once
	wg       sync.WaitGroup
	logger   kitlog.Logger
}

// NewPropagation returns a propagation of the given initial state until the
// stop date. The logger may be nil. If the export configuration is not
// useless, all propagated states are streamed to it.
func NewPropagation(initial SpacecraftState, stop time.Time, forces Derivatives, torque RotAccProvider, control *StepSizeControl, conf ExportConfig, logger kitlog.Logger) *Propagation {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	p := &Propagation{
		Forces:    forces,
		Secondary: SecondaryEquations{Provider: torque},
		Control:   control,
		StartDT:   initial.DT,
		StopDT:    stop,
		logger:    logger,
	}
	p.integ = NewAdaptive(control, Fehlberg45())
	p.integ.MainSetDimension = PrimaryDim
	p.current.Store(&initial)
	if !conf.IsUseless() {
		p.histChan = make(chan SpacecraftState, 1000) // a 1k entry buffer
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			StreamStates(conf, p.histChan)
		}()
		p.histChan <- initial
	}
	if stop.Before(initial.DT) {
		p.logger.Log("level", "warning", "subsys", "astro", "message", "no end date")
	}
	return p
}

// SetMetrics mirrors the stepper statistics to the given collector.
func (p *Propagation) SetMetrics(m *StepMetrics) { p.integ.Metrics = m }

// CurrentState returns the latest fully propagated snapshot. It is safe for
// concurrent readers: the cell holds a whole value replaced after each step,
// never a partially updated state.
func (p *Propagation) CurrentState() SpacecraftState {
	return *p.current.Load()
}

func (p *Propagation) setCurrentState(s SpacecraftState) {
	p.current.Store(&s)
	if p.histChan != nil {
		p.histChan <- s
	}
}

// Stats returns the statistics of the adaptive stepper.
func (p *Propagation) Stats() Stats { return p.integ.Stats() }

// LogStatus reports the status of the propagation.
func (p *Propagation) LogStatus() {
	s := p.CurrentState()
	p.logger.Log("level", "info", "subsys", "astro", "date", s.DT, "r(km)", s.Orbit.RNorm(), "spin(rad/s)", norm(s.Attitude.Spin))
}

// Func returns the derivative of the combined state vector: the orbital
// force model over the primary part, the secondary equations over the rest.
// It also implements the ode.Integrable interface for the fixed step mode.
func (p *Propagation) Func(t float64, y []float64) []float64 {
	fDot := make([]float64, PrimaryDim+SecondaryDim)
	copy(fDot[:PrimaryDim], p.Forces(t, y[:PrimaryDim]))
	copy(fDot[PrimaryDim:], p.Secondary.Derivatives(t, y[PrimaryDim:]))
	return fDot
}

// assemble flattens a snapshot into the combined state vector.
func assemble(s SpacecraftState) ([]float64, error) {
	y := make([]float64, PrimaryDim+SecondaryDim)
	R, V := s.Orbit.RV()
	copy(y[:3], R)
	copy(y[3:PrimaryDim], V)
	secondary, err := s.AdditionalState(SecondaryKey)
	if err != nil {
		return nil, err
	}
	if len(secondary) != SecondaryDim {
		return nil, DimensionMismatchError{SecondaryDim, len(secondary)}
	}
	copy(y[PrimaryDim:], secondary)
	return y, nil
}

// reassemble builds the integrated snapshot at date dt (t elapsed seconds):
// orbit and secondary states come from the integrated vector, the attitude
// is still the pre-step one and must be propagated separately.
func (p *Propagation) reassemble(pre SpacecraftState, dt time.Time, t float64, y []float64) (SpacecraftState, error) {
	if len(y) != PrimaryDim+SecondaryDim {
		return SpacecraftState{}, DimensionMismatchError{PrimaryDim + SecondaryDim, len(y)}
	}
	orbit := NewOrbitFromRV(y[0:3], y[3:PrimaryDim])
	additional := pre.AdditionalStates()
	additional[SecondaryKey] = append([]float64(nil), y[PrimaryDim:]...)
	additional[RotAccKey] = p.Secondary.Provider.RotAcc(t)
	return NewSpacecraftState(dt, orbit, pre.Attitude, pre.Mass, additional), nil
}

// PropagateAttitude derives the attitude of the integrated state. The
// orbital and secondary states of integratedState are already advanced while
// its attitude is still the one of currentState; the returned snapshot
// replaces only the attitude component.
func (p *Propagation) PropagateAttitude(currentState, integratedState SpacecraftState) (SpacecraftState, error) {
	rotAcc, err := integratedState.AdditionalState(RotAccKey)
	if err != nil {
		return SpacecraftState{}, err
	}
	postSecondary, err := integratedState.AdditionalState(SecondaryKey)
	if err != nil {
		return SpacecraftState{}, err
	}
	spin, err := ExtractState(postSecondary, Spin)
	if err != nil {
		return SpacecraftState{}, err
	}
	thetaTdt, err := ExtractState(postSecondary, Theta)
	if err != nil {
		return SpacecraftState{}, err
	}
	preSecondary, err := currentState.AdditionalState(SecondaryKey)
	if err != nil {
		return SpacecraftState{}, err
	}
	thetaT, err := ExtractState(preSecondary, Theta)
	if err != nil {
		return SpacecraftState{}, err
	}

	// dTheta = theta(t+dt) - theta(t), the rotation over the step.
	dTheta := []float64{thetaTdt[0] - thetaT[0], thetaTdt[1] - thetaT[1], thetaTdt[2] - thetaT[2]}
	dt := integratedState.DT.Sub(currentState.DT).Seconds()

	Qi := currentState.Attitude.Rotation
	var Qj quat.Number
	if p.UseEdwards {
		Qj = Edwards(Qi, dTheta, spin, dt)
	} else {
		Qj = Wilcox(Qi, dTheta, dt)
	}

	att := AttitudeState{Rotation: Unit(Qj), Spin: spin, RotAcc: rotAcc}
	return integratedState.WithAttitude(att), nil
}

// PropagateStep performs one outer step: a single adaptive step of the
// combined state vector followed by the attitude propagation. Any failure is
// fatal to the run; the current state is left at the last valid snapshot.
func (p *Propagation) PropagateStep() error {
	pre := p.CurrentState()
	t, y, err := p.integ.Step()
	if err == nil {
		dt := p.StartDT.Add(time.Duration(t * float64(time.Second)))
		var post, propagated SpacecraftState
		if post, err = p.reassemble(pre, dt, t, y); err == nil {
			if propagated, err = p.PropagateAttitude(pre, post); err == nil {
				p.setCurrentState(propagated)
				return nil
			}
		}
	}
	p.logger.Log("level", "critical", "subsys", "astro", "status", "step failed", "dt", pre.DT, "err", err)
	return err
}

// Propagate runs the propagation until the stop date is reached or a step
// fails.
func (p *Propagation) Propagate() error {
	p.LogStatus()
	defer p.LogStatus()
	if p.FixedStep > 0 {
		return p.propagateFixed()
	}

	y0, err := assemble(p.CurrentState())
	if err == nil {
		err = p.integ.Start(0, p.StopDT.Sub(p.StartDT).Seconds(), y0, p.Func)
	}
	if err != nil {
		p.closeHist()
		p.logger.Log("level", "critical", "subsys", "astro", "status", "start failed", "err", err)
		return err
	}
	for !p.integ.Done() {
		if err = p.PropagateStep(); err != nil {
			break
		}
	}
	p.closeHist()
	p.wg.Wait() // Don't return until we're done writing all the files.
	if err == nil {
		stats := p.integ.Stats()
		p.logger.Log("level", "notice", "subsys", "astro", "status", "finished", "steps", stats.Accepted, "rejected", stats.Rejected, "evals", stats.Evaluations)
	}
	return err
}

func (p *Propagation) closeHist() {
	p.histOnce.Do(func() {
		if p.histChan != nil {
			close(p.histChan)
		}
	})
}

/* Fixed step mode, running on the RK4 of the ode package. */

func (p *Propagation) propagateFixed() error {
	p.currentDT = p.StartDT
	p.failure = nil
	ode.NewRK4(0, p.FixedStep.Seconds(), p).Solve()
	p.closeHist()
	p.wg.Wait()
	if p.failure == nil {
		p.logger.Log("level", "notice", "subsys", "astro", "status", "finished", "step", p.FixedStep)
	}
	return p.failure
}

// GetState implements the ode.Integrable interface.
func (p *Propagation) GetState() []float64 {
	y, err := assemble(p.CurrentState())
	if err != nil {
		p.failure = err
		return make([]float64, PrimaryDim+SecondaryDim)
	}
	return y
}

// SetState implements the ode.Integrable interface: it rebuilds the snapshot
// from the integrated vector and propagates the attitude.
func (p *Propagation) SetState(t float64, y []float64) {
	if p.failure != nil {
		return
	}
	pre := p.CurrentState()
	post, err := p.reassemble(pre, p.currentDT, p.currentDT.Sub(p.StartDT).Seconds(), y)
	if err == nil {
		var propagated SpacecraftState
		if propagated, err = p.PropagateAttitude(pre, post); err == nil {
			p.setCurrentState(propagated)
			return
		}
	}
	p.failure = err
	p.logger.Log("level", "critical", "subsys", "astro", "status", "step failed", "dt", pre.DT, "err", err)
}

// Stop implements the ode.Integrable interface.
func (p *Propagation) Stop(t float64) bool {
	if p.failure != nil {
		return true
	}
	p.currentDT = p.currentDT.Add(p.FixedStep)
	return p.currentDT.After(p.StopDT)
}
