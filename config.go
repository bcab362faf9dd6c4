package numsim

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/num/quat"
)

// Config gathers the user provided scenario settings, mapping the TOML file
// read by viper onto the propagation inputs.
type Config struct {
	Start     time.Time
	Duration  time.Duration
	FixedStep time.Duration

	MinStep, MaxStep     float64
	AbsTol, RelTol       float64
	VecAbsTol, VecRelTol []float64
	InitialStep          float64
	UseEdwards           bool

	R, V []float64
	Mass float64

	InitialQ                   quat.Number
	InitialSpin, InitialRotAcc []float64

	Export ExportConfig
}

// LoadConfig reads the scenario TOML file `name` from the given directory.
// A run cannot start without its scenario, so an unreadable file panics.
func LoadConfig(path, name string) Config {
	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(path)
	setConfigDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("%s/%s.toml not found", path, name))
	}

	cfg := Config{
		Start:       v.GetTime("mission.start").UTC(),
		Duration:    v.GetDuration("mission.duration"),
		FixedStep:   v.GetDuration("propagation.fixedstep"),
		MinStep:     v.GetFloat64("propagation.minstep"),
		MaxStep:     v.GetFloat64("propagation.maxstep"),
		AbsTol:      v.GetFloat64("propagation.abstol"),
		RelTol:      v.GetFloat64("propagation.reltol"),
		VecAbsTol:   floatSlice(v, "propagation.vecabstol"),
		VecRelTol:   floatSlice(v, "propagation.vecreltol"),
		InitialStep: v.GetFloat64("propagation.initialstep"),
		UseEdwards:  v.GetBool("propagation.edwards"),
		R:           floatSlice(v, "orbit.r"),
		V:           floatSlice(v, "orbit.v"),
		Mass:        v.GetFloat64("satellite.mass"),
		InitialQ: quat.Number{
			Real: v.GetFloat64("attitude.q0"),
			Imag: v.GetFloat64("attitude.q1"),
			Jmag: v.GetFloat64("attitude.q2"),
			Kmag: v.GetFloat64("attitude.q3"),
		},
		InitialSpin:   floatSlice(v, "attitude.spin"),
		InitialRotAcc: floatSlice(v, "attitude.rotacc"),
		Export: ExportConfig{
			Filename:  v.GetString("export.filename"),
			AsCSV:     v.GetBool("export.csv"),
			Timestamp: v.GetBool("export.timestamp"),
		},
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC()
	}
	return cfg
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("mission.duration", time.Minute)
	v.SetDefault("propagation.minstep", 1e-4)
	v.SetDefault("propagation.maxstep", 10.0)
	v.SetDefault("propagation.abstol", 1e-9)
	v.SetDefault("propagation.reltol", 1e-12)
	v.SetDefault("propagation.initialstep", -1.0)
	v.SetDefault("satellite.mass", 1.04)
	// Default orbit: circular LEO at 575 km of altitude.
	v.SetDefault("orbit.r", []float64{6953.137, 0, 0})
	v.SetDefault("orbit.v", []float64{0, 7.5715, 0})
	v.SetDefault("attitude.q0", 1.0)
	v.SetDefault("attitude.spin", []float64{0, 0, 0})
	v.SetDefault("attitude.rotacc", []float64{0, 0, 0})
	v.SetDefault("export.timestamp", true)
}

func floatSlice(v *viper.Viper, key string) []float64 {
	raw := v.Get(key)
	if raw == nil {
		return nil
	}
	switch vals := raw.(type) {
	case []float64:
		return append([]float64(nil), vals...)
	case []interface{}:
		out := make([]float64, len(vals))
		for i, val := range vals {
			out[i] = cast.ToFloat64(val)
		}
		return out
	}
	return nil
}

// StepControl builds the step size control described by the scenario.
func (cfg Config) StepControl() *StepSizeControl {
	var c *StepSizeControl
	if len(cfg.VecAbsTol) > 0 || len(cfg.VecRelTol) > 0 {
		c = NewVectorStepSizeControl(cfg.MinStep, cfg.MaxStep, cfg.VecAbsTol, cfg.VecRelTol)
	} else {
		c = NewStepSizeControl(cfg.MinStep, cfg.MaxStep, cfg.AbsTol, cfg.RelTol)
	}
	if cfg.InitialStep > 0 {
		c.SetInitialStepSize(cfg.InitialStep)
	}
	return c
}

// InitialState builds the initial snapshot described by the scenario.
func (cfg Config) InitialState() (SpacecraftState, error) {
	return InitialState(cfg.Start, NewOrbitFromRV(cfg.R, cfg.V), FixedAttitude(cfg.InitialQ), cfg.InitialSpin, cfg.InitialRotAcc, cfg.Mass)
}
