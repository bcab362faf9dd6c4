package numsim

import (
	"fmt"
	"os"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const dateFormatFilename = "2006-01-02-15.04.05"

// ExportConfig configures the state history streaming.
type ExportConfig struct {
	Filename  string
	AsCSV     bool
	Timestamp bool
}

// IsUseless returns whether this configuration exports nothing.
func (c ExportConfig) IsUseless() bool {
	return !c.AsCSV || c.Filename == ""
}

func (c ExportConfig) String() string {
	return fmt.Sprintf("ExportConfig[%s; csv: %v]", c.Filename, c.AsCSV)
}

// StreamStates streams all propagated states to a CSV file with a Julian
// date column. It returns when the channel closes and should be started
// before the propagation (as a goroutine).
func StreamStates(conf ExportConfig, stateChan <-chan SpacecraftState) {
	if conf.IsUseless() {
		for range stateChan {
		}
		return
	}
	f := createCSVFile(conf)
	defer f.Close()
	for state := range stateChan {
		R, V := state.Orbit.RV()
		q := state.Attitude.Rotation
		w := state.Attitude.Spin
		line := fmt.Sprintf("\n%s,%.8f,%f,%f,%f,%f,%f,%f,%.12f,%.12f,%.12f,%.12f,%.9f,%.9f,%.9f",
			state.DT.UTC().Format("2006-01-02 15:04:05"), julian.TimeToJD(state.DT),
			R[0], R[1], R[2], V[0], V[1], V[2],
			q.Real, q.Imag, q.Jmag, q.Kmag, w[0], w[1], w[2])
		if _, err := f.WriteString(line); err != nil {
			panic(err)
		}
	}
}

func createCSVFile(conf ExportConfig) *os.File {
	name := conf.Filename
	if conf.Timestamp {
		name += "-" + time.Now().Format(dateFormatFilename)
	}
	f, err := os.Create(name + ".csv")
	if err != nil {
		panic(err)
	}
	if _, err = f.WriteString("time,jd,x,y,z,vx,vy,vz,q0,q1,q2,q3,wx,wy,wz"); err != nil {
		panic(err)
	}
	return f
}
