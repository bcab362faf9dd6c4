package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strings"

	numsim "github.com/JmcRobbie/FS-numerical-simulation"
	kitlog "github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// This code only reads the scenario file and runs the propagation.

const defaultScenario = "~~unset~~"

var (
	scenario    string
	metricsAddr string
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "scenario TOML file")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
}

func main() {
	flag.Parse()
	if scenario == defaultScenario {
		log.Fatal("no scenario provided")
	}
	scenario = strings.Replace(scenario, ".toml", "", 1)
	cfg := numsim.LoadConfig(".", scenario)

	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "scenario", scenario)

	initial, err := cfg.InitialState()
	if err != nil {
		klog.Log("level", "critical", "subsys", "conf", "err", err)
		os.Exit(1)
	}

	prop := numsim.NewPropagation(initial, cfg.Start.Add(cfg.Duration), numsim.TwoBody(numsim.Earthμ), numsim.ConstantRotAcc{cfg.InitialRotAcc[0], cfg.InitialRotAcc[1], cfg.InitialRotAcc[2]}, cfg.StepControl(), cfg.Export, klog)
	prop.UseEdwards = cfg.UseEdwards
	prop.FixedStep = cfg.FixedStep

	if metricsAddr != "" {
		metrics, err := numsim.NewStepMetrics(nil)
		if err != nil {
			klog.Log("level", "critical", "subsys", "metrics", "err", err)
			os.Exit(1)
		}
		prop.SetMetrics(metrics)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				klog.Log("level", "warning", "subsys", "metrics", "err", err)
			}
		}()
	}

	if err := prop.Propagate(); err != nil {
		klog.Log("level", "critical", "subsys", "astro", "status", "aborted", "err", err)
		os.Exit(1)
	}

	final := prop.CurrentState()
	q := final.Attitude.Rotation
	klog.Log("level", "notice", "subsys", "astro", "date", final.DT, "q0", q.Real, "q1", q.Imag, "q2", q.Jmag, "q3", q.Kmag)
}
