// Command emc runs an ensemble Monte Carlo (or parabolic-MEP) device
// simulation from a YAML configuration file, emitting JSON-lines snapshots.
// Deliberately thinner than edp1096-toy-spice/cmd/main.go, whose netlist
// parsing and Gnuplot-equivalent output formatting have no analogue here:
// this entrypoint only wires load -> run -> emit.
package main

import (
	"flag"
	"log"

	"github.com/sirupsen/logrus"

	"github.com/jmsellier/archimedes-go/pkg/boundary"
	"github.com/jmsellier/archimedes-go/pkg/config"
	"github.com/jmsellier/archimedes-go/pkg/simulation"
	"github.com/jmsellier/archimedes-go/pkg/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config overriding the embedded defaults")
	outPath := flag.String("out", "snapshots.jsonl", "path to write JSON-lines snapshots to")
	leftContact := flag.Float64("left-voltage", 0.0, "ohmic voltage applied to the left edge")
	rightContact := flag.Float64("right-voltage", 0.0, "ohmic voltage applied to the right edge")
	leftElectronDensity := flag.Float64("left-electron-density", 0.0, "electron density (1/m^3) the left ohmic contact injects toward")
	leftHoleDensity := flag.Float64("left-hole-density", 0.0, "hole density (1/m^3) the left ohmic contact injects toward")
	rightElectronDensity := flag.Float64("right-electron-density", 0.0, "electron density (1/m^3) the right ohmic contact injects toward")
	rightHoleDensity := flag.Float64("right-hole-density", 0.0, "hole density (1/m^3) the right ohmic contact injects toward")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("emc: loading config: %v", err)
	}

	b := boundary.New(cfg.Mesh.NX, cfg.Mesh.NY)
	if err := b.AddSegment(boundary.Segment{
		Dir: boundary.Left, Kind: boundary.Ohmic, Lo: 0, Hi: cfg.Mesh.NY, AppliedVoltage: *leftContact,
		ElectronDensity: *leftElectronDensity, HoleDensity: *leftHoleDensity,
	}); err != nil {
		log.Fatalf("emc: configuring left contact: %v", err)
	}
	if err := b.AddSegment(boundary.Segment{
		Dir: boundary.Right, Kind: boundary.Ohmic, Lo: 0, Hi: cfg.Mesh.NY, AppliedVoltage: *rightContact,
		ElectronDensity: *rightElectronDensity, HoleDensity: *rightHoleDensity,
	}); err != nil {
		log.Fatalf("emc: configuring right contact: %v", err)
	}

	sink, err := snapshot.NewJSONLinesSink(*outPath)
	if err != nil {
		log.Fatalf("emc: opening snapshot sink: %v", err)
	}
	defer sink.Close()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	sim, err := simulation.New(cfg, b, sink, logger)
	if err != nil {
		log.Fatalf("emc: building simulation: %v", err)
	}

	if err := sim.Run(); err != nil {
		log.Fatalf("emc: run failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"steps":          cfg.Driver.NumSteps,
		"live_particles": sim.Pool.Live(),
		"dropped":        sim.Pool.Dropped,
	}).Info("simulation complete")
}
