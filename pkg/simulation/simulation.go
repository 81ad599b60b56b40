// Package simulation wires every other package into the per-macro-timestep
// control loop: drift/scatter (or the MEP alternative), moment accumulation,
// field re-solve, optional Faraday update, and cadenced snapshot emission.
// The wiring order follows
// edp1096-toy-spice/cmd/main.go's procWithoutPrint sequence (parse -> build
// circuit -> create matrix -> setup devices -> setup analyzer -> execute ->
// print), generalized to (validate config -> build mesh/materials -> build
// pool -> run loop -> emit snapshots).
package simulation

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/accumulate"
	"github.com/jmsellier/archimedes-go/pkg/boundary"
	"github.com/jmsellier/archimedes-go/pkg/config"
	"github.com/jmsellier/archimedes-go/pkg/driver"
	"github.com/jmsellier/archimedes-go/pkg/field"
	"github.com/jmsellier/archimedes-go/pkg/material"
	"github.com/jmsellier/archimedes-go/pkg/mesh"
	"github.com/jmsellier/archimedes-go/pkg/particle"
	"github.com/jmsellier/archimedes-go/pkg/snapshot"
	"github.com/jmsellier/archimedes-go/pkg/transport"
	"github.com/jmsellier/archimedes-go/pkg/util"
)

// Simulation owns every component's instance for one run and drives the
// macro-timestep loop.
type Simulation struct {
	Cfg      *config.Config
	Mat      material.Material
	Mesh     *mesh.Mesh
	Boundary *boundary.Model
	Pool     *particle.Pool
	Driver   *driver.EMCDriver
	Tables   []*material.RateTable

	poisson    *field.PoissonSolver
	direct     *field.DirectSolver
	faraday    *field.FaradaySolver
	accum      *accumulate.Accumulator
	mepElectron *transport.MEPSolver
	mepHole     *transport.MEPSolver

	Sink   snapshot.Sink
	Log    *logrus.Logger

	simTime float64
}

// New builds a Simulation from cfg and a pre-configured boundary model (the
// boundary segmentation is device-layout-specific and is supplied by the
// caller rather than derived from cfg).
func New(cfg *config.Config, b *boundary.Model, sink snapshot.Sink, log *logrus.Logger) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}

	base, ok := material.Lookup(materialIDFromName(cfg.Material.Base))
	if !ok {
		return nil, fmt.Errorf("simulation: unknown base material %q", cfg.Material.Base)
	}
	mat := base
	if cfg.Material.AlloyWith != "" {
		alloy, ok := material.Lookup(materialIDFromName(cfg.Material.AlloyWith))
		if !ok {
			return nil, fmt.Errorf("simulation: unknown alloy material %q", cfg.Material.AlloyWith)
		}
		mat = material.Blend(base, alloy, cfg.Material.MoleFraction)
	}

	tables, err := material.BuildRateTables(mat, material.BuildOptions{
		LatticeTempK:    cfg.Material.LatticeTempK,
		ImpurityConc:    cfg.Material.ImpurityConc,
		DIME:            cfg.Scattering.DIME,
		DeltaEps:        cfg.Scattering.DeltaEpsEV * consts.Charge,
		GammaHeadroom:   cfg.Scattering.GammaHeadroom,
		AcousticEnabled: cfg.Scattering.AcousticEnabled,
		OpticalEnabled:  cfg.Scattering.OpticalEnabled,
		ImpurityEnabled: cfg.Scattering.ImpurityEnabled,
	})
	if err != nil {
		return nil, err
	}

	m, err := mesh.New(cfg.Mesh.NX, cfg.Mesh.NY, cfg.Mesh.DX, cfg.Mesh.DY)
	if err != nil {
		return nil, err
	}

	pool := particle.NewPool(cfg.Particle.PoolCapacity, cfg.Particle.RootSeed)

	model := bandModelFromName(cfg.Scattering.BandModel)
	drv := driver.New(mat, model, tables, m, b, cfg.Particle.SuperParticleWeight, cfg.Material.LatticeTempK, cfg.Particle.RootSeed, sink)

	sim := &Simulation{
		Cfg: cfg, Mat: mat, Mesh: m, Boundary: b, Pool: pool, Driver: drv, Tables: tables,
		poisson: field.NewPoissonSolver(cfg.Field.SOROmega, cfg.Field.SORMaxIter, cfg.Field.SORTolerance),
		faraday: field.NewFaradaySolver(cfg.Field.FaradayEnabled),
		accum:   accumulate.New(m, cfg.Particle.SuperParticleWeight),
		Sink:    sink,
		Log:     log,
	}

	if cfg.Field.VerifyWithDirectSolver {
		ds, err := field.NewDirectSolver(cfg.Mesh.NX, cfg.Mesh.NY)
		if err != nil {
			return nil, err
		}
		sim.direct = ds
	}

	if cfg.MEP.Enabled {
		sim.mepElectron = transport.NewMEPSolver(0, cfg.MEP.TauP, cfg.MEP.TauW)
		sim.mepElectron.RelaxationSubsteps = cfg.MEP.RelaxationSubsteps
		sim.mepElectron.ImplicitRelaxation = cfg.MEP.ImplicitRelaxation
		sim.mepHole = transport.NewMEPSolver(0, cfg.MEP.TauP, cfg.MEP.TauW)
		sim.mepHole.RelaxationSubsteps = cfg.MEP.RelaxationSubsteps
		sim.mepHole.ImplicitRelaxation = cfg.MEP.ImplicitRelaxation
	}

	return sim, nil
}

func materialIDFromName(name string) material.ID {
	switch name {
	case "Si":
		return material.Silicon
	case "GaAs":
		return material.GaAs
	case "AlAs":
		return material.AlAs
	case "InP":
		return material.InP
	case "InAs":
		return material.InAs
	default:
		return material.ID(-1) // not registered: Lookup reports !ok
	}
}

func bandModelFromName(name string) transport.BandModel {
	switch name {
	case "kane":
		return transport.Kane
	case "full_band":
		return transport.FullBand
	default:
		return transport.Parabolic
	}
}

// epsAt returns the node's material static permittivity times vacuum
// permittivity; a single-material mesh reduces this to a constant, but the
// hook stays per-node so a future multi-material mesh needs no solver change.
func (s *Simulation) epsAt(i, j int) float64 {
	return s.Mat.EpsStatic * consts.VacuumPermittivity
}

// Run executes Cfg.Driver.NumSteps macro-timesteps: drift/scatter (or MEP
// relaxation), moment accumulation, field re-solve, optional Faraday update,
// and cadenced snapshot emission.
func (s *Simulation) Run() error {
	equilibriumEnergy := 1.5 * consts.Boltzmann * s.Cfg.Material.LatticeTempK

	for step := 0; step < s.Cfg.Driver.NumSteps; step++ {
		mediaDue := s.Cfg.Driver.MediaWindow <= 0 || (step+1)%s.Cfg.Driver.MediaWindow == 0 || step == s.Cfg.Driver.NumSteps-1

		if s.Cfg.MEP.Enabled {
			s.mepElectron.Step(s.Mesh, s.Boundary, s.Mat, transport.Electrons, equilibriumEnergy, s.Cfg.Material.LatticeTempK, s.Cfg.Driver.DT)
			s.mepHole.Step(s.Mesh, s.Boundary, s.Mat, transport.Holes, equilibriumEnergy, s.Cfg.Material.LatticeTempK, s.Cfg.Driver.DT)
		} else {
			stats := s.Driver.Step(s.Pool, s.simTime, s.Cfg.Driver.DT)
			if stats.Absorbed > 0 || stats.Emitted > 0 || stats.Injected > 0 {
				s.Log.WithFields(logrus.Fields{
					"step": step, "absorbed": stats.Absorbed, "emitted": stats.Emitted, "injected": stats.Injected,
				}).Debug("particles crossed a boundary")
			}

			// Deposit runs every macro-step regardless of the MEDIA cadence so
			// the accumulator's running sums reflect every sampled particle
			// state; only the moment-finalize/field-resolve pass below is
			// gated to the reporting window.
			s.Pool.ForEachLive(func(idx int, pt *particle.Particle) {
				vx, vy := groupVelocity(s, pt)
				energy := kineticEnergyOf(s, pt)
				s.accum.Deposit(pt, vx, vy, energy)
			})

			if mediaDue {
				if err := s.accum.Finalize(); err != nil {
					return err
				}
			}
		}

		if mediaDue {
			if err := s.poisson.Solve(s.Mesh, s.Boundary, s.epsAt); err != nil {
				s.Log.WithFields(logrus.Fields{"step": step, "residual": s.poisson.LastResidual}).Warn("poisson solve did not converge")
			}
			if s.direct != nil {
				s.direct.Clear()
				s.direct.Stamp(s.Mesh, s.Boundary, s.epsAt, nil)
				check, err := mesh.New(s.Mesh.NX, s.Mesh.NY, s.Mesh.DX, s.Mesh.DY)
				if err == nil {
					err = s.direct.Solve(check)
				}
				if err != nil {
					s.Log.WithError(err).Warn("direct solver verification pass failed")
				} else if delta, err := field.MaxPotentialDelta(s.Mesh, check); err == nil {
					s.Log.WithFields(logrus.Fields{"step": step, "max_delta": delta}).Debug("direct solver cross-check")
				}
			}
			s.faraday.Step(s.Mesh, s.Cfg.Driver.DT)
		}

		s.simTime += s.Cfg.Driver.DT

		if s.Sink != nil && s.Cfg.Snapshot.EveryNSteps > 0 && step%s.Cfg.Snapshot.EveryNSteps == 0 {
			snap := snapshot.FromMesh(s.Mesh, step, s.simTime)
			snap.PoissonResidual = s.poisson.LastResidual
			snap.PoissonIterations = s.poisson.LastIteration
			snap.LiveParticles = s.Pool.Live()
			snap.DroppedParticles = s.Pool.Dropped
			snap.NumericalResets = s.accum.NumericalResets
			if err := s.Sink.Emit(snap); err != nil {
				return fmt.Errorf("simulation: emitting snapshot: %w", err)
			}
			s.Log.WithFields(logrus.Fields{
				"step":   step,
				"t":      util.FormatValueFactor(s.simTime, "s"),
				"residual": util.FormatValueFactor(s.poisson.LastResidual, "V"),
			}).Info("snapshot emitted")
		}
	}
	return nil
}

func groupVelocity(s *Simulation, pt *particle.Particle) (float64, float64) {
	bp := driverBandParams(s, pt.Valley)
	return transport.VelocityOf(pt.Kx, pt.Ky, bp, s.Driver.Model)
}

func kineticEnergyOf(s *Simulation, pt *particle.Particle) float64 {
	return transport.KineticEnergyOf(pt.Kx, pt.Ky, s.Mat.Valleys[pt.Valley])
}

func driverBandParams(s *Simulation, valley int) transport.BandParams {
	return transport.BandParams{
		Mass:     s.Mat.Valleys[valley].Mass,
		Alpha:    s.Mat.Valleys[valley].Alpha,
		Affinity: s.Mat.Affinity,
		Emin:     s.Mat.Valleys[valley].Emin,
		CBFull:   s.Mat.CBFull,
	}
}
