// Package driver implements the EMC macro-timestep loop: drift every live
// particle to the macro barrier time (scattering along the way), replenish
// ohmic contacts, and report what happened — the same "advance to barrier
// time, handle the exceptional cases, commit state" shape as
// edp1096-toy-spice/pkg/analysis/tran.go's Transient.Execute, generalized
// from a single circuit state vector to a whole particle ensemble.
package driver

import (
	"math/rand/v2"

	"github.com/jmsellier/archimedes-go/pkg/boundary"
	"github.com/jmsellier/archimedes-go/pkg/material"
	"github.com/jmsellier/archimedes-go/pkg/mesh"
	"github.com/jmsellier/archimedes-go/pkg/particle"
	"github.com/jmsellier/archimedes-go/pkg/snapshot"
	"github.com/jmsellier/archimedes-go/pkg/transport"
)

// ShardSize is the number of particles per independent RNG sub-stream, the
// granularity at which the pool's deterministic PCG split is documented and
// consumed; particle slot index/ShardSize selects the shard.
const ShardSize = 4096

// StepStats summarizes one Step call for logging/diagnostics. Absorbed
// counts particles removed by an ohmic/Schottky contact; Emitted counts
// particles that left through a vacuum boundary (logged separately to
// Sink.EmitParticle); Injected counts particles spawned at ohmic contacts to
// restore their prescribed carrier density.
type StepStats struct {
	Absorbed    int
	Emitted     int
	Injected    int
	SelfScatter int
	RealScatter int
}

// EMCDriver owns the per-valley rate tables and band parameters for one
// material and steps the whole particle pool across a macro-timestep.
type EMCDriver struct {
	Mat      material.Material
	Model    transport.BandModel
	Tables   []*material.RateTable
	Mesh     *mesh.Mesh
	Boundary *boundary.Model

	SuperParticleWeight float64
	LatticeTempK        float64
	Sink                snapshot.Sink

	bandParams []transport.BandParams
	rootSeed   uint64
	shards     map[uint64]*rand.Rand
}

// New builds a driver for mat using the already-built rate tables (one per
// valley, see material.BuildRateTables), the selected dispersion model, and
// a root RNG seed from which per-shard streams are split deterministically.
// superParticleWeight and latticeTempK parameterize contact injection
// (Inject); sink receives emitted-particle events logged from Step (may be
// nil to disable emission logging).
func New(mat material.Material, model transport.BandModel, tables []*material.RateTable, m *mesh.Mesh, b *boundary.Model, superParticleWeight, latticeTempK float64, rootSeed uint64, sink snapshot.Sink) *EMCDriver {
	bp := make([]transport.BandParams, mat.NumValleys)
	for v := 0; v < mat.NumValleys; v++ {
		bp[v] = transport.BandParams{
			Mass:     mat.Valleys[v].Mass,
			Alpha:    mat.Valleys[v].Alpha,
			Affinity: mat.Affinity,
			Emin:     mat.Valleys[v].Emin,
			CBFull:   mat.CBFull,
		}
	}
	return &EMCDriver{
		Mat: mat, Model: model, Tables: tables, Mesh: m, Boundary: b,
		SuperParticleWeight: superParticleWeight, LatticeTempK: latticeTempK, Sink: sink,
		bandParams: bp, rootSeed: rootSeed, shards: make(map[uint64]*rand.Rand),
	}
}

// shardFor returns (creating if needed) the deterministic RNG stream for the
// shard owning particle slot idx, so reruns with the same pool layout draw
// bit-identical sequences regardless of step ordering within a shard.
func (d *EMCDriver) shardFor(slotIdx int) *rand.Rand {
	shardIdx := uint64(slotIdx/ShardSize) + 1 // +1: shard 0 is reserved for pool-level sampling
	r, ok := d.shards[shardIdx]
	if !ok {
		r = particle.ShardRNG(d.rootSeed, shardIdx)
		d.shards[shardIdx] = r
	}
	return r
}

// Step advances every live particle in pool from simTime to simTime+dt:
// repeatedly drift to the next scattering deadline (or dt, whichever comes
// first) and scatter, absorbing/emitting particles that leave through a
// contact or vacuum boundary, then replenishes ohmic contacts (spec step:
// inject after drift/scatter so injected particles start their first free
// flight on the following macro-step). Particles whose NextScatter deadline
// is still in the past when a macro-step starts (e.g. newly injected) scatter
// at the start of the step, before their first drift.
func (d *EMCDriver) Step(pool *particle.Pool, simTime, dt float64) StepStats {
	var stats StepStats
	barrier := simTime + dt

	pool.ForEachLive(func(idx int, pt *particle.Particle) {
		shard := d.shardFor(idx)
		t := simTime

		for t < barrier {
			if pt.NextScatter <= t {
				kind := transport.Scatter(pt, d.Mat, d.Tables, shard, t)
				if kind == material.MechSelfScatter {
					stats.SelfScatter++
				} else {
					stats.RealScatter++
				}
			}
			next := pt.NextScatter
			if next > barrier {
				next = barrier
			}
			segDt := next - t
			if segDt <= 0 {
				break
			}

			outcome, residual := transport.Drift(pt, d.bandParams[pt.Valley], d.Model, d.Mesh, d.Boundary, segDt)
			switch outcome {
			case transport.Absorbed:
				pool.Remove(idx)
				stats.Absorbed++
				return
			case transport.Emitted:
				pool.Remove(idx)
				stats.Emitted++
				if d.Sink != nil {
					_ = d.Sink.EmitParticle(snapshot.EmittedParticle{ID: idx, TEmit: t + segDt, ResidualEnergy: residual})
				}
				return
			}
			t += segDt
		}
	})

	stats.Injected = d.Inject(pool, barrier)
	return stats
}

// Inject restores each ohmic contact segment's prescribed carrier density by
// spawning new super-particles at its boundary nodes, the per-macro-step
// replenishment original_source/src/drift.h's inject_particles performs
// against the node's currently accumulated density. deficit particles are
// spawned per species per node, each placed by mesh.RandomPointIn and given a
// thermal-equilibrium wavevector via particle.InjectionSample; injectTime
// seeds the spawned particle's first free-flight deadline so it starts
// drifting on the next Step call.
func (d *EMCDriver) Inject(pool *particle.Pool, injectTime float64) int {
	cellVolume := d.Mesh.DX * d.Mesh.DY
	if cellVolume <= 0 || d.SuperParticleWeight <= 0 {
		return 0
	}
	rng := pool.RNG()

	injected := 0
	for _, dir := range [4]boundary.Direction{boundary.Left, boundary.Right, boundary.Bottom, boundary.Top} {
		maxIdx := d.Boundary.NY
		if dir == boundary.Bottom || dir == boundary.Top {
			maxIdx = d.Boundary.NX
		}
		for idx := 0; idx <= maxIdx; idx++ {
			seg := d.Boundary.At(dir, idx)
			if !seg.IsOhmic() {
				continue
			}
			i, j := boundary.NodeOn(dir, idx, d.Mesh.NX, d.Mesh.NY)
			node, err := d.Mesh.NodeAt(i, j)
			if err != nil {
				continue
			}
			injected += d.injectSpecies(pool, rng, node, i, j, particle.Electron, seg.ElectronDensity, node.Electron.Density, cellVolume, injectTime)
			injected += d.injectSpecies(pool, rng, node, i, j, particle.Hole, seg.HoleDensity, node.Hole.Density, cellVolume, injectTime)
		}
	}
	return injected
}

// injectSpecies spawns enough super-particles of species at node (i, j) to
// close the gap between targetDensity and currentDensity, converting the
// density deficit to a particle count via the same count*weight/cellVolume
// relation accumulate.Accumulator.Finalize uses in reverse.
func (d *EMCDriver) injectSpecies(pool *particle.Pool, rng *rand.Rand, node *mesh.Node, i, j int, species particle.Species, targetDensity, currentDensity, cellVolume, injectTime float64) int {
	deficit := (targetDensity - currentDensity) * cellVolume / d.SuperParticleWeight
	n := int(deficit)
	if n <= 0 {
		return 0
	}

	spawned := 0
	for k := 0; k < n; k++ {
		x, y := d.Mesh.RandomPointIn(i, j, rng)
		kx, ky := particle.InjectionSample(rng, d.Mat, 0, d.LatticeTempK)
		idx := pool.Spawn(particle.Particle{Species: species, Valley: 0, X: x, Y: y, Kx: kx, Ky: ky, NextScatter: injectTime})
		if idx < 0 {
			break
		}
		spawned++
	}
	return spawned
}
