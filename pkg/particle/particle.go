// Package particle implements the super-particle ensemble: a dense,
// fixed-capacity pool with deterministic, shardable RNG streams so the
// free-flight/scatter loop stays reproducible regardless of how the
// particle set is partitioned across workers.
package particle

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/material"
)

// Species distinguishes electrons and holes; both share the Particle shape,
// with Valley/K interpreted against the species' own Material.Valleys table.
type Species int

const (
	Electron Species = iota
	Hole
)

// Particle is one super-particle: phase-space coordinates, valley
// occupation, and the deadline of its current free flight.
type Particle struct {
	Species Species
	Valley  int // 0-based index into Material.Valleys

	X, Y  float64 // m
	Kx, Ky float64 // wavevector components, 1/m

	NextScatter float64 // absolute simulation time of next scattering event, s

	alive bool
}

// Alive reports whether this slot holds a live particle.
func (p *Particle) Alive() bool { return p.alive }

// Pool is a dense fixed-capacity array of particles with O(1) spawn/remove
// via a free-slot stack, avoiding per-step allocation in the hot
// drift/scatter loop.
type Pool struct {
	slots    []Particle
	free     []int
	liveCount int

	// Dropped counts spawn attempts rejected because the pool was at
	// capacity, the overflow-pressure counter the spec requires be observable.
	Dropped int

	rng *rand.Rand
}

// NewPool allocates a pool of the given capacity, seeded from root via the
// documented PCG sub-stream split: shard index 0 covers pool-level sampling
// (injection, initial placement) and is reserved from the per-particle
// shards pkg/driver's shardFor hands to scattering and free-flight redraws.
func NewPool(capacity int, rootSeed uint64) *Pool {
	slots := make([]Particle, capacity)
	free := make([]int, capacity)
	for i := range free {
		free[i] = capacity - 1 - i
	}
	return &Pool{
		slots: slots,
		free:  free,
		rng:   ShardRNG(rootSeed, 0),
	}
}

// ShardRNG derives an independent PCG stream for shard index idx from a
// single root seed via splitmix64, so any fixed partitioning of particles
// into shards (by index/4096, by worker, whatever the caller chooses)
// reproduces bit-identical draws run after run.
func ShardRNG(rootSeed uint64, idx uint64) *rand.Rand {
	s1 := splitmix64(rootSeed + idx*0x9E3779B97F4A7C15)
	s2 := splitmix64(s1)
	return rand.New(rand.NewPCG(s1, s2))
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z = z ^ (z >> 31)
	return z
}

// Cap returns the pool's fixed capacity.
func (p *Pool) Cap() int { return len(p.slots) }

// Live returns the current number of live particles.
func (p *Pool) Live() int { return p.liveCount }

// At returns the particle at slot index idx, which may or may not be alive.
func (p *Pool) At(idx int) *Particle { return &p.slots[idx] }

// ForEachLive visits every alive particle's slot index.
func (p *Pool) ForEachLive(fn func(idx int, pt *Particle)) {
	for i := range p.slots {
		if p.slots[i].alive {
			fn(i, &p.slots[i])
		}
	}
}

// Spawn allocates a slot for a new particle with the given initial state,
// returning its slot index, or -1 with Dropped incremented if the pool is at
// capacity.
func (p *Pool) Spawn(pt Particle) int {
	if len(p.free) == 0 {
		p.Dropped++
		return -1
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	pt.alive = true
	p.slots[idx] = pt
	p.liveCount++
	return idx
}

// Remove frees slot idx, e.g. when a particle crosses an ohmic/Schottky
// contact and is absorbed.
func (p *Pool) Remove(idx int) {
	if !p.slots[idx].alive {
		return
	}
	p.slots[idx] = Particle{}
	p.free = append(p.free, idx)
	p.liveCount--
}

// InjectionSample draws a thermal-equilibrium wavevector for species/valley
// v of mat at lattice temperature tl, Maxwell-Boltzmann per Cartesian
// component scaled by sqrt(m*kT)/hbar, using shard's own RNG stream.
func InjectionSample(shard *rand.Rand, mat material.Material, v int, tl float64) (kx, ky float64) {
	m := mat.Valleys[v].Mass
	sigma := math.Sqrt(m * consts.Boltzmann * tl) / consts.HBar
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: shard}
	return dist.Rand(), dist.Rand()
}

// RNG exposes the pool's own shard-0 stream for pool-level sampling (e.g.
// choosing an injection location along a contact segment).
func (p *Pool) RNG() *rand.Rand { return p.rng }
