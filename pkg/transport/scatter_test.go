package transport

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/material"
	"github.com/jmsellier/archimedes-go/pkg/particle"
)

func TestSelfScatterLeavesEnergyUnchanged(t *testing.T) {
	si, _ := material.Lookup(material.Silicon)
	tables, err := material.BuildRateTables(si, material.BuildOptions{
		LatticeTempK: 300, DIME: 200, DeltaEps: 0.005 * consts.Charge,
		AcousticEnabled: false, OpticalEnabled: false, ImpurityEnabled: false,
	})
	require.NoError(t, err)

	pt := &particle.Particle{Kx: 1e7, Ky: 0}
	eps0 := kineticEnergy(pt.Kx, pt.Ky, si.Valleys[0])

	// With every mechanism family disabled (and Si carrying no intervalley
	// channels) the table holds only the self-scattering column, so every
	// draw selects self-scatter.
	shard := rand.New(rand.NewPCG(1, 2))
	kind := Scatter(pt, si, tables, shard, 0)
	assert.Equal(t, material.MechSelfScatter, kind)

	epsAfter := kineticEnergy(pt.Kx, pt.Ky, si.Valleys[0])
	assert.GreaterOrEqual(t, epsAfter, 0.0)
	assert.Equal(t, eps0, epsAfter)
}

func TestScatterRedrawsNextScatterDeadline(t *testing.T) {
	si, _ := material.Lookup(material.Silicon)
	tables, err := material.BuildRateTables(si, material.BuildOptions{
		LatticeTempK: 300, DIME: 200, DeltaEps: 0.005 * consts.Charge,
		AcousticEnabled: true, OpticalEnabled: true, ImpurityEnabled: true,
	})
	require.NoError(t, err)

	pt := &particle.Particle{Kx: 5e8, Ky: 0}
	shard := rand.New(rand.NewPCG(7, 11))
	Scatter(pt, si, tables, shard, 10.0)
	assert.Greater(t, pt.NextScatter, 10.0)
}

func TestDrawFreeFlightIsPositiveAndFinite(t *testing.T) {
	shard := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 100; i++ {
		dt := drawFreeFlight(shard, 1e13)
		assert.Greater(t, dt, 0.0)
	}
}

func TestResampleIsotropicPreservesRequestedEnergy(t *testing.T) {
	si, _ := material.Lookup(material.Silicon)
	pt := &particle.Particle{}
	shard := rand.New(rand.NewPCG(9, 9))

	targetEps := 0.05 * consts.Charge
	resampleIsotropic(pt, si, 0, targetEps, shard)

	gotEps := kineticEnergy(pt.Kx, pt.Ky, si.Valleys[0])
	assert.InDelta(t, targetEps, gotEps, targetEps*1e-6+1e-30)
}

func TestResamplePolarOpticalPreservesRequestedEnergy(t *testing.T) {
	gaas, _ := material.Lookup(material.GaAs)
	pt := &particle.Particle{Kx: 2e8, Ky: 0}
	shard := rand.New(rand.NewPCG(5, 5))

	targetEps := 0.03 * consts.Charge
	resamplePolarOptical(pt, gaas, 0, 0.05*consts.Charge, targetEps, shard)

	gotEps := kineticEnergy(pt.Kx, pt.Ky, gaas.Valleys[0])
	assert.InDelta(t, targetEps, gotEps, targetEps*1e-6+1e-30)
}

func TestFrohlichCosThetaStaysInRange(t *testing.T) {
	shard := rand.New(rand.NewPCG(2, 2))
	for i := 0; i < 200; i++ {
		c := frohlichCosTheta(1e8, 1.2e8, shard.Float64())
		assert.GreaterOrEqual(t, c, -1.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestBrooksHerringCosThetaFavorsForwardScatteringUnderWeakScreening(t *testing.T) {
	shard := rand.New(rand.NewPCG(4, 4))
	k := 3e8
	weakScreening := k * k * 1e-4 // q0^2 much smaller than k^2
	var sum float64
	const n = 2000
	for i := 0; i < n; i++ {
		sum += brooksHerringCosTheta(k, weakScreening, shard.Float64())
	}
	mean := sum / n
	assert.Greater(t, mean, 0.3, "weak screening should bias strongly toward small-angle (cosTheta near 1) scattering")
}

func TestBrooksHerringCosThetaDegenerateFallsBackToIsotropic(t *testing.T) {
	shard := rand.New(rand.NewPCG(6, 6))
	c := brooksHerringCosTheta(0, 1e16, shard.Float64())
	assert.GreaterOrEqual(t, c, -1.0)
	assert.LessOrEqual(t, c, 1.0)
}
