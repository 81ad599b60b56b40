package transport

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/boundary"
	"github.com/jmsellier/archimedes-go/pkg/mesh"
	"github.com/jmsellier/archimedes-go/pkg/particle"
)

func flatMesh(t *testing.T, nx, ny int, ex, ey, bz float64) *mesh.Mesh {
	m, err := mesh.New(nx, ny, 1e-8, 1e-8)
	require.NoError(t, err)
	m.ForEachNode(func(n *mesh.Node) {
		n.EField = [2]float64{ex, ey}
		n.MagneticField = bz
	})
	return m
}

func TestDriftFreeParticleAdvancesAtConstantVelocity(t *testing.T) {
	m := flatMesh(t, 20, 20, 0, 0, 0)
	b := boundary.New(20, 20)
	mat := BandParams{Mass: 0.26 * consts.ElectronMass, Alpha: 0.5 / consts.Charge}

	pt := &particle.Particle{X: 5e-8, Y: 5e-8, Kx: 1e8, Ky: 0}
	vx, _ := velocity(pt.Kx, pt.Ky, mat, Parabolic)

	outcome, _ := Drift(pt, mat, Parabolic, m, b, 1e-15)
	require.Equal(t, Continues, outcome)
	assert.InDelta(t, 5e-8+vx*1e-15, pt.X, 1e-20)
	assert.Equal(t, 1e8, pt.Kx)
}

func TestDriftAcceleratesUnderField(t *testing.T) {
	m := flatMesh(t, 20, 20, 1e7, 0, 0) // 10 MV/m
	b := boundary.New(20, 20)
	mat := BandParams{Mass: 0.26 * consts.ElectronMass, Alpha: 0}

	pt := &particle.Particle{Species: particle.Electron, X: 5e-8, Y: 5e-8, Kx: 0, Ky: 0}
	outcome, _ := Drift(pt, mat, Parabolic, m, b, 1e-15)
	require.Equal(t, Continues, outcome)
	// electron (q=-e) accelerates opposite E; kx should become negative.
	assert.Less(t, pt.Kx, 0.0)
}

func TestDriftInsulatorReflectsAtLeftEdge(t *testing.T) {
	m := flatMesh(t, 20, 20, 0, 0, 0)
	b := boundary.New(20, 20) // defaults to insulator everywhere
	mat := BandParams{Mass: 0.26 * consts.ElectronMass, Alpha: 0}

	pt := &particle.Particle{X: 0.5e-8, Y: 5e-8, Kx: -5e8, Ky: 0}
	outcome, _ := Drift(pt, mat, Parabolic, m, b, 3e-14)
	require.Equal(t, Continues, outcome)
	assert.GreaterOrEqual(t, pt.X, 0.0)
	assert.Greater(t, pt.Kx, 0.0, "reflection should flip the normal wavevector component")
}

func TestDriftOhmicContactAbsorbsParticle(t *testing.T) {
	m := flatMesh(t, 20, 20, 0, 0, 0)
	b := boundary.New(20, 20)
	require.NoError(t, b.AddSegment(boundary.Segment{Dir: boundary.Left, Kind: boundary.Ohmic, Lo: 0, Hi: 20}))
	mat := BandParams{Mass: 0.26 * consts.ElectronMass, Alpha: 0}

	pt := &particle.Particle{X: 0.5e-8, Y: 5e-8, Kx: -5e8, Ky: 0}
	outcome, _ := Drift(pt, mat, Parabolic, m, b, 3e-14)
	assert.Equal(t, Absorbed, outcome)
}

func TestDriftVacuumEmitsWhenBarrierOvercome(t *testing.T) {
	m := flatMesh(t, 20, 20, 0, 0, 0)
	b := boundary.New(20, 20)
	require.NoError(t, b.AddSegment(boundary.Segment{Dir: boundary.Left, Kind: boundary.Vacuum, Lo: 0, Hi: 20}))
	mat := BandParams{Mass: 0.26 * consts.ElectronMass, Alpha: 0, Affinity: 0.01 * consts.Charge, Emin: 0}

	pt := &particle.Particle{X: 0.5e-8, Y: 5e-8, Kx: -5e9, Ky: 0} // large normal k, kinetic energy exceeds the affinity
	outcome, residual := Drift(pt, mat, Parabolic, m, b, 3e-14)
	assert.Equal(t, Emitted, outcome)
	assert.Greater(t, residual, 0.0)
}

func TestDriftVacuumReflectsBelowBarrierEvenWithValleyOffset(t *testing.T) {
	m := flatMesh(t, 20, 20, 0, 0, 0)
	b := boundary.New(20, 20)
	require.NoError(t, b.AddSegment(boundary.Segment{Dir: boundary.Left, Kind: boundary.Vacuum, Lo: 0, Hi: 20}))
	// Small normal kinetic energy, but Emin alone would overcome a zero
	// affinity; a nonzero affinity keeps the barrier intact, exercising the
	// Emin term in the same comparison that decides emission.
	mat := BandParams{Mass: 0.26 * consts.ElectronMass, Alpha: 0, Affinity: 1.0 * consts.Charge, Emin: 0.29 * consts.Charge}

	pt := &particle.Particle{X: 0.5e-8, Y: 5e-8, Kx: -5e8, Ky: 0}
	outcome, _ := Drift(pt, mat, Parabolic, m, b, 3e-14)
	assert.Equal(t, Continues, outcome)
	assert.Greater(t, pt.Kx, 0.0, "reflection should flip the normal wavevector component")
}

func TestKaneVelocityReducesToParabolicAtZeroAlpha(t *testing.T) {
	mat := BandParams{Mass: 0.26 * consts.ElectronMass, Alpha: 0}
	vxP, vyP := velocity(1e8, 2e8, mat, Parabolic)
	vxK, vyK := velocity(1e8, 2e8, mat, Kane)
	assert.InDelta(t, vxP, vxK, 1e-6*math.Abs(vxP)+1e-30)
	assert.InDelta(t, vyP, vyK, 1e-6*math.Abs(vyP)+1e-30)
}
