package accumulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsellier/archimedes-go/pkg/mesh"
	"github.com/jmsellier/archimedes-go/pkg/particle"
)

func TestDepositAndFinalizeProducesExpectedDensity(t *testing.T) {
	m, err := mesh.New(4, 4, 1e-8, 1e-8)
	require.NoError(t, err)

	acc := New(m, 1000.0) // 1000 physical carriers per super-particle

	pt := &particle.Particle{Species: particle.Electron, X: 2e-8, Y: 2e-8}
	for i := 0; i < 10; i++ {
		acc.Deposit(pt, 1e4, 0, 0.03*1.602176634e-19)
	}
	require.NoError(t, acc.Finalize())

	n, err := m.NodeAt(2, 2)
	require.NoError(t, err)
	assert.Greater(t, n.Electron.Density, 0.0)
	assert.InDelta(t, 1e4, n.Electron.Velocity[0], 1.0)
}

func TestFinalizeIncrementsResetsOnEmptyNodes(t *testing.T) {
	m, err := mesh.New(2, 2, 1e-8, 1e-8)
	require.NoError(t, err)
	acc := New(m, 1.0)

	before := acc.NumericalResets
	require.NoError(t, acc.Finalize())
	assert.Greater(t, acc.NumericalResets, before)
}

func TestBilinearDepositSpreadsAcrossFourNodes(t *testing.T) {
	m, err := mesh.New(4, 4, 1e-8, 1e-8)
	require.NoError(t, err)
	acc := New(m, 1.0)

	pt := &particle.Particle{Species: particle.Hole, X: 2.5e-8, Y: 2.5e-8}
	acc.Deposit(pt, 0, 0, 0)
	require.NoError(t, acc.Finalize())

	total := 0.0
	m.ForEachNode(func(n *mesh.Node) { total += n.Hole.Density })
	assert.Greater(t, total, 0.0)
}
