package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsellier/archimedes-go/pkg/mesh"
)

func TestFaradayStepIsNoopWhenDisabled(t *testing.T) {
	m, err := mesh.New(4, 4, 1e-8, 1e-8)
	require.NoError(t, err)
	n, _ := m.NodeAt(2, 2)
	n.Electron = mesh.CarrierInfo{Density: 1e24, Velocity: [2]float64{1e5, 0}}

	solver := NewFaradaySolver(false)
	solver.Step(m, 1e-15)

	n, _ = m.NodeAt(2, 2)
	assert.Equal(t, 0.0, n.MagneticField)
}

func TestFaradayStepUpdatesMagneticFieldFromCurrentGradient(t *testing.T) {
	m, err := mesh.New(4, 4, 1e-8, 1e-8)
	require.NoError(t, err)
	m.ForEachNode(func(n *mesh.Node) {
		n.Electron = mesh.CarrierInfo{Density: 1e24 * float64(n.I+1), Velocity: [2]float64{0, 1e5}}
	})

	solver := NewFaradaySolver(true)
	solver.Step(m, 1e-15)

	n, _ := m.NodeAt(2, 2)
	assert.NotEqual(t, 0.0, n.MagneticField)
}
