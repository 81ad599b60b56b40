package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidExtent(t *testing.T) {
	_, err := New(0, 10, 1e-9, 1e-9)
	assert.Error(t, err)

	_, err = New(10, 10, 0, 1e-9)
	assert.Error(t, err)
}

func TestNodeAtBoundsChecking(t *testing.T) {
	m, err := New(4, 3, 1e-9, 1e-9)
	require.NoError(t, err)

	n, err := m.NodeAt(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n.I)
	assert.Equal(t, 0, n.J)

	_, err = m.NodeAt(5, 0)
	assert.Error(t, err)
	_, err = m.NodeAt(-1, 0)
	assert.Error(t, err)
}

func TestHaloAccessibleBeyondPhysicalExtent(t *testing.T) {
	m, err := New(4, 3, 1e-9, 1e-9)
	require.NoError(t, err)

	ghost := m.Halo(-2, -2)
	require.NotNil(t, ghost)

	ghost.Potential = 7
	again := m.Halo(-2, -2)
	assert.Equal(t, 7.0, again.Potential)
}

func TestForEachNodeVisitsExactlyPhysicalNodes(t *testing.T) {
	m, err := New(3, 2, 1e-9, 1e-9)
	require.NoError(t, err)

	count := 0
	m.ForEachNode(func(n *Node) { count++ })
	assert.Equal(t, (3+1)*(2+1), count)
}

func TestCellOfClampsAndInterpolates(t *testing.T) {
	m, err := New(10, 10, 1.0, 1.0)
	require.NoError(t, err)

	i, j, fx, fy := m.CellOf(3.5, 2.25)
	assert.Equal(t, 3, i)
	assert.Equal(t, 2, j)
	assert.InDelta(t, 0.5, fx, 1e-9)
	assert.InDelta(t, 0.25, fy, 1e-9)

	// out-of-range points clamp into the last valid cell
	i, j, _, _ = m.CellOf(-5, 50)
	assert.Equal(t, 0, i)
	assert.Equal(t, 9, j)
}

func TestBounds(t *testing.T) {
	m, err := New(10, 20, 2.0, 3.0)
	require.NoError(t, err)
	w, h := m.Bounds()
	assert.Equal(t, 20.0, w)
	assert.Equal(t, 60.0, h)
}
