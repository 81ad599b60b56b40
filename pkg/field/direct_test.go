package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsellier/archimedes-go/pkg/boundary"
	"github.com/jmsellier/archimedes-go/pkg/mesh"
)

func TestDirectSolverMatchesSORWithinTolerance(t *testing.T) {
	nx, ny := 8, 4
	mSOR, err := mesh.New(nx, ny, 1e-8, 1e-8)
	require.NoError(t, err)
	mDirect, err := mesh.New(nx, ny, 1e-8, 1e-8)
	require.NoError(t, err)

	b := boundary.New(nx, ny)
	require.NoError(t, b.AddSegment(boundary.Segment{Dir: boundary.Left, Kind: boundary.Ohmic, Lo: 0, Hi: ny, AppliedVoltage: 0}))
	require.NoError(t, b.AddSegment(boundary.Segment{Dir: boundary.Right, Kind: boundary.Ohmic, Lo: 0, Hi: ny, AppliedVoltage: 1.0}))

	sor := NewPoissonSolver(1.85, 10000, 1e-10)
	require.NoError(t, sor.Solve(mSOR, b, epsSilicon))

	direct, err := NewDirectSolver(nx, ny)
	require.NoError(t, err)
	defer direct.Destroy()
	direct.Stamp(mDirect, b, epsSilicon, nil)
	require.NoError(t, direct.Solve(mDirect))

	delta, err := MaxPotentialDelta(mSOR, mDirect)
	require.NoError(t, err)
	assert.Less(t, delta, 1e-3)
}

func TestMaxPotentialDeltaRejectsMismatchedExtents(t *testing.T) {
	a, err := mesh.New(4, 4, 1e-8, 1e-8)
	require.NoError(t, err)
	b, err := mesh.New(5, 4, 1e-8, 1e-8)
	require.NoError(t, err)
	_, err = MaxPotentialDelta(a, b)
	assert.Error(t, err)
}

func TestDirectSolverClearResetsStampedSystem(t *testing.T) {
	nx, ny := 4, 4
	m, err := mesh.New(nx, ny, 1e-8, 1e-8)
	require.NoError(t, err)
	b := boundary.New(nx, ny)
	require.NoError(t, b.AddSegment(boundary.Segment{Dir: boundary.Left, Kind: boundary.Ohmic, Lo: 0, Hi: ny, AppliedVoltage: 0}))
	require.NoError(t, b.AddSegment(boundary.Segment{Dir: boundary.Right, Kind: boundary.Ohmic, Lo: 0, Hi: ny, AppliedVoltage: 2.0}))

	direct, err := NewDirectSolver(nx, ny)
	require.NoError(t, err)
	defer direct.Destroy()

	direct.Stamp(m, b, epsSilicon, nil)
	require.NoError(t, direct.Solve(m))
	right, _ := m.NodeAt(nx, 2)
	assert.InDelta(t, 2.0, right.Potential, 1e-6)

	direct.Clear()
	direct.Stamp(m, b, epsSilicon, nil)
	require.NoError(t, direct.Solve(m))
	right, _ = m.NodeAt(nx, 2)
	assert.InDelta(t, 2.0, right.Potential, 1e-6)
}
