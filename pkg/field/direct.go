package field

import (
	"fmt"

	"github.com/edp1096/sparse"

	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/boundary"
	"github.com/jmsellier/archimedes-go/pkg/mesh"
)

// DirectSolver is a sparse-direct Poisson solve used only as an independent
// cross-check against PoissonSolver's SOR iteration; it is never on the
// macro-timestep hot path. It stamps the same 5-point Laplacian stencil the
// SOR solver relaxes, but factors and solves it exactly via LU, the same
// Stamp/Factor/Solve lifecycle the teacher's sparse KCL matrix uses for
// circuit rows.
type DirectSolver struct {
	size   int
	matrix *sparse.Matrix
	rhs    []float64
	index  func(i, j int) int // physical (i,j) -> 1-based row/col
}

// NewDirectSolver builds the sparse matrix for a mesh of extent nx x ny,
// assigning row/column 1-based indices in row-major (i,j) order.
func NewDirectSolver(nx, ny int) (*DirectSolver, error) {
	size := (nx + 1) * (ny + 1)
	config := &sparse.Configuration{
		Real:           true,
		Expandable:     true,
		ModifiedNodal:  false,
		TiesMultiplier: 5,
	}
	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("field: direct solver matrix creation failed: %w", err)
	}
	return &DirectSolver{
		size:   size,
		matrix: mat,
		rhs:    make([]float64, size+1),
		index:  func(i, j int) int { return i*(ny+1) + j + 1 },
	}, nil
}

// Clear resets the stamped matrix and RHS ahead of a new stamp/solve pass.
func (d *DirectSolver) Clear() {
	d.matrix.Clear()
	for i := range d.rhs {
		d.rhs[i] = 0
	}
}

// Stamp assembles the same discretized equation PoissonSolver.Solve relaxes,
// as exact matrix rows: one row per physical node, Dirichlet rows for
// ohmic/Schottky contacts and the 5-point Laplacian plus charge/overlay RHS
// everywhere else.
func (d *DirectSolver) Stamp(m *mesh.Mesh, b *boundary.Model, epsAt func(i, j int) float64, overlay func(i, j int) float64) {
	dx2 := m.DX * m.DX
	dy2 := m.DY * m.DY

	m.ForEachNode(func(n *mesh.Node) {
		row := d.index(n.I, n.J)

		if seg, ok := b.Classify(n.I, n.J); ok && seg.IsContact() {
			d.matrix.GetElement(int64(row), int64(row)).Real += 1
			v := seg.AppliedVoltage
			if seg.IsSchottky() {
				v -= seg.WorkFunctionDiff / consts.Charge
			}
			d.rhs[row] += v
			return
		}

		eps := epsAt(n.I, n.J)
		denom := 2 * (1/dx2 + 1/dy2)
		d.matrix.GetElement(int64(row), int64(row)).Real += -denom

		d.stampNeighbor(m, row, n.I-1, n.J, 1/dx2)
		d.stampNeighbor(m, row, n.I+1, n.J, 1/dx2)
		d.stampNeighbor(m, row, n.I, n.J-1, 1/dy2)
		d.stampNeighbor(m, row, n.I, n.J+1, 1/dy2)

		rho := consts.Charge * (n.Hole.Density - n.Electron.Density + n.DonorConc - n.AcceptorConc)
		if overlay != nil {
			rho += overlay(n.I, n.J)
		}
		d.rhs[row] += -rho / eps
	})
}

// stampNeighbor adds weight*psi(ni,nj) to row, dropping the term at domain
// edges (equivalent to the Neumann mirror PoissonSolver applies there: the
// boundary node's own diagonal absorbs the mirrored contribution instead).
func (d *DirectSolver) stampNeighbor(m *mesh.Mesh, row, ni, nj int, weight float64) {
	if ni < 0 || ni > m.NX || nj < 0 || nj > m.NY {
		d.matrix.GetElement(int64(row), int64(row)).Real += weight
		return
	}
	col := d.index(ni, nj)
	d.matrix.GetElement(int64(row), int64(col)).Real += weight
}

// Solve factors and solves the stamped system, writing the result back onto
// m's Potential field without touching EField (callers that want E should
// still run PoissonSolver.Solve for the primary path, or derive it
// separately when using DirectSolver standalone for verification).
func (d *DirectSolver) Solve(m *mesh.Mesh) error {
	if err := d.matrix.Factor(); err != nil {
		return fmt.Errorf("field: direct solver factorization failed: %w", err)
	}
	solution, err := d.matrix.Solve(d.rhs)
	if err != nil {
		return fmt.Errorf("field: direct solver solve failed: %w", err)
	}

	m.ForEachNode(func(n *mesh.Node) {
		n.Potential = solution[d.index(n.I, n.J)]
	})
	return nil
}

// Destroy releases the underlying sparse matrix's native resources.
func (d *DirectSolver) Destroy() {
	d.matrix.Destroy()
}

// MaxPotentialDelta compares two solved meshes node-by-node, returning the
// largest |psi_a - psi_b|; used by tests and the optional
// Config.Field.VerifyWithDirectSolver cross-check to bound SOR's error
// against the exact factorization.
func MaxPotentialDelta(a, b *mesh.Mesh) (float64, error) {
	if a.NX != b.NX || a.NY != b.NY {
		return 0, fmt.Errorf("field: mesh extents differ (%dx%d vs %dx%d)", a.NX, a.NY, b.NX, b.NY)
	}
	var maxDelta float64
	a.ForEachNode(func(na *mesh.Node) {
		nb, err := b.NodeAt(na.I, na.J)
		if err != nil {
			return
		}
		d := na.Potential - nb.Potential
		if d < 0 {
			d = -d
		}
		if d > maxDelta {
			maxDelta = d
		}
	})
	return maxDelta, nil
}
