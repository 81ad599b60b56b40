// Package field solves the electrostatic (and optional magnetostatic)
// field equations that close the EMC loop each macro-timestep: a
// Successive-Over-Relaxation Poisson solve is the primary path, with a
// sparse-direct solver available as an independent cross-check.
package field

import (
	"fmt"
	"math"

	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/boundary"
	"github.com/jmsellier/archimedes-go/pkg/mesh"
)

// PoissonSolver iterates the 5-point discretization of
// div(eps grad psi) = -q(p - n + Nd - Na) via SOR, the primary field solve
// used every macro-timestep.
type PoissonSolver struct {
	Omega   float64 // over-relaxation factor, (1,2)
	MaxIter int
	Tol     float64 // convergence criterion on max|delta psi|, V

	// overlay, if non-nil, returns an additive right-hand-side contribution
	// at node (i,j) from a dielectric slab not otherwise represented on the
	// mesh (e.g. a SiO2 gate oxide), superposed onto the semiconductor RHS.
	Overlay func(i, j int) float64

	LastResidual  float64
	LastIteration int
}

// NewPoissonSolver returns a solver with the given SOR parameters.
func NewPoissonSolver(omega float64, maxIter int, tol float64) *PoissonSolver {
	return &PoissonSolver{Omega: omega, MaxIter: maxIter, Tol: tol}
}

// Solve relaxes m's Potential field in place against the boundary model b,
// using each node's Electron/Hole density and doping for the charge term and
// per-node MaterialID-resolved epsStatic supplied via epsAt. Dirichlet nodes
// (ohmic/Schottky) are held fixed at their segment's AppliedVoltage;
// insulator/vacuum edges use a reflective (zero-normal-derivative) update.
func (s *PoissonSolver) Solve(m *mesh.Mesh, b *boundary.Model, epsAt func(i, j int) float64) error {
	if s.MaxIter <= 0 {
		return fmt.Errorf("field: PoissonSolver.MaxIter must be positive")
	}
	dx2 := m.DX * m.DX
	dy2 := m.DY * m.DY

	s.applyDirichlet(m, b)

	var lastResidual float64
	iter := 0
	for ; iter < s.MaxIter; iter++ {
		lastResidual = 0
		for i := 0; i <= m.NX; i++ {
			for j := 0; j <= m.NY; j++ {
				if seg, ok := b.Classify(i, j); ok && seg.IsContact() {
					continue
				}
				n, err := m.NodeAt(i, j)
				if err != nil {
					return err
				}

				eps := epsAt(i, j)
				rho := consts.Charge * (n.Hole.Density - n.Electron.Density + n.DonorConc - n.AcceptorConc)
				if s.Overlay != nil {
					rho += s.Overlay(i, j)
				}

				left := s.neighborOrMirror(m, b, i-1, j, n.Potential)
				right := s.neighborOrMirror(m, b, i+1, j, n.Potential)
				down := s.neighborOrMirror(m, b, i, j-1, n.Potential)
				up := s.neighborOrMirror(m, b, i, j+1, n.Potential)

				denom := 2*(1/dx2+1/dy2)
				newPsi := ((left+right)/dx2 + (down+up)/dy2 + rho/eps) / denom

				delta := s.Omega * (newPsi - n.Potential)
				n.Potential += delta
				if math.Abs(delta) > lastResidual {
					lastResidual = math.Abs(delta)
				}
			}
		}
		if lastResidual < s.Tol {
			iter++
			break
		}
	}

	s.LastResidual = lastResidual
	s.LastIteration = iter
	s.updateEField(m)

	if lastResidual >= s.Tol {
		return fmt.Errorf("field: poisson solve did not converge after %d iterations (residual %g)", iter, lastResidual)
	}
	return nil
}

// neighborOrMirror returns the neighbor potential at (i,j) if it is a
// physical node, or mirrors the center value across an insulator/vacuum
// boundary (zero-normal-derivative Neumann condition) when (i,j) falls
// outside the domain.
func (s *PoissonSolver) neighborOrMirror(m *mesh.Mesh, b *boundary.Model, i, j int, center float64) float64 {
	if i < 0 || i > m.NX || j < 0 || j > m.NY {
		return center
	}
	n, err := m.NodeAt(i, j)
	if err != nil {
		return center
	}
	return n.Potential
}

// applyDirichlet pins every ohmic/Schottky boundary node to its segment's
// applied voltage (plus the Schottky barrier built-in potential).
func (s *PoissonSolver) applyDirichlet(m *mesh.Mesh, b *boundary.Model) {
	m.ForEachNode(func(n *mesh.Node) {
		seg, ok := b.Classify(n.I, n.J)
		if !ok || !seg.IsContact() {
			return
		}
		v := seg.AppliedVoltage
		if seg.IsSchottky() {
			v -= seg.WorkFunctionDiff / consts.Charge
		}
		n.Potential = v
	})
}

// updateEField sets E = -grad(psi) via centered differences at interior
// nodes and one-sided differences at the domain edges.
func (s *PoissonSolver) updateEField(m *mesh.Mesh) {
	for i := 0; i <= m.NX; i++ {
		for j := 0; j <= m.NY; j++ {
			n, _ := m.NodeAt(i, j)

			var ex float64
			switch {
			case i == 0:
				r, _ := m.NodeAt(1, j)
				ex = -(r.Potential - n.Potential) / m.DX
			case i == m.NX:
				l, _ := m.NodeAt(m.NX-1, j)
				ex = -(n.Potential - l.Potential) / m.DX
			default:
				l, _ := m.NodeAt(i-1, j)
				r, _ := m.NodeAt(i+1, j)
				ex = -(r.Potential - l.Potential) / (2 * m.DX)
			}

			var ey float64
			switch {
			case j == 0:
				u, _ := m.NodeAt(i, 1)
				ey = -(u.Potential - n.Potential) / m.DY
			case j == m.NY:
				d, _ := m.NodeAt(i, m.NY-1)
				ey = -(n.Potential - d.Potential) / m.DY
			default:
				d, _ := m.NodeAt(i, j-1)
				u, _ := m.NodeAt(i, j+1)
				ey = -(u.Potential - d.Potential) / (2 * m.DY)
			}

			n.EField = [2]float64{ex, ey}
		}
	}
}
