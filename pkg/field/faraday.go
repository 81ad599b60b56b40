package field

import (
	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/mesh"
)

// FaradaySolver updates the out-of-plane magnetic field B_z via an explicit
// finite-difference discretization of Faraday's law driven by the
// accumulated current density, optional and off by default.
type FaradaySolver struct {
	Enabled bool
}

// NewFaradaySolver returns a solver, Enabled per the caller's field
// configuration.
func NewFaradaySolver(enabled bool) *FaradaySolver {
	return &FaradaySolver{Enabled: enabled}
}

// Step advances m's MagneticField one explicit step of size dt using the
// node current densities j = q*(n*v_n - p*v_p) already deposited by the
// accumulator; a no-op when Enabled is false.
func (f *FaradaySolver) Step(m *mesh.Mesh, dt float64) {
	if !f.Enabled {
		return
	}

	type curl struct{ i, j int; dbdt float64 }
	updates := make([]curl, 0, (m.NX+1)*(m.NY+1))

	for i := 0; i <= m.NX; i++ {
		for j := 0; j <= m.NY; j++ {
			n, _ := m.NodeAt(i, j)

			jx := consts.Charge * (n.Electron.Density*n.Electron.Velocity[0] - n.Hole.Density*n.Hole.Velocity[0])
			jy := consts.Charge * (n.Electron.Density*n.Electron.Velocity[1] - n.Hole.Density*n.Hole.Velocity[1])

			var djydx, djxdy float64
			if i > 0 && i < m.NX {
				l, _ := m.NodeAt(i-1, j)
				r, _ := m.NodeAt(i+1, j)
				jyR := consts.Charge * (r.Electron.Density*r.Electron.Velocity[1] - r.Hole.Density*r.Hole.Velocity[1])
				jyL := consts.Charge * (l.Electron.Density*l.Electron.Velocity[1] - l.Hole.Density*l.Hole.Velocity[1])
				djydx = (jyR - jyL) / (2 * m.DX)
			}
			if j > 0 && j < m.NY {
				d, _ := m.NodeAt(i, j-1)
				u, _ := m.NodeAt(i, j+1)
				jxU := consts.Charge * (u.Electron.Density*u.Electron.Velocity[0] - u.Hole.Density*u.Hole.Velocity[0])
				jxD := consts.Charge * (d.Electron.Density*d.Electron.Velocity[0] - d.Hole.Density*d.Hole.Velocity[0])
				djxdy = (jxU - jxD) / (2 * m.DY)
			}
			_ = jx
			_ = jy

			dbdt := -consts.VacuumPermeability * (djydx - djxdy)
			updates = append(updates, curl{i, j, dbdt})
		}
	}

	for _, u := range updates {
		n, _ := m.NodeAt(u.i, u.j)
		n.MagneticField += dt * u.dbdt
	}
}
