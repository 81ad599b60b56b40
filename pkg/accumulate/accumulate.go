// Package accumulate deposits per-particle moments onto the mesh and
// finalizes them into node-averaged carrier moments on a configurable
// cadence, the same accumulate-then-finalize shape as
// edp1096-toy-spice/pkg/analysis/anlysis.go's BaseAnalysis result store,
// repurposed from named time-series to per-node running sums.
package accumulate

import (
	"fmt"

	"github.com/jmsellier/archimedes-go/pkg/mesh"
	"github.com/jmsellier/archimedes-go/pkg/particle"
)

// nodeSum is the running deposit for one node: particle count, summed
// bilinear weight, and weight-scaled velocity and energy sums. Finalize turns
// count into a density through the node's cell volume and divides the
// velocity and energy sums by the summed weight.
type nodeSum struct {
	count    int
	weight   float64
	sumVx    float64
	sumVy    float64
	sumEnergy float64
}

// Accumulator deposits particle-in-cell moments using bilinear weighting
// onto the four surrounding nodes each call, and finalizes them into
// Density/Velocity/Energy on Finalize, after which the running sums reset —
// the MEDIA-window average/reset pattern the spec names.
type Accumulator struct {
	mesh       *mesh.Mesh
	electron   [][]nodeSum
	hole       [][]nodeSum
	superParticleWeight float64 // physical carriers represented per super-particle

	// NumericalResets counts, per node and species, every time Finalize had
	// to fall back to the node's prior moments because zero particles were
	// deposited there in the window, an observable counter the spec's
	// error-handling section requires.
	NumericalResets int
}

// New allocates an accumulator for m, where weight converts super-particle
// counts into physical carrier density (particles represented per
// super-particle, already divided by cell volume is NOT assumed here —
// Finalize divides by the node's own cell volume).
func New(m *mesh.Mesh, weight float64) *Accumulator {
	a := &Accumulator{mesh: m, superParticleWeight: weight}
	a.electron = make([][]nodeSum, m.NX+1)
	a.hole = make([][]nodeSum, m.NX+1)
	for i := range a.electron {
		a.electron[i] = make([]nodeSum, m.NY+1)
		a.hole[i] = make([]nodeSum, m.NY+1)
	}
	return a
}

// Deposit bilinearly weights one particle's velocity/energy contribution
// onto the four nodes surrounding its position.
func (a *Accumulator) Deposit(pt *particle.Particle, vx, vy, energy float64) {
	i, j, fx, fy := a.mesh.CellOf(pt.X, pt.Y)

	weights := [4]struct {
		i, j int
		w    float64
	}{
		{i, j, (1 - fx) * (1 - fy)},
		{i + 1, j, fx * (1 - fy)},
		{i, j + 1, (1 - fx) * fy},
		{i + 1, j + 1, fx * fy},
	}

	table := a.electron
	if pt.Species == particle.Hole {
		table = a.hole
	}

	for _, w := range weights {
		if w.w <= 0 {
			continue
		}
		s := &table[w.i][w.j]
		s.count++
		s.weight += w.w
		s.sumVx += vx * w.w
		s.sumVy += vy * w.w
		s.sumEnergy += energy * w.w
	}
}

// Finalize writes the accumulated window's average moments onto every
// node's Electron/Hole CarrierInfo and resets the running sums. Nodes that
// received no deposits in the window keep their previous moments (density
// decays toward zero only through actual depletion, never through a
// zero-sample window) and increment NumericalResets.
func (a *Accumulator) Finalize() error {
	cellVolume := a.mesh.DX * a.mesh.DY
	if cellVolume <= 0 {
		return fmt.Errorf("accumulate: non-positive cell volume %g", cellVolume)
	}

	a.mesh.ForEachNode(func(n *mesh.Node) {
		a.finalizeOne(&a.electron[n.I][n.J], &n.Electron, cellVolume)
		a.finalizeOne(&a.hole[n.I][n.J], &n.Hole, cellVolume)
	})
	return nil
}

func (a *Accumulator) finalizeOne(s *nodeSum, c *mesh.CarrierInfo, cellVolume float64) {
	if s.count == 0 {
		a.NumericalResets++
		*s = nodeSum{}
		return
	}
	n := float64(s.count)
	c.Density = n * a.superParticleWeight / cellVolume
	c.Velocity[0] = s.sumVx / s.weight
	c.Velocity[1] = s.sumVy / s.weight
	c.Energy = s.sumEnergy / s.weight
	*s = nodeSum{}
}
