// Package mesh implements the rectangular discretization shared by the
// Poisson/Faraday solvers, the particle pool's spatial lookup, and the MEP
// hydrodynamic stencil. Node storage and indexing follow
// original_source/src/mesh.h's Node/Mesh layout; HaloWidth exists so the MEP
// stencil can address ghost rows/columns without branching at every access.
package mesh

import (
	"fmt"
	"math/rand/v2"

	"github.com/jmsellier/archimedes-go/pkg/material"
)

// HaloWidth is the number of ghost node layers carried on every mesh edge,
// sized for the MEP two-stage predictor/corrector stencil's widest support.
const HaloWidth = 2

// CarrierInfo is the per-species moment bundle used both as the EMC
// accumulator's deposit target and as the MEP solver's conserved state.
type CarrierInfo struct {
	Density  float64 // 1/m^3
	Velocity [2]float64
	Energy   float64 // average kinetic energy per particle, J
}

// Node is one mesh point: doping, material assignment, field solution and
// both carrier species' moments. Index fields are the node's own (i,j) so a
// Node handed out by value still carries its coordinates.
type Node struct {
	I, J int

	MaterialID     material.ID
	DonorConc      float64 // 1/m^3
	AcceptorConc   float64

	Electron CarrierInfo
	Hole     CarrierInfo

	Potential     float64 // psi, V
	EField        [2]float64
	MagneticField float64 // out-of-plane B_z, T

	// QuantumPotential holds an optional effective-potential correction. It
	// is stored on the node only; the drift step does not read it, so it has
	// no effect on the force.
	QuantumPotential float64
}

// Mesh is a logically (nx+1)x(ny+1) rectangular grid of Nodes, padded on
// every side by HaloWidth ghost layers so stencils never need bounds checks
// inside the physical domain.
type Mesh struct {
	NX, NY int     // number of physical intervals in x, y
	DX, DY float64 // cell size, m

	// nodes is stored row-major over the padded (NX+1+2*HaloWidth) x
	// (NY+1+2*HaloWidth) array; use at(i,j) for the physical-index accessor.
	nodes []Node
	strideY int
}

// New allocates a mesh of nx*ny cells (so (nx+1)*(ny+1) physical nodes) with
// cell size dx, dy, including halo padding.
func New(nx, ny int, dx, dy float64) (*Mesh, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("mesh: nx, ny must be positive, got %d, %d", nx, ny)
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("mesh: dx, dy must be positive, got %g, %g", dx, dy)
	}
	m := &Mesh{NX: nx, NY: ny, DX: dx, DY: dy}
	width := nx + 1 + 2*HaloWidth
	height := ny + 1 + 2*HaloWidth
	m.strideY = height
	m.nodes = make([]Node, width*height)
	for i := -HaloWidth; i <= nx+HaloWidth; i++ {
		for j := -HaloWidth; j <= ny+HaloWidth; j++ {
			n := m.at(i, j)
			n.I, n.J = i, j
		}
	}
	return m, nil
}

// offset maps logical (possibly negative/halo) indices to a flat slot.
func (m *Mesh) offset(i, j int) int {
	return (i+HaloWidth)*m.strideY + (j + HaloWidth)
}

// at returns a pointer into the padded storage for logical index (i, j),
// valid for i in [-HaloWidth, NX+HaloWidth], j in [-HaloWidth, NY+HaloWidth].
func (m *Mesh) at(i, j int) *Node {
	return &m.nodes[m.offset(i, j)]
}

// NodeAt returns the node at physical index (i, j), i in [0,NX], j in [0,NY].
// Returns an error for out-of-range physical indices; use Halo for ghost access.
func (m *Mesh) NodeAt(i, j int) (*Node, error) {
	if i < 0 || i > m.NX || j < 0 || j > m.NY {
		return nil, fmt.Errorf("mesh: node index (%d,%d) out of range [0,%d]x[0,%d]", i, j, m.NX, m.NY)
	}
	return m.at(i, j), nil
}

// Halo returns the node at logical index (i, j), which may land in the ghost
// region; callers are responsible for keeping i, j within [-HaloWidth,
// NX+HaloWidth] / [-HaloWidth, NY+HaloWidth].
func (m *Mesh) Halo(i, j int) *Node {
	return m.at(i, j)
}

// ForEachNode visits every physical (non-halo) node in row-major (i, j) order.
func (m *Mesh) ForEachNode(fn func(n *Node)) {
	for i := 0; i <= m.NX; i++ {
		for j := 0; j <= m.NY; j++ {
			fn(m.at(i, j))
		}
	}
}

// RandomPointIn draws a physical point within node (i, j)'s half-cell
// influence region, clamped to the mesh's physical extent — the
// random_point_in(node) helper contact injection uses to place newly
// spawned particles near a boundary node instead of exactly on it.
func (m *Mesh) RandomPointIn(i, j int, rng *rand.Rand) (x, y float64) {
	width, height := m.Bounds()
	x = float64(i)*m.DX + (rng.Float64()-0.5)*m.DX
	y = float64(j)*m.DY + (rng.Float64()-0.5)*m.DY
	if x < 0 {
		x = 0
	}
	if x > width {
		x = width
	}
	if y < 0 {
		y = 0
	}
	if y > height {
		y = height
	}
	return
}

// Bounds returns the physical extent of the mesh in meters.
func (m *Mesh) Bounds() (width, height float64) {
	return float64(m.NX) * m.DX, float64(m.NY) * m.DY
}

// CellOf returns the lower-left node index (i, j) of the cell containing
// physical point (x, y), clamped to the domain, along with the fractional
// offset (fx, fy) in [0,1] within that cell — used by the particle pool's
// bilinear charge-assignment / field-interpolation pair.
func (m *Mesh) CellOf(x, y float64) (i, j int, fx, fy float64) {
	gx := x / m.DX
	gy := y / m.DY
	i = int(gx)
	j = int(gy)
	if i < 0 {
		i, gx = 0, 0
	}
	if i > m.NX-1 {
		i, gx = m.NX-1, float64(m.NX-1)+1
	}
	if j < 0 {
		j, gy = 0, 0
	}
	if j > m.NY-1 {
		j, gy = m.NY-1, float64(m.NY-1)+1
	}
	fx = gx - float64(i)
	fy = gy - float64(j)
	return
}
