// Package transport implements the per-particle free-flight integration,
// post-flight scattering selection, and the parabolic-MEP hydrodynamic
// alternative to full ensemble Monte Carlo. Drift's RK2 half-step and the
// boundary edge-cascade are carried over almost line-for-line from
// original_source/src/drift.h, rewritten against pkg/boundary instead of
// drift.h's mc_is_boundary_* calls.
package transport

import (
	"math"

	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/boundary"
	"github.com/jmsellier/archimedes-go/pkg/mesh"
	"github.com/jmsellier/archimedes-go/pkg/particle"
)

// BandModel selects which E(k) dispersion the drift step uses to turn a
// wavevector into a group velocity and back.
type BandModel int

const (
	Parabolic BandModel = iota
	Kane
	FullBand
)

// Outcome reports what a free flight ended in: it either continued inside
// the device, was absorbed by an ohmic/Schottky contact, or was emitted
// through a vacuum boundary.
type Outcome int

const (
	Continues Outcome = iota
	Absorbed
	Emitted
)

// Drift integrates one particle's (x, y, kx, ky) over a free flight of
// duration dt under field solution m, using drift.h's single-evaluation
// half-step: the field and velocity are sampled once at the start of the
// step, dk is computed from that single evaluation, and position advances
// using the average of the start-of-step and half-stepped wavevector (no
// second field lookup or velocity re-evaluation at a recomputed midpoint).
// Handles the edge cascade {left, right, bottom, top} exactly once per call,
// reflecting, absorbing, or emitting the particle as resolveBoundary
// dictates; returns the resulting Outcome and, for Emitted, the residual
// kinetic energy the particle carries past the vacuum barrier.
func Drift(
	pt *particle.Particle,
	mat BandParams,
	model BandModel,
	m *mesh.Mesh,
	b *boundary.Model,
	dt float64,
) (outcome Outcome, residualEnergy float64) {
	q := consts.Charge
	if pt.Species == particle.Hole {
		q = -consts.Charge
	}

	ex, ey, bz := interpolateField(m, pt.X, pt.Y)
	vx0, vy0 := velocity(pt.Kx, pt.Ky, mat, model)
	dkx := -q * (ex + vy0*bz) * dt / consts.HBar
	dky := -q * (ey - vx0*bz) * dt / consts.HBar

	avgKx := pt.Kx + 0.5*dkx
	avgKy := pt.Ky + 0.5*dky

	var newX, newY float64
	switch model {
	case Parabolic:
		newX = pt.X + consts.HBar*dt/mat.Mass*avgKx
		newY = pt.Y + consts.HBar*dt/mat.Mass*avgKy
	case Kane:
		ksq := pt.Kx*pt.Kx + pt.Ky*pt.Ky
		eps0 := consts.HBar * consts.HBar * ksq / (2 * mat.Mass)
		eps := kaneEnergyFromK0(eps0, mat.Alpha)
		s := 1 + 2*mat.Alpha*eps
		newX = pt.X + consts.HBar*dt/(mat.Mass*s)*avgKx
		newY = pt.Y + consts.HBar*dt/(mat.Mass*s)*avgKy
	case FullBand:
		newX = pt.X + vx0*dt
		newY = pt.Y + vy0*dt
	}

	newKx := pt.Kx + dkx
	newKy := pt.Ky + dky

	width, height := m.Bounds()
	newX, newY, newKx, newKy, outcome, residualEnergy = resolveBoundary(m, b, width, height, pt.X, pt.Y, newX, newY, newKx, newKy, mat, model)
	if outcome != Continues {
		return outcome, residualEnergy
	}

	pt.X, pt.Y = newX, newY
	pt.Kx, pt.Ky = newKx, newKy
	return Continues, 0
}

// BandParams is the minimal per-valley band data Drift and velocity() need,
// decoupled from pkg/material.Material so transport doesn't import the full
// rate-table machinery.
type BandParams struct {
	Mass     float64
	Alpha    float64
	Affinity float64 // electron affinity (J), used by vacuum-boundary emission
	Emin     float64 // this valley's minimum energy offset (J), used by vacuum-boundary emission
	CBFull   [10]float64
}

// VelocityOf exposes velocity for callers outside this package (the
// accumulator needs group velocity to deposit momentum moments).
func VelocityOf(kx, ky float64, mat BandParams, model BandModel) (vx, vy float64) {
	return velocity(kx, ky, mat, model)
}

// velocity returns the group velocity v = (1/hbar) dE/dk for the selected
// band model.
func velocity(kx, ky float64, mat BandParams, model BandModel) (vx, vy float64) {
	switch model {
	case Parabolic:
		vx = consts.HBar * kx / mat.Mass
		vy = consts.HBar * ky / mat.Mass
	case Kane:
		ksq := kx*kx + ky*ky
		eps0 := consts.HBar * consts.HBar * ksq / (2 * mat.Mass)
		// Non-parabolic Kane dispersion: eps(1+alpha*eps) = eps0 implicitly
		// defines eps; its group velocity scales the parabolic one by the
		// inverse of (1+2*alpha*eps).
		eps := kaneEnergyFromK0(eps0, mat.Alpha)
		denom := 1 + 2*mat.Alpha*eps
		vx = consts.HBar * kx / (mat.Mass * denom)
		vy = consts.HBar * ky / (mat.Mass * denom)
	case FullBand:
		vx, vy = fullBandVelocity(kx, ky, mat.CBFull)
	}
	return
}

// kaneEnergyFromK0 inverts eps0 = eps*(1+alpha*eps) for eps >= 0.
func kaneEnergyFromK0(eps0, alpha float64) float64 {
	if alpha == 0 {
		return eps0
	}
	disc := 1 + 4*alpha*eps0
	if disc < 0 {
		disc = 0
	}
	return (-1 + math.Sqrt(disc)) / (2 * alpha)
}

// fullBandVelocity evaluates the fitted polynomial dispersion's gradient
// numerically in the scaled |k|*1e-12/(2*pi) units original_source/src/drift.h
// uses for its full-band fit, via a small centered-difference stencil.
func fullBandVelocity(kx, ky float64, coeff [10]float64) (vx, vy float64) {
	const h = 1e6 // 1/m, small step in k-space
	scale := 1e-12 / (2 * math.Pi)

	energyAt := func(kx, ky float64) float64 {
		kmag := math.Hypot(kx, ky) * scale
		var e, p float64 = 0, 1
		for _, c := range coeff {
			e += c * p
			p *= kmag
		}
		return e * consts.Charge
	}

	dEdkx := (energyAt(kx+h, ky) - energyAt(kx-h, ky)) / (2 * h)
	dEdky := (energyAt(kx, ky+h) - energyAt(kx, ky-h)) / (2 * h)
	return dEdkx / consts.HBar, dEdky / consts.HBar
}

// interpolateField bilinearly interpolates E and B from the mesh at physical
// point (x, y).
func interpolateField(m *mesh.Mesh, x, y float64) (ex, ey, bz float64) {
	i, j, fx, fy := m.CellOf(x, y)
	n00, _ := m.NodeAt(i, j)
	n10, _ := m.NodeAt(i+1, j)
	n01, _ := m.NodeAt(i, j+1)
	n11, _ := m.NodeAt(i+1, j+1)

	bilerp := func(v00, v10, v01, v11 float64) float64 {
		return v00*(1-fx)*(1-fy) + v10*fx*(1-fy) + v01*(1-fx)*fy + v11*fx*fy
	}

	ex = bilerp(n00.EField[0], n10.EField[0], n01.EField[0], n11.EField[0])
	ey = bilerp(n00.EField[1], n10.EField[1], n01.EField[1], n11.EField[1])
	bz = bilerp(n00.MagneticField, n10.MagneticField, n01.MagneticField, n11.MagneticField)
	return
}
