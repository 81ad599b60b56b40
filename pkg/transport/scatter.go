package transport

import (
	"math"
	"math/rand/v2"

	"github.com/jmsellier/archimedes-go/internal/consts"
	"github.com/jmsellier/archimedes-go/pkg/material"
	"github.com/jmsellier/archimedes-go/pkg/particle"
)

// Scatter applies one scattering event to pt once its free flight has
// expired, drawing the mechanism from table at pt's current kinetic energy
// and resampling its wavevector accordingly. Self-scattering (table's
// sentinel column) leaves pt unchanged except for redrawing the next
// free-flight deadline, exactly the point of the Gamma ceiling. Returns the
// mechanism kind selected, for callers that want to tally per-mechanism
// scattering counts.
func Scatter(pt *particle.Particle, mat material.Material, tables []*material.RateTable, shard *rand.Rand, simTime float64) material.MechKind {
	table := tables[pt.Valley]

	eps := kineticEnergy(pt.Kx, pt.Ky, mat.Valleys[pt.Valley])
	u := shard.Float64() * table.Gamma
	idx, isSelf := table.SelectMechanism(eps, u)

	if isSelf {
		pt.NextScatter = simTime + drawFreeFlight(shard, table.Gamma)
		return material.MechSelfScatter
	}

	entry := table.Mechs[idx]
	switch entry.Kind {
	case material.MechAcoustic:
		// Isotropic: the acoustic deformation-potential matrix element has
		// no angular dependence in the equipartition approximation.
		resampleIsotropic(pt, mat, pt.Valley, eps, shard)
	case material.MechOpticalAbsorb:
		ph := mat.Phonons[entry.ModeIndex]
		finalEps := eps + ph.Energy
		if ph.Polar {
			resamplePolarOptical(pt, mat, pt.Valley, eps, finalEps, shard)
		} else {
			resampleIsotropic(pt, mat, pt.Valley, finalEps, shard)
		}
	case material.MechOpticalEmit:
		ph := mat.Phonons[entry.ModeIndex]
		finalEps := eps - ph.Energy
		if ph.Polar {
			resamplePolarOptical(pt, mat, pt.Valley, eps, finalEps, shard)
		} else {
			resampleIsotropic(pt, mat, pt.Valley, finalEps, shard)
		}
	case material.MechIntervalley:
		// Non-polar: isotropic, same as acoustic.
		iv := mat.Valleys[pt.Valley].Intervalley[entry.ModeIndex]
		dst := entry.DestValley - 1
		offset := mat.Valleys[dst].Emin - mat.Valleys[pt.Valley].Emin
		finalEps := pickIntervalleyFinalEnergy(eps, offset, iv, mat.Valleys[dst], shard)
		pt.Valley = dst
		resampleIsotropic(pt, mat, dst, finalEps, shard)
	case material.MechImpurity:
		// Elastic, Brooks-Herring screened-Coulomb angular distribution:
		// forward scattering dominates as the screening wavevector shrinks.
		k := wavevectorMagnitude(mat.Valleys[pt.Valley], eps)
		cosTheta := brooksHerringCosTheta(k, table.ImpurityScreeningQ2, shard.Float64())
		rotateAndScale(pt, k, cosTheta, shard)
	}

	pt.NextScatter = simTime + drawFreeFlight(shard, table.Gamma)
	return entry.Kind
}

// KineticEnergyOf exposes kineticEnergy for callers outside this package
// (the accumulator needs per-particle kinetic energy to deposit the energy
// moment).
func KineticEnergyOf(kx, ky float64, v material.Valley) float64 {
	return kineticEnergy(kx, ky, v)
}

// kineticEnergy inverts the non-parabolic dispersion eps*(1+alpha*eps) =
// hbar^2 k^2 / 2m for eps.
func kineticEnergy(kx, ky float64, v material.Valley) float64 {
	ksq := kx*kx + ky*ky
	eps0 := consts.HBar * consts.HBar * ksq / (2 * v.Mass)
	if v.Alpha == 0 {
		return eps0
	}
	disc := 1 + 4*v.Alpha*eps0
	if disc < 0 {
		disc = 0
	}
	return (-1 + math.Sqrt(disc)) / (2 * v.Alpha)
}

// resampleIsotropic redraws pt's wavevector at energy finalEps with a
// uniformly random direction, the standard post-scattering assumption for
// mechanisms with no angular dependence in their matrix element.
func resampleIsotropic(pt *particle.Particle, mat material.Material, valley int, finalEps float64, shard *rand.Rand) {
	kmag := wavevectorMagnitude(mat.Valleys[valley], finalEps)
	theta := 2 * consts.Pi * shard.Float64()
	pt.Kx = kmag * math.Cos(theta)
	pt.Ky = kmag * math.Sin(theta)
}

// wavevectorMagnitude inverts the non-parabolic dispersion for |k| at energy
// eps, clamping to the physical (eps>=0, gamma>=0) domain.
func wavevectorMagnitude(v material.Valley, eps float64) float64 {
	if eps < 0 {
		eps = 0
	}
	gamma := eps * (1 + v.Alpha*eps)
	if gamma < 0 {
		gamma = 0
	}
	return math.Sqrt(2 * v.Mass * gamma / (consts.HBar * consts.HBar))
}

// resamplePolarOptical redraws pt's wavevector at energy finalEps with a
// direction drawn from the Fröhlich polar-optical angular distribution: the
// 1/q^2 matrix element weighting, parameterized by the momentum transfer
// q^2 = kInit^2 + kFinal^2 - 2*kInit*kFinal*cosTheta, inverted in closed
// form (the standard Jacoboni-Reggiani construction, adapted to this
// module's planar (kx,ky) representation with no sinTheta solid-angle
// weighting since there is no out-of-plane component).
func resamplePolarOptical(pt *particle.Particle, mat material.Material, valley int, initialEps, finalEps float64, shard *rand.Rand) {
	v := mat.Valleys[valley]
	kInit := wavevectorMagnitude(v, initialEps)
	kFinal := wavevectorMagnitude(v, finalEps)
	cosTheta := frohlichCosTheta(kInit, kFinal, shard.Float64())
	rotateAndScale(pt, kFinal, cosTheta, shard)
}

// frohlichCosTheta inverts the CDF of P(cosTheta) ~ 1/(A - B*cosTheta), with
// A = kInit^2+kFinal^2, B = 2*kInit*kFinal, for draw r in [0,1). Falls back
// to isotropic when the momentum transfer is nearly direction-independent
// (kInit and kFinal both ~0, or equal so B dominates A only at cosTheta=1).
func frohlichCosTheta(kInit, kFinal, r float64) float64 {
	a := kInit*kInit + kFinal*kFinal
	b := 2 * kInit * kFinal
	if a <= 0 || b < 1e-6*a {
		return 2*r - 1
	}
	ratio := (a - b) / (a + b)
	c := (a - (a+b)*math.Pow(ratio, r)) / b
	return clampCos(c)
}

// brooksHerringCosTheta inverts the CDF of the screened-Coulomb
// Brooks-Herring weighting P(cosTheta) ~ 1/(q^2+q0^2)^2 for elastic
// scattering (kInit=kFinal=k), where q^2 = 2*k^2*(1-cosTheta) and q0^2 is
// the Debye screening wavevector squared. Smaller q0^2 (weaker screening)
// concentrates the distribution toward small-angle (forward) scattering.
func brooksHerringCosTheta(k, screeningQ2, r float64) float64 {
	if k <= 0 || screeningQ2 <= 0 {
		return 2*r - 1
	}
	a := 2*k*k + screeningQ2
	bcoef := 2 * k * k
	valAt := func(c float64) float64 { return 1 / (a - bcoef*c) }
	vMinus, vPlus := valAt(-1), valAt(1)
	v := vMinus + r*(vPlus-vMinus)
	c := (a - 1/v) / bcoef
	return clampCos(c)
}

func clampCos(c float64) float64 {
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

// rotateAndScale sets pt's wavevector to magnitude kFinal, rotated by the
// sampled scattering angle (cosTheta, with a coin-flipped sign for sinTheta
// since the 2D representation admits two mirror-image solutions per
// cosTheta) relative to pt's pre-scatter direction.
func rotateAndScale(pt *particle.Particle, kFinal, cosTheta float64, shard *rand.Rand) {
	k0 := math.Hypot(pt.Kx, pt.Ky)
	ux, uy := 1.0, 0.0
	if k0 > 0 {
		ux, uy = pt.Kx/k0, pt.Ky/k0
	}
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	if shard.Float64() < 0.5 {
		sinTheta = -sinTheta
	}
	rx := ux*cosTheta - uy*sinTheta
	ry := ux*sinTheta + uy*cosTheta
	pt.Kx = kFinal * rx
	pt.Ky = kFinal * ry
}

// pickIntervalleyFinalEnergy resolves whether the intervalley transition was
// absorption or emission, then returns the resulting final-valley kinetic
// energy. Absorption is chosen when emission is energetically forbidden;
// otherwise each branch is picked with probability 1/2, without weighting by
// their relative rates.
func pickIntervalleyFinalEnergy(eps, offset float64, iv material.IntervalleyCoupling, dst material.Valley, shard *rand.Rand) float64 {
	absFinal := eps - offset + iv.Energy
	emitFinal := eps - offset - iv.Energy
	if emitFinal < 0 {
		return math.Max(absFinal, 0)
	}
	if shard.Float64() < 0.5 {
		return math.Max(absFinal, 0)
	}
	return emitFinal
}

// drawFreeFlight samples the next self-scattering-ceiling-limited free
// flight duration, -ln(r)/Gamma, the standard EMC rejection-free sampling
// since Gamma already bounds the total (real + self) scattering rate.
func drawFreeFlight(shard *rand.Rand, gamma float64) float64 {
	r := shard.Float64()
	if r <= 0 {
		r = 1e-300
	}
	return -math.Log(r) / gamma
}
