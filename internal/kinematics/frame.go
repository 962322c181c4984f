package kinematics

import (
	"math"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"
)

// triad carries the helicity-frame axes of one decay frame, transported as
// four-vectors so that successive boosts accumulate the correct Wigner
// rotations.
type triad struct {
	x, y, z fmom.PxPyPzE
}

func identityTriad() triad {
	return triad{
		x: fmom.NewPxPyPzE(1, 0, 0, 0),
		y: fmom.NewPxPyPzE(0, 1, 0, 0),
		z: fmom.NewPxPyPzE(0, 0, 1, 0),
	}
}

func axisVec(v r3.Vec) fmom.PxPyPzE {
	return fmom.NewPxPyPzE(v.X, v.Y, v.Z, 0)
}

func spatial(p fmom.PxPyPzE) r3.Vec {
	return r3.Vec{X: p.Px(), Y: p.Py(), Z: p.Pz()}
}

// unitSpatial returns the normalized spatial part, or zero for a vanishing
// momentum.
func unitSpatial(p fmom.PxPyPzE) r3.Vec {
	v := spatial(p)
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// restBoost returns the boost velocity that takes four-vectors into the rest
// frame of p.
func restBoost(p fmom.PxPyPzE) r3.Vec {
	return r3.Scale(-1, fmom.BoostOf(&p))
}

// boosted applies the boost velocity to a four-vector.
func boosted(p fmom.PxPyPzE, beta r3.Vec) fmom.PxPyPzE {
	out := fmom.Boost(&p, beta)
	return fmom.NewPxPyPzE(out.Px(), out.Py(), out.Pz(), out.E())
}

func boostTriad(t triad, beta r3.Vec) triad {
	return triad{
		x: boosted(t.x, beta),
		y: boosted(t.y, beta),
		z: boosted(t.z, beta),
	}
}

// rotated applies a spatial rotation to a four-vector, leaving the energy
// untouched.
func rotated(p fmom.PxPyPzE, rot r3.Rotation) fmom.PxPyPzE {
	v := rot.Rotate(spatial(p))
	return fmom.NewPxPyPzE(v.X, v.Y, v.Z, p.E())
}

// childTriad builds the helicity frame of a child flying along dir in its
// parent frame: z along the momentum, y normal to the decay plane spanned
// with the parent z axis.
func childTriad(parent triad, dir r3.Vec) triad {
	zAxis := dir
	if n := r3.Norm(zAxis); n > 0 {
		zAxis = r3.Scale(1/n, zAxis)
	}
	pz := unitSpatial(parent.z)
	yAxis := r3.Cross(pz, zAxis)
	if r3.Norm(yAxis) < 1e-12 {
		// Child flies along the parent z axis; keep the parent y axis.
		yAxis = unitSpatial(parent.y)
	} else {
		yAxis = r3.Scale(1/r3.Norm(yAxis), yAxis)
	}
	xAxis := r3.Cross(yAxis, zAxis)
	return triad{x: axisVec(xAxis), y: axisVec(yAxis), z: axisVec(zAxis)}
}

// helicityAngles returns the azimuthal and polar angle of dir measured in
// the triad's axes.
func helicityAngles(t triad, dir r3.Vec) (alpha, cosBeta float64) {
	n := r3.Norm(dir)
	if n == 0 {
		return 0, 1
	}
	u := r3.Scale(1/n, dir)
	xc := r3.Dot(unitSpatial(t.x), u)
	yc := r3.Dot(unitSpatial(t.y), u)
	zc := r3.Dot(unitSpatial(t.z), u)
	alpha = math.Atan2(yc, xc)
	cosBeta = clampUnit(zc)
	return alpha, cosBeta
}

// Euler holds ZYZ Euler angles as (alpha, cos beta, gamma).
type Euler struct {
	Alpha   float64
	CosBeta float64
	Gamma   float64
}

// relativeEuler extracts the ZYZ Euler angles of the rotation taking the
// reference triad into the chain triad. Both triads must describe the same
// rest frame.
func relativeEuler(ref, chain triad) Euler {
	refAxes := [3]r3.Vec{unitSpatial(ref.x), unitSpatial(ref.y), unitSpatial(ref.z)}
	chAxes := [3]r3.Vec{unitSpatial(chain.x), unitSpatial(chain.y), unitSpatial(chain.z)}

	var r [3][3]float64
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			r[a][b] = r3.Dot(refAxes[a], chAxes[b])
		}
	}

	cosBeta := clampUnit(r[2][2])
	if math.Abs(cosBeta) > 1-1e-12 {
		// Degenerate beta: fold everything into alpha.
		return Euler{Alpha: math.Atan2(r[1][0], r[0][0]), CosBeta: cosBeta}
	}
	return Euler{
		Alpha:   math.Atan2(r[1][2], r[0][2]),
		CosBeta: cosBeta,
		Gamma:   math.Atan2(r[2][1], -r[2][0]),
	}
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
