package testutil

import (
	"math"
	"math/rand"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/pwfit/internal/kinematics"
)

// GenThreeBody generates n toy three-body events A -> B C D in the rest
// frame of A via sequential two-body decays: the (C, D) invariant mass is
// drawn uniformly in its allowed window and both splits decay isotropically.
// The spectrum is not flat in phase space, which is irrelevant for the
// tests using it; every event is kinematically valid.
func GenThreeBody(rng *rand.Rand, n int) []kinematics.Event {
	masses := [3]float64{FinalMassB, FinalMassC, FinalMassD}
	events := make([]kinematics.Event, 0, n)
	for i := 0; i < n; i++ {
		lo := masses[1] + masses[2]
		hi := TopMass - masses[0]
		mCD := lo + rng.Float64()*(hi-lo)

		// A -> B + (CD) in the A rest frame.
		pB, pCD := twoBody(rng, TopMass, masses[0], mCD, fmom.NewPxPyPzE(0, 0, 0, TopMass))
		// (CD) -> C + D, boosted back to the A frame.
		pC, pD := twoBody(rng, mCD, masses[1], masses[2], pCD)

		events = append(events, kinematics.Event{pB, pC, pD})
	}
	return events
}

// twoBody decays a parent with the given invariant mass into daughters of
// masses m1 and m2, isotropically in the parent rest frame, returning the
// daughters in the frame where parent has four-momentum p.
func twoBody(rng *rand.Rand, m, m1, m2 float64, p fmom.PxPyPzE) (fmom.PxPyPzE, fmom.PxPyPzE) {
	q := breakupMomentum(m, m1, m2)
	dir := randomDirection(rng)

	e1 := math.Sqrt(m1*m1 + q*q)
	e2 := math.Sqrt(m2*m2 + q*q)
	d1 := fmom.NewPxPyPzE(q*dir.X, q*dir.Y, q*dir.Z, e1)
	d2 := fmom.NewPxPyPzE(-q*dir.X, -q*dir.Y, -q*dir.Z, e2)

	beta := fmom.BoostOf(&p)
	return boosted(d1, beta), boosted(d2, beta)
}

func breakupMomentum(m, m1, m2 float64) float64 {
	num := (m*m - (m1+m2)*(m1+m2)) * (m*m - (m1-m2)*(m1-m2))
	if num <= 0 {
		return 0
	}
	return math.Sqrt(num) / (2 * m)
}

func randomDirection(rng *rand.Rand) r3.Vec {
	cosTheta := 2*rng.Float64() - 1
	sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
	phi := 2 * math.Pi * rng.Float64()
	return r3.Vec{X: sinTheta * math.Cos(phi), Y: sinTheta * math.Sin(phi), Z: cosTheta}
}

func boosted(p fmom.PxPyPzE, beta r3.Vec) fmom.PxPyPzE {
	out := fmom.Boost(&p, beta)
	return fmom.NewPxPyPzE(out.Px(), out.Py(), out.Pz(), out.E())
}
