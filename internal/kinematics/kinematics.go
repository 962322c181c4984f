package kinematics

import (
	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/pwfit/internal/decay"
	"github.com/zjrosen/pwfit/internal/log"
)

// NodeKinematics is the (invariant mass, helicity angles) bundle of one
// chain node for one event. Gamma is zero by the helicity convention; the
// third Euler angle only appears in alignment rotations.
type NodeKinematics struct {
	Mass    float64
	Alpha   float64
	CosBeta float64
}

// ChainKinematics caches everything the amplitude model needs for one chain
// and one event.
type ChainKinematics struct {
	// Nodes parallels decay.Chain.Nodes.
	Nodes []NodeKinematics
	// Align holds, per final-state index, the Euler angles rotating the
	// reference chain's final helicity frame into this chain's. The
	// reference chain carries identity rotations.
	Align []Euler
}

// EventKinematics caches the per-chain bundles of one event.
type EventKinematics struct {
	Chains []ChainKinematics
}

// Compute prepares the cached kinematics of one event for every chain.
// All chains share the final-state ordering of the event.
func Compute(chains []*decay.Chain, ev Event, opts Options) (EventKinematics, error) {
	if len(chains) == 0 {
		return EventKinematics{}, nil
	}
	n := len(chains[0].Finals)
	if len(ev) != n {
		return EventKinematics{}, &DataError{Index: -1, Reason: "momentum count does not match final state"}
	}

	momenta := make([]fmom.PxPyPzE, len(ev))
	copy(momenta, ev)

	if opts.CenterMass {
		tot := ev.Total()
		beta := restBoost(tot)
		for i := range momenta {
			momenta[i] = boosted(momenta[i], beta)
		}
	}
	if opts.RandomZ && opts.RandomPhi != nil {
		rot := r3.NewRotation(opts.RandomPhi(), r3.Vec{Z: 1})
		for i := range momenta {
			momenta[i] = rotated(momenta[i], rot)
		}
	}

	out := EventKinematics{Chains: make([]ChainKinematics, len(chains))}
	var refTriads []triad
	for ci, chain := range chains {
		ck, leafTriads := computeChain(chain, momenta)
		ck.Align = make([]Euler, n)
		if ci == 0 {
			refTriads = leafTriads
			for i := range ck.Align {
				ck.Align[i] = Euler{CosBeta: 1}
			}
		} else {
			for i := range ck.Align {
				ck.Align[i] = relativeEuler(refTriads[i], leafTriads[i])
			}
		}
		out.Chains[ci] = ck
	}
	return out, nil
}

// computeChain walks the chain tree top-down: at each node it measures the
// first child's direction in the parent helicity frame, then boosts each
// child's subtree into that child's rest frame and recurses.
func computeChain(chain *decay.Chain, momenta []fmom.PxPyPzE) (ChainKinematics, []triad) {
	ck := ChainKinematics{Nodes: make([]NodeKinematics, len(chain.Nodes))}
	leafTriads := make([]triad, len(chain.Finals))

	mom := make([]fmom.PxPyPzE, len(momenta))
	copy(mom, momenta)

	nodeIndex := map[*decay.Node]int{}
	for i, nd := range chain.Nodes {
		nodeIndex[nd] = i
	}

	var walk func(nd *decay.Node, tri triad)
	walk = func(nd *decay.Node, tri triad) {
		p1 := sumMomenta(mom, nd.ChildFinals[0])
		p2 := sumMomenta(mom, nd.ChildFinals[1])
		parent := addMomenta(p1, p2)

		alpha, cosBeta := helicityAngles(tri, spatial(p1))
		ck.Nodes[nodeIndex[nd]] = NodeKinematics{
			Mass:    parent.M(),
			Alpha:   alpha,
			CosBeta: cosBeta,
		}

		children := [2]fmom.PxPyPzE{p1, p2}
		for c := 0; c < 2; c++ {
			ct := childTriad(tri, spatial(children[c]))
			beta := restBoost(children[c])
			for _, fi := range nd.ChildFinals[c] {
				mom[fi] = boosted(mom[fi], beta)
			}
			ct = boostTriad(ct, beta)
			if nd.ChildNodes[c] != nil {
				walk(nd.ChildNodes[c], ct)
			} else {
				leafTriads[nd.ChildFinals[c][0]] = ct
			}
		}
	}
	walk(chain.Nodes[0], identityTriad())
	return ck, leafTriads
}

func sumMomenta(mom []fmom.PxPyPzE, idx []int) fmom.PxPyPzE {
	var px, py, pz, en float64
	for _, i := range idx {
		px += mom[i].Px()
		py += mom[i].Py()
		pz += mom[i].Pz()
		en += mom[i].E()
	}
	return fmom.NewPxPyPzE(px, py, pz, en)
}

func addMomenta(a, b fmom.PxPyPzE) fmom.PxPyPzE {
	return fmom.NewPxPyPzE(a.Px()+b.Px(), a.Py()+b.Py(), a.Pz()+b.Pz(), a.E()+b.E())
}

// PrepareSample computes and validates kinematics for a whole sample.
// Bad events follow the configured policy: skipped with a warning or fatal.
// The returned kept slice maps output rows back to input event indices.
func PrepareSample(chains []*decay.Chain, events []Event, opts Options) ([]EventKinematics, []int, error) {
	out := make([]EventKinematics, 0, len(events))
	kept := make([]int, 0, len(events))
	for i, ev := range events {
		if err := ev.Validate(i); err != nil {
			if opts.Policy == FatalBadEvents {
				return nil, nil, err
			}
			log.Warn(log.CatKin, "skipping bad event", "index", i, "reason", err.Error())
			continue
		}
		ek, err := Compute(chains, ev, opts)
		if err != nil {
			if opts.Policy == FatalBadEvents {
				return nil, nil, err
			}
			log.Warn(log.CatKin, "skipping event", "index", i, "reason", err.Error())
			continue
		}
		out = append(out, ek)
		kept = append(kept, i)
	}
	return out, kept, nil
}
