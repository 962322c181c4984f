// Package kinematics turns raw four-momenta into the invariant masses and
// helicity angles every decay chain node needs. Results depend only on the
// event, not on fit parameters, so they are computed once per sample and
// cached.
package kinematics

import (
	"fmt"
	"math"

	"go-hep.org/x/hep/fmom"
)

// Event is the ordered list of final-state four-momenta of one event,
// immutable once loaded.
type Event []fmom.PxPyPzE

// Total returns the summed four-momentum of the event.
func (e Event) Total() fmom.PxPyPzE {
	var px, py, pz, en float64
	for i := range e {
		px += e[i].Px()
		py += e[i].Py()
		pz += e[i].Pz()
		en += e[i].E()
	}
	return fmom.NewPxPyPzE(px, py, pz, en)
}

// DataError reports a per-event data-quality problem. It is isolated to the
// offending event; the caller decides between skipping and aborting.
type DataError struct {
	Index  int // event index within the sample
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("event %d: %s", e.Index, e.Reason)
}

// massTolerance absorbs rounding on massless final states read from text
// files.
const massTolerance = 1e-6

// Validate checks the event for NaN momenta, non-positive energies and
// negative invariant masses. idx is only used for error reporting.
func (e Event) Validate(idx int) error {
	for i := range e {
		p := &e[i]
		if math.IsNaN(p.Px()) || math.IsNaN(p.Py()) || math.IsNaN(p.Pz()) || math.IsNaN(p.E()) {
			return &DataError{Index: idx, Reason: fmt.Sprintf("particle %d has NaN components", i)}
		}
		if p.E() <= 0 {
			return &DataError{Index: idx, Reason: fmt.Sprintf("particle %d has non-positive energy %g", i, p.E())}
		}
		if p.M2() < -massTolerance {
			return &DataError{Index: idx, Reason: fmt.Sprintf("particle %d has negative invariant mass squared %g", i, p.M2())}
		}
	}
	tot := e.Total()
	if tot.M2() <= 0 {
		return &DataError{Index: idx, Reason: fmt.Sprintf("total four-momentum is not timelike, m2=%g", tot.M2())}
	}
	return nil
}

// ErrorPolicy selects how per-event data errors are handled during sample
// preparation.
type ErrorPolicy int

const (
	// SkipBadEvents drops offending events with a warning.
	SkipBadEvents ErrorPolicy = iota
	// FatalBadEvents aborts preparation on the first bad event.
	FatalBadEvents
)

// Options adjusts the global frame handling before angles are computed.
type Options struct {
	// CenterMass boosts the whole event into the rest frame of its total
	// four-momentum first.
	CenterMass bool
	// RandomZ rotates the event by a random azimuth around z. Physically
	// irrelevant for an unpolarized initial state; used to symmetrize
	// systematic checks. RandomPhi supplies the angle per event.
	RandomZ   bool
	RandomPhi func() float64
	// Policy selects the reaction to per-event data errors.
	Policy ErrorPolicy
}
