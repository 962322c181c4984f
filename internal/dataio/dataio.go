// Package dataio loads four-momentum samples from the plain-text format the
// fit consumes: one `E px py pz` line per particle, final-state particles
// grouped in fixed multiples of lines per event.
package dataio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go-hep.org/x/hep/fmom"

	"github.com/zjrosen/pwfit/internal/kinematics"
	"github.com/zjrosen/pwfit/internal/log"
)

// Role tags what a sample contributes to the likelihood.
type Role int

const (
	RoleData Role = iota
	RolePhsp
	RolePhspNoEff
	RolePhspPlot
	RoleBg
	RoleInMC
)

func (r Role) String() string {
	switch r {
	case RoleData:
		return "data"
	case RolePhsp:
		return "phsp"
	case RolePhspNoEff:
		return "phsp_noeff"
	case RolePhspPlot:
		return "phsp_plot"
	case RoleBg:
		return "bg"
	case RoleInMC:
		return "inmc"
	default:
		return "unknown"
	}
}

// Sample is a named collection of events plus per-event weights. Bg and
// inmc samples additionally carry a scalar fraction (sideband weight or
// injection ratio).
type Sample struct {
	Name     string
	Role     Role
	Events   []kinematics.Event
	Weights  []float64
	Fraction float64
}

// SumWeights returns the total event weight of the sample.
func (s *Sample) SumWeights() float64 {
	var sum float64
	for _, w := range s.Weights {
		sum += w
	}
	return sum
}

// LoadEvents reads a .dat file of four-momentum lines for n final-state
// particles. order maps file position to declared final index: the i-th
// momentum of each event group belongs to final order[i]. A nil order keeps
// the declaration order.
func LoadEvents(path string, n int, order []int) ([]kinematics.Event, error) {
	if order != nil && len(order) != n {
		return nil, fmt.Errorf("%s: dat_order lists %d particles, want %d", path, len(order), n)
	}

	f, err := os.Open(path) //nolint:gosec // user-declared sample path
	if err != nil {
		return nil, fmt.Errorf("open sample: %w", err)
	}
	defer f.Close()

	var rows []fmom.PxPyPzE
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 4 {
			return nil, fmt.Errorf("%s:%d: want 4 momentum components, got %d", path, line, len(fields))
		}
		var v [4]float64
		for i, fstr := range fields {
			v[i], err = strconv.ParseFloat(fstr, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
		}
		// File layout is E px py pz.
		rows = append(rows, fmom.NewPxPyPzE(v[1], v[2], v[3], v[0]))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	if len(rows)%n != 0 {
		return nil, fmt.Errorf("%s: %d momentum lines do not divide into events of %d particles", path, len(rows), n)
	}

	events := make([]kinematics.Event, 0, len(rows)/n)
	for i := 0; i < len(rows); i += n {
		ev := make(kinematics.Event, n)
		for j := 0; j < n; j++ {
			dst := j
			if order != nil {
				dst = order[j]
			}
			ev[dst] = rows[i+j]
		}
		events = append(events, ev)
	}
	log.Info(log.CatData, "loaded sample", "path", path, "events", len(events))
	return events, nil
}

// LoadWeights reads one weight per line. n < 0 skips the length check.
func LoadWeights(path string, n int) ([]float64, error) {
	f, err := os.Open(path) //nolint:gosec // user-declared weight path
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		w, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	if n >= 0 && len(out) != n {
		return nil, fmt.Errorf("%s: %d weights for %d events", path, len(out), n)
	}
	return out, nil
}

// UnitWeights returns n weights of one.
func UnitWeights(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// DatOrder translates a declared dat_order name list into the index mapping
// LoadEvents expects. Empty names fall back to the declaration order.
func DatOrder(names, finals []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if len(names) != len(finals) {
		return nil, fmt.Errorf("dat_order lists %d particles, %d finals declared", len(names), len(finals))
	}
	idx := make(map[string]int, len(finals))
	for i, f := range finals {
		idx[f] = i
	}
	out := make([]int, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		fi, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("dat_order references unknown final state %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("dat_order repeats %q", name)
		}
		seen[name] = true
		out[i] = fi
	}
	return out, nil
}
