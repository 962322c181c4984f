// Package particle holds the immutable physical properties of the particles
// appearing in a decay description: spin, parity, mass and width, keyed by
// name in a Registry built once from configuration.
package particle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Spin is a non-negative half-integer spin stored as twice its value, so
// that half-integer arithmetic stays exact. Spin(1) is J=1/2, Spin(2) is J=1.
type Spin int

// SpinFromFloat converts a spin given as a float (0, 0.5, 1, 1.5, ...)
// into its doubled representation.
func SpinFromFloat(j float64) (Spin, error) {
	doubled := j * 2
	if doubled < 0 || math.Abs(doubled-math.Round(doubled)) > 1e-9 {
		return 0, fmt.Errorf("spin must be a non-negative half-integer, got %v", j)
	}
	return Spin(math.Round(doubled)), nil
}

// ParseSpin accepts "1", "1/2", "3/2" or decimal forms like "0.5".
func ParseSpin(s string) (Spin, error) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil || d != 2 {
			return 0, fmt.Errorf("invalid spin %q", s)
		}
		if n < 0 {
			return 0, fmt.Errorf("invalid spin %q", s)
		}
		return Spin(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid spin %q", s)
	}
	return SpinFromFloat(f)
}

// Float returns the spin as a float64, e.g. 0.5 for Spin(1).
func (s Spin) Float() float64 { return float64(s) / 2 }

// IsHalfInteger reports whether the spin is half-integral (1/2, 3/2, ...).
func (s Spin) IsHalfInteger() bool { return s%2 != 0 }

func (s Spin) String() string {
	if s%2 == 0 {
		return strconv.Itoa(int(s) / 2)
	}
	return fmt.Sprintf("%d/2", int(s))
}

// Projections returns the allowed spin projections -J..J in doubled units,
// in increasing order.
func (s Spin) Projections() []Spin {
	out := make([]Spin, 0, int(s)+1)
	for m := -s; m <= s; m += 2 {
		out = append(out, m)
	}
	return out
}

// Parity is an intrinsic parity eigenvalue, +1 or -1. Zero means undeclared.
type Parity int

const (
	ParityEven Parity = 1
	ParityOdd  Parity = -1
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "+"
	case ParityOdd:
		return "-"
	default:
		return "?"
	}
}

// Role tags where a particle sits in the decay description.
type Role int

const (
	RoleTop Role = iota
	RoleIntermediate
	RoleFinal
)

func (r Role) String() string {
	switch r {
	case RoleTop:
		return "top"
	case RoleIntermediate:
		return "intermediate"
	case RoleFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Particle holds the immutable physical properties of one named particle.
type Particle struct {
	Name   string
	J      Spin
	P      Parity
	C      Parity // optional C-parity, 0 when undeclared
	Mass   float64
	Width  float64
	Role   Role
	Model  string // lineshape selector for intermediate states, "" for default
	Params map[string]float64
}

func (p *Particle) String() string {
	return fmt.Sprintf("%s(J=%s,P=%s)", p.Name, p.J, p.P)
}
