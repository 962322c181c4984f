package decay

import (
	"github.com/zjrosen/pwfit/internal/particle"
	"github.com/zjrosen/pwfit/internal/wigner"
)

// RuleOptions adjusts the selection rules applied at a single node.
type RuleOptions struct {
	// LList restricts the orbital angular momentum to the listed values
	// instead of deriving the full admissible range.
	LList []int
	// AllowParityViolation skips the parity consistency filter.
	AllowParityViolation bool
	// SkipCParity disables the C-parity rule even when the parent
	// declares a C eigenvalue.
	SkipCParity bool
}

// AllowedLS returns the admissible (l, s) couplings for parent -> (c1, c2)
// in deterministic order (l ascending, then s ascending). The total child
// spin s runs over the triangle range of the two child spins; l must couple
// with s to the parent spin and satisfy parity P_p = P_1 P_2 (-1)^l.
// When the parent declares a C-parity, C_p = (-1)^(l+s) is required as well.
func AllowedLS(parent, c1, c2 *particle.Particle, opts RuleOptions) []LS {
	var out []LS

	lAllowed := func(l int) bool {
		if opts.LList == nil {
			return true
		}
		for _, v := range opts.LList {
			if v == l {
				return true
			}
		}
		return false
	}

	tsMin := c1.J - c2.J
	if tsMin < 0 {
		tsMin = -tsMin
	}
	tsMax := c1.J + c2.J

	lMax := int(parent.J+tsMax) / 2
	for l := 0; l <= lMax; l++ {
		if !lAllowed(l) {
			continue
		}
		if !opts.AllowParityViolation {
			sign := particle.ParityEven
			if l%2 != 0 {
				sign = particle.ParityOdd
			}
			if parent.P != c1.P*c2.P*sign {
				continue
			}
		}
		for ts := tsMin; ts <= tsMax; ts += 2 {
			if !wigner.Triangle(2*l, int(ts), int(parent.J)) {
				continue
			}
			if parent.C != 0 && !opts.SkipCParity && ts%2 == 0 {
				sign := particle.ParityEven
				if (l+int(ts)/2)%2 != 0 {
					sign = particle.ParityOdd
				}
				if parent.C != sign {
					continue
				}
			}
			out = append(out, LS{L: l, TS: int(ts)})
		}
	}
	return out
}
