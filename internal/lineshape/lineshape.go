// Package lineshape models resonance propagators as mass-dependent complex
// functions. Variants are a closed set selected by name through a registry,
// so a per-node `model` option in the decay description maps onto exactly
// one implementation.
package lineshape

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// DefaultBarrierRadius is the Blatt-Weisskopf barrier radius d in GeV^-1.
const DefaultBarrierRadius = 3.0

// Context carries everything a lineshape needs besides the invariant mass:
// the resonance parameters under their current fit values and the node
// geometry they were produced with.
type Context struct {
	Mass          float64 // resonance mass m0
	Width         float64 // resonance width g0
	L             int     // orbital angular momentum of the decay node
	DaughterMass1 float64
	DaughterMass2 float64
	BarrierRadius float64 // 0 means DefaultBarrierRadius
}

// Model evaluates a lineshape at an invariant mass. Implementations must
// return a defined value (typically zero) outside the physical domain and
// never propagate a domain error.
type Model interface {
	Name() string
	Eval(m float64, ctx Context) complex128
}

var (
	regMu    sync.RWMutex
	registry = map[string]func() Model{}
)

// Register makes a lineshape variant available under its name.
// It is meant to be called from init functions of the implementing files.
func Register(name string, factory func() Model) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = factory
}

// New returns the lineshape registered under name. The empty name selects
// the default relativistic Breit-Wigner with barrier factors.
func New(name string) (Model, error) {
	if name == "" {
		name = "BWR"
	}
	regMu.RLock()
	factory, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown lineshape model %q", name)
	}
	return factory(), nil
}

// Names returns the registered model names in sorted order.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RelativeMomentum returns the breakup momentum of a two-body decay
// ma -> mb mc, or 0 below threshold.
func RelativeMomentum(ma, mb, mc float64) float64 {
	q2 := (ma*ma - (mb+mc)*(mb+mc)) * (ma*ma - (mb-mc)*(mb-mc))
	if q2 <= 0 || ma <= 0 {
		return 0
	}
	return math.Sqrt(q2) / (2 * ma)
}

// bprimeCoeff are the Blatt-Weisskopf B'_l polynomial coefficients,
// highest power first.
var bprimeCoeff = [][]float64{
	{1},
	{1, 1},
	{1, 3, 9},
	{1, 6, 45, 225},
	{1, 10, 135, 1575, 11025},
	{1, 15, 315, 6300, 99225, 893025},
}

// bprimePoly evaluates the barrier polynomial at z = (q*d)^2.
// l beyond the table clamps to the highest tabulated order.
func bprimePoly(l int, z float64) float64 {
	if l < 0 {
		l = 0
	}
	if l >= len(bprimeCoeff) {
		l = len(bprimeCoeff) - 1
	}
	coeff := bprimeCoeff[l]
	ret := 0.0
	zp := 1.0
	for i := len(coeff) - 1; i >= 0; i-- {
		ret += coeff[i] * zp
		zp *= z
	}
	return ret
}
