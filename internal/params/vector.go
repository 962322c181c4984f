// Package params owns the fit parameter vector: every named coupling and
// lineshape parameter across all chains, together with the constraint
// bookkeeping that maps them onto the reduced free vector an optimizer sees.
package params

import (
	"fmt"
	"math"
	"sort"

	"github.com/zjrosen/pwfit/internal/decay"
)

type kind int

const (
	kindFree kind = iota
	kindFixed
	kindAlias
)

type parameter struct {
	name    string
	value   float64
	kind    kind
	aliasOf string
	min     float64
	max     float64
}

// Vector is the set of all named fit parameters. Constraints reduce the
// free-parameter count by a deterministic mapping; there are no runtime
// penalty terms. During one likelihood evaluation a Vector is treated as an
// immutable snapshot.
type Vector struct {
	params map[string]*parameter
	order  []string
	free   []string
	sealed bool
}

// NewVector creates an empty parameter vector.
func NewVector() *Vector {
	return &Vector{params: make(map[string]*parameter)}
}

// BuildVector registers every parameter the chains expose: per-chain totals,
// per-node (l,s) couplings, and resonance masses and widths. Couplings start
// at 1+0i; masses and widths start fixed at their registry values.
func BuildVector(chains []*decay.Chain) *Vector {
	v := NewVector()
	for _, c := range chains {
		v.RegisterComplex(c.TotalName(), 1, 0)
		for _, n := range c.Nodes {
			for i := range n.LS {
				v.RegisterComplex(n.CouplingName(i), 1, 0)
			}
		}
		for _, r := range c.Resonances() {
			v.Register(r.Name+"_mass", r.Mass)
			v.Register(r.Name+"_width", r.Width)
			v.Fix(r.Name+"_mass", r.Mass)
			v.Fix(r.Name+"_width", r.Width)
		}
	}
	return v
}

// Register adds a real parameter with an initial value. Registering an
// existing name keeps the first registration, so shared resonances across
// chains collapse onto one parameter.
func (v *Vector) Register(name string, init float64) {
	if _, ok := v.params[name]; ok {
		return
	}
	v.params[name] = &parameter{name: name, value: init, min: math.Inf(-1), max: math.Inf(1)}
	v.order = append(v.order, name)
	v.sealed = false
}

// RegisterComplex adds the real and imaginary parts of a complex parameter
// under the "<base>r" / "<base>i" naming.
func (v *Vector) RegisterComplex(base string, re, im float64) {
	v.Register(base+"r", re)
	v.Register(base+"i", im)
}

func (v *Vector) get(name string) (*parameter, error) {
	p, ok := v.params[name]
	if !ok {
		return nil, fmt.Errorf("unknown parameter %q", name)
	}
	return p, nil
}

// Has reports whether the name is registered.
func (v *Vector) Has(name string) bool {
	_, ok := v.params[name]
	return ok
}

// Fix pins the parameter to a value, removing it from the free vector.
func (v *Vector) Fix(name string, value float64) error {
	p, err := v.get(name)
	if err != nil {
		return err
	}
	p.kind = kindFixed
	p.value = value
	v.sealed = false
	return nil
}

// SetRange bounds the parameter. Bounds are reported to the optimizer via
// Ranges; they do not reparameterize the value.
func (v *Vector) SetRange(name string, min, max float64) error {
	p, err := v.get(name)
	if err != nil {
		return err
	}
	if min > max {
		return fmt.Errorf("parameter %q: empty range [%g, %g]", name, min, max)
	}
	p.min, p.max = min, max
	v.sealed = false
	return nil
}

// Alias makes name permanently equal to src, removing name from the free
// vector. Alias chains are resolved transitively.
func (v *Vector) Alias(name, src string) error {
	p, err := v.get(name)
	if err != nil {
		return err
	}
	if _, err := v.get(src); err != nil {
		return err
	}
	if name == src {
		return fmt.Errorf("parameter %q aliased to itself", name)
	}
	p.kind = kindAlias
	p.aliasOf = src
	v.sealed = false
	return nil
}

// Set assigns a value; fixed parameters refuse, aliases forward to their
// source.
func (v *Vector) Set(name string, value float64) error {
	p, err := v.get(name)
	if err != nil {
		return err
	}
	switch p.kind {
	case kindFixed:
		return fmt.Errorf("parameter %q is fixed", name)
	case kindAlias:
		return v.Set(p.aliasOf, value)
	}
	p.value = value
	return nil
}

// SetRaw assigns a value regardless of kind, still following aliases. It
// exists for evaluation-time rescaling of fixed couplings; ordinary updates
// go through Set.
func (v *Vector) SetRaw(name string, value float64) {
	p, ok := v.params[name]
	if !ok {
		return
	}
	for p.kind == kindAlias {
		p = v.params[p.aliasOf]
	}
	p.value = value
}

// Value resolves the current value, following alias chains.
func (v *Vector) Value(name string) float64 {
	p, ok := v.params[name]
	if !ok {
		return math.NaN()
	}
	for p.kind == kindAlias {
		p = v.params[p.aliasOf]
	}
	return p.value
}

// Complex resolves a complex parameter registered via RegisterComplex.
func (v *Vector) Complex(base string) complex128 {
	return complex(v.Value(base+"r"), v.Value(base+"i"))
}

func (v *Vector) compile() {
	if v.sealed {
		return
	}
	v.free = v.free[:0]
	for _, name := range v.order {
		if v.params[name].kind == kindFree {
			v.free = append(v.free, name)
		}
	}
	v.sealed = true
}

// FreeNames returns the free parameter names in registration order.
func (v *Vector) FreeNames() []string {
	v.compile()
	out := make([]string, len(v.free))
	copy(out, v.free)
	return out
}

// NFree returns the number of free parameters.
func (v *Vector) NFree() int {
	v.compile()
	return len(v.free)
}

// FreeValues extracts the free parameter values in registration order.
func (v *Vector) FreeValues() []float64 {
	v.compile()
	out := make([]float64, len(v.free))
	for i, name := range v.free {
		out[i] = v.params[name].value
	}
	return out
}

// SetFreeValues writes the free vector back; the length must match NFree.
func (v *Vector) SetFreeValues(x []float64) error {
	v.compile()
	if len(x) != len(v.free) {
		return fmt.Errorf("free vector length %d, want %d", len(x), len(v.free))
	}
	for i, name := range v.free {
		v.params[name].value = x[i]
	}
	return nil
}

// Ranges returns per-free-parameter bounds aligned with FreeValues.
func (v *Vector) Ranges() (min, max []float64) {
	v.compile()
	min = make([]float64, len(v.free))
	max = make([]float64, len(v.free))
	for i, name := range v.free {
		min[i] = v.params[name].min
		max[i] = v.params[name].max
	}
	return min, max
}

// Snapshot returns all parameter values keyed by name, aliases resolved.
// Used for error reporting and serialization.
func (v *Vector) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(v.params))
	for _, name := range v.order {
		out[name] = v.Value(name)
	}
	return out
}

// Names returns every registered name in sorted order.
func (v *Vector) Names() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	sort.Strings(out)
	return out
}
