package params

import (
	"fmt"

	"github.com/zjrosen/pwfit/internal/decay"
)

// Constraints is the declared constraint set of a fit configuration,
// referencing parameters by their deterministic names.
type Constraints struct {
	// FixChainIdx pins the indexed chain's standalone integrated rate to
	// FixChainVal, removing the overall-normalization degeneracy among
	// coherently summed chains. Nil disables the constraint.
	FixChainIdx *int
	FixChainVal float64

	// Fix pins named parameters to values.
	Fix map[string]float64
	// Range bounds named parameters as [min, max].
	Range map[string][2]float64
	// Equal aliases every following name in a group to the first.
	Equal [][]string
	// Init overrides initial values without fixing.
	Init map[string]float64
	// Float lifts the default fix on resonance shape parameters,
	// e.g. "R_BC_mass".
	Float []string
}

// Apply maps the declared constraints onto the vector. Unknown parameter
// references are configuration errors reported with the offending name.
func Apply(v *Vector, c Constraints, chains []*decay.Chain) error {
	if c.FixChainIdx != nil {
		idx := *c.FixChainIdx
		if idx < 0 || idx >= len(chains) {
			return fmt.Errorf("constraint: chain index %d out of range (%d chains)", idx, len(chains))
		}
		// The chain's own total phase carries no information once its
		// magnitude is constrained; fix the full complex total and let the
		// likelihood engine rescale it to meet the declared rate.
		total := chains[idx].TotalName()
		if err := v.Fix(total+"r", 1); err != nil {
			return fmt.Errorf("constraint fix_chain: %w", err)
		}
		if err := v.Fix(total+"i", 0); err != nil {
			return fmt.Errorf("constraint fix_chain: %w", err)
		}
	}
	for _, name := range c.Float {
		if !v.Has(name) {
			return fmt.Errorf("constraint float: unknown parameter %q", name)
		}
		val := v.Value(name)
		p := v.params[name]
		p.kind = kindFree
		p.value = val
		v.sealed = false
	}
	for name, val := range c.Fix {
		if err := v.Fix(name, val); err != nil {
			return fmt.Errorf("constraint fix: %w", err)
		}
	}
	for name, r := range c.Range {
		if err := v.SetRange(name, r[0], r[1]); err != nil {
			return fmt.Errorf("constraint range: %w", err)
		}
	}
	for _, group := range c.Equal {
		if len(group) < 2 {
			return fmt.Errorf("constraint equal: group needs at least two names, got %v", group)
		}
		for _, name := range group[1:] {
			if err := v.Alias(name, group[0]); err != nil {
				return fmt.Errorf("constraint equal: %w", err)
			}
		}
	}
	for name, val := range c.Init {
		if err := v.Set(name, val); err != nil {
			return fmt.Errorf("constraint init_params: %w", err)
		}
	}
	return nil
}
