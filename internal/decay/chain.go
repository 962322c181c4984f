// Package decay expands a declarative decay-graph description into the set
// of concrete decay chains allowed by angular-momentum and parity selection
// rules. Chains are built once and never structurally mutated; only the
// coupling values attached to their parameter names change during a fit.
package decay

import (
	"fmt"
	"strings"

	"github.com/zjrosen/pwfit/internal/lineshape"
	"github.com/zjrosen/pwfit/internal/particle"
)

// LS is one admissible orbital/total-spin coupling of a node. L is the
// orbital angular momentum (a plain integer), TS the doubled total spin of
// the two children.
type LS struct {
	L  int
	TS int
}

// Node is one two-body split of a chain: a parent particle decaying into an
// ordered pair of children. Each child is either a final-state leaf or an
// intermediate resonance that decays further at ChildNodes.
type Node struct {
	Parent   *particle.Particle
	Children [2]*particle.Particle

	// ChildNodes holds the sub-decay of each intermediate child, nil for
	// final-state leaves.
	ChildNodes [2]*Node

	// ChildFinals lists, per child, the indices into the chain's final
	// state covered by that child's subtree.
	ChildFinals [2][]int

	// LS holds the admissible couplings in deterministic (l, s) order.
	// One complex coupling parameter slot exists per entry.
	LS []LS

	// Shape evaluates the parent's propagator when the parent is an
	// intermediate resonance; nil at the top node.
	Shape lineshape.Model

	// ShapeCtx carries the node geometry for Shape. Mass and Width are
	// overwritten from the parameter vector at evaluation time.
	ShapeCtx lineshape.Context
}

// Name returns the deterministic node identifier, e.g. "A->R_CD.B".
func (n *Node) Name() string {
	return fmt.Sprintf("%s->%s.%s", n.Parent.Name, n.Children[0].Name, n.Children[1].Name)
}

// CouplingName returns the parameter base name of the i-th (l, s) coupling,
// e.g. "A->R_CD.B_g_ls_0". The real and imaginary parts append "r" and "i".
func (n *Node) CouplingName(i int) string {
	return fmt.Sprintf("%s_g_ls_%d", n.Name(), i)
}

// Chain is one concrete tree of sequential two-body decays from the top
// particle to the shared final state.
type Chain struct {
	Top    *particle.Particle
	Finals []*particle.Particle

	// Nodes in pre-order; Nodes[0].Parent is Top.
	Nodes []*Node
}

// Name concatenates the node names, matching the naming used for the chain
// normalization parameter, e.g. "A->R_CD.BR_CD->C.D".
func (c *Chain) Name() string {
	var sb strings.Builder
	for _, n := range c.Nodes {
		sb.WriteString(n.Name())
	}
	return sb.String()
}

// TotalName returns the base name of the per-chain complex normalization
// parameter, e.g. "A->R_CD.BR_CD->C.D_total_0".
func (c *Chain) TotalName() string {
	return c.Name() + "_total_0"
}

// Resonances returns the distinct intermediate particles of the chain in
// node order.
func (c *Chain) Resonances() []*particle.Particle {
	var out []*particle.Particle
	seen := map[string]bool{}
	for _, n := range c.Nodes[1:] {
		if !seen[n.Parent.Name] {
			seen[n.Parent.Name] = true
			out = append(out, n.Parent)
		}
	}
	return out
}

// ParameterNames lists every free-parameter base name the chain exposes:
// the chain total, one coupling per admissible (l, s) pair per node, and
// mass/width for each resonance. Complex parameters append "r"/"i".
func (c *Chain) ParameterNames() []string {
	names := []string{c.TotalName()}
	for _, n := range c.Nodes {
		for i := range n.LS {
			names = append(names, n.CouplingName(i))
		}
	}
	for _, r := range c.Resonances() {
		names = append(names, r.Name+"_mass", r.Name+"_width")
	}
	return names
}
