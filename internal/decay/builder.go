package decay

import (
	"fmt"

	"github.com/zjrosen/pwfit/internal/lineshape"
	"github.com/zjrosen/pwfit/internal/log"
	"github.com/zjrosen/pwfit/internal/particle"
)

// BranchSpec is one alternative two-body split declared for a parent
// particle, plus its per-node options.
type BranchSpec struct {
	Children []string

	// LList restricts the orbital angular momentum values of the node.
	LList []int
	// Model overrides the parent particle's lineshape selector.
	Model string
	// AllowParityViolation skips the parity filter at this node.
	AllowParityViolation bool
	// SkipCParity disables the C-parity rule at this node.
	SkipCParity bool
	// BarrierRadius overrides the Blatt-Weisskopf radius, 0 for default.
	BarrierRadius float64
}

// GraphSpec is the declarative decay-graph description: a top particle, the
// fixed final state, and per-particle alternative splits.
type GraphSpec struct {
	Top    string
	Finals []string
	Decays map[string][]BranchSpec
}

// Build expands the graph into every distinct decay chain connecting the top
// particle to the final state, applying the selection rules at each node.
// Nodes with no admissible coupling prune their chain with a warning; an
// empty result is fatal.
func Build(reg *particle.Registry, spec GraphSpec) ([]*Chain, error) {
	top, err := reg.Get(spec.Top)
	if err != nil {
		return nil, fmt.Errorf("decay graph: %w", err)
	}
	finals := make([]*particle.Particle, len(spec.Finals))
	finalIdx := make(map[string]int, len(spec.Finals))
	for i, name := range spec.Finals {
		p, err := reg.Get(name)
		if err != nil {
			return nil, fmt.Errorf("decay graph: %w", err)
		}
		if _, dup := finalIdx[name]; dup {
			return nil, fmt.Errorf("decay graph: duplicate final state %q", name)
		}
		finals[i] = p
		finalIdx[name] = i
	}

	b := &builder{reg: reg, spec: spec, finalIdx: finalIdx}
	trees, err := b.expand(spec.Top)
	if err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("decay graph: no decay declared for top particle %q", spec.Top)
	}

	var chains []*Chain
	for _, tree := range trees {
		seen := make([]int, len(finals))
		for _, idx := range coveredFinals(tree) {
			seen[idx]++
		}
		for i, n := range seen {
			if n > 1 {
				return nil, fmt.Errorf(
					"decay graph: chain %s reaches final state %q %d times",
					chainLabel(tree), finals[i].Name, n)
			}
			if n == 0 {
				return nil, fmt.Errorf(
					"decay graph: chain %s never reaches final state %q",
					chainLabel(tree), finals[i].Name)
			}
		}
		chain := &Chain{Top: top, Finals: finals, Nodes: preorder(tree)}
		if pruned := emptyNode(chain); pruned != nil {
			log.Warn(log.CatTopo, "pruning chain with no admissible coupling",
				"chain", chain.Name(), "node", pruned.Name())
			continue
		}
		chains = append(chains, chain)
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("decay graph: selection rules exclude every decay chain")
	}
	log.Info(log.CatTopo, "decay chains built", "count", len(chains))
	return chains, nil
}

type builder struct {
	reg      *particle.Registry
	spec     GraphSpec
	finalIdx map[string]int
}

// expand returns every alternative subtree rooted at the named particle.
// Each returned tree is freshly built, so chains never share nodes.
func (b *builder) expand(name string) ([]*Node, error) {
	branches, ok := b.spec.Decays[name]
	if !ok {
		return nil, nil // leaf
	}
	parent, err := b.reg.Get(name)
	if err != nil {
		return nil, fmt.Errorf("decay graph: %w", err)
	}

	var out []*Node
	for _, br := range branches {
		if len(br.Children) != 2 {
			return nil, fmt.Errorf("decay graph: %s decays into %d particles, only two-body splits are supported",
				name, len(br.Children))
		}
		c0, err := b.child(br.Children[0])
		if err != nil {
			return nil, err
		}
		c1, err := b.child(br.Children[1])
		if err != nil {
			return nil, err
		}
		sub0, err := b.expand(br.Children[0])
		if err != nil {
			return nil, err
		}
		sub1, err := b.expand(br.Children[1])
		if err != nil {
			return nil, err
		}
		if sub0 == nil {
			sub0 = []*Node{nil}
		}
		if sub1 == nil {
			sub1 = []*Node{nil}
		}
		for _, s0 := range sub0 {
			for _, s1 := range sub1 {
				node, err := b.newNode(parent, [2]*particle.Particle{c0, c1}, [2]*Node{s0, s1}, br)
				if err != nil {
					return nil, err
				}
				out = append(out, node)
			}
		}
	}
	return out, nil
}

// child resolves a child reference: it must be a declared final state or a
// particle that decays further.
func (b *builder) child(name string) (*particle.Particle, error) {
	p, err := b.reg.Get(name)
	if err != nil {
		return nil, fmt.Errorf("decay graph: %w", err)
	}
	if _, isFinal := b.finalIdx[name]; !isFinal {
		if _, decays := b.spec.Decays[name]; !decays {
			return nil, fmt.Errorf("decay graph: %q is neither a final state nor a decaying particle", name)
		}
	}
	return p, nil
}

func (b *builder) newNode(parent *particle.Particle, children [2]*particle.Particle, subs [2]*Node, br BranchSpec) (*Node, error) {
	node := &Node{Parent: parent, Children: children, ChildNodes: subs}
	node.LS = AllowedLS(parent, children[0], children[1], RuleOptions{
		LList:                br.LList,
		AllowParityViolation: br.AllowParityViolation,
		SkipCParity:          br.SkipCParity,
	})
	for i := 0; i < 2; i++ {
		if subs[i] != nil {
			node.ChildFinals[i] = append(subs[i].ChildFinals[0], subs[i].ChildFinals[1]...)
		} else {
			node.ChildFinals[i] = []int{b.finalIdx[children[i].Name]}
		}
	}

	if parent.Role == particle.RoleIntermediate || (parent.Mass > 0 && parent.Width > 0 && b.spec.Top != parent.Name) {
		modelName := parent.Model
		if br.Model != "" {
			modelName = br.Model
		}
		shape, err := lineshape.New(modelName)
		if err != nil {
			return nil, fmt.Errorf("decay graph: node %s: %w", node.Name(), err)
		}
		node.Shape = shape
		minL := 0
		if len(node.LS) > 0 {
			minL = node.LS[0].L
		}
		node.ShapeCtx = lineshape.Context{
			Mass:          parent.Mass,
			Width:         parent.Width,
			L:             minL,
			DaughterMass1: children[0].Mass,
			DaughterMass2: children[1].Mass,
			BarrierRadius: br.BarrierRadius,
		}
	}
	return node, nil
}

// preorder flattens the node tree root first.
func preorder(n *Node) []*Node {
	out := []*Node{n}
	for _, c := range n.ChildNodes {
		if c != nil {
			out = append(out, preorder(c)...)
		}
	}
	return out
}

func coveredFinals(n *Node) []int {
	return append(append([]int{}, n.ChildFinals[0]...), n.ChildFinals[1]...)
}

func emptyNode(c *Chain) *Node {
	for _, n := range c.Nodes {
		if len(n.LS) == 0 {
			return n
		}
	}
	return nil
}

func chainLabel(n *Node) string {
	var sb []byte
	for _, node := range preorder(n) {
		sb = append(sb, node.Name()...)
	}
	return string(sb)
}
