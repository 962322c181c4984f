package amplitude

import (
	"math"

	"github.com/zjrosen/pwfit/internal/decay"
	"github.com/zjrosen/pwfit/internal/wigner"
)

// nodeTable precomputes, for one chain node, the LS-to-helicity conversion
// coefficients. The chain structure is shared by every event, so the
// Clebsch-Gordan work happens exactly once per chain.
type nodeTable struct {
	tJp int
	// hel1, hel2 are the doubled spin projections of the two children.
	hel1, hel2 []int
	// coef[i1*len(hel2)+i2][k] multiplies the k-th (l, s) coupling in the
	// helicity amplitude H_{lambda1 lambda2}.
	coef [][]float64
}

func newNodeTable(nd *decay.Node) *nodeTable {
	tJp := int(nd.Parent.J)
	tj1 := int(nd.Children[0].J)
	tj2 := int(nd.Children[1].J)

	t := &nodeTable{
		tJp:  tJp,
		hel1: projections(tj1),
		hel2: projections(tj2),
	}
	t.coef = make([][]float64, len(t.hel1)*len(t.hel2))
	for i1, l1 := range t.hel1 {
		for i2, l2 := range t.hel2 {
			row := make([]float64, len(nd.LS))
			delta := l1 - l2
			if abs(delta) <= tJp {
				for k, ls := range nd.LS {
					// sqrt((2l+1)/(2J+1)) <l 0 s d | J d> <j1 l1 j2 -l2 | s d>
					norm := math.Sqrt(float64(2*ls.L+1) / float64(tJp+1))
					row[k] = norm *
						wigner.CG(2*ls.L, 0, ls.TS, delta, tJp, delta) *
						wigner.CG(tj1, l1, tj2, -l2, ls.TS, delta)
				}
			}
			t.coef[i1*len(t.hel2)+i2] = row
		}
	}
	return t
}

// chainTable bundles the per-node tables and the leaf bookkeeping of one
// chain: the order in which finals appear in the tree and the dimensions of
// their helicity spaces.
type chainTable struct {
	nodes []*nodeTable
	// leafOrder is the final-state index sequence in tree order.
	leafOrder []int
	// dims[i] is 2J+1 of final i, indexed canonically.
	dims []int
}

func newChainTable(c *decay.Chain) *chainTable {
	t := &chainTable{
		nodes: make([]*nodeTable, len(c.Nodes)),
		dims:  make([]int, len(c.Finals)),
	}
	for i, nd := range c.Nodes {
		t.nodes[i] = newNodeTable(nd)
	}
	for i, f := range c.Finals {
		t.dims[i] = int(f.J) + 1
	}
	root := c.Nodes[0]
	t.leafOrder = append(append([]int{}, root.ChildFinals[0]...), root.ChildFinals[1]...)
	return t
}

// projections lists doubled spin projections -tj..tj in steps of two.
func projections(tj int) []int {
	out := make([]int, 0, tj+1)
	for m := -tj; m <= tj; m += 2 {
		out = append(out, m)
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
