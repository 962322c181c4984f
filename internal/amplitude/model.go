// Package amplitude evaluates the coherent per-event decay amplitude: for
// each chain, couplings and Wigner-D angular factors and lineshapes multiply
// along the nodes; hidden helicities sum coherently inside an event, and
// only directly observable spin projections sum incoherently at the end.
package amplitude

import (
	"math"
	"math/cmplx"

	"github.com/zjrosen/pwfit/internal/decay"
	"github.com/zjrosen/pwfit/internal/kinematics"
	"github.com/zjrosen/pwfit/internal/params"
	"github.com/zjrosen/pwfit/internal/wigner"
)

// Model evaluates the total differential rate of events under a set of decay
// chains. The chain structure and coupling-coefficient tables are built once;
// only the parameter vector changes between likelihood evaluations. A Model
// is safe for concurrent use with read-only parameter snapshots.
type Model struct {
	chains    []*decay.Chain
	tables    []*chainTable
	nodeIndex []map[*decay.Node]int
	remap     [][]int
	topSpins  []int
	totalDim  int
}

// New builds the evaluation tables for the chains. All chains must share
// the same top particle and final state.
func New(chains []*decay.Chain) *Model {
	m := &Model{
		chains:    chains,
		tables:    make([]*chainTable, len(chains)),
		nodeIndex: make([]map[*decay.Node]int, len(chains)),
		remap:     make([][]int, len(chains)),
	}
	for ci, c := range chains {
		m.tables[ci] = newChainTable(c)
		m.nodeIndex[ci] = make(map[*decay.Node]int, len(c.Nodes))
		for i, nd := range c.Nodes {
			m.nodeIndex[ci][nd] = i
		}
	}
	if len(chains) > 0 {
		m.topSpins = projections(int(chains[0].Top.J))
		m.totalDim = 1
		for _, d := range m.tables[0].dims {
			m.totalDim *= d
		}
		for ci := range chains {
			m.remap[ci] = treeToCanonical(m.tables[ci], m.tables[0].dims)
		}
	}
	return m
}

// SetTopSpins restricts the incoherent sum over the top particle's spin
// projections, given as doubled values. Used when the production mechanism
// populates only part of the spin states.
func (m *Model) SetTopSpins(doubled []int) {
	if len(doubled) > 0 {
		m.topSpins = append([]int(nil), doubled...)
	}
}

// Chains returns the chain list backing the model.
func (m *Model) Chains() []*decay.Chain { return m.chains }

// Intensity returns the total differential rate of one event: the squared
// coherent sum over chains and hidden helicities, summed incoherently over
// the top and final spin projections.
func (m *Model) Intensity(vec *params.Vector, ek *kinematics.EventKinematics) float64 {
	return m.IntensitySubset(vec, ek, nil)
}

// IntensitySubset evaluates the rate using only the listed chain indices;
// nil means all chains. Isolated-chain evaluations feed fit fractions and
// the chain normalization constraint.
func (m *Model) IntensitySubset(vec *params.Vector, ek *kinematics.EventKinematics, include []int) float64 {
	use := include
	if use == nil {
		use = allChainIndices(len(m.chains))
	}

	total := 0.0
	for _, tLambdaTop := range m.topSpins {
		sum := make([]complex128, m.totalDim)
		for _, ci := range use {
			coupling := vec.Complex(m.chains[ci].TotalName())
			if coupling == 0 {
				continue
			}
			amp := m.chainAmplitude(ci, vec, &ek.Chains[ci], tLambdaTop)
			for i := range sum {
				sum[i] += coupling * amp[i]
			}
		}
		for _, v := range sum {
			total += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	return total
}

// chainAmplitude returns the chain amplitude for a fixed top helicity as a
// vector over canonical final-helicity states, alignment included.
func (m *Model) chainAmplitude(ci int, vec *params.Vector, ck *kinematics.ChainKinematics, tLambdaTop int) []complex128 {
	e := &chainEval{
		model: m,
		ci:    ci,
		chain: m.chains[ci],
		table: m.tables[ci],
		vec:   vec,
		ck:    ck,
	}
	tree := e.nodeAmp(e.chain.Nodes[0], tLambdaTop)

	canon := make([]complex128, m.totalDim)
	remap := m.remap[ci]
	for i, v := range tree {
		canon[remap[i]] = v
	}
	if ci != 0 {
		e.applyAlignment(canon)
	}
	return canon
}

type chainEval struct {
	model *Model
	ci    int
	chain *decay.Chain
	table *chainTable
	vec   *params.Vector
	ck    *kinematics.ChainKinematics
}

// nodeAmp evaluates the subtree amplitude below nd for a fixed parent
// helicity, returning a vector over the subtree's leaf-helicity states in
// tree order (first child's leaves slowest). Hidden child helicities are
// summed coherently here.
func (e *chainEval) nodeAmp(nd *decay.Node, tLambdaP int) []complex128 {
	idx := e.model.nodeIndex[e.ci][nd]
	nt := e.table.nodes[idx]
	nk := e.ck.Nodes[idx]
	beta := math.Acos(nk.CosBeta)

	shape := complex(1, 0)
	if nd.Shape != nil {
		ctx := nd.ShapeCtx
		ctx.Mass = e.vec.Value(nd.Parent.Name + "_mass")
		ctx.Width = e.vec.Value(nd.Parent.Name + "_width")
		shape = nd.Shape.Eval(nk.Mass, ctx)
	}

	dim1 := e.subtreeDim(nd, 0)
	dim2 := e.subtreeDim(nd, 1)
	out := make([]complex128, dim1*dim2)
	if shape == 0 {
		return out
	}

	// Memoized child vectors: child one keyed by its helicity index inside
	// the outer loop, child two cached across the inner loop.
	child2 := make([][]complex128, len(nt.hel2))

	for i1, l1 := range nt.hel1 {
		var a1 []complex128
		for i2, l2 := range nt.hel2 {
			delta := l1 - l2
			if abs(delta) > nt.tJp {
				continue
			}
			var h complex128
			row := nt.coef[i1*len(nt.hel2)+i2]
			for k := range nd.LS {
				if row[k] != 0 {
					h += e.vec.Complex(nd.CouplingName(k)) * complex(row[k], 0)
				}
			}
			if h == 0 {
				continue
			}
			ang := cmplx.Conj(wigner.D(nt.tJp, tLambdaP, delta, nk.Alpha, beta, 0))
			factor := ang * h * shape
			if factor == 0 {
				continue
			}
			if a1 == nil {
				a1 = e.childAmp(nd, 0, l1)
			}
			if child2[i2] == nil {
				child2[i2] = e.childAmp(nd, 1, l2)
			}
			a2 := child2[i2]
			for x, vx := range a1 {
				if vx == 0 {
					continue
				}
				base := x * dim2
				fv := factor * vx
				for y, vy := range a2 {
					if vy != 0 {
						out[base+y] += fv * vy
					}
				}
			}
		}
	}
	return out
}

// childAmp returns the amplitude vector of one child for a fixed child
// helicity: the sub-decay amplitude for intermediates, a helicity basis
// vector for final-state leaves.
func (e *chainEval) childAmp(nd *decay.Node, c int, tLambda int) []complex128 {
	if nd.ChildNodes[c] != nil {
		return e.nodeAmp(nd.ChildNodes[c], tLambda)
	}
	dim := int(nd.Children[c].J) + 1
	out := make([]complex128, dim)
	out[(tLambda+int(nd.Children[c].J))/2] = 1
	return out
}

func (e *chainEval) subtreeDim(nd *decay.Node, c int) int {
	dim := 1
	for _, fi := range nd.ChildFinals[c] {
		dim *= e.table.dims[fi]
	}
	return dim
}

// applyAlignment rotates each final particle's helicity axis from this
// chain's frame into the reference chain's, contracting the canonical
// tensor with a Wigner-D matrix along that particle's axis.
func (e *chainEval) applyAlignment(canon []complex128) {
	dims := e.model.tables[0].dims
	for fi, dim := range dims {
		if dim == 1 {
			continue
		}
		al := e.ck.Align[fi]
		if al.Alpha == 0 && al.Gamma == 0 && al.CosBeta == 1 {
			continue
		}
		tj := dim - 1
		beta := math.Acos(al.CosBeta)
		proj := projections(tj)
		rot := make([][]complex128, dim)
		for a, la := range proj {
			rot[a] = make([]complex128, dim)
			for b, lb := range proj {
				rot[a][b] = cmplx.Conj(wigner.D(tj, la, lb, al.Alpha, beta, al.Gamma))
			}
		}
		contractAxis(canon, dims, fi, rot)
	}
}

// contractAxis replaces tensor values along axis fi with their rotation by
// rot: out[..., b, ...] = sum_a rot[a][b] * in[..., a, ...].
func contractAxis(t []complex128, dims []int, fi int, rot [][]complex128) {
	dim := dims[fi]
	inner := 1
	for i := fi + 1; i < len(dims); i++ {
		inner *= dims[i]
	}
	outer := len(t) / (dim * inner)

	buf := make([]complex128, dim)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*dim*inner + in
			for a := 0; a < dim; a++ {
				buf[a] = t[base+a*inner]
			}
			for b := 0; b < dim; b++ {
				var s complex128
				for a := 0; a < dim; a++ {
					s += rot[a][b] * buf[a]
				}
				t[base+b*inner] = s
			}
		}
	}
}

// treeToCanonical maps tree-order leaf-state indices onto canonical
// final-state indices, both row-major with the first position slowest.
func treeToCanonical(t *chainTable, dims []int) []int {
	total := 1
	for _, d := range dims {
		total *= d
	}
	out := make([]int, total)

	// Per-leaf value registers walked in tree order.
	vals := make([]int, len(dims))
	var fill func(pos int, treeIdx int)
	fill = func(pos int, treeIdx int) {
		if pos == len(t.leafOrder) {
			canon := 0
			for fi := 0; fi < len(dims); fi++ {
				canon = canon*dims[fi] + vals[fi]
			}
			out[treeIdx] = canon
			return
		}
		leaf := t.leafOrder[pos]
		for v := 0; v < dims[leaf]; v++ {
			vals[leaf] = v
			fill(pos+1, treeIdx*dims[leaf]+v)
		}
	}
	fill(0, 0)
	return out
}

func allChainIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
