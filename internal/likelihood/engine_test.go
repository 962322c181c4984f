package likelihood

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/optimize"

	"github.com/zjrosen/pwfit/internal/amplitude"
	"github.com/zjrosen/pwfit/internal/dataio"
	"github.com/zjrosen/pwfit/internal/decay"
	"github.com/zjrosen/pwfit/internal/kinematics"
	"github.com/zjrosen/pwfit/internal/params"
	"github.com/zjrosen/pwfit/internal/testutil"
)

func prepSample(t *testing.T, chains []*decay.Chain, role dataio.Role, n int, seed int64) *PreparedSample {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	events := testutil.GenThreeBody(rng, n)
	kin, kept, err := kinematics.PrepareSample(chains, events, kinematics.Options{})
	require.NoError(t, err)
	require.Len(t, kept, n)
	return &PreparedSample{
		Name:    role.String(),
		Role:    role,
		Kin:     kin,
		Weights: dataio.UnitWeights(n),
	}
}

type fixture struct {
	chains []*decay.Chain
	model  *amplitude.Model
	vec    *params.Vector
	data   *PreparedSample
	phsp   *PreparedSample
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chains := testutil.ThreeBodyChains(t)
	return &fixture{
		chains: chains,
		model:  amplitude.New(chains),
		vec:    params.BuildVector(chains),
		data:   prepSample(t, chains, dataio.RoleData, 60, 1),
		phsp:   prepSample(t, chains, dataio.RolePhsp, 150, 2),
	}
}

func (f *fixture) config() Config {
	return Config{Model: f.model, Vec: f.vec, Data: f.data, Phsp: f.phsp}
}

// TestNewEngine_Validation verifies the sample-set checks.
func TestNewEngine_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewEngine(Config{Vec: f.vec, Data: f.data, Phsp: f.phsp})
	require.ErrorContains(t, err, "model and parameter vector")

	_, err = NewEngine(Config{Model: f.model, Vec: f.vec, Phsp: f.phsp})
	require.ErrorContains(t, err, "data sample is empty")

	_, err = NewEngine(Config{Model: f.model, Vec: f.vec, Data: f.data})
	require.ErrorContains(t, err, "phase-space sample is empty")

	e, err := NewEngine(f.config())
	require.NoError(t, err)
	require.Same(t, f.vec, e.Vector())
}

// TestNLL verifies the likelihood is finite, deterministic, and published
// through the progress broker.
func TestNLL(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.config())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := e.Progress().Subscribe(ctx)

	nll, err := e.NLL(ctx, nil)
	require.NoError(t, err)
	require.False(t, math.IsNaN(nll))
	require.False(t, math.IsInf(nll, 0))

	again, err := e.NLL(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, nll, again)

	select {
	case ev := <-ch:
		require.Equal(t, 1, ev.Payload.Eval)
		require.Equal(t, nll, ev.Payload.NLL)
	case <-time.After(time.Second):
		require.Fail(t, "no progress event published")
	}
}

// TestNLL_SetsFreeValues verifies an explicit point is written back before
// evaluation.
func TestNLL_SetsFreeValues(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.config())
	require.NoError(t, err)
	ctx := context.Background()

	x := f.vec.FreeValues()
	x[0] = 1.7
	_, err = e.NLL(ctx, x)
	require.NoError(t, err)
	require.Equal(t, 1.7, f.vec.FreeValues()[0])

	_, err = e.NLL(ctx, x[:2])
	require.ErrorContains(t, err, "free vector length")
}

// TestNLL_ZeroBgWeight verifies a declared sideband with zero weight leaves
// the likelihood identical to the signal-only one.
func TestNLL_ZeroBgWeight(t *testing.T) {
	f := newFixture(t)
	plain, err := NewEngine(f.config())
	require.NoError(t, err)

	cfg := f.config()
	cfg.Bg = prepSample(t, f.chains, dataio.RoleBg, 40, 3)
	cfg.BgWeight = 0
	withBg, err := NewEngine(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := plain.NLL(ctx, nil)
	require.NoError(t, err)
	b, err := withBg.NLL(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

// TestNLL_BgSubtraction verifies the sideband term against the explicit
// formula built from the engine's own pieces.
func TestNLL_BgSubtraction(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.Bg = prepSample(t, f.chains, dataio.RoleBg, 40, 3)
	cfg.BgWeight = 0.7
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	nll, err := e.NLL(ctx, nil)
	require.NoError(t, err)

	logData, err := e.weightedLogSum(ctx, cfg.Data)
	require.NoError(t, err)
	logBg, err := e.weightedLogSum(ctx, cfg.Bg)
	require.NoError(t, err)
	norm, err := e.normIntegral(ctx, nil)
	require.NoError(t, err)
	nEff := cfg.Data.SumWeights() - 0.7*cfg.Bg.SumWeights()
	want := -(logData - 0.7*logBg - nEff*math.Log(norm))
	require.InDelta(t, want, nll, 1e-9*math.Abs(want))
}

// TestNLL_ChainNormConstraint verifies the constrained chain's standalone
// integrated rate meets the declared value regardless of the other chains.
func TestNLL_ChainNormConstraint(t *testing.T) {
	f := newFixture(t)
	idx := 0
	require.NoError(t, params.Apply(f.vec, params.Constraints{FixChainIdx: &idx, FixChainVal: 2.5}, f.chains))

	cfg := f.config()
	cfg.FixChainIdx = &idx
	cfg.FixChainVal = 2.5
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.NLL(ctx, nil)
	require.NoError(t, err)
	iso, err := e.normIntegral(ctx, []int{0})
	require.NoError(t, err)
	require.InDelta(t, 2.5, iso, 1e-9)

	// Perturb the other chains and re-evaluate: the constraint holds.
	other := f.chains[1].TotalName()
	require.NoError(t, f.vec.Set(other+"r", 0.3))
	require.NoError(t, f.vec.Set(other+"i", -1.1))
	_, err = e.NLL(ctx, nil)
	require.NoError(t, err)
	iso, err = e.normIntegral(ctx, []int{0})
	require.NoError(t, err)
	require.InDelta(t, 2.5, iso, 1e-9)
}

// TestNLL_DensityError verifies a dead parameter point aborts the evaluation
// with event context.
func TestNLL_DensityError(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.config())
	require.NoError(t, err)
	for _, c := range f.chains {
		require.NoError(t, f.vec.Set(c.TotalName()+"r", 0))
		require.NoError(t, f.vec.Set(c.TotalName()+"i", 0))
	}

	_, err = e.NLL(context.Background(), nil)
	var derr *DensityError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, "data", derr.Sample)
	require.GreaterOrEqual(t, derr.Event, 0)
	require.NotNil(t, derr.Params)
	require.Contains(t, derr.Error(), "non-positive density")
}

// TestNLL_DensityErrorSourceIndex verifies the reported event index points at
// the loaded sample row, not the post-skip kinematics row.
func TestNLL_DensityErrorSourceIndex(t *testing.T) {
	f := newFixture(t)
	// Pretend rows 0..6 of the file were dropped during preparation.
	f.data.Src = make([]int, len(f.data.Kin))
	for i := range f.data.Src {
		f.data.Src[i] = i + 7
	}

	cfg := f.config()
	cfg.Workers = 1
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	for _, c := range f.chains {
		require.NoError(t, f.vec.Set(c.TotalName()+"r", 0))
		require.NoError(t, f.vec.Set(c.TotalName()+"i", 0))
	}

	_, err = e.NLL(context.Background(), nil)
	var derr *DensityError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, 7, derr.Event)
}

// TestPreparedSample_SourceIndex verifies the identity fallback and the
// explicit mapping.
func TestPreparedSample_SourceIndex(t *testing.T) {
	s := &PreparedSample{}
	require.Equal(t, 3, s.SourceIndex(3))

	s.Src = []int{0, 2, 5}
	require.Equal(t, 0, s.SourceIndex(0))
	require.Equal(t, 5, s.SourceIndex(2))
}

// TestNormIntegral_Inject verifies the injected-MC blend against the two
// component integrals.
func TestNormIntegral_Inject(t *testing.T) {
	f := newFixture(t)
	inmc := prepSample(t, f.chains, dataio.RoleInMC, 80, 5)

	cfg := f.config()
	cfg.InMC = inmc
	cfg.InjectRatio = 0.25
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	phspMean, err := e.weightedRateMean(ctx, f.phsp, nil)
	require.NoError(t, err)
	inmcMean, err := e.weightedRateMean(ctx, inmc, nil)
	require.NoError(t, err)

	norm, err := e.normIntegral(ctx, nil)
	require.NoError(t, err)
	require.InDelta(t, 0.75*phspMean+0.25*inmcMean, norm, 1e-12)

	// Ratio zero short-circuits to the plain phase-space integral.
	cfg.InjectRatio = 0
	e2, err := NewEngine(cfg)
	require.NoError(t, err)
	norm, err = e2.normIntegral(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, phspMean, norm)
}

// TestDensities verifies the exported densities are normalized: their
// weighted mean over the integration sample is one.
func TestDensities(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.config())
	require.NoError(t, err)

	dens, err := e.Densities(context.Background(), f.phsp)
	require.NoError(t, err)
	require.Len(t, dens, len(f.phsp.Kin))

	var mean float64
	for _, d := range dens {
		require.Greater(t, d, 0.0)
		mean += d
	}
	mean /= float64(len(dens))
	require.InDelta(t, 1.0, mean, 1e-9)
}

// TestFitFractions verifies the per-chain shares: positive, finite, and
// exactly one for a chain evaluated in isolation.
func TestFitFractions(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.config())
	require.NoError(t, err)
	ctx := context.Background()

	fractions, err := e.FitFractions(ctx)
	require.NoError(t, err)
	require.Len(t, fractions, len(f.chains))
	for _, fr := range fractions {
		require.Greater(t, fr, 0.0)
		require.False(t, math.IsNaN(fr))
	}

	// Switch off all but chain 0: its fraction becomes exactly one.
	for _, c := range f.chains[1:] {
		require.NoError(t, f.vec.Set(c.TotalName()+"r", 0))
		require.NoError(t, f.vec.Set(c.TotalName()+"i", 0))
	}
	fractions, err = e.FitFractions(ctx)
	require.NoError(t, err)
	require.InDelta(t, 1.0, fractions[0], 1e-12)
	require.InDelta(t, 0.0, fractions[1], 1e-12)
	require.InDelta(t, 0.0, fractions[2], 1e-12)
}

// TestFitFractions_UsesNoEffSample verifies the efficiency-free sample wins
// the integration when declared.
func TestFitFractions_UsesNoEffSample(t *testing.T) {
	f := newFixture(t)
	noeff := prepSample(t, f.chains, dataio.RolePhspNoEff, 120, 9)

	cfg := f.config()
	cfg.PhspNoEff = noeff
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := e.FitFractions(ctx)
	require.NoError(t, err)

	total, err := e.weightedRateMean(ctx, noeff, nil)
	require.NoError(t, err)
	iso, err := e.weightedRateMean(ctx, noeff, []int{0})
	require.NoError(t, err)
	require.InDelta(t, iso/total, got[0], 1e-12)
}

// TestGrad verifies the finite-difference gradient is filled and finite at a
// healthy point.
func TestGrad(t *testing.T) {
	f := newFixture(t)
	e, err := NewEngine(f.config())
	require.NoError(t, err)

	x := f.vec.FreeValues()
	grad := make([]float64, len(x))
	e.Grad(context.Background(), grad, x)

	var nonzero bool
	for i, g := range grad {
		require.False(t, math.IsNaN(g), "grad[%d]", i)
		require.False(t, math.IsInf(g, 0), "grad[%d]", i)
		if g != 0 {
			nonzero = true
		}
	}
	require.True(t, nonzero, "gradient vanishes identically")
}

// TestParallelReduce_Workers verifies worker counts do not change the sum.
func TestParallelReduce_Workers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var values []float64
	for _, workers := range []int{1, 3, 16} {
		cfg := f.config()
		cfg.Workers = workers
		e, err := NewEngine(cfg)
		require.NoError(t, err)
		nll, err := e.NLL(ctx, nil)
		require.NoError(t, err)
		values = append(values, nll)
	}
	require.InDelta(t, values[0], values[1], 1e-9)
	require.InDelta(t, values[0], values[2], 1e-9)
}

// TestPreparedSample_SumWeights verifies the weight total.
func TestPreparedSample_SumWeights(t *testing.T) {
	s := &PreparedSample{Weights: []float64{0.5, 1.5, 2}}
	require.Equal(t, 4.0, s.SumWeights())
}

// TestFit_ThreeBodyEndToEnd minimizes the full three-resonance likelihood on
// toy samples: signal plus sideband with subtraction, chain 0 pinned to unit
// integrated rate, BFGS over the free couplings. The fit must improve the
// likelihood and yield per-chain fractions inside the unit interval.
func TestFit_ThreeBodyEndToEnd(t *testing.T) {
	f := newFixture(t)
	idx := 0
	require.NoError(t, params.Apply(f.vec, params.Constraints{FixChainIdx: &idx, FixChainVal: 1.0}, f.chains))

	cfg := f.config()
	cfg.Bg = prepSample(t, f.chains, dataio.RoleBg, 20, 3)
	cfg.BgWeight = 0.731
	cfg.FixChainIdx = &idx
	cfg.FixChainVal = 1.0
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	x0 := f.vec.FreeValues()
	require.NotEmpty(t, x0)
	initial, err := e.NLL(ctx, x0)
	require.NoError(t, err)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			nll, err := e.NLL(ctx, x)
			if err != nil {
				return math.Inf(1)
			}
			return nll
		},
		Grad: func(grad, x []float64) {
			e.Grad(ctx, grad, x)
		},
	}
	result, _ := optimize.Minimize(problem, x0, &optimize.Settings{MajorIterations: 30}, &optimize.BFGS{})
	require.NotNil(t, result)
	require.False(t, math.IsNaN(result.F))
	require.False(t, math.IsInf(result.F, 0))

	require.NoError(t, f.vec.SetFreeValues(result.X))
	final, err := e.NLL(ctx, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, final, initial+1e-9)

	// The constraint survives the minimization.
	iso, err := e.normIntegral(ctx, []int{0})
	require.NoError(t, err)
	require.InDelta(t, 1.0, iso, 1e-9)

	fractions, err := e.FitFractions(ctx)
	require.NoError(t, err)
	require.Len(t, fractions, len(f.chains))
	var sum float64
	for ci, fr := range fractions {
		require.Greater(t, fr, 0.0, "chain %d", ci)
		require.Less(t, fr, 1.0, "chain %d", ci)
		sum += fr
	}
	// Interference keeps the sum near, not exactly at, one.
	require.InDelta(t, 1.0, sum, 0.25)
}
