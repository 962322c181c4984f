package params_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pwfit/internal/params"
	"github.com/zjrosen/pwfit/internal/testutil"
)

// TestVector_RegisterSetValue verifies basic registration and value flow.
func TestVector_RegisterSetValue(t *testing.T) {
	v := params.NewVector()
	v.Register("a", 1.5)
	v.Register("b", -2)
	v.RegisterComplex("c", 1, 0)

	// Re-registration keeps the first value.
	v.Register("a", 99)
	require.Equal(t, 1.5, v.Value("a"))

	require.NoError(t, v.Set("a", 3))
	require.Equal(t, 3.0, v.Value("a"))
	require.Equal(t, complex(1, 0), v.Complex("c"))

	require.True(t, v.Has("cr"))
	require.True(t, math.IsNaN(v.Value("missing")))
	require.Error(t, v.Set("missing", 1))

	require.Equal(t, []string{"a", "b", "cr", "ci"}, v.FreeNames())
	require.Equal(t, 4, v.NFree())
}

// TestVector_Fix verifies fixed parameters leave the free vector and refuse
// ordinary writes.
func TestVector_Fix(t *testing.T) {
	v := params.NewVector()
	v.Register("a", 1)
	v.Register("b", 2)

	require.NoError(t, v.Fix("b", 7))
	require.Equal(t, 7.0, v.Value("b"))
	require.Equal(t, []string{"a"}, v.FreeNames())

	err := v.Set("b", 1)
	require.ErrorContains(t, err, "fixed")

	// SetRaw bypasses the fix for evaluation-time rescaling.
	v.SetRaw("b", 3.5)
	require.Equal(t, 3.5, v.Value("b"))
	v.SetRaw("missing", 1) // no-op

	require.Error(t, v.Fix("missing", 0))
}

// TestVector_Alias verifies aliased parameters track their source.
func TestVector_Alias(t *testing.T) {
	v := params.NewVector()
	v.Register("src", 1)
	v.Register("dup", 2)
	v.Register("dup2", 3)

	require.NoError(t, v.Alias("dup", "src"))
	require.NoError(t, v.Alias("dup2", "dup"))

	require.NoError(t, v.Set("src", 5))
	require.Equal(t, 5.0, v.Value("dup"))
	require.Equal(t, 5.0, v.Value("dup2"))

	// Writes through the alias land on the source.
	require.NoError(t, v.Set("dup2", -1))
	require.Equal(t, -1.0, v.Value("src"))

	require.Equal(t, []string{"src"}, v.FreeNames())

	require.Error(t, v.Alias("src", "src"))
	require.Error(t, v.Alias("src", "missing"))
}

// TestVector_FreeValues verifies the reduced vector round trip and bounds.
func TestVector_FreeValues(t *testing.T) {
	v := params.NewVector()
	v.Register("a", 1)
	v.Register("b", 2)
	v.Register("c", 3)
	require.NoError(t, v.Fix("b", 2))
	require.NoError(t, v.SetRange("c", -5, 5))

	require.Equal(t, []float64{1, 3}, v.FreeValues())
	require.NoError(t, v.SetFreeValues([]float64{10, 30}))
	require.Equal(t, 10.0, v.Value("a"))
	require.Equal(t, 30.0, v.Value("c"))

	require.Error(t, v.SetFreeValues([]float64{1}))

	mins, maxs := v.Ranges()
	require.Equal(t, []float64{math.Inf(-1), -5}, mins)
	require.Equal(t, []float64{math.Inf(1), 5}, maxs)

	require.Error(t, v.SetRange("c", 2, 1))
}

// TestBuildVector verifies the chain-derived parameter set: unit couplings,
// fixed resonance shape parameters, shared resonances collapsed.
func TestBuildVector(t *testing.T) {
	chains := testutil.ThreeBodyChains(t)
	v := params.BuildVector(chains)

	for _, c := range chains {
		require.Equal(t, complex(1, 0), v.Complex(c.TotalName()))
		for _, n := range c.Nodes {
			for i := range n.LS {
				require.Equal(t, complex(1, 0), v.Complex(n.CouplingName(i)))
			}
		}
	}

	require.Equal(t, 4.16, v.Value("R_BC_mass"))
	require.Equal(t, 0.07, v.Value("R_BC_width"))
	err := v.Set("R_BC_mass", 4.2)
	require.ErrorContains(t, err, "fixed")

	// Free set: totals and couplings only.
	for _, name := range v.FreeNames() {
		require.NotContains(t, name, "_mass")
		require.NotContains(t, name, "_width")
	}
}

// TestApply verifies the constraint mapping onto the vector.
func TestApply(t *testing.T) {
	chains := testutil.ThreeBodyChains(t)

	t.Run("fix chain", func(t *testing.T) {
		v := params.BuildVector(chains)
		idx := 0
		err := params.Apply(v, params.Constraints{FixChainIdx: &idx, FixChainVal: 1}, chains)
		require.NoError(t, err)
		total := chains[0].TotalName()
		require.Error(t, v.Set(total+"r", 2))
		require.Error(t, v.Set(total+"i", 2))
		require.Equal(t, complex(1, 0), v.Complex(total))
	})

	t.Run("fix chain out of range", func(t *testing.T) {
		v := params.BuildVector(chains)
		idx := 12
		err := params.Apply(v, params.Constraints{FixChainIdx: &idx}, chains)
		require.ErrorContains(t, err, "out of range")
	})

	t.Run("float mass", func(t *testing.T) {
		v := params.BuildVector(chains)
		err := params.Apply(v, params.Constraints{Float: []string{"R_BC_mass"}}, chains)
		require.NoError(t, err)
		require.Contains(t, v.FreeNames(), "R_BC_mass")
		require.NoError(t, v.Set("R_BC_mass", 4.2))
	})

	t.Run("float unknown", func(t *testing.T) {
		v := params.BuildVector(chains)
		err := params.Apply(v, params.Constraints{Float: []string{"nope"}}, chains)
		require.ErrorContains(t, err, "unknown parameter")
	})

	t.Run("equal groups", func(t *testing.T) {
		v := params.BuildVector(chains)
		a := chains[0].Nodes[0].CouplingName(0)
		b := chains[1].Nodes[0].CouplingName(0)
		err := params.Apply(v, params.Constraints{Equal: [][]string{{a + "r", b + "r"}}}, chains)
		require.NoError(t, err)
		require.NoError(t, v.Set(a+"r", 0.25))
		require.Equal(t, 0.25, v.Value(b+"r"))

		err = params.Apply(v, params.Constraints{Equal: [][]string{{a + "r"}}}, chains)
		require.ErrorContains(t, err, "at least two names")
	})

	t.Run("init and range", func(t *testing.T) {
		v := params.BuildVector(chains)
		name := chains[0].Nodes[1].CouplingName(0) + "r"
		err := params.Apply(v, params.Constraints{
			Init:  map[string]float64{name: 0.5},
			Range: map[string][2]float64{name: {-1, 1}},
		}, chains)
		require.NoError(t, err)
		require.Equal(t, 0.5, v.Value(name))
	})

	t.Run("fix unknown", func(t *testing.T) {
		v := params.BuildVector(chains)
		err := params.Apply(v, params.Constraints{Fix: map[string]float64{"nope": 1}}, chains)
		require.ErrorContains(t, err, "unknown parameter")
	})
}

// TestSaveLoadJSON verifies a save/load round trip restores every parameter
// value bit for bit.
func TestSaveLoadJSON(t *testing.T) {
	chains := testutil.ThreeBodyChains(t)
	v := params.BuildVector(chains)

	// Scatter irrational values across the free parameters.
	free := v.FreeValues()
	for i := range free {
		free[i] = math.Sqrt(float64(i) + 2.0/7.0)
	}
	require.NoError(t, v.SetFreeValues(free))

	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, v.SaveJSON(path))

	restored := params.BuildVector(chains)
	require.NoError(t, restored.LoadJSON(path))
	require.Equal(t, v.Snapshot(), restored.Snapshot())
	require.Equal(t, v.FreeValues(), restored.FreeValues())
}

// TestLoadJSON_UnknownNames verifies unknown names are skipped, not fatal.
func TestLoadJSON_UnknownNames(t *testing.T) {
	v := params.NewVector()
	v.Register("kept", 0)

	path := filepath.Join(t.TempDir(), "params.json")
	other := params.NewVector()
	other.Register("kept", 3.25)
	other.Register("dropped", 9)
	require.NoError(t, other.SaveJSON(path))

	require.NoError(t, v.LoadJSON(path))
	require.Equal(t, 3.25, v.Value("kept"))
	require.False(t, v.Has("dropped"))
}
