package lineshape

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestNew verifies model resolution, the default selection and unknown names.
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		want    string
		wantErr bool
	}{
		{name: "default is BWR", model: "", want: "BWR"},
		{name: "simple BW", model: "BW", want: "BW"},
		{name: "constant", model: "one", want: "one"},
		{name: "unknown", model: "flatte", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.model)
			if tt.wantErr {
				require.ErrorContains(t, err, "unknown lineshape model")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, m.Name())
		})
	}
}

// TestNames verifies every built-in model is registered.
func TestNames(t *testing.T) {
	names := Names()
	require.Contains(t, names, "one")
	require.Contains(t, names, "BW")
	require.Contains(t, names, "BWR")
	require.IsIncreasing(t, names)
}

// TestRelativeMomentum verifies the breakup momentum formula and its
// threshold behavior.
func TestRelativeMomentum(t *testing.T) {
	// Equal massless daughters carry half the parent mass each.
	require.InDelta(t, 0.5, RelativeMomentum(1, 0, 0), 1e-12)

	// At threshold and below, the momentum vanishes.
	require.Equal(t, 0.0, RelativeMomentum(1.0, 0.6, 0.4))
	require.Equal(t, 0.0, RelativeMomentum(0.9, 0.6, 0.4))
	require.Equal(t, 0.0, RelativeMomentum(0, 0.1, 0.1))

	rapid.Check(t, func(t *rapid.T) {
		m1 := rapid.Float64Range(0, 2).Draw(t, "m1")
		m2 := rapid.Float64Range(0, 2).Draw(t, "m2")
		m := rapid.Float64Range(m1+m2+1e-6, m1+m2+5).Draw(t, "m")
		q := RelativeMomentum(m, m1, m2)
		require.Greater(t, q, 0.0)
		// Energies of the daughters add back to the parent mass.
		e1 := math.Sqrt(m1*m1 + q*q)
		e2 := math.Sqrt(m2*m2 + q*q)
		require.InDelta(t, m, e1+e2, 1e-6*m)
	})
}

// TestOne verifies the constant lineshape.
func TestOne(t *testing.T) {
	m, err := New("one")
	require.NoError(t, err)
	require.Equal(t, complex(1, 0), m.Eval(1.23, Context{}))
	require.Equal(t, complex(1, 0), m.Eval(-5, Context{}))
}

// TestBW verifies the simple Breit-Wigner pole structure.
func TestBW(t *testing.T) {
	m, err := New("BW")
	require.NoError(t, err)
	ctx := Context{Mass: 3.0, Width: 0.1}

	// At the pole mass the real part of the denominator vanishes, leaving
	// a purely imaginary amplitude i/(m0*g0).
	v := m.Eval(3.0, ctx)
	require.InDelta(t, 0, real(v), 1e-12)
	require.InDelta(t, 1/(3.0*0.1), imag(v), 1e-12)

	// Far below the pole the amplitude is approximately real and positive.
	v = m.Eval(1.0, ctx)
	require.Greater(t, real(v), 0.0)
	require.Greater(t, math.Abs(real(v)), math.Abs(imag(v)))
}

// TestBWR verifies the relativistic Breit-Wigner with barrier factors.
func TestBWR(t *testing.T) {
	m, err := New("BWR")
	require.NoError(t, err)
	ctx := Context{
		Mass:          2.42,
		Width:         0.03,
		L:             1,
		DaughterMass1: 2.01,
		DaughterMass2: 0.14,
	}

	// At the pole mass the mass-dependent width reduces to m0*g0 exactly:
	// q = q0 cancels the momentum ratio and the barrier factor.
	v := m.Eval(ctx.Mass, ctx)
	require.InDelta(t, 0, real(v), 1e-12)
	require.InDelta(t, 1/(ctx.Mass*ctx.Width), imag(v), 1e-9)

	// Below the daughter threshold the propagator is defined and zero.
	require.Equal(t, complex(0, 0), m.Eval(2.0, ctx))
	require.Equal(t, complex(0, 0), m.Eval(-1, ctx))

	// The magnitude peaks near the pole.
	peak := complexAbs(m.Eval(ctx.Mass, ctx))
	require.Greater(t, peak, complexAbs(m.Eval(ctx.Mass+0.2, ctx)))
	require.Greater(t, peak, complexAbs(m.Eval(ctx.Mass-0.2, ctx)))
}

// TestBWR_BarrierRadius verifies the radius override changes the tails but
// not the pole.
func TestBWR_BarrierRadius(t *testing.T) {
	m, err := New("BWR")
	require.NoError(t, err)
	base := Context{Mass: 2.42, Width: 0.03, L: 2, DaughterMass1: 2.01, DaughterMass2: 0.14}
	wide := base
	wide.BarrierRadius = 5.0

	require.InDelta(t,
		complexAbs(m.Eval(base.Mass, base)),
		complexAbs(m.Eval(wide.Mass, wide)), 1e-9)
	require.NotEqual(t,
		m.Eval(3.2, base),
		m.Eval(3.2, wide))
}

// TestBprimePoly verifies the barrier polynomial table.
func TestBprimePoly(t *testing.T) {
	require.Equal(t, 1.0, bprimePoly(0, 7.3))
	require.Equal(t, 1+2.0, bprimePoly(1, 2.0))
	require.Equal(t, 4.0+3*2+9, bprimePoly(2, 2.0))
	// Orders beyond the table clamp to the highest entry.
	require.Equal(t, bprimePoly(5, 2.0), bprimePoly(9, 2.0))
	require.Equal(t, bprimePoly(0, 1.0), bprimePoly(-1, 1.0))
}

func complexAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
