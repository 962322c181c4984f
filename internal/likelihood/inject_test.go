package likelihood

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestNewInjectStrategy verifies name resolution and the default.
func TestNewInjectStrategy(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "default", in: "", want: "blend"},
		{name: "blend", in: "blend", want: "blend"},
		{name: "reweight", in: "reweight", want: "reweight"},
		{name: "unknown", in: "mixture", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewInjectStrategy(tt.in)
			if tt.wantErr {
				require.ErrorContains(t, err, "unknown inject strategy")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, s.Name())
		})
	}
}

// TestInjectStrategies verifies both blends interpolate between the two
// integrals and agree at the endpoints.
func TestInjectStrategies(t *testing.T) {
	blend, err := NewInjectStrategy("blend")
	require.NoError(t, err)
	reweight, err := NewInjectStrategy("reweight")
	require.NoError(t, err)

	require.Equal(t, 2.0, blend.Norm(2, 8, 0))
	require.Equal(t, 8.0, blend.Norm(2, 8, 1))
	require.Equal(t, 5.0, blend.Norm(2, 8, 0.5))

	require.InDelta(t, 2.0, reweight.Norm(2, 8, 0), 1e-12)
	require.InDelta(t, 8.0, reweight.Norm(2, 8, 1), 1e-12)
	require.InDelta(t, 4.0, reweight.Norm(2, 8, 0.5), 1e-12)

	// Degenerate integrals defeat the geometric form.
	require.Equal(t, 0.0, reweight.Norm(0, 8, 0.5))
	require.Equal(t, 0.0, reweight.Norm(2, -1, 0.5))

	rapid.Check(t, func(t *rapid.T) {
		phsp := rapid.Float64Range(1e-6, 100).Draw(t, "phsp")
		inmc := rapid.Float64Range(1e-6, 100).Draw(t, "inmc")
		ratio := rapid.Float64Range(0, 1).Draw(t, "ratio")

		lo, hi := math.Min(phsp, inmc), math.Max(phsp, inmc)
		for _, s := range []InjectStrategy{blend, reweight} {
			got := s.Norm(phsp, inmc, ratio)
			require.GreaterOrEqual(t, got, lo-1e-12, "%s", s.Name())
			require.LessOrEqual(t, got, hi+1e-12, "%s", s.Name())
		}
	})
}
