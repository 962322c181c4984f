package presentation_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pwfit/internal/infrastructure/sqlite"
	"github.com/zjrosen/pwfit/internal/presentation"
	"github.com/zjrosen/pwfit/internal/testutil"
)

func TestFromChain(t *testing.T) {
	chains := testutil.ThreeBodyChains(t)

	dto := presentation.FromChain(0, chains[0])
	require.Equal(t, 0, dto.Index)
	require.Equal(t, "A->R_BC.DR_BC->B.C", dto.Name)
	require.Len(t, dto.Nodes, 2)

	top := dto.Nodes[0]
	require.Equal(t, "A", top.Parent)
	require.Equal(t, []string{"R_BC", "D"}, top.Children)
	require.Equal(t, []presentation.LSDTO{{L: 0, S: "1"}, {L: 2, S: "1"}}, top.Waves)
	require.Empty(t, top.Lineshape)

	res := dto.Nodes[1]
	require.Equal(t, "R_BC", res.Parent)
	require.Equal(t, "BWR", res.Lineshape)

	require.Equal(t, chains[0].ParameterNames(), dto.Parameters)
}

func TestFromChains(t *testing.T) {
	chains := testutil.ThreeBodyChains(t)
	dtos := presentation.FromChains(chains)
	require.Len(t, dtos, len(chains))
	for i, dto := range dtos {
		require.Equal(t, i, dto.Index)
		require.Equal(t, chains[i].Name(), dto.Name)
	}
}

func TestFromResult(t *testing.T) {
	dto := presentation.FromResult(&sqlite.FitResult{
		ID:         "abc",
		ConfigPath: "config.yaml",
		NLL:        -12.5,
		NFree:      3,
		Converged:  true,
		Params:     map[string]float64{"x": 1},
		CreatedAt:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	})
	require.Equal(t, "abc", dto.ID)
	require.Equal(t, "2026-03-14 09:26:53", dto.CreatedAt)
	require.True(t, dto.Converged)
}

func TestFormatChains(t *testing.T) {
	chains := testutil.ThreeBodyChains(t)
	var buf bytes.Buffer

	err := presentation.NewFormatter(&buf).FormatChains(presentation.FromChains(chains))
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "[0] A->R_BC.DR_BC->B.C")
	require.Contains(t, out, "A -> R_BC D")
	require.Contains(t, out, "[BWR]")
	require.Contains(t, out, "(l=0,s=1)")
	require.Contains(t, out, "parameters:")
}

func TestFormatResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := presentation.NewFormatter(&buf).FormatResults(nil)
	require.NoError(t, err)
	require.Equal(t, "no fit results recorded\n", buf.String())
}

func TestFormatResults(t *testing.T) {
	var buf bytes.Buffer
	err := presentation.NewFormatter(&buf).FormatResults([]presentation.ResultDTO{
		{ID: "abc", CreatedAt: "2026-03-14 09:26:53", NLL: -12.5, NFree: 3, Converged: true, ConfigPath: "config.yaml"},
		{ID: "def", CreatedAt: "2026-03-14 10:00:00", NLL: 4.0, NFree: 2, ConfigPath: "other.yaml"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "abc")
	require.Contains(t, lines[0], "nll=-12.500000")
	require.Contains(t, lines[0], "converged")
	require.Contains(t, lines[1], "diverged")
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	err := presentation.NewFormatter(&buf).FormatJSON(map[string]int{"chains": 3})
	require.NoError(t, err)
	require.Equal(t, "{\n  \"chains\": 3\n}\n", buf.String())
}

func TestFormatExportRows(t *testing.T) {
	rows := []presentation.ExportRow{
		{Sample: "data", Event: 0, Masses: map[string]float64{"R_BC": 4.1}, Density: 0.5},
		{Sample: "data", Event: 1, Masses: map[string]float64{"R_BC": 4.2}},
	}
	var buf bytes.Buffer
	err := presentation.NewFormatter(&buf).FormatExportRows(rows)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var row presentation.ExportRow
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &row))
	require.Equal(t, rows[0], row)

	// Zero density is omitted entirely.
	require.NotContains(t, lines[1], "density")
}
