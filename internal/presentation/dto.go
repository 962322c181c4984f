package presentation

import (
	"github.com/zjrosen/pwfit/internal/decay"
	"github.com/zjrosen/pwfit/internal/infrastructure/sqlite"
	"github.com/zjrosen/pwfit/internal/particle"
)

// ChainDTO represents one decay chain for presentation.
type ChainDTO struct {
	Index      int            `json:"index"`
	Name       string         `json:"name"`
	Nodes      []ChainNodeDTO `json:"nodes"`
	Parameters []string       `json:"parameters"`
}

// ChainNodeDTO represents one two-body split with its admissible couplings.
type ChainNodeDTO struct {
	Name      string   `json:"name"`
	Parent    string   `json:"parent"`
	Children  []string `json:"children"`
	Waves     []LSDTO  `json:"waves"`
	Lineshape string   `json:"lineshape,omitempty"`
}

// LSDTO is one admissible (l, s) pair; s is rendered as a spin string so
// half-integers read "3/2" rather than 1.5.
type LSDTO struct {
	L int    `json:"l"`
	S string `json:"s"`
}

// FromChain converts a decay chain to a DTO.
func FromChain(index int, c *decay.Chain) ChainDTO {
	nodes := make([]ChainNodeDTO, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		waves := make([]LSDTO, 0, len(n.LS))
		for _, ls := range n.LS {
			waves = append(waves, LSDTO{L: ls.L, S: particle.Spin(ls.TS).String()})
		}
		dto := ChainNodeDTO{
			Name:     n.Name(),
			Parent:   n.Parent.Name,
			Children: []string{n.Children[0].Name, n.Children[1].Name},
			Waves:    waves,
		}
		if n.Shape != nil {
			dto.Lineshape = n.Shape.Name()
		}
		nodes = append(nodes, dto)
	}
	return ChainDTO{
		Index:      index,
		Name:       c.Name(),
		Nodes:      nodes,
		Parameters: c.ParameterNames(),
	}
}

// FromChains converts a chain list to DTOs.
func FromChains(chains []*decay.Chain) []ChainDTO {
	out := make([]ChainDTO, len(chains))
	for i, c := range chains {
		out[i] = FromChain(i, c)
	}
	return out
}

// ResultDTO represents one persisted fit result.
type ResultDTO struct {
	ID         string             `json:"id"`
	ConfigPath string             `json:"config_path"`
	NLL        float64            `json:"nll"`
	NFree      int                `json:"n_free"`
	Converged  bool               `json:"converged"`
	Params     map[string]float64 `json:"params,omitempty"`
	Fractions  []float64          `json:"fractions,omitempty"`
	CreatedAt  string             `json:"created_at"`
}

// FromResult converts a stored fit result to a DTO.
func FromResult(r *sqlite.FitResult) ResultDTO {
	return ResultDTO{
		ID:         r.ID,
		ConfigPath: r.ConfigPath,
		NLL:        r.NLL,
		NFree:      r.NFree,
		Converged:  r.Converged,
		Params:     r.Params,
		Fractions:  r.Fractions,
		CreatedAt:  r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// FromResults converts stored fit results to DTOs.
func FromResults(results []*sqlite.FitResult) []ResultDTO {
	out := make([]ResultDTO, len(results))
	for i, r := range results {
		out[i] = FromResult(r)
	}
	return out
}

// ExportRow is one event of one sample: node invariant masses, helicity
// angles per chain node, and the predicted density.
type ExportRow struct {
	Sample  string             `json:"sample"`
	Event   int                `json:"event"`
	Masses  map[string]float64 `json:"masses"`
	Alpha   map[string]float64 `json:"alpha"`
	CosBeta map[string]float64 `json:"cos_beta"`
	Density float64            `json:"density,omitempty"`
}
