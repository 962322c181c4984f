package likelihood

import (
	"fmt"
	"math"
)

// InjectStrategy folds the injected-MC rate integral into the phase-space
// normalization integral at the configured ratio.
type InjectStrategy interface {
	Name() string
	Norm(phsp, inmc, ratio float64) float64
}

// NewInjectStrategy resolves a strategy by name; the empty string selects
// the linear blend.
func NewInjectStrategy(name string) (InjectStrategy, error) {
	switch name {
	case "", "blend":
		return blendStrategy{}, nil
	case "reweight":
		return reweightStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown inject strategy %q", name)
}

// blendStrategy mixes the two integrals linearly: (1-r)*phsp + r*inmc.
type blendStrategy struct{}

func (blendStrategy) Name() string { return "blend" }

func (blendStrategy) Norm(phsp, inmc, ratio float64) float64 {
	return (1-ratio)*phsp + ratio*inmc
}

// reweightStrategy interpolates geometrically, phsp^(1-r) * inmc^r, which
// keeps the blend multiplicative in log-likelihood space.
type reweightStrategy struct{}

func (reweightStrategy) Name() string { return "reweight" }

func (reweightStrategy) Norm(phsp, inmc, ratio float64) float64 {
	if phsp <= 0 || inmc <= 0 {
		return 0
	}
	return math.Exp((1-ratio)*math.Log(phsp) + ratio*math.Log(inmc))
}
