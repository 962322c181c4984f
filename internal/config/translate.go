package config

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/zjrosen/pwfit/internal/dataio"
	"github.com/zjrosen/pwfit/internal/decay"
	"github.com/zjrosen/pwfit/internal/kinematics"
	"github.com/zjrosen/pwfit/internal/log"
	"github.com/zjrosen/pwfit/internal/params"
	"github.com/zjrosen/pwfit/internal/particle"
)

// BuildRegistry resolves the particle section into an immutable registry.
// Alternative-group names get no entry of their own; they are expanded away
// by GraphSpec.
func (c *Config) BuildRegistry() (*particle.Registry, error) {
	reg := particle.NewRegistry()

	add := func(name string, def ParticleDef, role particle.Role) error {
		p := &particle.Particle{
			Name:   name,
			J:      def.J.J,
			P:      particle.Parity(def.P),
			C:      particle.Parity(def.C),
			Mass:   def.Mass,
			Width:  def.Width,
			Role:   role,
			Model:  def.Model,
			Params: def.Params,
		}
		if p.P != particle.ParityEven && p.P != particle.ParityOdd {
			return fmt.Errorf("particle %q: parity must be +1 or -1, got %d", name, def.P)
		}
		return reg.Add(p)
	}

	if err := add(c.Particle.Top, c.Particle.TopDef, particle.RoleTop); err != nil {
		return nil, err
	}
	finalSet := make(map[string]bool, len(c.Particle.Finals))
	for _, name := range c.Particle.Finals {
		finalSet[name] = true
		if err := add(name, c.Particle.Defs[name], particle.RoleFinal); err != nil {
			return nil, err
		}
	}
	for name, def := range c.Particle.Defs {
		if name == c.Particle.Top || finalSet[name] {
			continue
		}
		if err := add(name, def, particle.RoleIntermediate); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// GraphSpec translates the decay section into the builder's input, expanding
// alternative-resonance groups: a branch referencing a group becomes one
// branch per member, and a decay declared under a group name is repeated for
// every member.
func (c *Config) GraphSpec() decay.GraphSpec {
	spec := decay.GraphSpec{
		Top:    c.Particle.Top,
		Finals: append([]string(nil), c.Particle.Finals...),
		Decays: make(map[string][]decay.BranchSpec),
	}
	for _, parent := range c.Decay.Order {
		for _, name := range c.expandAlt(parent) {
			for _, br := range c.Decay.Branches[parent] {
				spec.Decays[name] = append(spec.Decays[name], c.expandBranch(br)...)
			}
		}
	}
	return spec
}

func (c *Config) expandAlt(name string) []string {
	if alts, ok := c.Particle.Alts[name]; ok {
		return alts
	}
	return []string{name}
}

func (c *Config) expandBranch(br BranchConfig) []decay.BranchSpec {
	if len(br.Children) != 2 {
		// Let the builder report the arity error with node context.
		return []decay.BranchSpec{{
			Children:             br.Children,
			LList:                br.LList,
			Model:                br.Model,
			AllowParityViolation: br.PBreak,
			SkipCParity:          br.CBreak,
			BarrierRadius:        br.BarrierRadius,
		}}
	}
	var out []decay.BranchSpec
	for _, c0 := range c.expandAlt(br.Children[0]) {
		for _, c1 := range c.expandAlt(br.Children[1]) {
			out = append(out, decay.BranchSpec{
				Children:             []string{c0, c1},
				LList:                br.LList,
				Model:                br.Model,
				AllowParityViolation: br.PBreak,
				SkipCParity:          br.CBreak,
				BarrierRadius:        br.BarrierRadius,
			})
		}
	}
	return out
}

// Constraints translates the constrains section.
func (c *Config) Constraints() params.Constraints {
	out := params.Constraints{
		FixChainIdx: c.Constrain.FixChainIdx,
		Fix:         c.Constrain.Fix,
		Range:       c.Constrain.Range,
		Equal:       c.Constrain.Equal,
		Init:        c.Constrain.Init,
		Float:       c.Constrain.Float,
	}
	if c.Constrain.FixChainVal != nil {
		out.FixChainVal = *c.Constrain.FixChainVal
	}
	return out
}

// KinematicsOptions translates the frame-handling flags.
func (c *Config) KinematicsOptions() kinematics.Options {
	opts := kinematics.Options{
		CenterMass: c.Data.CenterMass,
		RandomZ:    c.Data.RandomZ,
	}
	if opts.RandomZ {
		rng := rand.New(rand.NewSource(1)) //nolint:gosec // reproducible axis randomization
		opts.RandomPhi = func() float64 { return rng.Float64() * 2 * 3.141592653589793 }
	}
	if c.Data.BadEvents == "fatal" {
		opts.Policy = kinematics.FatalBadEvents
	}
	return opts
}

// LoadSamples reads every declared sample file. Missing optional roles are
// simply absent from the result; data and phsp are required.
func (c *Config) LoadSamples() ([]*dataio.Sample, error) {
	order, err := dataio.DatOrder(c.Data.DatOrder, c.Particle.Finals)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	n := len(c.Particle.Finals)

	var out []*dataio.Sample
	load := func(role dataio.Role, files, weightFiles StringList, fraction float64) error {
		if len(files) == 0 {
			if role == dataio.RoleData || role == dataio.RolePhsp {
				return fmt.Errorf("config: no %s sample declared", role)
			}
			return nil
		}
		var events []kinematics.Event
		var weights []float64
		for i, file := range files {
			evs, err := dataio.LoadEvents(c.resolve(file), n, order)
			if err != nil {
				return fmt.Errorf("%s sample: %w", role, err)
			}
			ws := dataio.UnitWeights(len(evs))
			if i < len(weightFiles) {
				ws, err = dataio.LoadWeights(c.resolve(weightFiles[i]), len(evs))
				if err != nil {
					return fmt.Errorf("%s weights: %w", role, err)
				}
			}
			events = append(events, evs...)
			weights = append(weights, ws...)
		}
		out = append(out, &dataio.Sample{
			Name:     role.String(),
			Role:     role,
			Events:   events,
			Weights:  weights,
			Fraction: fraction,
		})
		log.Info(log.CatData, "sample loaded", "role", role.String(), "events", len(events))
		return nil
	}

	if err := load(dataio.RoleData, c.Data.Data, c.Data.DataWeight, 0); err != nil {
		return nil, err
	}
	if err := load(dataio.RolePhsp, c.Data.Phsp, c.Data.PhspWeight, 0); err != nil {
		return nil, err
	}
	if err := load(dataio.RolePhspNoEff, c.Data.PhspNoEff, nil, 0); err != nil {
		return nil, err
	}
	if err := load(dataio.RolePhspPlot, c.Data.PhspPlot, nil, 0); err != nil {
		return nil, err
	}
	if err := load(dataio.RoleBg, c.Data.Bg, nil, c.Data.BgWeight); err != nil {
		return nil, err
	}
	if err := load(dataio.RoleInMC, c.Data.InMC, nil, c.Data.InjectRatio); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}
