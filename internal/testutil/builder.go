// Package testutil provides shared physics fixtures: a canonical three-body
// system and a toy phase-space generator.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pwfit/internal/decay"
	"github.com/zjrosen/pwfit/internal/particle"
)

// ParticleOption mutates a fixture particle before registration.
type ParticleOption func(*particle.Particle)

// J sets the spin from its doubled value.
func J(doubled int) ParticleOption {
	return func(p *particle.Particle) { p.J = particle.Spin(doubled) }
}

// P sets the parity.
func P(parity int) ParticleOption {
	return func(p *particle.Particle) { p.P = particle.Parity(parity) }
}

// MassWidth sets the resonance pole parameters.
func MassWidth(mass, width float64) ParticleOption {
	return func(p *particle.Particle) {
		p.Mass = mass
		p.Width = width
	}
}

// Model selects the lineshape.
func Model(name string) ParticleOption {
	return func(p *particle.Particle) { p.Model = name }
}

// RegistryBuilder accumulates particles for a test registry.
type RegistryBuilder struct {
	t   *testing.T
	reg *particle.Registry
}

// NewRegistryBuilder creates an empty builder.
func NewRegistryBuilder(t *testing.T) *RegistryBuilder {
	t.Helper()
	return &RegistryBuilder{t: t, reg: particle.NewRegistry()}
}

// With registers a particle with the given role and options.
func (b *RegistryBuilder) With(name string, role particle.Role, mass float64, opts ...ParticleOption) *RegistryBuilder {
	b.t.Helper()
	p := &particle.Particle{Name: name, P: particle.ParityOdd, Mass: mass, Role: role}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(b.t, b.reg.Add(p))
	return b
}

// Build returns the registry.
func (b *RegistryBuilder) Build() *particle.Registry { return b.reg }

// Masses of the canonical three-body fixture, loosely D* D* pi.
const (
	TopMass    = 4.6
	FinalMassB = 2.00698
	FinalMassC = 2.01028
	FinalMassD = 0.13957
)

// ThreeBodyRegistry builds A -> B C D with one resonance per pairing:
// R_BC (1+), R_BD (1-), R_CD (1+).
func ThreeBodyRegistry(t *testing.T) *particle.Registry {
	t.Helper()
	return NewRegistryBuilder(t).
		With("A", particle.RoleTop, TopMass, J(2), P(-1)).
		With("B", particle.RoleFinal, FinalMassB, J(2), P(-1)).
		With("C", particle.RoleFinal, FinalMassC, J(2), P(-1)).
		With("D", particle.RoleFinal, FinalMassD, J(0), P(-1)).
		With("R_BC", particle.RoleIntermediate, 0, J(2), P(1), MassWidth(4.16, 0.07)).
		With("R_BD", particle.RoleIntermediate, 0, J(2), P(-1), MassWidth(2.43, 0.3)).
		With("R_CD", particle.RoleIntermediate, 0, J(2), P(1), MassWidth(2.42, 0.03)).
		Build()
}

// ThreeBodyGraph declares the three single-resonance chains over the fixture
// registry.
func ThreeBodyGraph() decay.GraphSpec {
	return decay.GraphSpec{
		Top:    "A",
		Finals: []string{"B", "C", "D"},
		Decays: map[string][]decay.BranchSpec{
			"A": {
				{Children: []string{"R_BC", "D"}},
				{Children: []string{"R_BD", "C"}},
				{Children: []string{"R_CD", "B"}},
			},
			"R_BC": {{Children: []string{"B", "C"}}},
			"R_BD": {{Children: []string{"B", "D"}}},
			"R_CD": {{Children: []string{"C", "D"}}},
		},
	}
}

// ThreeBodyChains builds the fixture chains, failing the test on any
// selection-rule surprise.
func ThreeBodyChains(t *testing.T) []*decay.Chain {
	t.Helper()
	chains, err := decay.Build(ThreeBodyRegistry(t), ThreeBodyGraph())
	require.NoError(t, err)
	require.Len(t, chains, 3)
	return chains
}
