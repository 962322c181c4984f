// Package config parses the declarative fit description: sample files,
// decay graph, particle table, and constraints. The physics sections carry
// case-sensitive particle names and heterogeneous lists, so parsing goes
// through yaml.v3 nodes directly; viper handles only CLI flag and env
// binding in cmd.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/pwfit/internal/log"
	"github.com/zjrosen/pwfit/internal/particle"
)

// Config holds the four declarative sections of a fit description.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Decay     DecaySection    `yaml:"decay"`
	Particle  ParticleSection `yaml:"particle"`
	Constrain ConstrainConfig `yaml:"constrains"`

	// Dir is the directory of the loaded file; relative sample and include
	// paths resolve against it.
	Dir string `yaml:"-"`
	// Path is the file the config was loaded from.
	Path string `yaml:"-"`
}

// DataConfig declares the event samples and frame handling.
type DataConfig struct {
	Data       StringList `yaml:"data"`
	DataWeight StringList `yaml:"data_weight"`
	Phsp       StringList `yaml:"phsp"`
	PhspWeight StringList `yaml:"phsp_weight"`
	PhspNoEff  StringList `yaml:"phsp_noeff"`
	PhspPlot   StringList `yaml:"phsp_plot"`
	Bg         StringList `yaml:"bg"`
	BgWeight   float64    `yaml:"bg_weight"`
	InMC       StringList `yaml:"inmc"`

	InjectRatio    float64 `yaml:"inject_ratio"`
	InjectStrategy string  `yaml:"inject_strategy"`

	RandomZ    bool     `yaml:"random_z"`
	CenterMass bool     `yaml:"center_mass"`
	DatOrder   []string `yaml:"dat_order"`

	// BadEvents selects the data-quality policy: "skip" (default) or
	// "fatal".
	BadEvents string `yaml:"bad_events"`
}

// StringList accepts either a single scalar path or a list of paths.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected file path, got %s", item.Line, item.Tag)
			}
			out = append(out, item.Value)
		}
		*s = out
		return nil
	}
	return fmt.Errorf("line %d: expected path or list of paths", node.Line)
}

// DecaySection maps each decaying particle to its alternative splits,
// preserving declaration order of the parents.
type DecaySection struct {
	Order    []string
	Branches map[string][]BranchConfig
}

// BranchConfig is one declared split: child names plus optional per-node
// options given as a trailing mapping in the YAML list.
type BranchConfig struct {
	Children []string

	LList         []int   `yaml:"l_list"`
	Model         string  `yaml:"model"`
	PBreak        bool    `yaml:"p_break"`
	CBreak        bool    `yaml:"c_break"`
	BarrierRadius float64 `yaml:"barrier_radius"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DecaySection) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: decay section must be a mapping", node.Line)
	}
	d.Branches = make(map[string][]BranchConfig)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if _, dup := d.Branches[key.Value]; dup {
			return fmt.Errorf("line %d: duplicate decay entry %q", key.Line, key.Value)
		}
		branches, err := parseBranches(key.Value, val)
		if err != nil {
			return err
		}
		d.Order = append(d.Order, key.Value)
		d.Branches[key.Value] = branches
	}
	return nil
}

// parseBranches accepts either one split ([B, C]) or a list of alternative
// splits ([[R, D], [S, C]]).
func parseBranches(parent string, node *yaml.Node) ([]BranchConfig, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: decay of %q must be a list", node.Line, parent)
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.ScalarNode {
		br, err := parseBranch(parent, node)
		if err != nil {
			return nil, err
		}
		return []BranchConfig{br}, nil
	}
	out := make([]BranchConfig, 0, len(node.Content))
	for _, item := range node.Content {
		br, err := parseBranch(parent, item)
		if err != nil {
			return nil, err
		}
		out = append(out, br)
	}
	return out, nil
}

func parseBranch(parent string, node *yaml.Node) (BranchConfig, error) {
	var br BranchConfig
	if node.Kind != yaml.SequenceNode {
		return br, fmt.Errorf("line %d: split of %q must be a list of children", node.Line, parent)
	}
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			br.Children = append(br.Children, item.Value)
		case yaml.MappingNode:
			if err := item.Decode(&br); err != nil {
				return br, fmt.Errorf("line %d: options of %q: %w", item.Line, parent, err)
			}
		default:
			return br, fmt.Errorf("line %d: unexpected %s in split of %q", item.Line, item.Tag, parent)
		}
	}
	if len(br.Children) == 0 {
		return br, fmt.Errorf("line %d: split of %q declares no children", node.Line, parent)
	}
	return br, nil
}

// ParticleDef is one particle's declared physical properties.
type ParticleDef struct {
	J      SpinValue          `yaml:"J"`
	P      int                `yaml:"P"`
	C      int                `yaml:"C"`
	Mass   float64            `yaml:"mass"`
	Width  float64            `yaml:"width"`
	Model  string             `yaml:"model"`
	Params map[string]float64 `yaml:"params"`
}

// SpinValue parses a spin declared as an integer, a decimal, or a "1/2"
// style fraction.
type SpinValue struct {
	J particle.Spin
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SpinValue) UnmarshalYAML(node *yaml.Node) error {
	j, err := particle.ParseSpin(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	s.J = j
	return nil
}

// ParticleSection holds the particle table. $top names the root particle,
// $finals the ordered final state, $include pulls in shared tables, and any
// entry mapping to a plain list declares alternative resonances for that
// name.
type ParticleSection struct {
	Top      string
	TopDef   ParticleDef
	Finals   []string
	Defs     map[string]ParticleDef
	Alts     map[string][]string
	Includes []string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *ParticleSection) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: particle section must be a mapping", node.Line)
	}
	p.Defs = make(map[string]ParticleDef)
	p.Alts = make(map[string][]string)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "$top":
			if err := p.parseTop(val); err != nil {
				return err
			}
		case "$finals":
			if err := p.parseFinals(val); err != nil {
				return err
			}
		case "$include":
			var inc StringList
			if err := val.Decode(&inc); err != nil {
				return fmt.Errorf("line %d: $include: %w", val.Line, err)
			}
			p.Includes = append(p.Includes, inc...)
		default:
			if err := p.parseEntry(key.Value, val); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *ParticleSection) parseTop(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: $top must map exactly one particle name to its properties", node.Line)
	}
	p.Top = node.Content[0].Value
	return node.Content[1].Decode(&p.TopDef)
}

func (p *ParticleSection) parseFinals(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: $finals must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var def ParticleDef
		if err := node.Content[i+1].Decode(&def); err != nil {
			return fmt.Errorf("line %d: final %q: %w", node.Content[i].Line, name, err)
		}
		p.Finals = append(p.Finals, name)
		p.Defs[name] = def
	}
	return nil
}

func (p *ParticleSection) parseEntry(name string, node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var def ParticleDef
		if err := node.Decode(&def); err != nil {
			return fmt.Errorf("line %d: particle %q: %w", node.Line, name, err)
		}
		p.Defs[name] = def
		return nil
	case yaml.SequenceNode:
		var alts []string
		if err := node.Decode(&alts); err != nil {
			return fmt.Errorf("line %d: alternatives of %q: %w", node.Line, name, err)
		}
		p.Alts[name] = alts
		return nil
	}
	return fmt.Errorf("line %d: particle %q must map to properties or an alternative list", node.Line, name)
}

// ConstrainConfig declares the parameter constraints.
type ConstrainConfig struct {
	FixChainIdx *int                  `yaml:"fix_chain_idx"`
	FixChainVal *float64              `yaml:"fix_chain_val"`
	Fix         map[string]float64    `yaml:"fix"`
	Range       map[string][2]float64 `yaml:"range"`
	Equal       [][]string            `yaml:"equal"`
	Init        map[string]float64    `yaml:"init"`
	Float       []string              `yaml:"float"`
}

// Load reads and validates a fit description from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-declared config path
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Path = path
	cfg.Dir = filepath.Dir(path)

	if err := cfg.loadIncludes(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info(log.CatConfig, "config loaded",
		"path", path,
		"particles", len(cfg.Particle.Defs),
		"decays", len(cfg.Decay.Branches))
	return &cfg, nil
}

// loadIncludes merges $include particle tables; entries in the main config
// win over included ones.
func (c *Config) loadIncludes() error {
	for _, inc := range c.Particle.Includes {
		path := inc
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.Dir, path)
		}
		data, err := os.ReadFile(path) //nolint:gosec // user-declared include path
		if err != nil {
			return fmt.Errorf("reading $include %q: %w", inc, err)
		}
		var defs map[string]ParticleDef
		if err := yaml.Unmarshal(data, &defs); err != nil {
			return fmt.Errorf("parsing $include %q: %w", inc, err)
		}
		for name, def := range defs {
			if _, exists := c.Particle.Defs[name]; !exists {
				c.Particle.Defs[name] = def
			}
		}
	}
	return nil
}

// Validate checks the structural consistency of the four sections.
func (c *Config) Validate() error {
	if c.Particle.Top == "" {
		return fmt.Errorf("config: particle section declares no $top")
	}
	if len(c.Particle.Finals) < 2 {
		return fmt.Errorf("config: particle section declares %d final particles, need at least two", len(c.Particle.Finals))
	}
	if len(c.Decay.Branches) == 0 {
		return fmt.Errorf("config: decay section is empty")
	}
	if _, ok := c.Decay.Branches[c.Particle.Top]; !ok {
		return fmt.Errorf("config: no decay declared for top particle %q", c.Particle.Top)
	}
	for _, parent := range c.Decay.Order {
		for _, br := range c.Decay.Branches[parent] {
			for _, child := range br.Children {
				if !c.knownName(child) {
					return fmt.Errorf("config: decay of %q references unknown particle %q", parent, child)
				}
			}
		}
		if parent != c.Particle.Top && !c.knownName(parent) {
			return fmt.Errorf("config: decay declares unknown particle %q", parent)
		}
	}
	for group, alts := range c.Particle.Alts {
		for _, alt := range alts {
			if _, ok := c.Particle.Defs[alt]; !ok {
				return fmt.Errorf("config: alternative %q of %q has no particle entry", alt, group)
			}
		}
	}

	if len(c.Data.Bg) == 0 && c.Data.BgWeight != 0 {
		return fmt.Errorf("config: bg_weight declared without a bg sample")
	}
	if len(c.Data.InMC) == 0 && c.Data.InjectRatio != 0 {
		return fmt.Errorf("config: inject_ratio declared without an inmc sample")
	}
	if c.Data.InjectRatio < 0 || c.Data.InjectRatio > 1 {
		return fmt.Errorf("config: inject_ratio %v outside [0, 1]", c.Data.InjectRatio)
	}
	switch c.Data.BadEvents {
	case "", "skip", "fatal":
	default:
		return fmt.Errorf("config: bad_events must be \"skip\" or \"fatal\", got %q", c.Data.BadEvents)
	}
	if c.Constrain.FixChainIdx != nil && c.Constrain.FixChainVal == nil {
		return fmt.Errorf("config: fix_chain_idx declared without fix_chain_val")
	}
	return nil
}

func (c *Config) knownName(name string) bool {
	if _, ok := c.Particle.Defs[name]; ok {
		return true
	}
	_, ok := c.Particle.Alts[name]
	return ok
}
