// Package sweep runs many simulator configurations from one YAML spec and
// reduces each to a comparison row.
package sweep

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/swizzle-sim/sim"
)

// Spec is the top-level sweep configuration.
// Loaded from YAML via LoadSpec(path).
type Spec struct {
	Version   string         `yaml:"version"`
	Seed      int64          `yaml:"seed"`
	Repeats   int            `yaml:"repeats,omitempty"` // 0 = 1
	Workers   int            `yaml:"workers,omitempty"` // 0 = GOMAXPROCS
	Base      sim.Config     `yaml:"base,omitempty"`    // fields left out keep sim.DefaultConfig() values
	Scenarios []ScenarioSpec `yaml:"scenarios,omitempty"`
	Grid      *GridSpec      `yaml:"grid,omitempty"`
}

// ScenarioSpec overrides selected fields of the base configuration.
// Nil fields inherit the base value.
type ScenarioSpec struct {
	Name          string    `yaml:"name"`
	M             *int      `yaml:"m,omitempty"`
	N             *int      `yaml:"n,omitempty"`
	K             *int      `yaml:"k,omitempty"`
	Mode          *sim.Mode `yaml:"mode,omitempty"`
	GroupSizeM    *int      `yaml:"group_size_m,omitempty"`
	NumCTAs       *int      `yaml:"num_ctas,omitempty"`
	CacheCapacity *int      `yaml:"cache_capacity,omitempty"`
}

// GridSpec expands into the cartesian product of its non-empty axes.
type GridSpec struct {
	Modes           []sim.Mode `yaml:"mode,omitempty"`
	GroupSizes      []int      `yaml:"group_size_m,omitempty"`
	NumCTAs         []int      `yaml:"num_ctas,omitempty"`
	CacheCapacities []int      `yaml:"cache_capacity,omitempty"`
}

// Scenario is a named, fully-resolved configuration.
type Scenario struct {
	Name   string
	Config sim.Config
}

// LoadSpec reads and strictly parses a sweep spec. Unknown keys are errors.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sweep spec: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec strictly parses a sweep spec from YAML bytes.
func ParseSpec(data []byte) (*Spec, error) {
	spec := Spec{Base: sim.DefaultConfig()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing sweep spec: %w", err)
	}
	return &spec, nil
}

// Validate checks the spec's own fields. Scenario configurations are checked
// by Expand.
func (s *Spec) Validate() error {
	if s.Version != "" && s.Version != "1" {
		return fmt.Errorf("unsupported sweep spec version %q", s.Version)
	}
	if s.Repeats < 0 {
		return fmt.Errorf("repeats must be non-negative, got %d", s.Repeats)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", s.Workers)
	}
	if len(s.Scenarios) == 0 && s.Grid == nil {
		return fmt.Errorf("at least one scenario or a grid is required")
	}
	seen := make(map[string]bool)
	for i, sc := range s.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("scenario[%d]: name is required", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("scenario[%d]: duplicate name %q", i, sc.Name)
		}
		seen[sc.Name] = true
	}
	return nil
}

// RepeatCount returns the effective number of repeats.
func (s *Spec) RepeatCount() int {
	if s.Repeats == 0 {
		return 1
	}
	return s.Repeats
}

// Expand resolves explicit scenarios followed by the grid, in declaration
// order, and validates every resulting configuration.
func (s *Spec) Expand() ([]Scenario, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	base := s.Base
	if base == (sim.Config{}) {
		base = sim.DefaultConfig()
	}
	var out []Scenario
	for _, sc := range s.Scenarios {
		out = append(out, Scenario{Name: sc.Name, Config: sc.Apply(base)})
	}
	if s.Grid != nil {
		out = append(out, s.Grid.expand(base)...)
	}
	for _, sc := range out {
		if err := sc.Config.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
	}
	return out, nil
}

// Apply returns cfg with the scenario's non-nil fields overriding it.
func (sc ScenarioSpec) Apply(cfg sim.Config) sim.Config {
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&cfg.M, sc.M)
	setInt(&cfg.N, sc.N)
	setInt(&cfg.K, sc.K)
	setInt(&cfg.GroupSizeM, sc.GroupSizeM)
	setInt(&cfg.NumCTAs, sc.NumCTAs)
	setInt(&cfg.CacheCapacity, sc.CacheCapacity)
	if sc.Mode != nil {
		cfg.Mode = *sc.Mode
	}
	return cfg
}

func (g *GridSpec) expand(base sim.Config) []Scenario {
	modes := g.Modes
	if len(modes) == 0 {
		modes = []sim.Mode{base.Mode}
	}
	groups := orDefault(g.GroupSizes, base.GroupSizeM)
	ctas := orDefault(g.NumCTAs, base.NumCTAs)
	caps := orDefault(g.CacheCapacities, base.CacheCapacity)

	var out []Scenario
	for _, mode := range modes {
		for _, group := range groups {
			for _, n := range ctas {
				for _, c := range caps {
					cfg := base
					cfg.Mode, cfg.GroupSizeM, cfg.NumCTAs, cfg.CacheCapacity = mode, group, n, c
					out = append(out, Scenario{
						Name:   fmt.Sprintf("%s/g%d/ctas%d/cap%d", mode, group, n, c),
						Config: cfg,
					})
				}
			}
		}
	}
	return out
}

func orDefault(values []int, fallback int) []int {
	if len(values) == 0 {
		return []int{fallback}
	}
	return values
}
