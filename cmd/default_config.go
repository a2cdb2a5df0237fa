package cmd

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/swizzle-sim/sim"
	"github.com/inference-sim/swizzle-sim/sim/sweep"
)

// PresetsFile represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type PresetsFile struct {
	Version string                        `yaml:"version"`
	Presets map[string]sweep.ScenarioSpec `yaml:"presets"`
}

// loadDefaultsConfig parses a presets file with strict field checking.
func loadDefaultsConfig(path string) (PresetsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PresetsFile{}, fmt.Errorf("reading defaults file %s: %w", path, err)
	}
	var cfg PresetsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return PresetsFile{}, fmt.Errorf("parsing defaults YAML %s: %w", path, err)
	}
	return cfg, nil
}

// PresetNames returns the preset names in sorted order.
func (p PresetsFile) PresetNames() []string {
	names := make([]string, 0, len(p.Presets))
	for name := range p.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns sim.DefaultConfig() overridden by the named preset.
func GetPreset(path, name string) (sim.Config, error) {
	file, err := loadDefaultsConfig(path)
	if err != nil {
		return sim.Config{}, err
	}
	preset, ok := file.Presets[name]
	if !ok {
		return sim.Config{}, fmt.Errorf("unknown preset %q in %s; available: %v", name, path, file.PresetNames())
	}
	return preset.Apply(sim.DefaultConfig()), nil
}
