package sim

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
// Callers check it with errors.Is.
var ErrInvalidConfig = errors.New("invalid config")

// Mode selects the traversal order of output tiles.
type Mode string

const (
	ModeRowMajor Mode = "row-major"
	ModeGrouped  Mode = "grouped"
)

// validModes is the set of recognized traversal modes.
var validModes = map[Mode]bool{ModeRowMajor: true, ModeGrouped: true}

// IsValidMode returns true if the given string names a traversal mode.
func IsValidMode(mode string) bool {
	return validModes[Mode(mode)]
}

// Defaults mirror the reference visualizer's initial slider positions.
const (
	DefaultM             = 8
	DefaultN             = 8
	DefaultK             = 6
	DefaultGroupSizeM    = 3
	DefaultNumCTAs       = 1
	DefaultCacheCapacity = 42
	DefaultSpeed         = 10.0
)

// MinGroupSizeM is the smallest accepted group size, so M must be at least this.
const MinGroupSizeM = 2

// Config groups every input that shapes a simulation run.
// Any change to a field invalidates the current State.
type Config struct {
	M             int  `yaml:"m" json:"m"`                           // output rows, in tiles
	N             int  `yaml:"n" json:"n"`                           // output columns, in tiles
	K             int  `yaml:"k" json:"k"`                           // reduction steps per output tile
	BlockSizeM    int  `yaml:"block_size_m" json:"block_size_m"`     // rows per output block (must be > 0)
	BlockSizeN    int  `yaml:"block_size_n" json:"block_size_n"`     // columns per output block (must be > 0)
	Mode          Mode `yaml:"mode" json:"mode"`                     // "row-major" or "grouped"
	GroupSizeM    int  `yaml:"group_size_m" json:"group_size_m"`     // rows per group in grouped mode
	NumCTAs       int  `yaml:"num_ctas" json:"num_ctas"`             // simulated concurrent compute units
	MaxCTAs       int  `yaml:"max_ctas" json:"max_ctas"`             // upper bound for NumCTAs (0 = unbounded)
	CacheCapacity int  `yaml:"cache_capacity" json:"cache_capacity"` // LRU capacity in tiles
}

// DefaultConfig returns the configuration the reference visualizer starts with.
func DefaultConfig() Config {
	return Config{
		M:             DefaultM,
		N:             DefaultN,
		K:             DefaultK,
		BlockSizeM:    1,
		BlockSizeN:    1,
		Mode:          ModeRowMajor,
		GroupSizeM:    DefaultGroupSizeM,
		NumCTAs:       DefaultNumCTAs,
		CacheCapacity: DefaultCacheCapacity,
	}
}

// Validate checks every field. The returned error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	if c.M <= 0 || c.N <= 0 || c.K <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got M=%d N=%d K=%d", ErrInvalidConfig, c.M, c.N, c.K)
	}
	if c.BlockSizeM <= 0 || c.BlockSizeN <= 0 {
		return fmt.Errorf("%w: block sizes must be positive, got %dx%d", ErrInvalidConfig, c.BlockSizeM, c.BlockSizeN)
	}
	if !validModes[c.Mode] {
		return fmt.Errorf("%w: unknown mode %q; valid: row-major, grouped", ErrInvalidConfig, c.Mode)
	}
	if c.GroupSizeM < MinGroupSizeM || c.GroupSizeM > c.M {
		return fmt.Errorf("%w: group_size_m must be in [%d, %d], got %d", ErrInvalidConfig, MinGroupSizeM, c.M, c.GroupSizeM)
	}
	if c.NumCTAs < 1 {
		return fmt.Errorf("%w: num_ctas must be >= 1, got %d", ErrInvalidConfig, c.NumCTAs)
	}
	if c.MaxCTAs < 0 {
		return fmt.Errorf("%w: max_ctas must be non-negative, got %d", ErrInvalidConfig, c.MaxCTAs)
	}
	if c.MaxCTAs > 0 && c.NumCTAs > c.MaxCTAs {
		return fmt.Errorf("%w: num_ctas %d exceeds max_ctas %d", ErrInvalidConfig, c.NumCTAs, c.MaxCTAs)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("%w: cache_capacity must be >= 1, got %d", ErrInvalidConfig, c.CacheCapacity)
	}
	return nil
}

// scheduleKey is the subset of Config that determines the schedule.
type scheduleKey struct {
	m, n, blockM, blockN, groupSizeM int
	mode                             Mode
}

func (c Config) scheduleKey() scheduleKey {
	return scheduleKey{m: c.M, n: c.N, blockM: c.BlockSizeM, blockN: c.BlockSizeN, groupSizeM: c.GroupSizeM, mode: c.Mode}
}
