// Package config loads Overcode's deployment configuration document
// from YAML into types.Config, filling in package defaults for
// whatever the document omits.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/overcode/overcode/internal/supervisor"
	"github.com/overcode/overcode/internal/types"
)

// DefaultStateDir, DefaultMultiplexerGroup, DefaultTickIntervalSecs,
// DefaultAPIPort and DefaultRetentionHours are applied to any field the
// loaded document leaves at its zero value.
const (
	DefaultStateDir             = "/tmp/overcode"
	DefaultMultiplexerGroup     = "overcode"
	DefaultTickIntervalSecs     = 5.0
	DefaultAPIPort              = 7732
	DefaultRetentionHours       = 72
	DefaultSupervisorMinGapSecs = 120.0
)

// Load reads and parses the YAML document at path into a types.Config,
// applying defaults for every field left unset. A missing file is
// reported as an error — unlike presence_log.csv, a deployment's
// configuration is not optional.
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills zero-valued fields and derives the time.Duration
// fields YAML can't represent natively from their *Secs counterparts.
func applyDefaults(cfg *types.Config) {
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.MultiplexerGroup == "" {
		cfg.MultiplexerGroup = DefaultMultiplexerGroup
	}
	if cfg.TickIntervalSecs <= 0 {
		cfg.TickIntervalSecs = DefaultTickIntervalSecs
	}
	cfg.TickInterval = time.Duration(cfg.TickIntervalSecs * float64(time.Second))

	if cfg.APIPort <= 0 {
		cfg.APIPort = DefaultAPIPort
	}
	if (cfg.Pricing == types.PricingConfig{}) {
		cfg.Pricing = types.DefaultPricing()
	}
	if cfg.SupervisorMinGapSecs <= 0 {
		cfg.SupervisorMinGapSecs = DefaultSupervisorMinGapSecs
	}
	cfg.SupervisorMinGap = time.Duration(cfg.SupervisorMinGapSecs * float64(time.Second))

	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = DefaultRetentionHours
	}
	if len(cfg.ActionPhrases) == 0 {
		cfg.ActionPhrases = supervisor.DefaultActionPhrases
	}
	if len(cfg.NoActionPhrases) == 0 {
		cfg.NoActionPhrases = supervisor.DefaultNoActionPhrases
	}
}
