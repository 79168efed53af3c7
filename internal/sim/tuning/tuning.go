package tuning

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	Planner Planner `yaml:"planner" json:"planner"`
	Router  Router  `yaml:"router" json:"router"`

	// Transport speed in tiles per second.
	DefaultSpeed float64 `yaml:"default_speed" json:"default_speed"`

	Metrics Metrics `yaml:"metrics" json:"metrics"`
}

type Planner struct {
	AlreadyExistsCoef float64 `yaml:"already_exists_coef" json:"already_exists_coef"`
	MaxExpanded       int     `yaml:"max_expanded" json:"max_expanded"`
}

type Router struct {
	MaxExpanded int `yaml:"max_expanded" json:"max_expanded"`
}

// Metrics selects where search metrics go. Empty paths disable a sink.
type Metrics struct {
	LogDir     string `yaml:"log_dir" json:"log_dir"`
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
	D1Endpoint string `yaml:"d1_endpoint" json:"d1_endpoint"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         10,
		SnapshotEveryTicks: 600,
		Planner: Planner{
			AlreadyExistsCoef: 0.8,
			MaxExpanded:       2_000_000,
		},
		Router: Router{
			MaxExpanded: 1_000_000,
		},
		DefaultSpeed: 4,
	}
}

// Load reads a yaml file over Defaults. A missing file yields Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive, got %d", t.TickRateHz)
	}
	if c := t.Planner.AlreadyExistsCoef; c <= 0 || c > 1 {
		return fmt.Errorf("planner.already_exists_coef must be in (0, 1], got %v", c)
	}
	if t.Planner.MaxExpanded < 0 || t.Router.MaxExpanded < 0 {
		return fmt.Errorf("max_expanded must not be negative")
	}
	if t.DefaultSpeed < 0 {
		return fmt.Errorf("default_speed must not be negative, got %v", t.DefaultSpeed)
	}
	return nil
}
