// Package config loads editor configuration from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"

	"box-annotator/internal/annotation"
	"box-annotator/internal/gesture"
	"box-annotator/internal/scene"
	"box-annotator/internal/store"
	"box-annotator/internal/viewport"
	"box-annotator/pkg/colorutil"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// PathEnv names the variable holding the optional YAML file path.
const PathEnv = "BOXANNOTATOR_CONFIG_PATH"

// ErrInvalid is returned when a loaded configuration is unusable.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full application configuration.
type Config struct {
	Editor     EditorConfig     `yaml:"editor"`
	Categories []CategoryConfig `yaml:"categories"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

type EditorConfig struct {
	MinScale       float64 `yaml:"min_scale" env:"BOXANNOTATOR_MIN_SCALE"`
	MaxScale       float64 `yaml:"max_scale" env:"BOXANNOTATOR_MAX_SCALE"`
	WheelFactor    float64 `yaml:"wheel_factor" env:"BOXANNOTATOR_WHEEL_FACTOR"`
	HandleDrawSize float64 `yaml:"handle_draw_size" env:"BOXANNOTATOR_HANDLE_DRAW_SIZE"`
	HandleHitPad   float64 `yaml:"handle_hit_pad" env:"BOXANNOTATOR_HANDLE_HIT_PAD"`
	PasteOffset    float64 `yaml:"paste_offset" env:"BOXANNOTATOR_PASTE_OFFSET"`
	MinBoxSize     float64 `yaml:"min_box_size" env:"BOXANNOTATOR_MIN_BOX_SIZE"`
	MoveThreshold  float64 `yaml:"move_threshold" env:"BOXANNOTATOR_MOVE_THRESHOLD"`
	FitMargin      float64 `yaml:"fit_margin" env:"BOXANNOTATOR_FIT_MARGIN"`
}

// CategoryConfig describes a category; Color is "#rrggbb" and may be empty.
type CategoryConfig struct {
	ID    int    `yaml:"id"`
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type StorageConfig struct {
	ProjectsRoot string `yaml:"projects_root" env:"BOXANNOTATOR_PROJECTS_ROOT"`
	Backend      string `yaml:"backend" env:"BOXANNOTATOR_STORE_BACKEND"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"BOXANNOTATOR_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() Config {
	g := gesture.DefaultConfig()
	return Config{
		Editor: EditorConfig{
			MinScale:       viewport.DefaultMinScale,
			MaxScale:       viewport.DefaultMaxScale,
			WheelFactor:    g.WheelFactor,
			HandleDrawSize: scene.DefaultHandleDrawSize,
			HandleHitPad:   scene.DefaultHandleHitPad,
			PasteOffset:    g.PasteOffset,
			MinBoxSize:     g.MinBoxSize,
			MoveThreshold:  g.MoveThreshold,
			FitMargin:      viewport.DefaultMargin,
		},
		Categories: []CategoryConfig{
			{ID: annotation.DefaultCategoryID, Name: annotation.DefaultCategoryName, Color: colorutil.Hex(colorutil.Lime)},
		},
		Storage: StorageConfig{
			Backend: store.BackendCOCO,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(PathEnv); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	for _, target := range []any{&cfg.Editor, &cfg.Storage, &cfg.Log} {
		if err := env.Parse(target); err != nil {
			return Config{}, fmt.Errorf("parse env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	e := c.Editor
	switch {
	case e.MinScale <= 0 || e.MaxScale < e.MinScale:
		return fmt.Errorf("%w: scale bounds [%g, %g]", ErrInvalid, e.MinScale, e.MaxScale)
	case e.WheelFactor <= 1:
		return fmt.Errorf("%w: wheel factor %g must exceed 1", ErrInvalid, e.WheelFactor)
	case e.MinBoxSize <= 0:
		return fmt.Errorf("%w: min box size %g", ErrInvalid, e.MinBoxSize)
	case e.HandleDrawSize <= 0 || e.HandleHitPad < 0:
		return fmt.Errorf("%w: handle size %g / padding %g", ErrInvalid, e.HandleDrawSize, e.HandleHitPad)
	}
	switch c.Storage.Backend {
	case store.BackendCOCO, store.BackendSQLite:
	default:
		return fmt.Errorf("%w: %q: %w", ErrInvalid, c.Storage.Backend, store.ErrUnknownBackend)
	}
	return nil
}

// Gesture returns the gesture controller settings.
func (c Config) Gesture() gesture.Config {
	return gesture.Config{
		WheelFactor:   c.Editor.WheelFactor,
		PasteOffset:   c.Editor.PasteOffset,
		MinBoxSize:    c.Editor.MinBoxSize,
		MoveThreshold: c.Editor.MoveThreshold,
	}
}

// CategoryTable builds the configured categories.
func (c Config) CategoryTable() (*annotation.CategoryTable, error) {
	cats := make([]annotation.Category, 0, len(c.Categories))
	for _, cc := range c.Categories {
		cat := annotation.Category{ID: cc.ID, Name: cc.Name}
		if cc.Color != "" {
			col, err := colorutil.ParseHex(cc.Color)
			if err != nil {
				return nil, fmt.Errorf("category %d: %w", cc.ID, err)
			}
			cat.Color = col
		}
		cats = append(cats, cat)
	}
	return annotation.NewCategoryTable(cats...), nil
}
