// Package prefs keeps per-user window preferences in a JSON file.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

const (
	appDir    = "box-annotator"
	prefsFile = "preferences.json"

	// MaxRecent bounds the recent project list.
	MaxRecent = 8
)

// Preference keys.
const (
	KeyWindowWidth    = "window.width"
	KeyWindowHeight   = "window.height"
	KeyActiveCategory = "editor.category"
	keyRecent         = "projects.recent"
)

// Prefs stores application preferences as a key-value map.
type Prefs struct {
	mu     sync.RWMutex
	values map[string]interface{}
	path   string
}

// Load reads preferences from the user config directory. Missing or broken
// files give empty preferences.
func Load() *Prefs {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return LoadFrom(filepath.Join(configDir, appDir, prefsFile))
}

// LoadFrom reads preferences from path.
func LoadFrom(path string) *Prefs {
	p := &Prefs{values: make(map[string]interface{}), path: path}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &p.values)
	}
	return p
}

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.RLock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}

// Float returns a float64 preference, or fallback if not set.
func (p *Prefs) Float(key string, fallback float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if n, ok := p.values[key].(float64); ok {
		return n
	}
	return fallback
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) {
	p.mu.Lock()
	p.values[key] = val
	p.mu.Unlock()
}

// Int returns an int preference, or fallback if not set.
func (p *Prefs) Int(key string, fallback int) int {
	return int(p.Float(key, float64(fallback)))
}

// SetInt stores an int preference. JSON keeps it as a number.
func (p *Prefs) SetInt(key string, val int) {
	p.SetFloat(key, float64(val))
}

// Recent returns recently opened project files, newest first.
func (p *Prefs) Recent() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	raw, _ := p.values[keyRecent].([]interface{})
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AddRecent moves path to the front of the recent list.
func (p *Prefs) AddRecent(path string) {
	list := p.Recent()
	list = slices.DeleteFunc(list, func(s string) bool { return s == path })
	list = append([]string{path}, list...)
	if len(list) > MaxRecent {
		list = list[:MaxRecent]
	}

	raw := make([]interface{}, len(list))
	for i, s := range list {
		raw[i] = s
	}
	p.mu.Lock()
	p.values[keyRecent] = raw
	p.mu.Unlock()
}
