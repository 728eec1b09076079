// Package config loads the daemon's YAML values source (spec §6), grounded
// on configlet.LoadConfiglet's read-parse-return shape but using
// gopkg.in/yaml.v3 for the wire format and an afero.Fs so tests never touch
// a real file, matching internal/hostnet's filesystem-access discipline.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/strategy"
)

// Interfaces is the `interfaces.*` section.
type Interfaces struct {
	Preferred     []string `yaml:"preferred"`
	Excluded      []string `yaml:"excluded"`
	ScanInterface string   `yaml:"scan_interface"`
}

// Modules is the `modules.*` section. A nil Enabled means every built-in
// strategy is instantiated.
type Modules struct {
	Enabled []string `yaml:"enabled"`
}

// Scanner is the `scanner.*` section.
type Scanner struct {
	ScanIntervalSeconds int `yaml:"scan_interval"`
}

// AutoSelection is the `auto_selection.*` section.
type AutoSelection struct {
	Enabled                  bool    `yaml:"enabled"`
	EvaluationIntervalSecond int     `yaml:"evaluation_interval"`
	MinScoreImprovement      float64 `yaml:"min_score_improvement"`
	InitialDelaySeconds      int     `yaml:"initial_delay"`
}

// Web is the `web.*` section.
type Web struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Registry is the expansion's `registry.*` section, toggling the bbolt
// durable mirror.
type Registry struct {
	Durable bool   `yaml:"durable"`
	Path    string `yaml:"path"`
}

// Metrics is the expansion's `metrics.*` section.
type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the full recognized document, spec §6 plus the expansion's
// registry/metrics sections.
type Config struct {
	Interfaces    Interfaces    `yaml:"interfaces"`
	Modules       Modules       `yaml:"modules"`
	Scanner       Scanner       `yaml:"scanner"`
	AutoSelection AutoSelection `yaml:"auto_selection"`
	Web           Web           `yaml:"web"`
	Registry      Registry      `yaml:"registry"`
	Metrics       Metrics       `yaml:"metrics"`

	// Credentials maps an SSID to the pre-shared key the WPA2/WPA3
	// strategies look up via strategy.CredentialLookup. Not part of spec
	// §6's recognized keys, but required for those strategies to do
	// anything beyond attempt-and-fail; kept separate from the main
	// struct fields above so the documented schema stays exactly as
	// named.
	Credentials map[string]string `yaml:"credentials"`
}

// defaults mirrors spec §6's stated defaults.
func defaults() Config {
	return Config{
		Scanner:       Scanner{ScanIntervalSeconds: 5},
		AutoSelection: AutoSelection{EvaluationIntervalSecond: 30, MinScoreImprovement: 10.0, InitialDelaySeconds: 10},
	}
}

// Load reads and parses the YAML document at path from fs, filling in any
// field left zero in the document with its spec-mandated default.
func Load(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// ScanInterval returns the scanner interval as a time.Duration.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.ScanIntervalSeconds) * time.Second
}

// EvaluationInterval returns the selector evaluation interval.
func (c Config) EvaluationInterval() time.Duration {
	return time.Duration(c.AutoSelection.EvaluationIntervalSecond) * time.Second
}

// InitialDelay returns the selector's initial delay.
func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.AutoSelection.InitialDelaySeconds) * time.Second
}

// ModuleEnabled reports whether tag should be instantiated: every tag is
// enabled when Modules.Enabled is empty, otherwise only listed tags are.
func (c Config) ModuleEnabled(tag string) bool {
	if len(c.Modules.Enabled) == 0 {
		return true
	}
	for _, t := range c.Modules.Enabled {
		if t == tag {
			return true
		}
	}
	return false
}

// CredentialLookup returns a strategy.CredentialLookup backed by this
// Config's Credentials map, keyed by the candidate AP's SSID.
func (c Config) CredentialLookup() strategy.CredentialLookup {
	return func(ap catalog.AccessPoint) string {
		return c.Credentials[ap.SSID]
	}
}
