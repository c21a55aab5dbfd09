package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"volsignal/internal/model"
)

// instrumentsFile is the YAML layout of INSTRUMENTS_FILE.
type instrumentsFile struct {
	DefaultThreshold float64                  `yaml:"default_threshold"`
	Instruments      []model.InstrumentConfig `yaml:"instruments"`
}

// DefaultInstruments is the built-in watch list used when no file is configured.
func DefaultInstruments(threshold float64) []model.InstrumentConfig {
	return []model.InstrumentConfig{
		{ID: "BTC/USD", DisplayName: "Bitcoin", Category: model.CategoryCrypto, Threshold: threshold, AlwaysOpen: true},
		{ID: "XAU/USD", DisplayName: "Gold", Category: model.CategoryMetal, Threshold: threshold},
		{ID: "EUR/USD", DisplayName: "Euro / US Dollar", Category: model.CategoryForex, Threshold: threshold},
		{ID: "GBP/JPY", DisplayName: "Pound / Yen", Category: model.CategoryForex, Threshold: threshold},
	}
}

// LoadInstruments reads the instrument list from path, or returns
// DefaultInstruments when path is empty. Instruments without a threshold get
// the file's default_threshold, else defaultThreshold. The result has defaults
// applied and is validated, including id uniqueness.
func LoadInstruments(path string, defaultThreshold float64) ([]model.InstrumentConfig, error) {
	if path == "" {
		return normalize(DefaultInstruments(defaultThreshold), defaultThreshold)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}
	var f instrumentsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse instruments %s: %w", path, err)
	}
	if f.DefaultThreshold > 0 {
		defaultThreshold = f.DefaultThreshold
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("instruments %s: no instruments listed", path)
	}
	return normalize(f.Instruments, defaultThreshold)
}

func normalize(in []model.InstrumentConfig, defaultThreshold float64) ([]model.InstrumentConfig, error) {
	out := make([]model.InstrumentConfig, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		if c.Threshold == 0 {
			c.Threshold = defaultThreshold
		}
		c = c.WithDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("instrument %s: listed twice", c.ID)
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
