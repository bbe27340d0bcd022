// Package tariff loads segment limits and unit pricing from a YAML file.
//
//	cost_per_unit: "0.05"
//	limits:
//	  GSM:     {single: 160, concat: 153}
//	  UNICODE: {single: 70, concat: 67}
//
// Encodings left out of the file keep their default limits.
package tariff

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"smscard-gateway/billing"
	"smscard-gateway/coding"
)

var ErrEmptyPath = errors.New("tariff: empty path")

type Tariff struct {
	Limits      coding.LimitTable
	CostPerUnit billing.Rate
}

type file struct {
	CostPerUnit *billing.Rate            `yaml:"cost_per_unit"`
	Limits      map[string]coding.Limits `yaml:"limits"`
}

func Default() Tariff {
	return Tariff{Limits: coding.DefaultLimits(), CostPerUnit: billing.DefaultCostPerUnit}
}

// Load reads the tariff at path. An empty path is an error; callers decide
// whether to fall back to Default.
func Load(path string) (Tariff, error) {
	if path == "" {
		return Tariff{}, ErrEmptyPath
	}
	f, err := os.Open(path)
	if err != nil {
		return Tariff{}, fmt.Errorf("tariff: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (Tariff, error) {
	var raw file
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return Tariff{}, fmt.Errorf("tariff: decode: %w", err)
	}

	t := Default()
	if raw.CostPerUnit != nil {
		t.CostPerUnit = *raw.CostPerUnit
	}

	override := make(coding.LimitTable, len(raw.Limits))
	for name, limits := range raw.Limits {
		enc, err := coding.ParseEncoding(name)
		if err != nil {
			return Tariff{}, fmt.Errorf("tariff: limits: %w", err)
		}
		override[enc] = limits
	}
	t.Limits = t.Limits.Merge(override)
	if err := t.Limits.Validate(); err != nil {
		return Tariff{}, fmt.Errorf("tariff: %w", err)
	}
	return t, nil
}
