package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/company"
)

// defaultPreset is always available, even without a defaults file.
const defaultPreset = "two-shakes"

// Defaults represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Defaults struct {
	Version   string                     `yaml:"version"`
	Companies map[string]sim.CompanyForm `yaml:"companies"`
}

// loadDefaults parses a defaults file with strict field checking.
func loadDefaults(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Defaults
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&d); err != nil {
		return nil, fmt.Errorf("parsing defaults %s: %w", path, err)
	}
	return &d, nil
}

// presetForm looks up a company preset. The built-in two-shake company is
// used when the defaults file is missing or does not override it.
func presetForm(path, name string) (sim.CompanyForm, error) {
	d, err := loadDefaults(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if name == defaultPreset {
			logrus.Debugf("defaults file %s not found, using built-in %s", path, defaultPreset)
			return sim.DefaultCompanyForm(), nil
		}
		return sim.CompanyForm{}, fmt.Errorf("preset %q: %w", name, err)
	case err != nil:
		return sim.CompanyForm{}, err
	}
	if form, ok := d.Companies[name]; ok {
		return form, nil
	}
	if name == defaultPreset {
		return sim.DefaultCompanyForm(), nil
	}
	names := make([]string, 0, len(d.Companies))
	for n := range d.Companies {
		names = append(names, n)
	}
	sort.Strings(names)
	return sim.CompanyForm{}, fmt.Errorf("unknown preset %q; available: %s", name, strings.Join(names, ", "))
}

// resolveConfig loads the config file when one is given and otherwise
// builds one from the preset, drawing channel archetypes from seed.
func resolveConfig(configFile, preset, defaultsPath string, seed int64) (*sim.WorldConfig, error) {
	if configFile != "" {
		return sim.LoadWorldConfig(configFile)
	}
	form, err := presetForm(defaultsPath, preset)
	if err != nil {
		return nil, err
	}
	return sim.BuildWorldConfig(form, sim.NewSimulationKey(seed).Stream())
}

// resolveRange turns the range flags into dates. Explicit --start/--end win
// over --year.
func resolveRange(start, end string, year int) (time.Time, time.Time, error) {
	from, to := company.YearRange(year)
	var err error
	if start != "" {
		if from, err = sim.ParseDate(start); err != nil {
			return from, to, fmt.Errorf("--start: %w", err)
		}
	}
	if end != "" {
		if to, err = sim.ParseDate(end); err != nil {
			return from, to, fmt.Errorf("--end: %w", err)
		}
	}
	return from, to, nil
}
