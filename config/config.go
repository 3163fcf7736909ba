/*
 * config.go, part of golinac.
 *
 * Copyright 2026 The golinac Authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Package config reads the settings of the golinac pipeline from a YAML or JSON
//file. Values missing from the file keep their defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/diag"
	"github.com/rmera/golinac/track"
	"github.com/rmera/golinac/translate"
	"gopkg.in/yaml.v3"
)

//Config is the complete configuration.
type Config struct {
	Beam        Beam        `yaml:"beam" json:"beam"`
	Parse       Parse       `yaml:"parse" json:"parse"`
	Translate   Translate   `yaml:"translate" json:"translate"`
	Calibration Calibration `yaml:"calibration" json:"calibration"`
}

//Beam is the reference particle, in the units accelerator people give it.
type Beam struct {
	MassAMU     float64 `yaml:"mass_amu" json:"mass_amu"`
	KineticPerU float64 `yaml:"kinetic_mev_per_u" json:"kinetic_mev_per_u"`
	Nucleons    int     `yaml:"nucleons" json:"nucleons"`
	Charge      float64 `yaml:"charge" json:"charge"`
	FrequencyHz float64 `yaml:"frequency_hz" json:"frequency_hz"`
	Harmonic    int     `yaml:"harmonic" json:"harmonic"`
}

//Parse holds the TRACK reader options.
type Parse struct {
	RequireHeader bool   `yaml:"require_header" json:"require_header"`
	Header        string `yaml:"header" json:"header"`
}

//Translate holds the translator options. Options is keyed by element kind name.
type Translate struct {
	CavityLength float64                   `yaml:"cavity_length" json:"cavity_length"`
	GapModel     bool                      `yaml:"gap_model" json:"gap_model"`
	AdjustDrifts bool                      `yaml:"adjust_drifts" json:"adjust_drifts"`
	TargetPhase  *float64                  `yaml:"target_phase" json:"target_phase"`
	Options      map[string]map[string]any `yaml:"options" json:"options"`
	//PhysicalLengths times the flight through non-RF elements over their own length.
	PhysicalLengths bool `yaml:"physical_lengths" json:"physical_lengths"`
}

//Calibration holds the calibration loop settings.
type Calibration struct {
	Iterations    int    `yaml:"iterations" json:"iterations"`
	Timeout       string `yaml:"timeout" json:"timeout"` //time.ParseDuration format, empty for none
	WorkDir       string `yaml:"workdir" json:"workdir"`
	Command       string `yaml:"command" json:"command"`
	ReferenceFile string `yaml:"reference_file" json:"reference_file"`
	BPMFile       string `yaml:"bpm_file" json:"bpm_file"`
	StepMapping   string `yaml:"step_mapping" json:"step_mapping"` //"same" or "impactx"
	HistoryDB     string `yaml:"history_db" json:"history_db"`
	Estimate      bool   `yaml:"estimate" json:"estimate"`
	InitialTable  string `yaml:"initial_table" json:"initial_table"`
}

//New creates a Config with the default values: a deuteron beam on a 146 MHz linac.
func New() *Config {
	return &Config{
		Beam: Beam{
			MassAMU:     2.01410178,
			KineticPerU: 2.5,
			Nucleons:    2,
			Charge:      1,
			FrequencyHz: 146 * linac.MHz,
			Harmonic:    1,
		},
		Parse: Parse{Header: "TRACK"},
		Translate: Translate{
			CavityLength: 0.1,
			Options:      map[string]map[string]any{},
		},
		Calibration: Calibration{
			Iterations:    7,
			WorkDir:       "calib",
			ReferenceFile: "diags/ref_particle.txt",
			BPMFile:       "diags/bpm.txt",
			StepMapping:   "same",
		},
	}
}

//LoadFile loads configuration from a file (YAML or JSON based on extension),
//over the values already in c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	//decoding into c leaves alone whatever the file doesn't mention
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			if err := json.Unmarshal(data, c); err != nil {
				return fmt.Errorf("unable to parse config as YAML or JSON")
			}
		}
	}
	return c.Validate()
}

//Validate checks the values that can be checked without running anything.
func (c *Config) Validate() error {
	if err := c.LinacBeam().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Translate.CavityLength < 0 {
		return fmt.Errorf("config: negative cavity length %g", c.Translate.CavityLength)
	}
	if _, err := c.TranslateOptions(); err != nil {
		return err
	}
	if _, err := c.Calibration.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Calibration.Steps(); err != nil {
		return err
	}
	return nil
}

//LinacBeam returns the reference particle.
func (c *Config) LinacBeam() linac.Beam {
	b := c.Beam
	return linac.NewBeam(b.MassAMU, b.KineticPerU, b.Nucleons, b.Charge, b.FrequencyHz, b.Harmonic)
}

//ParseOptions returns the TRACK reader options.
func (c *Config) ParseOptions() *track.Options {
	return &track.Options{RequireHeader: c.Parse.RequireHeader, Header: c.Parse.Header}
}

//TranslateOptions returns the translator options. Unknown kind names in the
//overlays are an error.
func (c *Config) TranslateOptions() (translate.Options, error) {
	t := c.Translate
	ret := translate.Options{CavityLength: t.CavityLength, GapModel: t.GapModel, AdjustDrifts: t.AdjustDrifts, TargetPhase: t.TargetPhase, PhysicalLengths: t.PhysicalLengths}
	if len(t.Options) > 0 {
		ret.Overlays = make(map[linac.Kind]map[string]any, len(t.Options))
	}
	for name, ov := range t.Options {
		k, err := linac.ParseKind(name)
		if err != nil {
			return translate.Options{}, fmt.Errorf("config: translate options: %w", err)
		}
		ret.Overlays[k] = ov
	}
	return ret, nil
}

//TimeoutDuration returns the per-simulation timeout, 0 if there is none.
func (c Calibration) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: calibration timeout: %w", err)
	}
	return d, nil
}

//Steps returns the BPM step mapping.
func (c Calibration) Steps() (diag.StepMap, error) {
	switch strings.ToLower(c.StepMapping) {
	case "", "same":
		return nil, nil
	case "impactx":
		return diag.ImpactXSteps, nil
	}
	return nil, fmt.Errorf("config: unknown step mapping %q", c.StepMapping)
}
