/*
 * exec.go, part of golinac.
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

package calib

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/diag"
	"go.uber.org/zap"
)

//ExecSimulator runs an external tracking program through the shell. For each
//artifact it writes lattice.json and beam.json in the iteration directory, runs
//Command there (with the stdout and stderr going to simulator.log) and reads the
//two diagnostics files the program leaves.
//
//The command also gets the environment variables GOLINAC_LATTICE, GOLINAC_BEAM
//and GOLINAC_ITERATION.
type ExecSimulator struct {
	Command   string
	Dir       string //used for artifacts without a directory, a temporary one if empty
	Reference string //reference trajectory file, relative to the iteration directory. DefaultReference if empty.
	BPM       string //BPM samples file, relative to the iteration directory. DefaultBPM if empty.
	Steps     diag.StepMap
	Logger    *zap.Logger
}

//Default diagnostics files of ExecSimulator
const (
	DefaultReference = "diags/ref_particle.txt"
	DefaultBPM       = "diags/bpm.txt"
)

//Simulate implements Simulator.
func (E *ExecSimulator) Simulate(ctx context.Context, art Artifact) (*diag.Record, error) {
	log := E.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dir, err := E.dir(art, log)
	if err != nil {
		return nil, err
	}
	latname := filepath.Join(dir, "lattice.json")
	beamname := filepath.Join(dir, "beam.json")
	if err := linac.WriteLattice(latname, art.Lattice); err != nil {
		return nil, linac.ErrDecorate(err, "ExecSimulator.Simulate")
	}
	b, err := json.MarshalIndent(art.Beam, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(beamname, b, 0o644); err != nil {
		return nil, err
	}
	out, err := os.Create(filepath.Join(dir, "simulator.log"))
	if err != nil {
		return nil, err
	}
	defer out.Close()
	command := exec.CommandContext(ctx, "sh", "-c", E.Command)
	command.Dir = dir
	command.Stdout = out
	command.Stderr = out
	command.Env = append(os.Environ(),
		"GOLINAC_LATTICE="+latname,
		"GOLINAC_BEAM="+beamname,
		"GOLINAC_ITERATION="+strconv.Itoa(art.Iteration))
	log.Info("running simulator", zap.String("command", E.Command), zap.String("dir", dir), zap.Int("iteration", art.Iteration))
	if err := command.Run(); err != nil {
		log.Error("simulator failed", zap.Error(err), zap.String("log", out.Name()))
		return nil, err
	}
	ref, bpm := E.Reference, E.BPM
	if ref == "" {
		ref = DefaultReference
	}
	if bpm == "" {
		bpm = DefaultBPM
	}
	rec, err := diag.Load(filepath.Join(dir, ref), filepath.Join(dir, bpm), E.Steps)
	if err != nil {
		return nil, linac.ErrDecorate(err, "ExecSimulator.Simulate")
	}
	log.Debug("diagnostics read", zap.Int("reference_rows", len(rec.Reference)), zap.Int("samples", len(rec.Samples)))
	return rec, nil
}

//dir returns the directory the simulator runs in. A temporary one is left on
//disk for the diagnostics, so its path is logged.
func (E *ExecSimulator) dir(art Artifact, log *zap.Logger) (string, error) {
	if art.Dir != "" {
		return art.Dir, os.MkdirAll(art.Dir, 0o755)
	}
	if E.Dir != "" {
		d := IterationDir(E.Dir, art.Iteration)
		return d, os.MkdirAll(d, 0o755)
	}
	d, err := os.MkdirTemp("", "golinac-sim-")
	if err != nil {
		return "", err
	}
	log.Info("simulator work directory is temporary", zap.String("dir", d), zap.Int("iteration", art.Iteration))
	return d, nil
}
