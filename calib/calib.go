/*
 * calib.go, part of golinac.
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

//Package calib runs the phase calibration loop: translate the lattice with the
//current phase table, run the tracking simulator on it, measure at which phase the
//beam actually reaches each RF element, and correct the table. Each iteration
//depends on the previous one, so they run one after the other.
package calib

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/diag"
	"github.com/rmera/golinac/refpart"
	"github.com/rmera/golinac/translate"
	"go.uber.org/zap"
)

//DefaultIterations is the number of iterations when Calibrator.Iterations is not set.
const DefaultIterations = 7

//State is a state of the loop.
type State int

const (
	StateInit State = iota
	StateTranslate
	StateSimulate
	StateMeasure
	StateCorrect
	StateDone
)

var stateNames = [...]string{"init", "translate", "simulate", "measure", "correct", "done"}

func (S State) String() string {
	if S < StateInit || S > StateDone {
		return fmt.Sprintf("State(%d)", int(S))
	}
	return stateNames[S]
}

//Artifact is what the simulator gets for one iteration.
type Artifact struct {
	Iteration int
	Lattice   *linac.Lattice //translated
	Table     linac.PhaseTable
	Beam      linac.Beam
	Dir       string //iteration directory, empty if the calibrator doesn't keep checkpoints
}

//Simulator runs the tracking simulation of an artifact. It must honour ctx.
type Simulator interface {
	Simulate(ctx context.Context, art Artifact) (*diag.Record, error)
}

//SimulatorFunc lets a function be a Simulator.
type SimulatorFunc func(ctx context.Context, art Artifact) (*diag.Record, error)

func (F SimulatorFunc) Simulate(ctx context.Context, art Artifact) (*diag.Record, error) {
	return F(ctx, art)
}

//Run is one iteration. It is not changed after the loop creates it.
type Run struct {
	Iteration   int
	Table       linac.PhaseTable //the table the lattice was translated with
	Measurement Measurement
	Next        linac.PhaseTable //the corrected table
	Energy      []diag.EnergyPoint
	Gaps        []string //RF elements without a measurement
	Started     time.Time
	Elapsed     time.Duration
}

//MaxChange is the largest change in correction this iteration made, in degrees.
func (R Run) MaxChange() float64 {
	return R.Next.MaxChange(R.Table)
}

//History holds the runs in iteration order.
type History []Run

//Last returns the last run, or false if there are none.
func (H History) Last() (Run, bool) {
	if len(H) == 0 {
		return Run{}, false
	}
	return H[len(H)-1], true
}

//Converged is true if the last iteration changed no correction by more than tol degrees.
func (H History) Converged(tol float64) bool {
	r, ok := H.Last()
	return ok && r.MaxChange() <= tol
}

//Table returns the table the next iteration would use: the corrected table of the
//last run, or nil for an empty history.
func (H History) Table() linac.PhaseTable {
	r, ok := H.Last()
	if !ok {
		return nil
	}
	return r.Next.Clone()
}

//Recorder keeps runs somewhere outside the process.
type Recorder interface {
	Record(ctx context.Context, r Run) error
}

//Calibrator holds the settings of a calibration. The zero value of the optional fields is usable.
type Calibrator struct {
	Beam       linac.Beam
	Translate  translate.Options
	Simulator  Simulator
	Measurer   Measurer      //BPMMeasurer{} if nil
	Iterations int           //DefaultIterations if <= 0
	Timeout    time.Duration //per simulation, none if 0
	//Initial is the table of the first iteration. If nil, it is the estimate of
	//the synchronous-particle integrator when Estimate is set, otherwise all-zero corrections.
	Initial  linac.PhaseTable
	Estimate bool
	//WorkDir, if set, gets one directory per iteration (iter_001...) with the
	//lattice artifact and the phase tables.
	WorkDir  string
	Recorder Recorder
	Logger   *zap.Logger
	//StopFunc is called after each iteration. The loop ends early if it returns true.
	StopFunc func(H History) bool
}

func (C *Calibrator) logger() *zap.Logger {
	if C.Logger == nil {
		return zap.NewNop()
	}
	return C.Logger
}

//IterationDir returns the checkpoint directory of iteration it under WorkDir.
func IterationDir(workdir string, it int) string {
	return filepath.Join(workdir, fmt.Sprintf("iter_%03d", it))
}

//initial returns the table of the first iteration.
func (C *Calibrator) initial(L *linac.Lattice) (linac.PhaseTable, error) {
	if C.Initial != nil {
		return C.Initial.Clone(), nil
	}
	if C.Estimate {
		return refpart.Estimate(L, C.Beam, refpart.Options{CavityLength: C.Translate.CavityLength, TargetPhase: C.Translate.TargetPhase, PhysicalLengths: C.Translate.PhysicalLengths})
	}
	return linac.ZeroTable(L, C.Translate.TargetPhase), nil
}

//Run calibrates the phases of L. It returns the history of the iterations it
//completed. On a fatal error (the simulator failing or timing out, ctx being
//canceled, the translation failing) it returns the history so far together with a *Error.
func (C *Calibrator) Run(ctx context.Context, L *linac.Lattice) (History, error) {
	log := C.logger()
	hist := make(History, 0)
	if C.Simulator == nil {
		return hist, newError(0, StateInit, "no simulator", nil, "Calibrator.Run")
	}
	measurer := C.Measurer
	if measurer == nil {
		measurer = BPMMeasurer{}
	}
	n := C.Iterations
	if n <= 0 {
		n = DefaultIterations
	}
	table, err := C.initial(L)
	if err != nil {
		return hist, newError(0, StateInit, "can't build the initial table", err, "Calibrator.Run")
	}
	log.Info("calibration started", zap.Int("iterations", n), zap.Int("rf_elements", len(table)), zap.String("workdir", C.WorkDir))
	for it := 1; it <= n; it++ {
		if err := ctx.Err(); err != nil {
			return hist, newError(it, StateInit, ErrCanceled, err, "Calibrator.Run")
		}
		run, err := C.iterate(ctx, L, table, measurer, it, log)
		if err != nil {
			return hist, err
		}
		hist = append(hist, run)
		table = run.Next
		if C.Recorder != nil {
			if err := C.Recorder.Record(ctx, run); err != nil {
				log.Error("can't record run", zap.Int("iteration", it), zap.Error(err))
			}
		}
		log.Info("iteration done",
			zap.Int("iteration", it),
			zap.Float64("max_change_deg", run.MaxChange()),
			zap.Int("gaps", len(run.Gaps)),
			zap.Duration("elapsed", run.Elapsed))
		if C.StopFunc != nil && C.StopFunc(hist) {
			log.Info("calibration stopped early", zap.Int("iteration", it))
			break
		}
	}
	log.Debug("calibration done", zap.Stringer("state", StateDone))
	return hist, nil
}

func (C *Calibrator) iterate(ctx context.Context, L *linac.Lattice, table linac.PhaseTable, measurer Measurer, it int, log *zap.Logger) (Run, error) {
	run := Run{Iteration: it, Table: table.Clone(), Started: time.Now()}
	log = log.With(zap.Int("iteration", it))

	log.Debug("state", zap.Stringer("state", StateTranslate))
	T, err := translate.Translate(L, table, C.Beam, C.Translate)
	if err != nil {
		return run, newError(it, StateTranslate, ErrTranslation, err, "Calibrator.Run")
	}
	art := Artifact{Iteration: it, Lattice: T, Table: run.Table, Beam: C.Beam}
	if C.WorkDir != "" {
		art.Dir = IterationDir(C.WorkDir, it)
		if err := checkpoint(art.Dir, T, table); err != nil {
			return run, newError(it, StateTranslate, ErrCheckpoint, err, "Calibrator.Run")
		}
	}

	log.Debug("state", zap.Stringer("state", StateSimulate))
	sctx := ctx
	if C.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, C.Timeout)
		defer cancel()
	}
	rec, err := C.Simulator.Simulate(sctx, art)
	//an expired deadline fails the iteration even if the simulator ignored it
	if cerr := sctx.Err(); cerr != nil {
		if err == nil {
			err = cerr
		} else {
			err = fmt.Errorf("%w: %v", cerr, err)
		}
	}
	if err != nil {
		return run, newError(it, StateSimulate, ErrSimulation, err, "Calibrator.Run")
	}
	if rec == nil {
		return run, newError(it, StateSimulate, ErrNoRecord, nil, "Calibrator.Run")
	}

	log.Debug("state", zap.Stringer("state", StateMeasure))
	m, err := measurer.Measure(rec, T, C.Beam)
	if err != nil {
		return run, newError(it, StateMeasure, ErrMeasurement, err, "Calibrator.Run")
	}
	run.Measurement = m
	run.Energy = diag.EnergyProfile(rec, C.Beam)

	log.Debug("state", zap.Stringer("state", StateCorrect))
	run.Next, run.Gaps = correct(table, m)
	for _, name := range run.Gaps {
		p, _ := m.Reading(name)
		reason := p.Gap
		if reason == "" {
			reason = "no reading for the element"
		}
		log.Warn("measurement gap, correction kept", zap.String("element", name), zap.String("reason", reason))
	}
	if art.Dir != "" {
		if err := linac.WritePhaseTable(filepath.Join(art.Dir, "measured.csv"), run.Next); err != nil {
			return run, newError(it, StateCorrect, ErrCheckpoint, err, "Calibrator.Run")
		}
	}
	run.Elapsed = time.Since(run.Started)
	return run, nil
}

//correct returns the table with the corrections for the measured elements and the
//names of those that were not measured. Those keep their previous correction
//and get an undefined observation.
func correct(table linac.PhaseTable, m Measurement) (linac.PhaseTable, []string) {
	entries := make([]linac.PhaseEntry, 0, len(table))
	gaps := make([]string, 0)
	for _, e := range table {
		p, ok := m.Reading(e.Name)
		if ok && p.Measured() {
			entries = append(entries, linac.NewPhaseEntry(e.Name, p.Phase, e.Target))
			continue
		}
		gaps = append(gaps, e.Name)
		entries = append(entries, linac.PhaseEntry{Name: e.Name, Observed: math.NaN(), Target: e.Target, Correction: e.Correction})
	}
	return table.With(entries...), gaps
}

func checkpoint(dir string, T *linac.Lattice, table linac.PhaseTable) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := linac.WriteLattice(filepath.Join(dir, "lattice.json"), T); err != nil {
		return err
	}
	return linac.WritePhaseTable(filepath.Join(dir, "phases.csv"), table)
}
