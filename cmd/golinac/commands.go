/*
 * commands.go, part of golinac.
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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/calib"
	"github.com/rmera/golinac/refpart"
	"github.com/rmera/golinac/rfgap"
	"github.com/rmera/golinac/runlog"
	"github.com/rmera/golinac/track"
	"github.com/rmera/golinac/translate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var parseCmd = &cobra.Command{
	Use:   "parse [track file]",
	Short: "Parse a TRACK element list into a lattice JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

var estimateCmd = &cobra.Command{
	Use:   "estimate [lattice]",
	Short: "Estimate the synchronous phase of every RF element",
	Long: `Integrates the synchronous particle along the lattice and writes the phase
table (name, observed, target, correction) with the natural phases as observed
values, so the corrections are the first guess of the calibration. The lattice is a TRACK file or a lattice JSON file.`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

var translateCmd = &cobra.Command{
	Use:   "translate [lattice] [phase table]",
	Short: "Translate a lattice for the tracking code",
	Args:  cobra.ExactArgs(2),
	RunE:  runTranslate,
}

var gapCmd = &cobra.Command{
	Use:   "gap",
	Short: "Print the thin-gap transfer matrix of an RF gap",
	Args:  cobra.NoArgs,
	RunE:  runGap,
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate [lattice]",
	Short: "Calibrate the RF phases against the simulated beam",
	Long: `Runs the calibration loop: translate the lattice with the current phase
table, run the simulation command (calibration.command in the config), measure
the phase of the beam at every RF element from the BPM samples and correct.
Every iteration is checkpointed under the work directory, and recorded in the
history database if one is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runCalibrate,
}

var historyCmd = &cobra.Command{
	Use:   "history [session]",
	Short: "List the calibration sessions, or the runs of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var (
	output     string
	iterations int
	note       string
	database   string
	gapVoltage float64
	gapPhase   float64
	gapKinetic float64
)

func init() {
	for _, c := range []*cobra.Command{parseCmd, estimateCmd, translateCmd, calibrateCmd} {
		c.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	}
	calibrateCmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "Number of iterations (default: from config)")
	calibrateCmd.Flags().StringVar(&note, "note", "", "Note stored with the session in the history database")
	historyCmd.Flags().StringVar(&database, "db", "", "History database (default: from config)")
	gapCmd.Flags().Float64Var(&gapVoltage, "voltage", 0, "Effective gap voltage, MV")
	gapCmd.Flags().Float64Var(&gapPhase, "phase", 0, "Synchronous phase, deg")
	gapCmd.Flags().Float64Var(&gapKinetic, "kinetic", -1, "Kinetic energy at the gap, MeV (default: beam energy)")
}

//readLattice reads a lattice JSON file, or a TRACK list for any other extension.
func readLattice(name string) (*linac.Lattice, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return linac.ReadLattice(name)
	}
	L, stats, err := track.ParseFile(name, cfg.ParseOptions())
	if err != nil {
		return nil, err
	}
	logger.Info("parsed TRACK list", zap.String("file", name), zap.Stringer("stats", stats))
	return L, nil
}

func writeLattice(L *linac.Lattice) error {
	if output == "" {
		return linac.EncodeLattice(os.Stdout, L)
	}
	return linac.WriteLattice(output, L)
}

func writeTable(T linac.PhaseTable) error {
	if output == "" {
		return linac.EncodePhaseTable(os.Stdout, T)
	}
	return linac.WritePhaseTable(output, T)
}

func runParse(cmd *cobra.Command, args []string) error {
	L, stats, err := track.ParseFile(args[0], cfg.ParseOptions())
	if err != nil {
		return err
	}
	logger.Info("parsed TRACK list", zap.String("file", args[0]), zap.Stringer("stats", stats))
	return writeLattice(L)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	L, err := readLattice(args[0])
	if err != nil {
		return err
	}
	t := cfg.Translate
	opts := refpart.Options{CavityLength: t.CavityLength, TargetPhase: t.TargetPhase, PhysicalLengths: t.PhysicalLengths}
	prof, table, err := refpart.Integrate(L, cfg.LinacBeam(), opts)
	if err != nil {
		return err
	}
	logger.Info("synchronous particle integrated",
		zap.Int("rf", len(table)),
		zap.Float64("final_kinetic_mev", prof.FinalKinetic()))
	return writeTable(table)
}

func runTranslate(cmd *cobra.Command, args []string) error {
	L, err := readLattice(args[0])
	if err != nil {
		return err
	}
	table, err := linac.ReadPhaseTable(args[1])
	if err != nil {
		return err
	}
	opts, err := cfg.TranslateOptions()
	if err != nil {
		return err
	}
	T, err := translate.Translate(L, table, cfg.LinacBeam(), opts)
	if err != nil {
		return err
	}
	logger.Info("lattice translated", zap.Int("elements", T.Len()), zap.Float64("length_m", T.TotalLength()))
	return writeLattice(T)
}

func runGap(cmd *cobra.Command, args []string) error {
	beam := cfg.LinacBeam()
	ek := gapKinetic
	if ek < 0 {
		ek = beam.Kinetic
	}
	charge := beam.Charge
	if charge == 0 {
		charge = 1
	}
	m, err := rfgap.Compute(rfgap.Gap{
		Voltage:   gapVoltage,
		Phase:     gapPhase,
		Kinetic:   ek,
		Mass:      beam.Mass,
		Charge:    charge,
		Frequency: beam.Frequency * float64(beam.HarmonicOf(0)),
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "R =\n%v\n", mat.Formatted(m.R, mat.Squeeze()))
	fmt.Fprintf(out, "kx = %.6g 1/m, kz = %.6g 1/m, gain = %.6g MeV, kinetic out = %.6g MeV\n", m.Kx, m.Kz, m.Gain, m.KineticOut)
	return nil
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	c := cfg.Calibration
	if c.Command == "" {
		return fmt.Errorf("calibration.command is not set in the config")
	}
	L, err := readLattice(args[0])
	if err != nil {
		return err
	}
	topts, err := cfg.TranslateOptions()
	if err != nil {
		return err
	}
	timeout, err := c.TimeoutDuration()
	if err != nil {
		return err
	}
	steps, err := c.Steps()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	C := &calib.Calibrator{
		Beam:      cfg.LinacBeam(),
		Translate: topts,
		Simulator: &calib.ExecSimulator{
			Command:   c.Command,
			Dir:       c.WorkDir,
			Reference: c.ReferenceFile,
			BPM:       c.BPMFile,
			Steps:     steps,
			Logger:    logger.Named("simulator"),
		},
		Iterations: c.Iterations,
		Timeout:    timeout,
		Estimate:   c.Estimate,
		WorkDir:    c.WorkDir,
		Logger:     logger.Named("calib"),
	}
	if iterations > 0 {
		C.Iterations = iterations
	}
	if c.InitialTable != "" {
		if C.Initial, err = linac.ReadPhaseTable(c.InitialTable); err != nil {
			return err
		}
	}
	if c.HistoryDB != "" {
		store, err := runlog.NewStore(c.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		session, err := store.Begin(ctx, note)
		if err != nil {
			return err
		}
		logger.Info("recording calibration", zap.String("db", c.HistoryDB), zap.String("session", session))
		C.Recorder = store.Recorder(session)
	}
	hist, err := C.Run(ctx, L)
	if err != nil {
		return err
	}
	last, _ := hist.Last()
	logger.Info("calibration finished",
		zap.Int("iterations", len(hist)),
		zap.Float64("last_change_deg", last.MaxChange()),
		zap.Strings("unmeasured", last.Gaps))
	return writeTable(hist.Table())
}

func runHistory(cmd *cobra.Command, args []string) error {
	db := database
	if db == "" {
		db = cfg.Calibration.HistoryDB
	}
	if db == "" {
		return fmt.Errorf("no history database given (--db or calibration.history_db)")
	}
	store, err := runlog.NewStore(db)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	if len(args) == 0 {
		sessions, err := store.Sessions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "SESSION\tCREATED\tRUNS\tNOTE")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Created.Local().Format(time.DateTime), s.Runs, s.Note)
		}
		return nil
	}
	hist, err := store.Runs(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ITERATION\tSTARTED\tELAPSED\tMAX CHANGE (deg)\tUNMEASURED")
	for _, r := range hist {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4g\t%s\n", r.Iteration, r.Started.Local().Format(time.DateTime),
			r.Elapsed.Round(time.Millisecond), r.MaxChange(), strings.Join(r.Gaps, ","))
	}
	return nil
}
