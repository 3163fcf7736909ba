package calib

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/diag"
	"github.com/rmera/golinac/translate"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func twoCavities(Te *testing.T) *linac.Lattice {
	Te.Helper()
	L, err := linac.NewLattice(
		linac.Element{Name: "dr1", Kind: linac.Drift, Length: 1},
		linac.NewRF("rf1", linac.RFCavity, 1, -30, 1),
		linac.Element{Name: "dr2", Kind: linac.Drift, Length: 1, At: 1},
		linac.NewRF("rf2", linac.RFCavity, 1, -20, 1),
		linac.Element{Name: "dr3", Kind: linac.Drift, Length: 1, At: 2},
	)
	if err != nil {
		Te.Fatal(err)
	}
	return L
}

var beam = linac.Beam{Mass: 1876, Kinetic: 20, Charge: 1, Frequency: 100 * linac.MHz, Harmonic: 1}

//with a cavity length of 0.2 the centers are at 1.1 and 2.3 m
var topts = translate.Options{CavityLength: 0.2}

const (
	beta = 0.2
	lag  = 0.01 //m of c*t
)

//synthetic builds a record with a reference row every 20 cm up to 3.4 m, and BPM
//samples at the rows up to maxS. The particles arrive lag later than the reference,
//with some halo.
func synthetic(maxS float64) *diag.Record {
	rec := new(diag.Record)
	g := 1 / math.Sqrt(1-beta*beta)
	offsets := []float64{-0.05, 0, 0, 0, 0.05}
	for k := 0; k <= 17; k++ {
		s := 0.2 * float64(k)
		t := s / beta
		rec.Reference = append(rec.Reference, diag.RefPoint{Step: k, S: s, Beta: beta, Gamma: g, T: t})
		if s > maxS {
			continue
		}
		for pid, o := range offsets {
			rec.Samples = append(rec.Samples, diag.Sample{Step: k, PID: int64(pid), T: t + lag + o, Pt: 0})
		}
	}
	//seen only once
	rec.Samples = append(rec.Samples, diag.Sample{Step: 5, PID: 99, T: 100})
	return rec
}

func staticSimulator(rec *diag.Record) Simulator {
	return SimulatorFunc(func(ctx context.Context, art Artifact) (*diag.Record, error) {
		return rec, nil
	})
}

type measureFunc func(rec *diag.Record, L *linac.Lattice, beam linac.Beam) (Measurement, error)

func (F measureFunc) Measure(rec *diag.Record, L *linac.Lattice, beam linac.Beam) (Measurement, error) {
	return F(rec, L, beam)
}

func TestMeasure(Te *testing.T) {
	L := twoCavities(Te)
	T, err := translate.Translate(L, linac.ZeroTable(L, nil), beam, topts)
	if err != nil {
		Te.Fatal(err)
	}
	m, err := BPMMeasurer{}.Measure(synthetic(3.4), T, beam)
	if err != nil {
		Te.Fatal(err)
	}
	want := linac.PhaseOfTime(-lag/linac.SpeedOfLight, beam.Omega(1))
	for _, p := range m.Readings {
		if !p.Measured() || p.Particles != 3 {
			Te.Errorf("%s: %+v", p.Name, p)
			continue
		}
		if math.Abs(p.Phase-want) > 1e-6 {
			Te.Errorf("%s: phase %g, want %g", p.Name, p.Phase, want)
		}
	}
	if p, _ := m.Reading("rf2"); math.Abs(p.S-2.3) > 1e-12 {
		Te.Errorf("rf2 at %g", p.S)
	}
	//the center comes from the lengths, whatever At says
	rf2, _ := T.Element("rf2")
	rf2.At = 99
	moved, err := T.With(rf2)
	if err != nil {
		Te.Fatal(err)
	}
	if m, err := (BPMMeasurer{}).Measure(synthetic(3.4), moved, beam); err != nil {
		Te.Fatal(err)
	} else if p, _ := m.Reading("rf2"); math.Abs(p.S-2.3) > 1e-12 || !p.Measured() {
		Te.Errorf("rf2 reading %+v", p)
	}
	//no BPM after rf2
	m, err = BPMMeasurer{}.Measure(synthetic(2.0), T, beam)
	if err != nil {
		Te.Fatal(err)
	}
	if diff := cmp.Diff([]string{"rf2"}, m.Gaps()); diff != "" {
		Te.Errorf("gaps (-want +got):\n%s", diff)
	}
	if p, _ := m.Reading("rf2"); p.Gap != GapNoBPM || !math.IsNaN(p.Phase) {
		Te.Errorf("rf2 reading %+v", p)
	}
}

func TestTrimmedMean(Te *testing.T) {
	x := []float64{-100, 1, 2, 3, 100}
	if m, n := trimmedMean(x, 0.16, 0.84); m != 2 || n != 3 {
		Te.Errorf("trimmed mean %g of %d", m, n)
	}
	//a symmetric sample keeps a symmetric band: [1.44, 7.56] around 0..9
	x = []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if m, n := trimmedMean(x, 0.16, 0.84); math.Abs(m-4.5) > 1e-12 || n != 6 {
		Te.Errorf("trimmed mean of 0..9: %g of %d", m, n)
	}
	if p := percentile(x, 0.16); math.Abs(p-1.44) > 1e-12 {
		Te.Errorf("16th percentile %g", p)
	}
	if p := percentile(x, 0.84); math.Abs(p-7.56) > 1e-12 {
		Te.Errorf("84th percentile %g", p)
	}
	if p := percentile([]float64{3}, 0.84); p != 3 {
		Te.Errorf("percentile of one value %g", p)
	}
	//nothing strictly inside the band
	x = []float64{5, 5}
	if m, n := trimmedMean(x, 0.16, 0.84); m != 5 || n != 2 {
		Te.Errorf("fallback mean %g of %d", m, n)
	}
}

//A measurement that always reports the target is a fixed point.
func TestTargetIsFixedPoint(Te *testing.T) {
	L := twoCavities(Te)
	start := linac.ZeroTable(L, nil)
	targets := map[string]float64{}
	for _, e := range start {
		targets[e.Name] = e.Target
	}
	stub := measureFunc(func(rec *diag.Record, T *linac.Lattice, b linac.Beam) (Measurement, error) {
		var m Measurement
		for _, name := range T.RF() {
			m.Readings = append(m.Readings, Reading{Name: name, Phase: targets[name]})
		}
		return m, nil
	})
	C := &Calibrator{Beam: beam, Translate: topts, Simulator: staticSimulator(&diag.Record{}), Measurer: stub, Iterations: 3, Logger: zaptest.NewLogger(Te)}
	hist, err := C.Run(context.Background(), L)
	if err != nil {
		Te.Fatal(err)
	}
	if len(hist) != 3 {
		Te.Fatalf("%d runs", len(hist))
	}
	for _, r := range hist {
		if r.MaxChange() != 0 {
			Te.Errorf("iteration %d changed by %g", r.Iteration, r.MaxChange())
		}
		for _, e := range r.Next {
			if e.Correction != 0 || e.Observed != e.Target {
				Te.Errorf("iteration %d: %+v", r.Iteration, e)
			}
		}
	}
	if !hist.Converged(0) {
		Te.Error("not converged")
	}
	C.StopFunc = func(H History) bool { return H.Converged(1e-9) }
	hist, err = C.Run(context.Background(), L)
	if err != nil || len(hist) != 1 {
		Te.Errorf("early stop: %d runs, %v", len(hist), err)
	}
}

func TestGapKeepsCorrection(Te *testing.T) {
	L := twoCavities(Te)
	start := linac.ZeroTable(L, nil).With(linac.PhaseEntry{Name: "rf2", Observed: math.NaN(), Target: -20, Correction: 12.5})
	C := &Calibrator{Beam: beam, Translate: topts, Simulator: staticSimulator(synthetic(2.0)), Initial: start, Iterations: 2, Logger: zaptest.NewLogger(Te)}
	hist, err := C.Run(context.Background(), L)
	if err != nil {
		Te.Fatal(err)
	}
	measured := linac.PhaseOfTime(-lag/linac.SpeedOfLight, beam.Omega(1))
	for _, r := range hist {
		if diff := cmp.Diff([]string{"rf2"}, r.Gaps); diff != "" {
			Te.Errorf("iteration %d gaps (-want +got):\n%s", r.Iteration, diff)
		}
		rf2, _ := r.Next.Entry("rf2")
		if rf2.Correction != 12.5 || rf2.Measured() {
			Te.Errorf("iteration %d: rf2 %+v", r.Iteration, rf2)
		}
		rf1, _ := r.Next.Entry("rf1")
		if math.Abs(rf1.Correction-linac.NormalizeDegrees(-30-measured)) > 1e-6 {
			Te.Errorf("iteration %d: rf1 %+v", r.Iteration, rf1)
		}
		if len(r.Energy) == 0 {
			Te.Errorf("iteration %d: no energy profile", r.Iteration)
		}
	}
	//the input table is left alone
	if e, _ := start.Entry("rf1"); e.Correction != 0 {
		Te.Errorf("initial table changed: %+v", e)
	}
	if diff := cmp.Diff(hist[0].Next, hist.Table(), cmpopts.EquateNaNs()); diff != "" {
		Te.Errorf("history table (-want +got):\n%s", diff)
	}
}

func TestSimulationFailure(Te *testing.T) {
	L := twoCavities(Te)
	fail := SimulatorFunc(func(ctx context.Context, art Artifact) (*diag.Record, error) {
		if art.Iteration == 3 {
			return nil, fmt.Errorf("tracker crashed")
		}
		return synthetic(3.4), nil
	})
	C := &Calibrator{Beam: beam, Translate: topts, Simulator: fail, Logger: zaptest.NewLogger(Te)}
	hist, err := C.Run(context.Background(), L)
	var ce *Error
	if !errors.As(err, &ce) || ce.Iteration != 3 || ce.State != StateSimulate || ce.Message != ErrSimulation {
		Te.Fatalf("expected simulation error at iteration 3, got %v", err)
	}
	if len(hist) != 2 {
		Te.Errorf("%d runs kept", len(hist))
	}
	var le linac.Error
	if !errors.As(err, &le) || !le.Critical() {
		Te.Error("not a critical linac.Error")
	}
}

func TestTimeoutAndCancel(Te *testing.T) {
	L := twoCavities(Te)
	hang := SimulatorFunc(func(ctx context.Context, art Artifact) (*diag.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	C := &Calibrator{Beam: beam, Translate: topts, Simulator: hang, Timeout: 20 * time.Millisecond}
	hist, err := C.Run(context.Background(), L)
	if !errors.Is(err, context.DeadlineExceeded) || len(hist) != 0 {
		Te.Errorf("timeout: %d runs, %v", len(hist), err)
	}
	//a simulator that ignores the deadline still fails the run
	slow := SimulatorFunc(func(ctx context.Context, art Artifact) (*diag.Record, error) {
		time.Sleep(100 * time.Millisecond)
		return synthetic(3.4), nil
	})
	C.Simulator = slow
	if _, err := C.Run(context.Background(), L); !errors.Is(err, context.DeadlineExceeded) {
		Te.Errorf("slow simulator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	C.Simulator = staticSimulator(synthetic(3.4))
	_, err = C.Run(ctx, L)
	var ce *Error
	if !errors.Is(err, context.Canceled) || !errors.As(err, &ce) || ce.Message != ErrCanceled {
		Te.Errorf("cancel: %v", err)
	}
}

type memRecorder struct {
	runs []Run
}

func (M *memRecorder) Record(ctx context.Context, r Run) error {
	M.runs = append(M.runs, r)
	return nil
}

func TestCheckpoints(Te *testing.T) {
	L := twoCavities(Te)
	dir := Te.TempDir()
	rec := new(memRecorder)
	C := &Calibrator{Beam: beam, Translate: topts, Simulator: staticSimulator(synthetic(2.0)), Iterations: 2, WorkDir: dir, Recorder: rec, Estimate: true}
	hist, err := C.Run(context.Background(), L)
	if err != nil {
		Te.Fatal(err)
	}
	if len(rec.runs) != 2 {
		Te.Errorf("%d runs recorded", len(rec.runs))
	}
	//the integrator estimate is the first table
	if e, _ := hist[0].Table.Entry("rf1"); !e.Measured() {
		Te.Errorf("first table isn't the estimate: %+v", e)
	}
	for _, r := range hist {
		d := IterationDir(dir, r.Iteration)
		T, err := linac.ReadLattice(filepath.Join(d, "lattice.json"))
		if err != nil {
			Te.Fatal(err)
		}
		rf1, _ := T.Element("rf1")
		e, _ := r.Table.Entry("rf1")
		if rf1.Phase != e.Correction {
			Te.Errorf("iteration %d: lattice phase %g, correction %g", r.Iteration, rf1.Phase, e.Correction)
		}
		used, err := linac.ReadPhaseTable(filepath.Join(d, "phases.csv"))
		if err != nil {
			Te.Fatal(err)
		}
		if diff := cmp.Diff(r.Table, used, cmpopts.EquateNaNs()); diff != "" {
			Te.Errorf("iteration %d phases.csv (-want +got):\n%s", r.Iteration, diff)
		}
		if _, err := os.Stat(filepath.Join(d, "measured.csv")); err != nil {
			Te.Error(err)
		}
	}
}

func TestExecSimulator(Te *testing.T) {
	L := twoCavities(Te)
	src := Te.TempDir()
	rec := synthetic(3.4)
	if err := diag.WriteReference(filepath.Join(src, "ref.txt.gz"), rec.Reference); err != nil {
		Te.Fatal(err)
	}
	if err := diag.WriteSamples(filepath.Join(src, "bpm.txt.zst"), rec.Samples); err != nil {
		Te.Fatal(err)
	}
	T, err := translate.Translate(L, linac.ZeroTable(L, nil), beam, topts)
	if err != nil {
		Te.Fatal(err)
	}
	sim := &ExecSimulator{
		Command:   fmt.Sprintf(`test -s "$GOLINAC_LATTICE" && test -s "$GOLINAC_BEAM" && echo iteration $GOLINAC_ITERATION && cp %s/* .`, src),
		Dir:       Te.TempDir(),
		Reference: "ref.txt.gz",
		BPM:       "bpm.txt.zst",
		Logger:    zaptest.NewLogger(Te),
	}
	got, err := sim.Simulate(context.Background(), Artifact{Iteration: 4, Lattice: T, Beam: beam})
	if err != nil {
		Te.Fatal(err)
	}
	if diff := cmp.Diff(rec.Samples, got.Samples); diff != "" {
		Te.Errorf("samples (-want +got):\n%s", diff)
	}
	logb, err := os.ReadFile(filepath.Join(IterationDir(sim.Dir, 4), "simulator.log"))
	if err != nil || string(logb) != "iteration 4\n" {
		Te.Errorf("simulator log %q, %v", logb, err)
	}
	sim.Command = "echo broken >&2; exit 3"
	if _, err := sim.Simulate(context.Background(), Artifact{Iteration: 5, Lattice: T, Beam: beam}); err == nil {
		Te.Error("failing command accepted")
	}
}

//Without any directory the simulator runs in a temporary one, and says where.
func TestExecSimulatorTempDir(Te *testing.T) {
	L := twoCavities(Te)
	T, err := translate.Translate(L, linac.ZeroTable(L, nil), beam, topts)
	if err != nil {
		Te.Fatal(err)
	}
	core, logs := observer.New(zap.InfoLevel)
	sim := &ExecSimulator{Command: "true", Logger: zap.New(core)}
	//no diagnostics are written, only the directory matters here
	sim.Simulate(context.Background(), Artifact{Iteration: 2, Lattice: T, Beam: beam})
	entries := logs.FilterMessage("simulator work directory is temporary").All()
	if len(entries) != 1 {
		Te.Fatalf("temporary directory logged %d times", len(entries))
	}
	dir, ok := entries[0].ContextMap()["dir"].(string)
	if !ok || dir == "" {
		Te.Fatalf("no directory in %v", entries[0].ContextMap())
	}
	defer os.RemoveAll(dir)
	if _, err := os.Stat(filepath.Join(dir, "lattice.json")); err != nil {
		Te.Errorf("lattice not written to the logged directory: %v", err)
	}
}
