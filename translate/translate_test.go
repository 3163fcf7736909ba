package translate

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/refpart"
)

var latticeCmp = cmp.Options{cmp.AllowUnexported(linac.Lattice{}), cmpopts.EquateNaNs(), cmpopts.EquateEmpty()}

func sample(Te *testing.T, gap linac.Kind) *linac.Lattice {
	Te.Helper()
	L, err := linac.NewLattice(
		linac.Element{Name: "dr1", Kind: linac.Drift, Length: 1, ApertureX: 0.01, ApertureY: 0.01},
		linac.Element{Name: "qm1", Kind: linac.Quadrupole, Length: 0.1, At: 1, K: 2.5},
		linac.Element{Name: "rf1", Kind: linac.RFCavity, At: 1.1, Voltage: 0.8, Phase: -30, Harmonic: 2},
		linac.Element{Name: "dr2", Kind: linac.Drift, Length: 0.5, At: 1.1},
		linac.Element{Name: "rf2", Kind: gap, At: 1.6, Voltage: 0.9, Phase: -25},
		linac.Element{Name: "dr3", Kind: linac.Drift, Length: 0.5, At: 1.6},
	)
	if err != nil {
		Te.Fatal(err)
	}
	return L
}

var deuteron = linac.Beam{Mass: 2.014 * linac.AMU, Kinetic: 10, Charge: 1, Frequency: 73 * linac.MHz, Harmonic: 1}

func TestCavities(Te *testing.T) {
	L := sample(Te, linac.RFCavity)
	table, err := refpart.Estimate(L, deuteron, refpart.Options{CavityLength: 0.2})
	if err != nil {
		Te.Fatal(err)
	}
	T, err := Translate(L, table, deuteron, Options{CavityLength: 0.2})
	if err != nil {
		Te.Fatal(err)
	}
	rf1, _ := T.Element("rf1")
	if rf1.Length != 0.2 {
		Te.Errorf("ds %g", rf1.Length)
	}
	if math.Abs(rf1.EScale-0.8/0.2/deuteron.Mass) > 1e-15 {
		Te.Errorf("escale %g", rf1.EScale)
	}
	if rf1.Frequency != 146*linac.MHz {
		Te.Errorf("freq %g, harmonic 2 expected", rf1.Frequency)
	}
	if rf2, _ := T.Element("rf2"); rf2.Frequency != 73*linac.MHz {
		Te.Errorf("freq %g, beam harmonic expected", rf2.Frequency)
	}
	e, _ := table.Entry("rf1")
	if rf1.Phase != e.Correction {
		Te.Errorf("phase %g, correction %g", rf1.Phase, e.Correction)
	}
	qm, _ := T.Element("qm1")
	if qm.K != 2.5 || qm.Length != 0.1 {
		Te.Errorf("quadrupole changed: %+v", qm)
	}
	//At stays the parsed one, the translated position comes from the lengths
	if dr2, _ := T.Element("dr2"); dr2.At != 1.1 {
		Te.Errorf("dr2 at %g", dr2.At)
	}
	if pos := T.Positions(); math.Abs(pos[3]-1.3) > 1e-12 {
		Te.Errorf("dr2 position %g", pos[3])
	}
	if math.Abs(T.TotalLength()-(L.TotalLength()+0.4)) > 1e-12 {
		Te.Errorf("total length %g", T.TotalLength())
	}
}

func TestInputUntouched(Te *testing.T) {
	L := sample(Te, linac.RFGap)
	before := L.Clone()
	table := linac.ZeroTable(L, nil)
	tbefore := table.Clone()
	ov := map[linac.Kind]map[string]any{linac.Drift: {"nslice": 4.0}}
	if _, err := Translate(L, table, deuteron, Options{CavityLength: 0.2, AdjustDrifts: true, Overlays: ov}); err != nil {
		Te.Fatal(err)
	}
	if diff := cmp.Diff(before, L, latticeCmp); diff != "" {
		Te.Errorf("input lattice changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(tbefore, table, cmpopts.EquateNaNs()); diff != "" {
		Te.Errorf("input table changed (-before +after):\n%s", diff)
	}
}

func TestGapModel(Te *testing.T) {
	L := sample(Te, linac.RFGap)
	table := linac.ZeroTable(L, nil)
	T, err := Translate(L, table, deuteron, Options{CavityLength: 0.2})
	if err != nil {
		Te.Fatal(err)
	}
	rf2, _ := T.Element("rf2")
	if rf2.Length != 0 || len(rf2.R) != 36 {
		Te.Fatalf("gap: ds %g, %d matrix elements", rf2.Length, len(rf2.R))
	}
	if rf2.R[0] != 1 || rf2.R[14] != 1 || rf2.R[28] != 1 {
		Te.Errorf("diagonal %v", rf2.R)
	}
	//zero correction is on crest: no kicks, only damping
	if rf2.R[6] != 0 || !(rf2.R[7] < 1) {
		Te.Errorf("R21 %g R22 %g", rf2.R[6], rf2.R[7])
	}
	if rf1, _ := T.Element("rf1"); rf1.R != nil || rf1.Length != 0.2 {
		Te.Error("cavity translated as a gap without the gap model")
	}
	T, err = Translate(L, table, deuteron, Options{GapModel: true})
	if err != nil {
		Te.Fatal(err)
	}
	for _, name := range T.RF() {
		if e, _ := T.Element(name); len(e.R) != 36 || e.Length != 0 {
			Te.Errorf("%s not a gap: %+v", name, e)
		}
	}
}

func TestOverlays(Te *testing.T) {
	L := sample(Te, linac.RFCavity)
	ov := map[linac.Kind]map[string]any{
		linac.Drift:    {"nslice": 4.0},
		linac.RFCavity: {"escale": 0.5, "cos_coefficients": []any{1.0, 0.5}},
	}
	T, err := Translate(L, linac.ZeroTable(L, nil), deuteron, Options{CavityLength: 0.2, Overlays: ov})
	if err != nil {
		Te.Fatal(err)
	}
	if rf, _ := T.Element("rf2"); rf.EScale != 0.5 || rf.Options["cos_coefficients"] == nil {
		Te.Errorf("overlay lost: %+v", rf)
	}
	if dr, _ := T.Element("dr3"); dr.Options["nslice"] != 4.0 {
		Te.Errorf("drift options %v", dr.Options)
	}
	if qm, _ := T.Element("qm1"); qm.Options != nil {
		Te.Errorf("quadrupole got %v", qm.Options)
	}
	//the artifact keeps the overlays
	name := filepath.Join(Te.TempDir(), "lattice.json")
	if err := linac.WriteLattice(name, T); err != nil {
		Te.Fatal(err)
	}
	R, err := linac.ReadLattice(name)
	if err != nil {
		Te.Fatal(err)
	}
	if diff := cmp.Diff(T, R, latticeCmp); diff != "" {
		Te.Errorf("artifact round trip (-want +got):\n%s", diff)
	}
	bad := map[linac.Kind]map[string]any{linac.Drift: {"name": "x"}}
	if _, err := Translate(L, linac.ZeroTable(L, nil), deuteron, Options{CavityLength: 0.2, Overlays: bad}); err == nil {
		Te.Error("overlay renamed an element")
	}
}

func TestAdjustDrifts(Te *testing.T) {
	L := sample(Te, linac.RFCavity)
	T, err := Translate(L, linac.ZeroTable(L, nil), deuteron, Options{CavityLength: 0.2, AdjustDrifts: true})
	if err != nil {
		Te.Fatal(err)
	}
	//qm1 before rf1 isn't a drift, so that side grows by 0.1
	want := L.TotalLength() + 0.1
	if math.Abs(T.TotalLength()-want) > 1e-12 {
		Te.Errorf("total length %g, want %g", T.TotalLength(), want)
	}
	//dr2 sits between two cavities
	if dr2, _ := T.Element("dr2"); math.Abs(dr2.Length-0.3) > 1e-12 {
		Te.Errorf("dr2 %g", dr2.Length)
	}
	if dr3, _ := T.Element("dr3"); math.Abs(dr3.Length-0.4) > 1e-12 {
		Te.Errorf("dr3 %g", dr3.Length)
	}
	wantPos := []float64{0, 1, 1.1, 1.3, 1.6, 1.8}
	if diff := cmp.Diff(wantPos, T.Positions(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		Te.Errorf("positions (-want +got):\n%s", diff)
	}
}

//Without overlays or drift adjustment, the non-RF elements of the artifact are
//the ones of the parsed lattice.
func TestNonRFElementsKept(Te *testing.T) {
	L := sample(Te, linac.RFCavity)
	table, err := refpart.Estimate(L, deuteron, refpart.Options{CavityLength: 0.2})
	if err != nil {
		Te.Fatal(err)
	}
	T, err := Translate(L, table, deuteron, Options{CavityLength: 0.2})
	if err != nil {
		Te.Fatal(err)
	}
	name := filepath.Join(Te.TempDir(), "lattice.json")
	if err := linac.WriteLattice(name, T); err != nil {
		Te.Fatal(err)
	}
	R, err := linac.ReadLattice(name)
	if err != nil {
		Te.Fatal(err)
	}
	if diff := cmp.Diff(L.Names(), R.Names()); diff != "" {
		Te.Errorf("sequence (-want +got):\n%s", diff)
	}
	for i, e := range L.Elements() {
		got := R.At(i)
		if e.Kind.IsRF() {
			if got.At != e.At || got.Voltage != e.Voltage {
				Te.Errorf("%s: at %g volt %g", e.Name, got.At, got.Voltage)
			}
			continue
		}
		if diff := cmp.Diff(e, got, cmpopts.EquateNaNs(), cmpopts.EquateEmpty()); diff != "" {
			Te.Errorf("%s changed (-want +got):\n%s", e.Name, diff)
		}
	}
}

//A length set by an overlay moves everything downstream.
func TestOverlayLength(Te *testing.T) {
	L := sample(Te, linac.RFCavity)
	ov := map[linac.Kind]map[string]any{linac.Drift: {"ds": 0.7}}
	T, err := Translate(L, linac.ZeroTable(L, nil), deuteron, Options{CavityLength: 0.2, Overlays: ov})
	if err != nil {
		Te.Fatal(err)
	}
	want := []float64{0, 0.7, 0.8, 1.0, 1.7, 1.9}
	if diff := cmp.Diff(want, T.Positions(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		Te.Errorf("positions (-want +got):\n%s", diff)
	}
	if math.Abs(T.TotalLength()-2.6) > 1e-12 {
		Te.Errorf("total length %g", T.TotalLength())
	}
}

func TestMissingPhase(Te *testing.T) {
	L := sample(Te, linac.RFGap)
	table := linac.ZeroTable(L, nil)[:1]
	_, err := Translate(L, table, deuteron, Options{CavityLength: 0.2})
	var le *linac.LookupError
	if !errors.As(err, &le) || le.Name != "rf2" || le.Message != linac.ErrMissingPhase {
		Te.Errorf("expected lookup error for rf2, got %v", err)
	}
	_, err = Translate(L, linac.ZeroTable(L, nil), deuteron, Options{})
	var terr *Error
	if !errors.As(err, &terr) || terr.Element != "rf1" || !strings.HasPrefix(terr.Message, ErrCavityLength) {
		Te.Errorf("cavity with zero length: %v", err)
	}
	bad := map[linac.Kind]map[string]any{linac.Quadrupole: {"k": "strong"}}
	_, err = Translate(L, linac.ZeroTable(L, nil), deuteron, Options{CavityLength: 0.2, Overlays: bad})
	if !errors.As(err, &terr) || terr.Element != "qm1" {
		Te.Errorf("bad overlay: %v", err)
	}
	if _, ok := err.(linac.Error); !ok {
		Te.Errorf("%T is not a linac.Error", err)
	}
}
