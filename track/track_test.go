package track

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	linac "github.com/rmera/golinac"
)

func TestParseFile(Te *testing.T) {
	L, st, err := ParseFile("testdata/sclinac.dat", nil)
	if err != nil {
		Te.Fatal(err)
	}
	want := []string{"dr1", "qm1", "dr2", "rf1", "dr3", "qm2", "dr4", "rf2", "dr5"}
	if d := cmp.Diff(want, L.Names()); d != "" {
		Te.Fatalf("sequence mismatch (-want +got):\n%s", d)
	}
	if st.Elements != 9 || st.Drifts != 5 || st.Quadrupoles != 2 || st.RF != 2 {
		Te.Errorf("stats %v", st)
	}
	if math.Abs(st.Length-0.75) > 1e-12 {
		Te.Errorf("total length %g", st.Length)
	}
	qm1, _ := L.Element("qm1")
	//5000 gauss over 2.5 cm
	if math.Abs(qm1.K-0.5/0.025) > 1e-12 || math.Abs(qm1.Length-0.2) > 1e-12 || math.Abs(qm1.At-0.1) > 1e-12 {
		Te.Errorf("qm1 %+v", qm1)
	}
	qm2, _ := L.Element("qm2")
	if qm2.K >= 0 {
		Te.Errorf("qm2 should be defocusing: %g", qm2.K)
	}
	rf1, _ := L.Element("rf1")
	if rf1.Kind != linac.RFCavity || rf1.Voltage != 0.8 || rf1.Phase != -30 || rf1.Harmonic != 4 || rf1.Length != 0 {
		Te.Errorf("rf1 %+v", rf1)
	}
	//zero length RF: rf1 and dr3 start at the same place
	dr3, _ := L.Element("dr3")
	if rf1.At != dr3.At || math.Abs(rf1.At-0.35) > 1e-12 {
		Te.Errorf("rf1 at %g, dr3 at %g", rf1.At, dr3.At)
	}
	if math.Abs(rf1.ApertureX-0.02) > 1e-12 {
		Te.Errorf("rf1 aperture %g", rf1.ApertureX)
	}
}

func TestParseDeterministic(Te *testing.T) {
	a, _, err := ParseFile("testdata/sclinac.dat", nil)
	if err != nil {
		Te.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		b, _, err := ParseFile("testdata/sclinac.dat", nil)
		if err != nil {
			Te.Fatal(err)
		}
		if d := cmp.Diff(a.Elements(), b.Elements()); d != "" {
			Te.Fatalf("parse %d differs:\n%s", i, d)
		}
	}
}

func TestParseErrors(Te *testing.T) {
	cases := []struct {
		name, input, msg string
		line             int
	}{
		{"unknown keyword", "1 drift 1 1\n2 solenoid 1 1 1\n3 drift 1 1\n", ErrUnknownKeyword, 2},
		{"bad number", "1 drift 1 1\n\n# comment\n4 quad 1x 0 1 1\n", ErrBadNumber, 4},
		{"short line", "1 rfgap 1 0 4\n", ErrShortLine, 1},
		{"lone token", "1\n", ErrShortLine, 1},
		{"zero aperture quad", "1 quad 100 0 10 0\n", "zero aperture", 1},
		{"fractional harmonic", "1 drift 1 1\n2 rfgap 0.8 -30 2.5 2\n", ErrBadNumber, 2},
		{"fractional aperture", "1 rfgap 0.8 -30 4 1.5\n", ErrBadNumber, 1},
	}
	for _, c := range cases {
		L, err := Parse(strings.NewReader(c.input), nil)
		if L != nil {
			Te.Errorf("%s: partial lattice returned", c.name)
		}
		var pe *Error
		if !errors.As(err, &pe) {
			Te.Errorf("%s: expected *Error, got %v", c.name, err)
			continue
		}
		if pe.Line != c.line || !strings.Contains(pe.Message, c.msg) {
			Te.Errorf("%s: got line %d message %q", c.name, pe.Line, pe.Message)
		}
	}
}

func TestParseHeader(Te *testing.T) {
	opts := &Options{RequireHeader: true, Header: "TRACK"}
	L, err := Parse(strings.NewReader("# hi\ntrack\n1 drift 100 1\n"), opts)
	if err != nil {
		Te.Fatal(err)
	}
	if L.Len() != 1 || L.At(0).Length != 1 {
		Te.Errorf("got %v", L.Elements())
	}
	_, err = Parse(strings.NewReader("1 drift 100 1\n"), opts)
	var pe *Error
	if !errors.As(err, &pe) || pe.Message != ErrMissingHeader {
		Te.Errorf("missing header not reported: %v", err)
	}
	_, err = Parse(strings.NewReader("\n# only comments\n"), opts)
	if err == nil {
		Te.Error("empty input with required header accepted")
	}
}
