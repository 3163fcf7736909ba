package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	linac "github.com/rmera/golinac"
)

const trackFile = "../../track/testdata/sclinac.dat"

func execute(Te *testing.T, args ...string) string {
	Te.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		Te.Fatalf("golinac %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

//parse, estimate and translate chained through files.
func TestPipeline(Te *testing.T) {
	dir := Te.TempDir()
	lat := filepath.Join(dir, "lattice.json")
	phases := filepath.Join(dir, "phases.csv")
	translated := filepath.Join(dir, "translated.json")
	execute(Te, "parse", trackFile, "-o", lat)
	execute(Te, "estimate", lat, "-o", phases)
	execute(Te, "translate", lat, phases, "-o", translated)

	L, err := linac.ReadLattice(lat)
	if err != nil {
		Te.Fatal(err)
	}
	table, err := linac.ReadPhaseTable(phases)
	if err != nil {
		Te.Fatal(err)
	}
	if len(table) != 2 || table[0].Name != "rf1" || table[1].Name != "rf2" {
		Te.Fatalf("phase table %v", table)
	}
	T, err := linac.ReadLattice(translated)
	if err != nil {
		Te.Fatal(err)
	}
	if T.Len() != L.Len() {
		Te.Fatalf("translated lattice has %d elements, want %d", T.Len(), L.Len())
	}
	rf1, err := T.Element("rf1")
	if err != nil {
		Te.Fatal(err)
	}
	if rf1.Length != 0.1 || rf1.Phase != table[0].Correction {
		Te.Errorf("translated cavity %+v", rf1)
	}
}

func TestGapCommand(Te *testing.T) {
	out := execute(Te, "gap", "--voltage", "0", "--phase=-30")
	if !strings.Contains(out, "R =") || !strings.Contains(out, "gain = 0,") {
		Te.Errorf("unexpected output:\n%s", out)
	}
}

func TestCalibrateNeedsCommand(Te *testing.T) {
	rootCmd.SetArgs([]string{"calibrate", trackFile})
	if err := rootCmd.Execute(); err == nil {
		Te.Error("calibration without a simulator command")
	}
}
