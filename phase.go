/*
 * phase.go, part of golinac.
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

package linac

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

//PhaseEntry holds the phases of one RF element, in degrees.
//Observed is NaN when there is no observation (no estimate or no measurement yet).
type PhaseEntry struct {
	Name       string
	Observed   float64
	Target     float64
	Correction float64
}

//NewPhaseEntry builds an entry with Correction = NormalizeDegrees(target - observed).
//If observed is NaN the correction is zero.
func NewPhaseEntry(name string, observed, target float64) PhaseEntry {
	target = NormalizeDegrees(target)
	if math.IsNaN(observed) {
		return PhaseEntry{Name: name, Observed: observed, Target: target}
	}
	observed = NormalizeDegrees(observed)
	return PhaseEntry{Name: name, Observed: observed, Target: target, Correction: NormalizeDegrees(target - observed)}
}

//Measured is true if the entry has a defined observed phase.
func (P PhaseEntry) Measured() bool {
	return !math.IsNaN(P.Observed)
}

//PhaseTable is the per-RF-element phase table, in lattice order.
//Like Lattice, it is replaced, never changed in place.
type PhaseTable []PhaseEntry

//ZeroTable returns a table with zero corrections and no observations for every RF
//element of L. The target of each entry is the element's design phase, or
//target if it is not nil.
func ZeroTable(L *Lattice, target *float64) PhaseTable {
	rf := L.RF()
	ret := make(PhaseTable, 0, len(rf))
	for _, name := range rf {
		t := L.elements[name].Phase
		if target != nil {
			t = *target
		}
		if math.IsNaN(t) {
			t = 0
		}
		ret = append(ret, PhaseEntry{Name: name, Observed: math.NaN(), Target: NormalizeDegrees(t)})
	}
	return ret
}

//Index returns the position of the entry for name, or -1.
func (T PhaseTable) Index(name string) int {
	for i, v := range T {
		if v.Name == name {
			return i
		}
	}
	return -1
}

//Entry returns the entry for name, or a LookupError.
func (T PhaseTable) Entry(name string) (PhaseEntry, error) {
	i := T.Index(name)
	if i < 0 {
		return PhaseEntry{}, newLookupError(name, ErrMissingPhase, "PhaseTable.Entry")
	}
	return T[i], nil
}

//Clone returns a copy of the table
func (T PhaseTable) Clone() PhaseTable {
	if T == nil {
		return nil
	}
	return append(PhaseTable(nil), T...)
}

//With returns a copy of the table where the entries given replace the ones with the same name,
//and new names are appended.
func (T PhaseTable) With(entries ...PhaseEntry) PhaseTable {
	ret := T.Clone()
	for _, e := range entries {
		if i := ret.Index(e.Name); i >= 0 {
			ret[i] = e
		} else {
			ret = append(ret, e)
		}
	}
	return ret
}

//Corrections returns a name->correction map
func (T PhaseTable) Corrections() map[string]float64 {
	ret := make(map[string]float64, len(T))
	for _, v := range T {
		ret[v.Name] = v.Correction
	}
	return ret
}

//MaxChange returns the largest absolute difference in correction between T and
//prev for the names in both, with differences taken modulo 360.
func (T PhaseTable) MaxChange(prev PhaseTable) float64 {
	var max float64
	for _, v := range T {
		i := prev.Index(v.Name)
		if i < 0 {
			continue
		}
		d := math.Abs(NormalizeDegrees(v.Correction - prev[i].Correction))
		if d > max {
			max = d
		}
	}
	return max
}

var phaseHeader = []string{"name", "phi_observed", "phi_target", "phi_correction"}

func formatPhase(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

//EncodePhaseTable writes T as CSV with a header row. Undefined observations are written as NaN.
func EncodePhaseTable(w io.Writer, T PhaseTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(phaseHeader); err != nil {
		return newArtifactError("", err.Error(), "EncodePhaseTable")
	}
	for _, v := range T {
		rec := []string{v.Name, formatPhase(v.Observed), formatPhase(v.Target), formatPhase(v.Correction)}
		if err := cw.Write(rec); err != nil {
			return newArtifactError("", err.Error(), "EncodePhaseTable")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return newArtifactError("", err.Error(), "EncodePhaseTable")
	}
	return nil
}

//DecodePhaseTable reads a table written by EncodePhaseTable. Columns are found by
//header name, so their order doesn't matter. An empty observed field counts as NaN.
func DecodePhaseTable(r io.Reader) (PhaseTable, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, newArtifactError("", fmt.Sprintf("reading header: %s", err), "DecodePhaseTable")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}
	for _, h := range phaseHeader {
		if _, ok := cols[h]; !ok {
			return nil, newArtifactError("", fmt.Sprintf("missing column %q", h), "DecodePhaseTable")
		}
	}
	ret := make(PhaseTable, 0)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, newArtifactError("", err.Error(), "DecodePhaseTable")
		}
		var vals [3]float64
		for i, h := range phaseHeader[1:] {
			s := rec[cols[h]]
			if s == "" {
				vals[i] = math.NaN()
				continue
			}
			vals[i], err = strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, newArtifactError("", fmt.Sprintf("line %d, column %s: %s", line, h, err), "DecodePhaseTable")
			}
		}
		if math.IsNaN(vals[1]) || math.IsNaN(vals[2]) {
			return nil, newArtifactError("", fmt.Sprintf("line %d: target and correction must be defined", line), "DecodePhaseTable")
		}
		ret = append(ret, PhaseEntry{Name: rec[cols["name"]], Observed: vals[0], Target: vals[1], Correction: vals[2]})
	}
	return ret, nil
}

//WritePhaseTable writes the phase table artifact to the file name.
func WritePhaseTable(name string, T PhaseTable) error {
	f, err := os.Create(name)
	if err != nil {
		return newArtifactError(name, err.Error(), "WritePhaseTable")
	}
	if err := EncodePhaseTable(f, T); err != nil {
		f.Close()
		return ErrDecorate(err, "WritePhaseTable")
	}
	if err := f.Close(); err != nil {
		return newArtifactError(name, err.Error(), "WritePhaseTable")
	}
	return nil
}

//ReadPhaseTable reads a phase table artifact, for instance a previously saved or hand-edited one.
func ReadPhaseTable(name string) (PhaseTable, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, newArtifactError(name, err.Error(), "ReadPhaseTable")
	}
	defer f.Close()
	T, err := DecodePhaseTable(f)
	if err != nil {
		if e, ok := err.(*ArtifactError); ok {
			e.File = name
		}
		return nil, ErrDecorate(err, "ReadPhaseTable")
	}
	return T, nil
}
