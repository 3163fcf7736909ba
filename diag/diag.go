/*
 * diag.go, part of golinac.
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

//Package diag reads the diagnostics the tracking simulator leaves behind: the
//reference-particle trajectory and the particle samples taken at the beam
//position monitors (BPM). Both are whitespace-separated tables with a header
//row, and may be compressed.
//
//Times are in the simulator's convention, metres of c*t.
package diag

import (
	"bufio"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

//RefPoint is one row of the reference trajectory.
type RefPoint struct {
	Step  int
	S     float64 //m
	Beta  float64
	Gamma float64
	T     float64 //c*t, m
}

//Sample is one particle at one BPM step.
type Sample struct {
	Step int
	PID  int64
	T    float64 //c*t, m
	Pt   float64 //energy deviation over p0c
}

//StepMap maps a BPM step to the row of the reference trajectory taken at the same place.
type StepMap func(step int) int

//ImpactXSteps is the mapping for ImpactX runs, where the reference table has two rows per BPM step,
//starting at BPM step 1.
func ImpactXSteps(step int) int {
	return (step - 1) * 2
}

//Record is the result of one simulation.
type Record struct {
	Reference []RefPoint //ordered by S
	Samples   []Sample
	StepMap   StepMap //nil: the reference row with the same step number
}

//refRow returns the reference row for a BPM step, or false.
func (R *Record) refRow(step int) (RefPoint, bool) {
	if R.StepMap != nil {
		i := R.StepMap(step)
		if i < 0 || i >= len(R.Reference) {
			return RefPoint{}, false
		}
		return R.Reference[i], true
	}
	for _, v := range R.Reference {
		if v.Step == step {
			return v, true
		}
	}
	return RefPoint{}, false
}

//Position returns the position (m) of a BPM step, or false if the
//reference trajectory doesn't cover it.
func (R *Record) Position(step int) (float64, bool) {
	r, ok := R.refRow(step)
	return r.S, ok
}

//ReferenceTime returns the reference time (c*t, m) at s, linearly interpolated
//between the reference rows around it. It returns false outside the trajectory.
func (R *Record) ReferenceTime(s float64) (float64, bool) {
	ref := R.Reference
	n := len(ref)
	if n == 0 || math.IsNaN(s) || s < ref[0].S || s > ref[n-1].S {
		return math.NaN(), false
	}
	i := sort.Search(n, func(i int) bool { return ref[i].S >= s })
	if ref[i].S == s || i == 0 {
		return ref[i].T, true
	}
	a, b := ref[i-1], ref[i]
	w := (s - a.S) / (b.S - a.S)
	return a.T + w*(b.T-a.T), true
}

//Steps returns the BPM steps present in the samples, in increasing order.
func (R *Record) Steps() []int {
	seen := make(map[int]bool)
	ret := make([]int, 0)
	for _, v := range R.Samples {
		if !seen[v.Step] {
			seen[v.Step] = true
			ret = append(ret, v.Step)
		}
	}
	sort.Ints(ret)
	return ret
}

//Particles returns the pid->time map of the particles sampled at step.
func (R *Record) Particles(step int) map[int64]float64 {
	ret := make(map[int64]float64)
	for _, v := range R.Samples {
		if v.Step == step && !math.IsNaN(v.T) {
			ret[v.PID] = v.T
		}
	}
	return ret
}

//table reads a whitespace-separated table with a header row. Lines starting with #
//and blank lines are skipped. It returns the column of each requested name
//(the first alias found) and the rows.
func table(r io.Reader, file string, columns [][]string) ([]int, [][]float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var idx []int
	var rows [][]float64
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if idx == nil {
			var err error
			idx, err = header(fields, columns, file, line)
			if err != nil {
				return nil, nil, err
			}
			continue
		}
		row := make([]float64, len(idx))
		for j, c := range idx {
			if c >= len(fields) {
				return nil, nil, newError(ErrShortRow, file, line, "table")
			}
			f, err := strconv.ParseFloat(fields[c], 64)
			if err != nil {
				return nil, nil, newError(ErrBadNumber+": "+fields[c], file, line, "table")
			}
			row[j] = f
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, newError(err.Error(), file, line, "table")
	}
	if idx == nil {
		return nil, nil, newError(ErrEmpty, file, line, "table")
	}
	return idx, rows, nil
}

func header(fields []string, columns [][]string, file string, line int) ([]int, error) {
	pos := make(map[string]int, len(fields))
	for i, f := range fields {
		if _, ok := pos[f]; !ok {
			pos[f] = i
		}
	}
	ret := make([]int, 0, len(columns))
Columns:
	for _, aliases := range columns {
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				ret = append(ret, i)
				continue Columns
			}
		}
		return nil, newError(ErrNoColumn+": "+aliases[0], file, line, "header")
	}
	return ret, nil
}

var refColumns = [][]string{{"step"}, {"s"}, {"beta"}, {"gamma"}, {"t"}}

var sampleColumns = [][]string{{"step"}, {"pid", "id"}, {"t", "tp"}, {"pt"}}

//DecodeReference reads a reference trajectory table (columns step, s, beta, gamma
//and t, others are ignored). The rows are returned ordered by s.
func DecodeReference(r io.Reader, file string) ([]RefPoint, error) {
	_, rows, err := table(r, file, refColumns)
	if err != nil {
		return nil, errDecorate(err, "DecodeReference")
	}
	ret := make([]RefPoint, 0, len(rows))
	for _, v := range rows {
		ret = append(ret, RefPoint{Step: int(v[0]), S: v[1], Beta: v[2], Gamma: v[3], T: v[4]})
	}
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].S < ret[j].S })
	return ret, nil
}

//DecodeSamples reads a BPM table (columns step, pid, t and pt; "id" and "tp"
//are accepted for the second and third).
func DecodeSamples(r io.Reader, file string) ([]Sample, error) {
	_, rows, err := table(r, file, sampleColumns)
	if err != nil {
		return nil, errDecorate(err, "DecodeSamples")
	}
	ret := make([]Sample, 0, len(rows))
	for _, v := range rows {
		ret = append(ret, Sample{Step: int(v[0]), PID: int64(v[1]), T: v[2], Pt: v[3]})
	}
	return ret, nil
}

//EncodeReference writes the reference trajectory in the format DecodeReference reads.
func EncodeReference(w io.Writer, ref []RefPoint) error {
	b := bufio.NewWriter(w)
	b.WriteString("step s beta gamma t\n")
	for _, v := range ref {
		b.WriteString(strconv.Itoa(v.Step))
		for _, f := range []float64{v.S, v.Beta, v.Gamma, v.T} {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	return b.Flush()
}

//EncodeSamples writes BPM samples in the format DecodeSamples reads.
func EncodeSamples(w io.Writer, samples []Sample) error {
	b := bufio.NewWriter(w)
	b.WriteString("step pid t pt\n")
	for _, v := range samples {
		b.WriteString(strconv.Itoa(v.Step))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(v.PID, 10))
		for _, f := range []float64{v.T, v.Pt} {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	return b.Flush()
}
