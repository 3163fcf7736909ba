/*
 * measure.go, part of golinac.
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
	"math"
	"sort"

	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/diag"
	"gonum.org/v1/gonum/stat"
)

//Reading is the measurement at one RF element.
type Reading struct {
	Name      string
	S         float64 //position of the element center, m
	Phase     float64 //measured arrival phase, deg. NaN for a gap.
	Particles int     //particles that entered the average
	Gap       string  //why there is no measurement, empty if there is one
}

//Measured is true if the reading has a phase.
func (P Reading) Measured() bool {
	return P.Gap == "" && !math.IsNaN(P.Phase)
}

//Measurement holds one reading per RF element, in lattice order.
type Measurement struct {
	Readings []Reading
}

//Reading returns the reading for name, or false.
func (M Measurement) Reading(name string) (Reading, bool) {
	for _, v := range M.Readings {
		if v.Name == name {
			return v, true
		}
	}
	return Reading{}, false
}

//Gaps returns the names of the elements without a measurement.
func (M Measurement) Gaps() []string {
	ret := make([]string, 0)
	for _, v := range M.Readings {
		if !v.Measured() {
			ret = append(ret, v.Name)
		}
	}
	return ret
}

//Measurer extracts the arrival phase at each RF element of the translated lattice L
//from the diagnostics of one simulation. Missing data for an element is a gap in
//the Measurement, not an error.
type Measurer interface {
	Measure(rec *diag.Record, L *linac.Lattice, beam linac.Beam) (Measurement, error)
}

//Reasons for gaps
const (
	GapNoBPM       = "no BPM samples bracket the element"
	GapNoParticles = "no particle sampled at both bracketing BPMs"
	GapNoReference = "reference trajectory doesn't reach the element"
)

//BPMMeasurer measures the phase from the BPM samples around each element.
//For each particle seen at both the closest BPM upstream and the closest one
//downstream, it averages the two times. The halo is cut by keeping only the
//times strictly inside the Lower-Upper quantile band, and the mean of the rest is
//compared with the reference time at the element.
type BPMMeasurer struct {
	Lower, Upper float64 //quantiles of the trim, 0.16 and 0.84 if both are zero
}

func (B BPMMeasurer) band() (float64, float64) {
	if B.Lower == 0 && B.Upper == 0 {
		return 0.16, 0.84
	}
	return B.Lower, B.Upper
}

type bpm struct {
	step int
	s    float64
}

//Measure implements Measurer.
func (B BPMMeasurer) Measure(rec *diag.Record, L *linac.Lattice, beam linac.Beam) (Measurement, error) {
	steps := rec.Steps()
	bpms := make([]bpm, 0, len(steps))
	for _, st := range steps {
		if s, ok := rec.Position(st); ok {
			bpms = append(bpms, bpm{st, s})
		}
	}
	sort.SliceStable(bpms, func(i, j int) bool { return bpms[i].s < bpms[j].s })
	lo, hi := B.band()
	ret := Measurement{Readings: make([]Reading, 0)}
	//the simulator places elements by their lengths, not by At
	pos := L.Positions()
	for i, name := range L.Names() {
		e := L.At(i)
		if !e.Kind.IsRF() {
			continue
		}
		p := Reading{Name: name, S: pos[i] + 0.5*e.Length, Phase: math.NaN()}
		up, down, ok := bracket(bpms, p.S)
		if !ok {
			p.Gap = GapNoBPM
			ret.Readings = append(ret.Readings, p)
			continue
		}
		t := averageTimes(rec.Particles(up.step), rec.Particles(down.step))
		if len(t) == 0 {
			p.Gap = GapNoParticles
			ret.Readings = append(ret.Readings, p)
			continue
		}
		tref, ok := rec.ReferenceTime(p.S)
		if !ok {
			p.Gap = GapNoReference
			ret.Readings = append(ret.Readings, p)
			continue
		}
		tavg, n := trimmedMean(t, lo, hi)
		p.Particles = n
		dt := (tref - tavg) / linac.SpeedOfLight
		p.Phase = linac.PhaseOfTime(dt, beam.Omega(e.Harmonic))
		ret.Readings = append(ret.Readings, p)
	}
	return ret, nil
}

//bracket returns the last BPM at or before s and the first one at or after it.
//bpms must be sorted by position.
func bracket(bpms []bpm, s float64) (bpm, bpm, bool) {
	i := sort.Search(len(bpms), func(i int) bool { return bpms[i].s >= s })
	if i == len(bpms) {
		return bpm{}, bpm{}, false
	}
	down := bpms[i]
	if down.s == s {
		//the last one at this position, in case there are several
		for j := i; j < len(bpms) && bpms[j].s == s; j++ {
			i = j
		}
		return bpms[i], down, true
	}
	if i == 0 {
		return bpm{}, bpm{}, false
	}
	return bpms[i-1], down, true
}

//averageTimes returns, sorted, the mean of the two times of each particle found in both maps.
func averageTimes(t1, t2 map[int64]float64) []float64 {
	ret := make([]float64, 0, len(t1))
	for pid, a := range t1 {
		if b, ok := t2[pid]; ok {
			ret = append(ret, 0.5*(a+b))
		}
	}
	sort.Float64s(ret)
	return ret
}

//percentile interpolates linearly between the two values of sorted x around
//rank (n-1)*p. It is not the estimator behind stat.Quantile's LinInterp.
func percentile(x []float64, p float64) float64 {
	h := float64(len(x)-1) * p
	i := int(math.Floor(h))
	if i >= len(x)-1 {
		return x[len(x)-1]
	}
	if i < 0 {
		return x[0]
	}
	return x[i] + (h-float64(i))*(x[i+1]-x[i])
}

//trimmedMean is the mean of the values of sorted x strictly between its lo and hi
//percentiles, and how many values that was. If nothing is left, it is the mean of all of x.
func trimmedMean(x []float64, lo, hi float64) (float64, int) {
	s1 := percentile(x, lo)
	s2 := percentile(x, hi)
	kept := make([]float64, 0, len(x))
	for _, v := range x {
		if v > s1 && v < s2 {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return stat.Mean(x, nil), len(x)
	}
	return stat.Mean(kept, nil), len(kept)
}
