/*
 * energy.go, part of golinac.
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

package diag

import (
	"math"

	linac "github.com/rmera/golinac"
	"gonum.org/v1/gonum/stat"
)

//EnergyPoint is the beam energy at one BPM step.
type EnergyPoint struct {
	Step          int
	S             float64 //m
	KineticRef    float64 //reference particle, MeV
	Kinetic       float64 //mean over the sampled particles, MeV
	KineticSpread float64 //standard deviation over the sampled particles, MeV
	Particles     int
}

//EnergyProfile returns the energy at each BPM step of rec. The reference energy is
//(gamma-1)*m from the reference row of the step, and each particle has that plus
//p0c*pt, with p0c the injection momentum of beam. Steps without a reference row
//are left out.
func EnergyProfile(rec *Record, beam linac.Beam) []EnergyPoint {
	p0c := beam.P0c()
	byStep := make(map[int][]float64)
	for _, v := range rec.Samples {
		if math.IsNaN(v.Pt) {
			continue
		}
		byStep[v.Step] = append(byStep[v.Step], v.Pt)
	}
	ret := make([]EnergyPoint, 0, len(byStep))
	for _, step := range rec.Steps() {
		ref, ok := rec.refRow(step)
		if !ok {
			continue
		}
		p := EnergyPoint{Step: step, S: ref.S, KineticRef: (ref.Gamma - 1.0) * beam.Mass}
		pts := byStep[step]
		p.Particles = len(pts)
		if len(pts) == 0 {
			p.Kinetic = math.NaN()
			p.KineticSpread = math.NaN()
			ret = append(ret, p)
			continue
		}
		mean, std := stat.MeanStdDev(pts, nil)
		p.Kinetic = p.KineticRef + p0c*mean
		p.KineticSpread = p0c * std
		ret = append(ret, p)
	}
	return ret
}
