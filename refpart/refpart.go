/*
 * refpart.go, part of golinac.
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

//Package refpart integrates the synchronous (reference) particle along a lattice
//to estimate the phase at which it reaches each RF element.
//
//The estimate is a single pass: the energy gain of each RF element is V*cos(phi) at its
//design phase, the kinetic energy is accumulated along the lattice, and the time of flight
//follows from beta*c over each element's effective length. By default every element, RF
//or not, takes the same nominal cavity length as effective length. With PhysicalLengths
//set, only RF elements (zero-length in the lattice) take the nominal length and the rest
//use their own.
package refpart

import (
	"fmt"
	"math"

	linac "github.com/rmera/golinac"
	"gonum.org/v1/gonum/floats"
)

//Options for Integrate.
type Options struct {
	CavityLength float64  //nominal effective length for the time of flight, m
	TargetPhase  *float64 //if not nil, target phase for every RF element instead of its design phase
	//PhysicalLengths makes non-RF elements use their own length instead of CavityLength.
	PhysicalLengths bool
}

//Row is the synchronous particle at one element.
type Row struct {
	Name         string
	Kind         linac.Kind
	S            float64 //entry position, m
	Length       float64 //effective length used, m
	Gain         float64 //MeV
	KineticIn    float64 //MeV
	KineticOut   float64 //MeV
	Kinetic      float64 //average of in and out, MeV
	Gamma        float64
	Beta         float64
	Dt           float64 //transit time, s
	TIn          float64 //s
	TOut         float64 //s
	TMid         float64 //s
	NaturalPhase float64 //deg, NaN for non-RF elements
}

//Profile is the synchronous particle along the whole lattice, one row per element in sequence order.
//It is derived data: it has to be recomputed when voltages, phases or the beam change.
type Profile []Row

//Row returns the row for name, or false.
func (P Profile) Row(name string) (Row, bool) {
	for _, v := range P {
		if v.Name == name {
			return v, true
		}
	}
	return Row{}, false
}

//FinalKinetic returns the kinetic energy at the end of the lattice.
func (P Profile) FinalKinetic() float64 {
	if len(P) == 0 {
		return math.NaN()
	}
	return P[len(P)-1].KineticOut
}

//Integrate walks L once and returns the synchronous profile and the phase table
//with the natural phase of every RF element as observed phase.
func Integrate(L *linac.Lattice, beam linac.Beam, opts Options) (Profile, linac.PhaseTable, error) {
	if err := beam.Validate(); err != nil {
		return nil, nil, linac.ErrDecorate(err, "refpart.Integrate")
	}
	if opts.CavityLength < 0 || math.IsNaN(opts.CavityLength) {
		return nil, nil, newError("", fmt.Sprintf("%s: %g m", ErrCavityLength, opts.CavityLength), "Integrate")
	}
	els := L.Elements()
	n := len(els)
	if n == 0 {
		return Profile{}, linac.PhaseTable{}, nil
	}
	prof := make(Profile, n)
	gain := make([]float64, n)
	for i, e := range els {
		gain[i] = e.EnergyGain()
	}
	//out[i] is the cumulative sum up to and including i, in[i] the one before it.
	//Both are seeded with the injection energy.
	ekOut := floats.CumSum(make([]float64, n), gain)
	floats.AddConst(beam.Kinetic, ekOut)
	for i, e := range els {
		ekIn := beam.Kinetic
		if i > 0 {
			ekIn = ekOut[i-1]
		}
		r := Row{Name: e.Name, Kind: e.Kind, S: e.At, Gain: gain[i], KineticIn: ekIn, KineticOut: ekOut[i], NaturalPhase: math.NaN()}
		r.Kinetic = 0.5 * (r.KineticIn + r.KineticOut)
		r.Gamma = beam.GammaOf(r.Kinetic)
		r.Beta = math.Sqrt(1.0 - 1.0/(r.Gamma*r.Gamma))
		r.Length = opts.CavityLength
		if opts.PhysicalLengths && !e.Kind.IsRF() {
			r.Length = e.Length
		}
		if r.Length > 0 {
			if !(r.Beta > 0) {
				return nil, nil, newError(e.Name, fmt.Sprintf("%s (kinetic energy %g MeV)", ErrAtRest, r.Kinetic), "Integrate")
			}
			r.Dt = r.Length / (r.Beta * linac.SpeedOfLight)
		}
		prof[i] = r
	}
	dt := make([]float64, n)
	for i := range prof {
		dt[i] = prof[i].Dt
	}
	tOut := floats.CumSum(make([]float64, n), dt)
	table := make(linac.PhaseTable, 0)
	for i := range prof {
		r := &prof[i]
		if i > 0 {
			r.TIn = tOut[i-1]
		}
		r.TOut = tOut[i]
		r.TMid = 0.5 * (r.TIn + r.TOut)
		if !r.Kind.IsRF() {
			continue
		}
		e := els[i]
		r.NaturalPhase = linac.PhaseOfTime(r.TMid, beam.Omega(e.Harmonic))
		target := e.Phase
		if opts.TargetPhase != nil {
			target = *opts.TargetPhase
		}
		if math.IsNaN(target) {
			target = 0
		}
		table = append(table, linac.NewPhaseEntry(e.Name, r.NaturalPhase, target))
	}
	return prof, table, nil
}

//Estimate is Integrate when only the phase table is needed.
func Estimate(L *linac.Lattice, beam linac.Beam, opts Options) (linac.PhaseTable, error) {
	_, t, err := Integrate(L, beam, opts)
	return t, err
}
