/*
 * beam.go, part of golinac.
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

import "math"

//Beam describes the reference (synchronous) particle and the RF base frequency
//it is timed against.
type Beam struct {
	Mass      float64 `json:"mass"`      //rest energy, MeV
	Kinetic   float64 `json:"kinetic"`   //initial kinetic energy, MeV
	Charge    float64 `json:"charge"`    //charge state, in units of e
	Frequency float64 `json:"frequency"` //RF base frequency, Hz
	Harmonic  int     `json:"harmonic"`  //default harmonic number, used when an element doesn't give one
}

//NewBeam builds a Beam from the usual accelerator-physics inputs: mass in amu,
//kinetic energy per nucleon and number of nucleons.
func NewBeam(massAMU, kineticPerU float64, nucleons int, charge, freq float64, harmonic int) Beam {
	return Beam{
		Mass:      massAMU * AMU,
		Kinetic:   kineticPerU * float64(nucleons),
		Charge:    charge,
		Frequency: freq,
		Harmonic:  harmonic,
	}
}

//Validate returns a *BeamError if the beam can't be used to integrate a lattice.
func (B Beam) Validate() error {
	msg := ""
	switch {
	case !(B.Mass > 0):
		msg = ErrBeamMass
	case B.Kinetic < 0 || math.IsNaN(B.Kinetic):
		msg = ErrBeamKinetic
	case !(B.Frequency > 0):
		msg = ErrBeamFrequency
	default:
		return nil
	}
	return &BeamError{Beam: B, Message: msg, deco: []string{"Beam.Validate"}}
}

//GammaOf returns the relativistic gamma of a particle of this beam's mass with
//kinetic energy ek (MeV).
func (B Beam) GammaOf(ek float64) float64 {
	return 1.0 + ek/B.Mass
}

//BetaOf returns the relativistic beta for kinetic energy ek (MeV).
func (B Beam) BetaOf(ek float64) float64 {
	g := B.GammaOf(ek)
	return math.Sqrt(1.0 - 1.0/(g*g))
}

//Gamma of the reference particle at injection
func (B Beam) Gamma() float64 { return B.GammaOf(B.Kinetic) }

//Beta of the reference particle at injection
func (B Beam) Beta() float64 { return B.BetaOf(B.Kinetic) }

//P0c returns the reference momentum times c, in MeV.
func (B Beam) P0c() float64 {
	et := B.Mass + B.Kinetic
	return math.Sqrt(et*et - B.Mass*B.Mass)
}

//HarmonicOf returns h if it is positive, the beam default otherwise (1 if that is unset too).
func (B Beam) HarmonicOf(h int) int {
	if h > 0 {
		return h
	}
	if B.Harmonic > 0 {
		return B.Harmonic
	}
	return 1
}

//Omega returns the angular RF frequency 2*pi*f*h for harmonic h (see HarmonicOf).
func (B Beam) Omega(h int) float64 {
	return 2.0 * math.Pi * B.Frequency * float64(B.HarmonicOf(h))
}
