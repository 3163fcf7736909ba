/*
 * rfgap.go, part of golinac.
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

//Package rfgap builds the thin-gap linear map of an RF gap, in the Trace3D
//approximation: a 6x6 matrix acting on (x, x', y, y', z, dE) that is block
//diagonal, with a focusing (or defocusing) kick in each plane and the adiabatic
//damping that comes from the energy gain.
//
//Sign convention: the kick strengths are proportional to -sin(phi) in the transverse
//planes and +sin(phi) in the longitudinal one, so a gap below crest (phi < 0)
//focuses longitudinally and defocuses transversally.
package rfgap

import (
	"math"

	linac "github.com/rmera/golinac"
	"gonum.org/v1/gonum/mat"
)

//Gap holds the inputs of the model.
type Gap struct {
	Voltage   float64 //effective gap voltage, MV
	Phase     float64 //synchronous phase, deg
	Kinetic   float64 //kinetic energy entering the gap, MeV
	Mass      float64 //rest energy, MeV
	Charge    float64 //charge state, only its magnitude is used
	Frequency float64 //RF frequency, Hz
}

//Map is the result of the model: the matrix and the quantities it was built from.
type Map struct {
	R *mat.Dense //6x6

	Kx, Ky, Kz float64

	Gain       float64 //energy gain, MeV
	KineticMid float64 //MeV
	KineticOut float64 //MeV
	Kick       float64 //Gain over the entry p0c

	GammaIn, GammaMid, GammaOut             float64
	BetaGammaIn, BetaGammaMid, BetaGammaOut float64
	Wavelength                              float64 //m
}

//Compute builds the map for g. Non-physical inputs (mass <= 0, frequency <= 0,
//particle at rest at the gap center or at the exit) give an *Error instead of NaNs.
func Compute(g Gap) (*Map, error) {
	switch {
	case math.IsNaN(g.Mass) || g.Mass <= 0:
		return nil, newError(ErrMass, g, "Compute")
	case math.IsNaN(g.Frequency) || g.Frequency <= 0:
		return nil, newError(ErrFrequency, g, "Compute")
	case math.IsNaN(g.Voltage) || math.IsNaN(g.Phase) || math.IsNaN(g.Kinetic) || math.IsNaN(g.Charge):
		return nil, newError(ErrUndefined, g, "Compute")
	}
	M := new(Map)
	qa := math.Abs(g.Charge)
	phi := linac.Deg2Rad(g.Phase)
	M.Wavelength = linac.SpeedOfLight / g.Frequency
	M.Gain = qa * g.Voltage * math.Cos(phi)
	M.KineticMid = g.Kinetic + 0.5*M.Gain
	M.KineticOut = g.Kinetic + M.Gain
	M.GammaIn = 1.0 + g.Kinetic/g.Mass
	M.GammaMid = 1.0 + M.KineticMid/g.Mass
	M.GammaOut = 1.0 + M.KineticOut/g.Mass
	M.BetaGammaIn = betaGamma(M.GammaIn)
	M.BetaGammaMid = betaGamma(M.GammaMid)
	M.BetaGammaOut = betaGamma(M.GammaOut)
	if math.IsNaN(M.BetaGammaMid) || M.BetaGammaMid == 0 {
		return nil, newError(ErrAtRest, g, "Compute")
	}
	if math.IsNaN(M.BetaGammaOut) || M.BetaGammaOut == 0 {
		return nil, newError(ErrStopped, g, "Compute")
	}
	if math.IsNaN(M.BetaGammaIn) {
		return nil, newError(ErrUndefined, g, "Compute")
	}
	betaMid := M.BetaGammaMid / M.GammaMid
	weff := qa * g.Voltage * math.Sin(phi)
	M.Kx = -math.Pi * weff / (g.Mass * M.BetaGammaMid * M.BetaGammaMid * M.Wavelength)
	M.Ky = M.Kx
	M.Kz = 2.0 * math.Pi * weff / (g.Mass * betaMid * betaMid * M.Wavelength)
	p0c := math.Sqrt(g.Kinetic*g.Kinetic + 2.0*g.Kinetic*g.Mass)
	if p0c > 0 {
		M.Kick = M.Gain / p0c
	}
	ratio := M.BetaGammaIn / M.BetaGammaOut
	R := mat.NewDense(6, 6, nil)
	R.Set(0, 0, 1)
	R.Set(1, 1, ratio)
	R.Set(2, 2, 1)
	R.Set(3, 3, ratio)
	R.Set(4, 4, 1)
	R.Set(5, 5, M.GammaIn/M.GammaOut)
	R.Set(1, 0, M.Kx/M.BetaGammaOut)
	R.Set(3, 2, M.Ky/M.BetaGammaOut)
	R.Set(5, 4, M.Kz/M.BetaGammaOut)
	M.R = R
	return M, nil
}

//betaGamma is sqrt(gamma^2-1). It is NaN for gamma < 1.
func betaGamma(gamma float64) float64 {
	return math.Sqrt(gamma*gamma - 1.0)
}

//Apply transports the 6-vector v through the gap and returns the result.
//It panics if v doesn't have 6 elements, like gonum does with mismatched shapes.
func (M *Map) Apply(v *mat.VecDense) *mat.VecDense {
	ret := mat.NewVecDense(6, nil)
	ret.MulVec(M.R, v)
	return ret
}

//RowMajor returns a copy of the matrix elements, row after row.
func (M *Map) RowMajor() []float64 {
	ret := make([]float64, 0, 36)
	for i := 0; i < 6; i++ {
		ret = append(ret, mat.Row(nil, i, M.R)...)
	}
	return ret
}

//IsIdentity is true if the matrix is the identity within tol.
func (M *Map) IsIdentity(tol float64) bool {
	I := mat.NewDiagDense(6, []float64{1, 1, 1, 1, 1, 1})
	return mat.EqualApprox(M.R, I, tol)
}

//Compose returns the map of the gaps in ms applied in order (first ms[0], then ms[1]...).
//Only the matrices are composed.
func Compose(ms ...*Map) *mat.Dense {
	ret := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		ret.Set(i, i, 1)
	}
	for _, m := range ms {
		var tmp mat.Dense
		tmp.Mul(m.R, ret)
		ret.Copy(&tmp)
	}
	return ret
}
