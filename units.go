/*
 * units.go, part of golinac.
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

//Physical constants and unit factors. Every stage takes them from here,
//none of them keeps its own copy.
const (
	SpeedOfLight = 299792458.0 //m/s
	AMU          = 931.494     //MeV, rest energy of one atomic mass unit

	Centimeter = 1.0e-2 //m
	Gauss      = 1.0e-4 //T
	MHz        = 1.0e6  //Hz
	MeV        = 1.0e6  //eV
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

//Deg2Rad converts degrees to radians
func Deg2Rad(deg float64) float64 {
	return deg * deg2rad
}

//Rad2Deg converts radians to degrees
func Rad2Deg(rad float64) float64 {
	return rad * rad2deg
}

//NormalizeDegrees reduces x to the half-open interval (-180, 180].
//The reduction is modular, so inputs many periods away are handled,
//and the function is idempotent. NaN stays NaN.
func NormalizeDegrees(x float64) float64 {
	if x > -180.0 && x <= 180.0 {
		return x
	}
	r := math.Mod(x+180.0, 360.0)
	if r < 0 {
		r += 360.0
	}
	r -= 180.0
	if r <= -180.0 {
		r = 180.0
	}
	return r
}

//PhaseOfTime converts a time (s) into an RF phase in degrees for the
//angular frequency omega (rad/s), normalized.
func PhaseOfTime(t, omega float64) float64 {
	return NormalizeDegrees(t * omega * rad2deg)
}
