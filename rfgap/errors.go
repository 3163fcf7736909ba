/*
 * errors.go, part of golinac.
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

package rfgap

import (
	"fmt"
	"strings"
)

//Error is a domain error: the inputs do not describe a physical gap.
//It fullfills linac.Error.
type Error struct {
	Message string
	Gap     Gap
	deco    []string
}

func (err *Error) Error() string {
	g := err.Gap
	return fmt.Sprintf("rfgap domain error: %s (V=%g MV, phi=%g deg, Ek=%g MeV, m=%g MeV, f=%g Hz) [%s]",
		err.Message, g.Voltage, g.Phase, g.Kinetic, g.Mass, g.Frequency, strings.Join(err.deco, " < "))
}

//Decorate adds new information to the error
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

func (err *Error) Critical() bool { return true }

func newError(message string, g Gap, caller string) *Error {
	return &Error{Message: message, Gap: g, deco: []string{caller}}
}

const (
	ErrMass      = "rest mass must be positive"
	ErrFrequency = "frequency must be positive"
	ErrAtRest    = "particle at rest at the gap center"
	ErrStopped   = "particle stopped at the gap exit"
	ErrUndefined = "undefined input"
)
