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
package refpart

import (
	"fmt"
	"strings"
)

//Error is returned when the synchronous particle can't be integrated through an element.
//It fullfills linac.Error.
type Error struct {
	Element string //empty when the problem is not tied to one element
	Message string
	deco    []string
}

func (err *Error) Error() string {
	if err.Element == "" {
		return fmt.Sprintf("refpart error: %s [%s]", err.Message, strings.Join(err.deco, " < "))
	}
	return fmt.Sprintf("refpart error at %s: %s [%s]", err.Element, err.Message, strings.Join(err.deco, " < "))
}

//Decorate adds new information to the error
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

func (err *Error) Critical() bool { return true }

func newError(element, message, caller string) *Error {
	return &Error{Element: element, Message: message, deco: []string{caller}}
}

const (
	ErrCavityLength = "invalid nominal cavity length"
	ErrAtRest       = "particle at rest, time of flight undefined"
)
