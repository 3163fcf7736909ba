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

package diag

import (
	"fmt"
	"strings"

	linac "github.com/rmera/golinac"
)

//Error is returned when a diagnostics file can't be read. It fullfills linac.Error.
type Error struct {
	Message string
	File    string
	Line    int //0 if it doesn't apply
	deco    []string
}

func (err *Error) Error() string {
	return fmt.Sprintf("diagnostics %s:%d: %s [%s]", err.File, err.Line, err.Message, strings.Join(err.deco, " < "))
}

//Decorate adds new information to the error
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

func (err *Error) Critical() bool { return true }

func newError(message, file string, line int, caller string) *Error {
	return &Error{Message: message, File: file, Line: line, deco: []string{caller}}
}

func errDecorate(err error, caller string) error {
	return linac.ErrDecorate(err, "diag."+caller)
}

const (
	ErrNoColumn  = "missing column"
	ErrShortRow  = "row with fewer fields than the header"
	ErrBadNumber = "malformed number"
	ErrEmpty     = "no header row"
)
