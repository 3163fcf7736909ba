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

package track

import (
	"fmt"
	"strings"
)

//Error is a parse error. It fullfills linac.Error.
type Error struct {
	Message string
	File    string //empty if reading from a stream
	Line    int    //1-based
	Token   int    //0-based index of the offending token
	Text    string //the offending line
	deco    []string
}

func (err *Error) Error() string {
	where := fmt.Sprintf("line %d", err.Line)
	if err.File != "" {
		where = err.File + ":" + where
	}
	if err.Text != "" {
		return fmt.Sprintf("track %s: %s (token %d in %q) [%s]", where, err.Message, err.Token, strings.TrimSpace(err.Text), strings.Join(err.deco, " < "))
	}
	return fmt.Sprintf("track %s: %s [%s]", where, err.Message, strings.Join(err.deco, " < "))
}

//Decorate adds new information to the error
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

//Critical is always true, parsing stops at the first error.
func (err *Error) Critical() bool { return true }

func newError(line, token int, text, message, caller string) *Error {
	return &Error{Message: message, Line: line, Token: token, Text: text, deco: []string{caller}}
}

const (
	ErrUnknownKeyword = "undefined keyword"
	ErrShortLine      = "not enough tokens"
	ErrBadNumber      = "malformed number"
	ErrMissingHeader  = "missing header"
)
