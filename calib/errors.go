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

package calib

import (
	"fmt"
	"strings"
)

//Error is a fatal error of a calibration run. It says in which iteration and
//state the run stopped, and wraps the cause. It fullfills linac.Error.
type Error struct {
	Iteration int
	State     State
	Message   string
	Err       error
	deco      []string
}

func (err *Error) Error() string {
	cause := ""
	if err.Err != nil {
		cause = ": " + err.Err.Error()
	}
	return fmt.Sprintf("calibration stopped at iteration %d (%s): %s%s [%s]", err.Iteration, err.State, err.Message, cause, strings.Join(err.deco, " < "))
}

func (err *Error) Unwrap() error { return err.Err }

//Decorate adds new information to the error
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

func (err *Error) Critical() bool { return true }

func newError(it int, state State, message string, cause error, caller string) *Error {
	return &Error{Iteration: it, State: state, Message: message, Err: cause, deco: []string{caller}}
}

const (
	ErrSimulation  = "simulation failed"
	ErrNoRecord    = "simulator returned no diagnostics"
	ErrTranslation = "translation failed"
	ErrMeasurement = "measurement failed"
	ErrCheckpoint  = "can't write checkpoint"
	ErrCanceled    = "canceled"
)
