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

package linac

import (
	"fmt"
	"strings"
)

//Errors

//Error is implemented by the errors of every golinac package. Decorate appends the
//name of a caller to the error's trace and returns the trace, so an error keeps its
//type while it travels up the pipeline. Decorate("") only returns the trace.
type Error interface {
	Error() string
	Decorate(string) []string
	Critical() bool
}

//LookupError is returned when a lattice references an element name that is not in the
//element table, or the other way around.
type LookupError struct {
	Name    string //the offending element name
	Message string
	deco    []string
}

func (err *LookupError) Error() string {
	return fmt.Sprintf("lattice lookup error for %q: %s [%s]", err.Name, err.Message, strings.Join(err.deco, " < "))
}

//Decorate adds new information to the error
func (err *LookupError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

//Critical is always true, a broken lattice can't be used.
func (err *LookupError) Critical() bool { return true }

func newLookupError(name, message, caller string) *LookupError {
	return &LookupError{Name: name, Message: message, deco: []string{caller}}
}

//ArtifactError is returned when an artifact (lattice JSON or phase table CSV) can't be read or written.
type ArtifactError struct {
	File    string
	Message string
	deco    []string
}

func (err *ArtifactError) Error() string {
	if err.File == "" {
		return fmt.Sprintf("artifact error: %s [%s]", err.Message, strings.Join(err.deco, " < "))
	}
	return fmt.Sprintf("artifact %s error: %s [%s]", err.File, err.Message, strings.Join(err.deco, " < "))
}

func (err *ArtifactError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

func (err *ArtifactError) Critical() bool { return true }

func newArtifactError(file, message, caller string) *ArtifactError {
	return &ArtifactError{File: file, Message: message, deco: []string{caller}}
}

//BeamError is returned when a Beam can't be used to integrate a lattice.
type BeamError struct {
	Beam    Beam
	Message string
	deco    []string
}

func (err *BeamError) Error() string {
	b := err.Beam
	return fmt.Sprintf("beam error: %s (m=%g MeV, Ek=%g MeV, f=%g Hz) [%s]", err.Message, b.Mass, b.Kinetic, b.Frequency, strings.Join(err.deco, " < "))
}

func (err *BeamError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

func (err *BeamError) Critical() bool { return true }

const (
	ErrBeamMass      = "rest mass must be positive"
	ErrBeamKinetic   = "kinetic energy must be non-negative"
	ErrBeamFrequency = "RF frequency must be positive"
)

const (
	ErrMissingElement = "element not in table"
	ErrOrphanElement  = "element in table but not in sequence"
	ErrDuplicateName  = "name appears more than once in sequence"
	ErrNameMismatch   = "element name does not match its key"
	ErrMissingPhase   = "no phase entry for RF element"
	ErrNotRF          = "element is not an RF element"
)

//ErrDecorate decorates err with the caller's name if err implements Error,
//otherwise it wraps it with the caller's name. Other packages use it before
//passing errors up.
func ErrDecorate(err error, caller string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(Error); ok {
		e.Decorate(caller)
		return e
	}
	return fmt.Errorf("%s: %w", caller, err)
}
