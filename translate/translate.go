/*
 * translate.go, part of golinac.
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

//Package translate turns a parsed lattice plus a phase table into the lattice
//the tracking simulator consumes. RF cavities get a finite length, a field scale,
//their frequency and the corrected phase. Gaps (or all RF elements, in gap mode)
//get the thin-gap linear map instead.
package translate

import (
	"fmt"
	"math"

	linac "github.com/rmera/golinac"
	"github.com/rmera/golinac/refpart"
	"github.com/rmera/golinac/rfgap"
)

//Options for Translate.
type Options struct {
	CavityLength float64 //m, length given to RF cavities
	GapModel     bool    //translate every RF element with the thin-gap map
	AdjustDrifts bool    //shorten the drifts next to each cavity by half its length
	//Overlays are applied last, per kind, through Element.Set. They win over
	//anything the translator computed.
	Overlays map[linac.Kind]map[string]any
	//TargetPhase and PhysicalLengths are used only to build the integrator
	//profile for the gap model (see refpart.Options).
	TargetPhase     *float64
	PhysicalLengths bool
}

//Translate returns the translated lattice. L and table are not changed. Every RF
//element of L needs an entry in table, otherwise a *linac.LookupError is returned.
//Only RF elements are rewritten: the rest are copied as they are, unless
//AdjustDrifts or an overlay changes them. The At of every element stays the one
//of L; Lattice.Positions gives the positions along the translated lattice.
func Translate(L *linac.Lattice, table linac.PhaseTable, beam linac.Beam, opts Options) (*linac.Lattice, error) {
	if err := beam.Validate(); err != nil {
		return nil, linac.ErrDecorate(err, "translate.Translate")
	}
	els := L.Elements()
	var prof refpart.Profile
	needGaps := opts.GapModel
	for _, e := range els {
		if !e.Kind.Valid() {
			return nil, newError(e.Name, fmt.Sprintf("%s %d", linac.ErrUnknownKind, int(e.Kind)), "Translate")
		}
		if e.Kind == linac.RFGap {
			needGaps = true
		}
		if e.Kind == linac.RFCavity && !opts.GapModel && !(opts.CavityLength > 0) {
			return nil, newError(e.Name, fmt.Sprintf("%s, got %g m", ErrCavityLength, opts.CavityLength), "Translate")
		}
	}
	if needGaps {
		var err error
		prof, _, err = refpart.Integrate(L, beam, refpart.Options{CavityLength: opts.CavityLength, TargetPhase: opts.TargetPhase, PhysicalLengths: opts.PhysicalLengths})
		if err != nil {
			return nil, linac.ErrDecorate(err, "translate.Translate")
		}
	}
	for i, e := range els {
		var err error
		switch {
		case e.Kind == linac.RFGap || (e.Kind == linac.RFCavity && opts.GapModel):
			row, _ := prof.Row(e.Name)
			e, err = Gap(e, table, beam, row.KineticIn)
		case e.Kind == linac.RFCavity:
			e, err = Cavity(e, table, beam, opts.CavityLength)
		}
		if err != nil {
			return nil, linac.ErrDecorate(err, "translate.Translate")
		}
		els[i] = e
	}
	if opts.AdjustDrifts {
		adjustDrifts(els, opts.CavityLength)
	}
	for i := range els {
		for k, v := range opts.Overlays[els[i].Kind] {
			if err := els[i].Set(k, v); err != nil {
				return nil, newError(els[i].Name, fmt.Sprintf("%s: %v", ErrOverlay, err), "Translate")
			}
		}
	}
	ret, err := linac.NewLattice(els...)
	if err != nil {
		return nil, linac.ErrDecorate(err, "translate.Translate")
	}
	return ret, nil
}

//Cavity translates one RF cavity: it gets the length lc, the field scale
//V/lc/m, the RF frequency for its harmonic and the correction of table as phase.
func Cavity(e linac.Element, table linac.PhaseTable, beam linac.Beam, lc float64) (linac.Element, error) {
	if !e.Kind.IsRF() {
		return e, newError(e.Name, linac.ErrNotRF, "Cavity")
	}
	entry, err := table.Entry(e.Name)
	if err != nil {
		return e, linac.ErrDecorate(err, "translate.Cavity")
	}
	ret := e.Copy()
	ret.Length = lc
	ret.Frequency = beam.Frequency * float64(beam.HarmonicOf(e.Harmonic))
	ret.Phase = entry.Correction
	ret.EScale = 0
	if !math.IsNaN(e.Voltage) {
		ret.EScale = e.Voltage / lc / beam.Mass
	}
	return ret, nil
}

//Gap translates one RF element to the thin-gap model: zero length and the
//6x6 map computed at the kinetic energy ek (MeV) entering it, with the
//correction of table as phase.
func Gap(e linac.Element, table linac.PhaseTable, beam linac.Beam, ek float64) (linac.Element, error) {
	if !e.Kind.IsRF() {
		return e, newError(e.Name, linac.ErrNotRF, "Gap")
	}
	entry, err := table.Entry(e.Name)
	if err != nil {
		return e, linac.ErrDecorate(err, "translate.Gap")
	}
	volt := e.Voltage
	if math.IsNaN(volt) {
		volt = 0
	}
	freq := beam.Frequency * float64(beam.HarmonicOf(e.Harmonic))
	charge := beam.Charge
	if charge == 0 {
		charge = 1
	}
	M, err := rfgap.Compute(rfgap.Gap{Voltage: volt, Phase: entry.Correction, Kinetic: ek, Mass: beam.Mass, Charge: charge, Frequency: freq})
	if err != nil {
		return e, linac.ErrDecorate(err, "translate.Gap")
	}
	ret := e.Copy()
	ret.Length = 0
	ret.Frequency = freq
	ret.Phase = entry.Correction
	ret.R = M.RowMajor()
	return ret, nil
}

//adjustDrifts shortens, by lc/2, the drifts right before and right after each
//cavity, when they are longer than that.
func adjustDrifts(els []linac.Element, lc float64) {
	half := 0.5 * lc
	for i, e := range els {
		if e.Kind != linac.RFCavity || e.Length == 0 {
			continue
		}
		for _, j := range []int{i - 1, i + 1} {
			if j < 0 || j >= len(els) || els[j].Kind != linac.Drift {
				continue
			}
			if els[j].Length > half {
				els[j].Length -= half
			}
		}
	}
}
