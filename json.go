/*
 * json.go, part of golinac.
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
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

//The lattice artifact is a JSON document with two fields: "sequence", the ordered
//names, and "elements", the name->parameters table. Each stage reads and writes it,
//so the stages can be run on their own and the files diffed between iterations.

type jsonLattice struct {
	Sequence []string           `json:"sequence"`
	Elements map[string]Element `json:"elements"`
}

//MarshalJSON encodes the element as a flat parameter object.
func (E Element) MarshalJSON() ([]byte, error) {
	if !E.Kind.Valid() {
		return nil, fmt.Errorf("element %s: %s", E.Name, ErrUnknownKind)
	}
	m := make(map[string]any, 12+len(E.Options))
	m["type"] = E.Kind.String()
	m["name"] = E.Name
	m["ds"] = E.Length
	m["at"] = E.At
	m["aperture_x"] = E.ApertureX
	m["aperture_y"] = E.ApertureY
	switch E.Kind {
	case Quadrupole:
		m["k"] = E.K
	case RFCavity, RFGap:
		putFinite(m, "volt", E.Voltage)
		putFinite(m, "phase", E.Phase)
		m["harmonics"] = E.Harmonic
		if E.Frequency != 0 {
			m["freq"] = E.Frequency
		}
		if E.EScale != 0 {
			m["escale"] = E.EScale
		}
		if E.R != nil {
			m["R"] = E.R
		}
	}
	for k, v := range E.Options {
		m[k] = v
	}
	return json.Marshal(m)
}

//JSON can't hold NaN, undefined values are just left out.
func putFinite(m map[string]any, key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	m[key] = v
}

//UnmarshalJSON decodes a flat parameter object. RF elements without "volt" or
//"phase" get NaN in those fields.
func (E *Element) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	t, ok := m["type"].(string)
	if !ok {
		return fmt.Errorf("element without a type")
	}
	k, err := ParseKind(t)
	if err != nil {
		return err
	}
	name, _ := m["name"].(string)
	ret := Element{Name: name, Kind: k}
	if k.IsRF() {
		ret.Voltage = math.NaN()
		ret.Phase = math.NaN()
	}
	for key, v := range m {
		if key == "type" || key == "name" {
			continue
		}
		if err := ret.Set(key, v); err != nil {
			return err
		}
	}
	*E = ret
	return nil
}

//MarshalJSON encodes the lattice artifact.
func (L *Lattice) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonLattice{Sequence: L.sequence, Elements: L.elements})
}

//UnmarshalJSON decodes the lattice artifact and checks the invariants.
//Elements without a name take the one of their key.
func (L *Lattice) UnmarshalJSON(b []byte) error {
	var j jsonLattice
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	for k, v := range j.Elements {
		if v.Name == "" {
			v.Name = k
			j.Elements[k] = v
		}
	}
	ret, err := FromTable(j.Sequence, j.Elements)
	if err != nil {
		return err
	}
	*L = *ret
	return nil
}

//EncodeLattice writes the lattice artifact, indented, to w.
func EncodeLattice(w io.Writer, L *Lattice) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(L); err != nil {
		return newArtifactError("", err.Error(), "EncodeLattice")
	}
	return nil
}

//DecodeLattice reads a lattice artifact from r.
func DecodeLattice(r io.Reader) (*Lattice, error) {
	L := new(Lattice)
	if err := json.NewDecoder(r).Decode(L); err != nil {
		if e, ok := err.(Error); ok {
			e.Decorate("DecodeLattice")
			return nil, e
		}
		return nil, newArtifactError("", err.Error(), "DecodeLattice")
	}
	return L, nil
}

//WriteLattice writes the lattice artifact to the file name.
func WriteLattice(name string, L *Lattice) error {
	f, err := os.Create(name)
	if err != nil {
		return newArtifactError(name, err.Error(), "WriteLattice")
	}
	if err := EncodeLattice(f, L); err != nil {
		f.Close()
		if e, ok := err.(*ArtifactError); ok {
			e.File = name
		}
		return ErrDecorate(err, "WriteLattice")
	}
	if err := f.Close(); err != nil {
		return newArtifactError(name, err.Error(), "WriteLattice")
	}
	return nil
}

//ReadLattice reads the lattice artifact in the file name.
func ReadLattice(name string) (*Lattice, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, newArtifactError(name, err.Error(), "ReadLattice")
	}
	defer f.Close()
	L, err := DecodeLattice(f)
	if err != nil {
		if e, ok := err.(*ArtifactError); ok {
			e.File = name
		}
		return nil, ErrDecorate(err, "ReadLattice")
	}
	return L, nil
}
