/*
 * element.go, part of golinac.
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
	"math"
	"strings"
)

//Kind is the kind of a lattice element. The set is closed, every stage
//handles all of them.
type Kind int

const (
	Drift Kind = iota
	Quadrupole
	RFCavity
	RFGap
)

var kindNames = [...]string{"drift", "quadrupole", "rfcavity", "rfgap"}

func (K Kind) String() string {
	if !K.Valid() {
		return fmt.Sprintf("Kind(%d)", int(K))
	}
	return kindNames[K]
}

//Valid returns true if K is one of the defined kinds.
func (K Kind) Valid() bool {
	return K >= Drift && K <= RFGap
}

//IsRF is true for cavities and gaps
func (K Kind) IsRF() bool {
	return K == RFCavity || K == RFGap
}

//ParseKind returns the Kind for its name (case insensitive). Unknown names are an error.
func ParseKind(s string) (Kind, error) {
	l := strings.ToLower(strings.TrimSpace(s))
	for i, v := range kindNames {
		if v == l {
			return Kind(i), nil
		}
	}
	return Drift, fmt.Errorf("%s: %q", ErrUnknownKind, s)
}

const ErrUnknownKind = "unknown element kind"

func (K Kind) MarshalText() ([]byte, error) {
	if !K.Valid() {
		return nil, fmt.Errorf("%s: %d", ErrUnknownKind, int(K))
	}
	return []byte(K.String()), nil
}

func (K *Kind) UnmarshalText(b []byte) error {
	k, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*K = k
	return nil
}

//Element is one physical component of the lattice. Fields that don't apply to
//the element's kind are zero. Undefined RF voltage or phase are NaN.
type Element struct {
	Name      string
	Kind      Kind
	Length    float64 //ds, m
	At        float64 //cumulative entry position, m
	K         float64 //quadrupole strength
	ApertureX float64 //m
	ApertureY float64 //m
	Voltage   float64 //MV
	Phase     float64 //deg. Design phase until translated, then the applied (corrected) phase.
	Harmonic  int
	Frequency float64 //Hz, set by the translator
	EScale    float64 //set by the translator
	R         []float64 //row-major 6x6 linear map, gap model only
	Options   map[string]any
}

//NewRF returns an RF element of kind k with the given voltage and design phase. Everything else
//is zero.
func NewRF(name string, k Kind, volt, phase float64, harmonic int) Element {
	return Element{Name: name, Kind: k, Voltage: volt, Phase: phase, Harmonic: harmonic}
}

//Copy returns a deep copy of the element.
func (E Element) Copy() Element {
	ret := E
	if E.R != nil {
		ret.R = append([]float64(nil), E.R...)
	}
	if E.Options != nil {
		ret.Options = make(map[string]any, len(E.Options))
		for k, v := range E.Options {
			ret.Options[k] = v
		}
	}
	return ret
}

//EnergyGain is the synchronous energy gain V*cos(phi) in MeV for RF elements
//with defined voltage and phase, 0 otherwise.
func (E Element) EnergyGain() float64 {
	if !E.Kind.IsRF() || math.IsNaN(E.Voltage) || math.IsNaN(E.Phase) {
		return 0
	}
	return E.Voltage * math.Cos(Deg2Rad(E.Phase))
}

//Set applies one overlay key to the element. Keys that name a typed field
//need a numeric value and set that field, anything else goes to Options.
//The type and name can't be changed this way.
func (E *Element) Set(key string, value any) error {
	switch key {
	case "type", "name":
		return fmt.Errorf("element %s: overlay can't set %q", E.Name, key)
	case "R":
		r, ok := floatSlice(value)
		if !ok || len(r) != 36 {
			return fmt.Errorf("element %s: overlay key R needs 36 numbers", E.Name)
		}
		E.R = r
		return nil
	}
	ptr := E.floatField(key)
	if ptr == nil && key != "harmonics" {
		if E.Options == nil {
			E.Options = make(map[string]any)
		}
		E.Options[key] = value
		return nil
	}
	f, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("element %s: overlay key %q needs a number, got %T", E.Name, key, value)
	}
	if key == "harmonics" {
		E.Harmonic = int(f)
		return nil
	}
	*ptr = f
	return nil
}

func (E *Element) floatField(key string) *float64 {
	switch key {
	case "ds":
		return &E.Length
	case "at":
		return &E.At
	case "k":
		return &E.K
	case "aperture_x":
		return &E.ApertureX
	case "aperture_y":
		return &E.ApertureY
	case "volt":
		return &E.Voltage
	case "phase":
		return &E.Phase
	case "freq":
		return &E.Frequency
	case "escale":
		return &E.EScale
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func floatSlice(v any) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return append([]float64(nil), s...), true
	case []any:
		ret := make([]float64, 0, len(s))
		for _, x := range s {
			f, ok := toFloat(x)
			if !ok {
				return nil, false
			}
			ret = append(ret, f)
		}
		return ret, true
	}
	return nil, false
}
