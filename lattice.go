/*
 * lattice.go, part of golinac.
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

//Lattice is an ordered sequence of element names plus the table of elements.
//Every name in the sequence has exactly one element, and there are no other
//elements in the table. Lattices are values: the methods that change something
//return a new Lattice and leave the receiver alone.
type Lattice struct {
	sequence []string
	elements map[string]Element
}

//NewLattice builds a lattice from elements in sequence order, checking the
//invariants. Names must be unique.
func NewLattice(elements ...Element) (*Lattice, error) {
	L := &Lattice{sequence: make([]string, 0, len(elements)), elements: make(map[string]Element, len(elements))}
	for _, e := range elements {
		if !e.Kind.Valid() {
			return nil, newLookupError(e.Name, ErrUnknownKind, "NewLattice")
		}
		if _, ok := L.elements[e.Name]; ok {
			return nil, newLookupError(e.Name, ErrDuplicateName, "NewLattice")
		}
		L.sequence = append(L.sequence, e.Name)
		L.elements[e.Name] = e.Copy()
	}
	return L, nil
}

//FromTable builds a lattice from a sequence and an element table, as they come
//in an artifact, and checks that they agree.
func FromTable(sequence []string, table map[string]Element) (*Lattice, error) {
	els := make([]Element, 0, len(sequence))
	for _, name := range sequence {
		e, ok := table[name]
		if !ok {
			return nil, newLookupError(name, ErrMissingElement, "FromTable")
		}
		if e.Name != name {
			return nil, newLookupError(name, ErrNameMismatch, "FromTable")
		}
		els = append(els, e)
	}
	L, err := NewLattice(els...)
	if err != nil {
		return nil, ErrDecorate(err, "FromTable")
	}
	for name := range table {
		if _, ok := L.elements[name]; !ok {
			return nil, newLookupError(name, ErrOrphanElement, "FromTable")
		}
	}
	return L, nil
}

//Len returns the number of elements
func (L *Lattice) Len() int {
	return len(L.sequence)
}

//Names returns a copy of the sequence.
func (L *Lattice) Names() []string {
	return append([]string(nil), L.sequence...)
}

//Element returns a copy of the element with the given name.
func (L *Lattice) Element(name string) (Element, error) {
	e, ok := L.elements[name]
	if !ok {
		return Element{}, newLookupError(name, ErrMissingElement, "Element")
	}
	return e.Copy(), nil
}

//At returns a copy of the i-th element in sequence order. It panics if i is out of range.
func (L *Lattice) At(i int) Element {
	return L.elements[L.sequence[i]].Copy()
}

//Elements returns copies of all the elements, in sequence order.
func (L *Lattice) Elements() []Element {
	ret := make([]Element, 0, len(L.sequence))
	for _, name := range L.sequence {
		ret = append(ret, L.elements[name].Copy())
	}
	return ret
}

//RF returns the names of the RF elements, in sequence order.
func (L *Lattice) RF() []string {
	ret := make([]string, 0)
	for _, name := range L.sequence {
		if L.elements[name].Kind.IsRF() {
			ret = append(ret, name)
		}
	}
	return ret
}

//TotalLength is the sum of the element lengths.
func (L *Lattice) TotalLength() float64 {
	var s float64
	for _, name := range L.sequence {
		s += L.elements[name].Length
	}
	return s
}

//Clone returns a deep copy of the lattice.
func (L *Lattice) Clone() *Lattice {
	ret := &Lattice{sequence: L.Names(), elements: make(map[string]Element, len(L.elements))}
	for k, v := range L.elements {
		ret.elements[k] = v.Copy()
	}
	return ret
}

//With returns a new lattice where the given elements replace the ones with the
//same name. Replacing an element that isn't in the lattice is a LookupError,
//and so is changing its kind.
func (L *Lattice) With(replacements ...Element) (*Lattice, error) {
	ret := L.Clone()
	for _, e := range replacements {
		old, ok := ret.elements[e.Name]
		if !ok {
			return nil, newLookupError(e.Name, ErrMissingElement, "With")
		}
		if old.Kind != e.Kind {
			return nil, newLookupError(e.Name, "kind can't change on replacement", "With")
		}
		ret.elements[e.Name] = e.Copy()
	}
	return ret, nil
}

//Check verifies the lattice invariants. Lattices built through this package
//always pass, it is meant for lattices that went through other hands.
func (L *Lattice) Check() error {
	if len(L.sequence) != len(L.elements) {
		for name := range L.elements {
			found := false
			for _, s := range L.sequence {
				if s == name {
					found = true
					break
				}
			}
			if !found {
				return newLookupError(name, ErrOrphanElement, "Check")
			}
		}
	}
	seen := make(map[string]bool, len(L.sequence))
	for _, name := range L.sequence {
		e, ok := L.elements[name]
		if !ok {
			return newLookupError(name, ErrMissingElement, "Check")
		}
		if seen[name] {
			return newLookupError(name, ErrDuplicateName, "Check")
		}
		seen[name] = true
		if e.Name != name {
			return newLookupError(name, ErrNameMismatch, "Check")
		}
	}
	return nil
}

//Positions recomputes the cumulative entry position of every element from the
//lengths and returns them in sequence order. RF elements count with their
//current length.
func (L *Lattice) Positions() []float64 {
	ret := make([]float64, len(L.sequence))
	var at float64
	for i, name := range L.sequence {
		ret[i] = at
		at += L.elements[name].Length
	}
	return ret
}
