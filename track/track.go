/*
 * track.go, part of golinac.
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

//Package track reads TRACK element lists into a linac.Lattice.
//
//One element per line, tokens separated by white space, comments start with '#'.
//The second token is the element keyword:
//
//	drift:  <n> drift <length cm> <aperture cm>
//	quad:   <n> quad  <field gauss> <unused> <length cm> <aperture cm>
//	rfgap:  <n> rfgap <voltage MV> <phase deg> <harmonic> <aperture cm>
//
//Elements are named from per-kind counters in the order they are found:
//dr1, dr2... for drifts, qm1... for quadrupoles, rf1... for RF gaps.
//Later stages look elements up by these names, so the order matters.
package track

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	linac "github.com/rmera/golinac"
)

//Options for the parser. A nil *Options is valid and means the defaults.
type Options struct {
	//If true, the first non-comment line must be the Header token alone.
	RequireHeader bool
	Header        string
}

//Stats summarizes a parsed list
type Stats struct {
	Elements    int
	Drifts      int
	Quadrupoles int
	RF          int
	Length      float64 //m, RF gaps count as zero length
}

func (S Stats) String() string {
	return fmt.Sprintf("%d elements (%d drifts, %d quadrupoles, %d rf gaps), total length %.8g m", S.Elements, S.Drifts, S.Quadrupoles, S.RF, S.Length)
}

//parser keeps the running counters. It is only alive during one Parse call.
type parser struct {
	at       float64
	ndr      int
	nqm      int
	nrf      int
	elements []linac.Element
}

//Parse reads a TRACK list from r. The first unknown keyword, malformed number or
//short line stops the parse with an *Error naming the line. No partial lattice
//is returned.
func Parse(r io.Reader, opts *Options) (*linac.Lattice, error) {
	L, _, err := ParseStats(r, opts)
	return L, err
}

//ParseStats is like Parse but also returns counts and total length.
func ParseStats(r io.Reader, opts *Options) (*linac.Lattice, Stats, error) {
	if opts == nil {
		opts = new(Options)
	}
	p := new(parser)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	headerSeen := !opts.RequireHeader
	for sc.Scan() {
		lineno++
		raw := sc.Text()
		words := fields(raw)
		if len(words) == 0 {
			continue
		}
		if !headerSeen {
			if len(words) != 1 || !strings.EqualFold(words[0], opts.Header) {
				return nil, Stats{}, newError(lineno, 0, raw, ErrMissingHeader, "Parse")
			}
			headerSeen = true
			continue
		}
		if len(words) < 2 {
			return nil, Stats{}, newError(lineno, 1, raw, ErrShortLine, "Parse")
		}
		var err error
		switch strings.ToLower(words[1]) {
		case "drift":
			err = p.drift(words)
		case "quad":
			err = p.quad(words)
		case "rfgap":
			err = p.rfgap(words)
		default:
			err = &Error{Message: fmt.Sprintf("%s: %s", ErrUnknownKeyword, words[1]), Token: 1}
		}
		if err != nil {
			e := err.(*Error)
			e.Line = lineno
			e.Text = raw
			e.Decorate("Parse")
			return nil, Stats{}, e
		}
	}
	if err := sc.Err(); err != nil {
		return nil, Stats{}, newError(lineno, 0, "", err.Error(), "Parse")
	}
	if !headerSeen {
		return nil, Stats{}, newError(lineno, 0, "", ErrMissingHeader, "Parse")
	}
	L, err := linac.NewLattice(p.elements...)
	if err != nil {
		return nil, Stats{}, linac.ErrDecorate(err, "Parse")
	}
	st := Stats{Elements: len(p.elements), Drifts: p.ndr, Quadrupoles: p.nqm, RF: p.nrf, Length: p.at}
	return L, st, nil
}

//ParseFile opens and parses the file name.
func ParseFile(name string, opts *Options) (*linac.Lattice, Stats, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, Stats{}, &Error{Message: err.Error(), File: name, deco: []string{"ParseFile"}}
	}
	defer f.Close()
	L, st, err := ParseStats(f, opts)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.File = name
		}
		return nil, Stats{}, linac.ErrDecorate(err, "ParseFile")
	}
	return L, st, nil
}

//fields strips the comment and splits the rest of the line.
func fields(line string) []string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.Fields(line)
}

func need(words []string, n int) error {
	if len(words) < n {
		return &Error{Message: fmt.Sprintf("%s: %s needs %d tokens, got %d", ErrShortLine, words[1], n, len(words)), Token: len(words)}
	}
	return nil
}

func float(words []string, i int) (float64, error) {
	f, err := strconv.ParseFloat(words[i], 64)
	if err != nil {
		return 0, &Error{Message: fmt.Sprintf("%s %q", ErrBadNumber, words[i]), Token: i}
	}
	return f, nil
}

//integer reads token i as an int. Fractional tokens are rejected.
func integer(words []string, i int) (int, error) {
	n, err := strconv.Atoi(words[i])
	if err != nil {
		return 0, &Error{Message: fmt.Sprintf("%s %q, integer expected", ErrBadNumber, words[i]), Token: i}
	}
	return n, nil
}

func (p *parser) drift(words []string) error {
	if err := need(words, 4); err != nil {
		return err
	}
	ds, err := float(words, 2)
	if err != nil {
		return err
	}
	ra, err := float(words, 3)
	if err != nil {
		return err
	}
	p.ndr++
	e := linac.Element{
		Name:      fmt.Sprintf("dr%d", p.ndr),
		Kind:      linac.Drift,
		Length:    ds * linac.Centimeter,
		At:        p.at,
		ApertureX: ra * linac.Centimeter,
		ApertureY: ra * linac.Centimeter,
	}
	p.add(e)
	return nil
}

func (p *parser) quad(words []string) error {
	if err := need(words, 6); err != nil {
		return err
	}
	b, err := float(words, 2)
	if err != nil {
		return err
	}
	ds, err := float(words, 4)
	if err != nil {
		return err
	}
	ra, err := float(words, 5)
	if err != nil {
		return err
	}
	ra *= linac.Centimeter
	if ra == 0 {
		return &Error{Message: "quadrupole with zero aperture", Token: 5}
	}
	p.nqm++
	e := linac.Element{
		Name:      fmt.Sprintf("qm%d", p.nqm),
		Kind:      linac.Quadrupole,
		Length:    ds * linac.Centimeter,
		At:        p.at,
		K:         b * linac.Gauss / ra, //pole-tip field over aperture, T/m
		ApertureX: ra,
		ApertureY: ra,
	}
	p.add(e)
	return nil
}

//RF gaps get zero length, their position is their entry point.
func (p *parser) rfgap(words []string) error {
	if err := need(words, 6); err != nil {
		return err
	}
	volt, err := float(words, 2)
	if err != nil {
		return err
	}
	phase, err := float(words, 3)
	if err != nil {
		return err
	}
	h, err := integer(words, 4)
	if err != nil {
		return err
	}
	ra, err := integer(words, 5)
	if err != nil {
		return err
	}
	p.nrf++
	e := linac.NewRF(fmt.Sprintf("rf%d", p.nrf), linac.RFCavity, volt, phase, h)
	e.At = p.at
	e.ApertureX = float64(ra) * linac.Centimeter
	e.ApertureY = e.ApertureX
	p.add(e)
	return nil
}

func (p *parser) add(e linac.Element) {
	p.elements = append(p.elements, e)
	p.at += e.Length
}
