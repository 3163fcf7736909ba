/*
 * doc.go, part of golinac.
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

/*Package linac is the main package of the golinac library. It provides the lattice model shared
by all the other packages: the element kinds, the ordered lattice, the reference beam, the RF phase
tables and the artifacts (JSON lattices and CSV phase tables) that are written between the stages
of the pipeline.


	**golinac capabilities**


    Reads TRACK element lists (drift, quad, rfgap) into a normalized lattice (package track).

    Integrates the synchronous particle along the lattice to estimate the natural arrival
	phase at each RF cavity (package refpart).

    Builds the thin-gap transfer matrix of an RF gap (package rfgap).

    Translates the lattice to the element schema of an ImpactX-like tracking code, with
	per-kind option overlays and corrected cavity phases (package translate).

    Reads the diagnostics written by the tracking code, plain or compressed (package diag).

    Runs the phase calibration loop: translate, simulate, measure the arrival phase at each
	cavity, correct, repeat (package calib), keeping the history in SQLite (package runlog).

All phases are in degrees and normalized to (-180, 180]. Energies are in MeV, lengths in meters,
frequencies in Hz.

*/
package linac
