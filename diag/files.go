/*
 * files.go, part of golinac.
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
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

//The simulator output can be big, so it is often kept compressed. The
//compression is chosen from the file suffix: .zst is zstd, .gz is gzip,
//anything else is plain text.

//zstd decoders don't close like an io.ReadCloser does, so they go through this.
type zstdReadCloser struct {
	*zstd.Decoder
	f *os.File
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

type gzipReadCloser struct {
	*gzip.Reader
	f *os.File
}

func (g gzipReadCloser) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

//Open opens name for reading, decompressing it if its suffix says so.
func Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(suffix(name)) {
	case ".zst":
		d, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, newError("can't start zstd decoder: "+err.Error(), name, 0, "Open")
		}
		return zstdReadCloser{d, f}, nil
	case ".gz":
		g, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, newError("can't read gzip header: "+err.Error(), name, 0, "Open")
		}
		return gzipReadCloser{g, f}, nil
	}
	return f, nil
}

type compressedWriteCloser struct {
	io.WriteCloser
	f *os.File
}

func (c compressedWriteCloser) Close() error {
	if err := c.WriteCloser.Close(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

//Create creates name for writing, compressing what is written if its suffix says so.
func Create(name string) (io.WriteCloser, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	var w io.WriteCloser
	switch strings.ToLower(suffix(name)) {
	case ".zst":
		w, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	case ".gz":
		w, err = gzip.NewWriterLevel(f, gzip.BestCompression)
	default:
		return f, nil
	}
	if err != nil {
		f.Close()
		return nil, newError("can't start compressor: "+err.Error(), name, 0, "Create")
	}
	return compressedWriteCloser{w, f}, nil
}

func suffix(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return name[i:]
}

//ReadReference reads a reference trajectory file.
func ReadReference(name string) ([]RefPoint, error) {
	r, err := Open(name)
	if err != nil {
		return nil, errDecorate(err, "ReadReference")
	}
	defer r.Close()
	ret, err := DecodeReference(r, name)
	return ret, errDecorate(err, "ReadReference")
}

//ReadSamples reads a BPM sample file.
func ReadSamples(name string) ([]Sample, error) {
	r, err := Open(name)
	if err != nil {
		return nil, errDecorate(err, "ReadSamples")
	}
	defer r.Close()
	ret, err := DecodeSamples(r, name)
	return ret, errDecorate(err, "ReadSamples")
}

//Load reads the two diagnostic files of a simulation into a Record.
func Load(reference, bpm string, steps StepMap) (*Record, error) {
	ref, err := ReadReference(reference)
	if err != nil {
		return nil, errDecorate(err, "Load")
	}
	samples, err := ReadSamples(bpm)
	if err != nil {
		return nil, errDecorate(err, "Load")
	}
	return &Record{Reference: ref, Samples: samples, StepMap: steps}, nil
}

//WriteReference writes a reference trajectory file.
func WriteReference(name string, ref []RefPoint) error {
	w, err := Create(name)
	if err != nil {
		return errDecorate(err, "WriteReference")
	}
	if err := EncodeReference(w, ref); err != nil {
		w.Close()
		return errDecorate(err, "WriteReference")
	}
	return errDecorate(w.Close(), "WriteReference")
}

//WriteSamples writes a BPM sample file.
func WriteSamples(name string, samples []Sample) error {
	w, err := Create(name)
	if err != nil {
		return errDecorate(err, "WriteSamples")
	}
	if err := EncodeSamples(w, samples); err != nil {
		w.Close()
		return errDecorate(err, "WriteSamples")
	}
	return errDecorate(w.Close(), "WriteSamples")
}
