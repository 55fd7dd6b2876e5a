/*
NAME
  fieldreader.go

DESCRIPTION
  fieldreader.go provides a sticky-error wrapper around bits.Reader so that a
  long run of syntax-element reads (as found in every AVS sequence header)
  can be written as a flat sequence of statements, with the first error
  short-circuiting all following reads. This is the same shape as
  codec/h264/h264dec/parse.go's fieldReader, generalized across all four AVS
  codec parsers.

AUTHORS
  AVS Probe Contributors
*/

// Package fieldreader provides a sticky-error field reader used by every AVS
// codec parser.
package fieldreader

import "github.com/avsprobe/avsmeta/bits"

// R wraps a *bits.Reader with a sticky error: once any read fails, all
// subsequent reads become no-ops returning zero, and Err reports the first
// failure.
type R struct {
	Br *bits.Reader
	e  error
}

// New returns a field reader over br.
func New(br *bits.Reader) *R {
	return &R{Br: br}
}

// Err returns the first error encountered, or nil.
func (r *R) Err() error { return r.e }

// U reads n bits and returns them as a uint32.
func (r *R) U(n int) uint32 {
	if r.e != nil {
		return 0
	}
	var v uint32
	v, r.e = r.Br.ReadBits(n)
	return v
}

// Bool reads 1 bit and returns it as a bool.
func (r *R) Bool() bool {
	return r.U(1) == 1
}

// UE reads an unsigned Exp-Golomb code.
func (r *R) UE() uint32 {
	if r.e != nil {
		return 0
	}
	var v uint32
	v, r.e = r.Br.ReadUE()
	return v
}

// SE reads a signed Exp-Golomb code.
func (r *R) SE() int32 {
	if r.e != nil {
		return 0
	}
	var v int32
	v, r.e = r.Br.ReadSE()
	return v
}

// Marker checks a marker bit, recording ErrMarkerBitViolation on failure.
func (r *R) Marker() {
	if r.e != nil {
		return
	}
	r.e = r.Br.CheckMarkerBit()
}

// Skip skips n bits unconditionally (used for reserved-bit runs).
func (r *R) Skip(n int) {
	if r.e != nil {
		return
	}
	r.Br.SkipBits(n)
}
