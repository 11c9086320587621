package wkb

import (
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPoint   = 1
	wkbPolygon = 3

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// SRIDUnknown is written when a file's EPSG code could not be detected
const SRIDUnknown = 0

// Encoder encodes footprints to little-endian EWKB
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder for the given SRID (0 = unknown)
func NewEncoder(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// SetSRID changes the SRID for subsequent geometries
func (e *Encoder) SetSRID(srid int) {
	e.srid = uint32(srid)
}

// Reset clears the buffer for reuse
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// EncodePoint encodes a point with SRID. The returned slice is reused by
// the next call.
func (e *Encoder) EncodePoint(p orb.Point) []byte {
	e.Reset()
	e.header(wkbPoint)
	e.appendFloat64(p[0])
	e.appendFloat64(p[1])
	return e.buf
}

// EncodeRing encodes a single-ring polygon with SRID. The ring is closed
// if needed. Returns nil for rings with fewer than three distinct vertices.
// The returned slice is reused by the next call.
func (e *Encoder) EncodeRing(ring orb.Ring) []byte {
	e.Reset()
	if len(ring) < 3 {
		return nil
	}

	closed := ring.Closed()
	n := len(ring)
	if !closed {
		n++
	}
	if n < 4 {
		return nil
	}

	// 1 + 4 + 4 + 4 (num rings) + 4 (ring size) + points
	e.ensureCapacity(17 + n*16)
	e.header(wkbPolygon)
	e.appendUint32(1)
	e.appendUint32(uint32(n))
	for _, p := range ring {
		e.appendFloat64(p[0])
		e.appendFloat64(p[1])
	}
	if !closed {
		e.appendFloat64(ring[0][0])
		e.appendFloat64(ring[0][1])
	}

	return e.buf
}

// EncodeBound encodes an axis-aligned bound as a polygon
func (e *Encoder) EncodeBound(b orb.Bound) []byte {
	if b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
		e.Reset()
		return nil
	}
	return e.EncodeRing(b.ToRing())
}

// Clone returns a copy of the last encoded geometry
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (e *Encoder) header(geomType uint32) {
	e.buf = append(e.buf, 0x01) // little-endian
	e.appendUint32(geomType | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) ensureCapacity(n int) {
	if cap(e.buf) < n {
		e.buf = make([]byte, 0, n)
	}
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
