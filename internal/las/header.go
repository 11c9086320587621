package las

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	// ErrNotLAS is returned for files without the LASF signature or with a
	// payload this reader cannot decode (compressed LAZ, unknown point format)
	ErrNotLAS = errors.New("not a LAS file")
	// ErrTruncated is returned when the header or point block runs past EOF
	ErrTruncated = errors.New("LAS file is truncated")
)

const (
	signature = "LASF"

	// Size of the LAS 1.0-1.2 public header block
	minHeaderSize = 227

	vlrHeaderSize  = 54
	evlrHeaderSize = 60

	// Bits 6 and 7 of the point format byte flag LASzip compression
	compressedMask = 0xC0
)

// Minimum point record length per point data format
var recordLengths = [...]uint16{20, 28, 26, 34, 57, 63, 30, 36, 38, 59, 67}

// Header is the public header block
type Header struct {
	VersionMajor uint8
	VersionMinor uint8
	SystemID     string
	Software     string
	CreationDay  uint16
	CreationYear uint16

	HeaderSize   uint16
	PointOffset  uint32
	NumVLRs      uint32
	PointFormat  uint8
	RecordLength uint16

	PointCount   uint64
	ReturnCounts [5]uint64

	Scale  [3]float64
	Offset [3]float64
	Min    [3]float64
	Max    [3]float64

	// LAS 1.4 only
	EVLRStart uint64
	NumEVLRs  uint32
}

// Version returns "major.minor"
func (h Header) Version() string {
	return fmt.Sprintf("%d.%d", h.VersionMajor, h.VersionMinor)
}

// Bound returns the XY extent from the header
func (h Header) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{h.Min[0], h.Min[1]},
		Max: orb.Point{h.Max[0], h.Max[1]},
	}
}

// ParseHeader decodes the public header block at the start of b
func ParseHeader(b []byte) (Header, error) {
	var h Header

	if len(b) < len(signature) || string(b[:4]) != signature {
		return h, ErrNotLAS
	}
	if len(b) < minHeaderSize {
		return h, fmt.Errorf("header needs %d bytes, have %d: %w", minHeaderSize, len(b), ErrTruncated)
	}

	le := binary.LittleEndian

	h.VersionMajor = b[24]
	h.VersionMinor = b[25]
	if h.VersionMajor != 1 || h.VersionMinor > 4 {
		return h, fmt.Errorf("unsupported version %d.%d: %w", h.VersionMajor, h.VersionMinor, ErrNotLAS)
	}

	h.SystemID = cString(b[26:58])
	h.Software = cString(b[58:90])
	h.CreationDay = le.Uint16(b[90:])
	h.CreationYear = le.Uint16(b[92:])
	h.HeaderSize = le.Uint16(b[94:])
	h.PointOffset = le.Uint32(b[96:])
	h.NumVLRs = le.Uint32(b[100:])

	format := b[104]
	if format&compressedMask != 0 {
		return h, fmt.Errorf("compressed point data (LAZ): %w", ErrNotLAS)
	}
	h.PointFormat = format
	if int(h.PointFormat) >= len(recordLengths) {
		return h, fmt.Errorf("unknown point format %d: %w", h.PointFormat, ErrNotLAS)
	}

	h.RecordLength = le.Uint16(b[105:])
	if h.RecordLength < recordLengths[h.PointFormat] {
		return h, fmt.Errorf("record length %d too short for format %d: %w",
			h.RecordLength, h.PointFormat, ErrNotLAS)
	}

	h.PointCount = uint64(le.Uint32(b[107:]))
	for i := 0; i < 5; i++ {
		h.ReturnCounts[i] = uint64(le.Uint32(b[111+i*4:]))
	}

	for i := 0; i < 3; i++ {
		h.Scale[i] = float64At(b, 131+i*8)
		h.Offset[i] = float64At(b, 155+i*8)
		// max and min are interleaved per axis: max x, min x, max y, ...
		h.Max[i] = float64At(b, 179+i*16)
		h.Min[i] = float64At(b, 187+i*16)
	}

	if int(h.HeaderSize) < minHeaderSize {
		return h, fmt.Errorf("header size %d below %d: %w", h.HeaderSize, minHeaderSize, ErrNotLAS)
	}

	if h.VersionMinor >= 4 {
		if len(b) < 375 {
			return h, fmt.Errorf("1.4 header needs 375 bytes: %w", ErrTruncated)
		}
		h.EVLRStart = le.Uint64(b[235:])
		h.NumEVLRs = le.Uint32(b[243:])
		if count := le.Uint64(b[247:]); count != 0 {
			h.PointCount = count
		}
		for i := 0; i < 5; i++ {
			if n := le.Uint64(b[255+i*8:]); n != 0 {
				h.ReturnCounts[i] = n
			}
		}
	}

	return h, nil
}

func float64At(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
}

// cString trims a fixed-width NUL padded field
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
