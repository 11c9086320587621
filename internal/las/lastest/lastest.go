// Package lastest builds small synthetic LAS files for tests
package lastest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
)

// Point is one synthetic point in world coordinates
type Point struct {
	X, Y, Z    float64
	Return     uint8
	NumReturns uint8
	Class      uint8
}

// VLR is a raw variable length record
type VLR struct {
	UserID      string
	RecordID    uint16
	Description string
	Data        []byte
}

// Spec describes the file to build
type Spec struct {
	Minor       uint8 // version 1.Minor, defaults to 2
	PointFormat uint8
	Scale       [3]float64 // defaults to 0.01
	Offset      [3]float64
	Points      []Point
	VLRs        []VLR
	Compressed  bool
}

var recordLengths = [...]uint16{20, 28, 26, 34, 57, 63, 30, 36, 38, 59, 67}

// Build returns the encoded file
func Build(s Spec) []byte {
	if s.Minor == 0 {
		s.Minor = 2
	}
	if s.Scale == ([3]float64{}) {
		s.Scale = [3]float64{0.01, 0.01, 0.01}
	}

	headerSize := 227
	if s.Minor >= 4 {
		headerSize = 375
	}

	var vlrBytes bytes.Buffer
	for _, v := range s.VLRs {
		writeVLR(&vlrBytes, v)
	}

	recLen := recordLengths[s.PointFormat]
	pointOffset := headerSize + vlrBytes.Len()

	le := binary.LittleEndian
	h := make([]byte, headerSize)
	copy(h, "LASF")
	h[24] = 1
	h[25] = s.Minor
	copy(h[26:58], "lastest")
	copy(h[58:90], "lastest")
	le.PutUint16(h[94:], uint16(headerSize))
	le.PutUint32(h[96:], uint32(pointOffset))
	le.PutUint32(h[100:], uint32(len(s.VLRs)))
	h[104] = s.PointFormat
	if s.Compressed {
		h[104] |= 0x80
	}
	le.PutUint16(h[105:], recLen)
	le.PutUint32(h[107:], uint32(len(s.Points)))

	var byReturn [5]uint32
	minV := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	maxV := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, p := range s.Points {
		if p.Return >= 1 && p.Return <= 5 {
			byReturn[p.Return-1]++
		}
		for i, v := range [3]float64{p.X, p.Y, p.Z} {
			minV[i] = math.Min(minV[i], v)
			maxV[i] = math.Max(maxV[i], v)
		}
	}
	if len(s.Points) == 0 {
		minV, maxV = [3]float64{}, [3]float64{}
	}

	for i := 0; i < 5; i++ {
		le.PutUint32(h[111+i*4:], byReturn[i])
	}
	for i := 0; i < 3; i++ {
		putFloat(h[131+i*8:], s.Scale[i])
		putFloat(h[155+i*8:], s.Offset[i])
		putFloat(h[179+i*16:], maxV[i])
		putFloat(h[187+i*16:], minV[i])
	}
	if s.Minor >= 4 {
		le.PutUint64(h[247:], uint64(len(s.Points)))
		for i := 0; i < 5; i++ {
			le.PutUint64(h[255+i*8:], uint64(byReturn[i]))
		}
	}

	var out bytes.Buffer
	out.Write(h)
	out.Write(vlrBytes.Bytes())

	rec := make([]byte, recLen)
	for _, p := range s.Points {
		clear(rec)
		le.PutUint32(rec[0:], uint32(int32(math.Round((p.X-s.Offset[0])/s.Scale[0]))))
		le.PutUint32(rec[4:], uint32(int32(math.Round((p.Y-s.Offset[1])/s.Scale[1]))))
		le.PutUint32(rec[8:], uint32(int32(math.Round((p.Z-s.Offset[2])/s.Scale[2]))))
		if s.PointFormat >= 6 {
			rec[14] = p.Return&0x0F | p.NumReturns<<4
			rec[16] = p.Class
		} else {
			rec[14] = p.Return&0x07 | (p.NumReturns&0x07)<<3
			rec[15] = p.Class & 0x1F
		}
		out.Write(rec)
	}

	return out.Bytes()
}

// WriteFile builds the file and writes it to path
func WriteFile(path string, s Spec) error {
	return os.WriteFile(path, Build(s), 0o644)
}

func writeVLR(buf *bytes.Buffer, v VLR) {
	h := make([]byte, 54)
	copy(h[2:18], v.UserID)
	binary.LittleEndian.PutUint16(h[18:], v.RecordID)
	binary.LittleEndian.PutUint16(h[20:], uint16(len(v.Data)))
	copy(h[22:54], v.Description)
	buf.Write(h)
	buf.Write(v.Data)
}

func putFloat(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

// GeoKey is one GeoKey directory entry. Exactly one of Short, Double or
// ASCII is used, in that order of preference when set.
type GeoKey struct {
	ID     uint16
	Short  uint16
	Double []float64
	ASCII  string
}

// GeoKeyVLRs encodes a GeoKey directory with its parameter records
func GeoKeyVLRs(keys ...GeoKey) []VLR {
	le := binary.LittleEndian

	dir := make([]byte, 8, 8+len(keys)*8)
	le.PutUint16(dir[0:], 1)
	le.PutUint16(dir[2:], 1)
	le.PutUint16(dir[4:], 0)
	le.PutUint16(dir[6:], uint16(len(keys)))

	var doubles, ascii []byte
	entry := make([]byte, 8)
	for _, k := range keys {
		le.PutUint16(entry[0:], k.ID)
		switch {
		case k.ASCII != "":
			text := k.ASCII
			if text[len(text)-1] != '|' {
				text += "|"
			}
			le.PutUint16(entry[2:], 34737)
			le.PutUint16(entry[4:], uint16(len(text)))
			le.PutUint16(entry[6:], uint16(len(ascii)))
			ascii = append(ascii, text...)
		case len(k.Double) > 0:
			le.PutUint16(entry[2:], 34736)
			le.PutUint16(entry[4:], uint16(len(k.Double)))
			le.PutUint16(entry[6:], uint16(len(doubles)/8))
			for _, d := range k.Double {
				doubles = le.AppendUint64(doubles, math.Float64bits(d))
			}
		default:
			le.PutUint16(entry[2:], 0)
			le.PutUint16(entry[4:], 1)
			le.PutUint16(entry[6:], k.Short)
		}
		dir = append(dir, entry...)
	}

	vlrs := []VLR{{UserID: "LASF_Projection", RecordID: 34735, Data: dir}}
	if len(doubles) > 0 {
		vlrs = append(vlrs, VLR{UserID: "LASF_Projection", RecordID: 34736, Data: doubles})
	}
	if len(ascii) > 0 {
		vlrs = append(vlrs, VLR{UserID: "LASF_Projection", RecordID: 34737, Data: ascii})
	}
	return vlrs
}

// WKTVLR wraps an OGC WKT string in its projection record
func WKTVLR(wkt string) VLR {
	return VLR{
		UserID:      "LASF_Projection",
		RecordID:    2112,
		Description: "OGC Coordinate System WKT",
		Data:        append([]byte(wkt), 0),
	}
}

// Grid returns an n×n grid of points starting at (x0, y0) with the given
// spacing. Returns cycle 1..3 and classes cycle 1..6.
func Grid(x0, y0, spacing float64, n int) []Point {
	points := make([]Point, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k := i*n + j
			points = append(points, Point{
				X:          x0 + float64(i)*spacing,
				Y:          y0 + float64(j)*spacing,
				Z:          100 + float64(k%7),
				Return:     uint8(k%3) + 1,
				NumReturns: 3,
				Class:      uint8(k%6) + 1,
			})
		}
	}
	return points
}
