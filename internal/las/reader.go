package las

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/paulmach/orb"

	"github.com/wegman-software/lasstat-go/internal/crs"
)

// Points between context checks in the streaming passes
const checkEvery = 1 << 20

// File is a LAS file mapped read-only into memory.
// Point records are decoded on demand straight from the mapping.
type File struct {
	Header Header
	VLRs   []VLR

	path string
	file *os.File
	data mmap.MMap
}

// Open maps the file and parses its header and records
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() < int64(len(signature)) {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotLAS)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	lf := &File{path: path, file: f, data: data}
	if err := lf.parse(); err != nil {
		lf.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lf, nil
}

func (f *File) parse() error {
	h, err := ParseHeader(f.data)
	if err != nil {
		return err
	}
	f.Header = h

	vlrs, err := parseVLRs(f.data, int(h.HeaderSize), h.NumVLRs)
	if err != nil {
		return err
	}
	f.VLRs = vlrs

	if h.NumEVLRs > 0 && h.EVLRStart > 0 {
		evlrs, err := parseEVLRs(f.data, h.EVLRStart, h.NumEVLRs)
		if err != nil {
			return err
		}
		f.VLRs = append(f.VLRs, evlrs...)
	}

	size := uint64(len(f.data))
	if uint64(h.PointOffset) > size ||
		h.PointCount > (size-uint64(h.PointOffset))/uint64(h.RecordLength) {
		return fmt.Errorf("%d points of %d bytes at offset %d exceed %d bytes: %w",
			h.PointCount, h.RecordLength, h.PointOffset, len(f.data), ErrTruncated)
	}

	return nil
}

// Path returns the path the file was opened from
func (f *File) Path() string {
	return f.path
}

// Close unmaps and closes the file
func (f *File) Close() error {
	var err error
	if f.data != nil {
		err = f.data.Unmap()
		f.data = nil
	}
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Records returns the metadata records used for CRS detection: the rendered
// GeoKey directory followed by every other record payload and description.
// Binary payloads fail to decode as text and are skipped by the resolver.
func (f *File) Records() []crs.Record {
	var directory, doubles, ascii []byte
	for _, v := range f.VLRs {
		if v.UserID != ProjectionUserID {
			continue
		}
		switch v.RecordID {
		case GeoKeyDirectoryID:
			directory = v.Data
		case GeoDoubleParamsID:
			doubles = v.Data
		case GeoASCIIParamsID:
			ascii = v.Data
		}
	}

	records := make([]crs.Record, 0, len(f.VLRs)*2+1)
	if directory != nil {
		if text, err := RenderGeoKeys(directory, doubles, ascii); err == nil {
			records = append(records, crs.TextRecord(text))
		}
	}

	for _, v := range f.VLRs {
		if v.UserID == ProjectionUserID &&
			(v.RecordID == GeoKeyDirectoryID || v.RecordID == GeoDoubleParamsID) {
			continue
		}
		records = append(records, crs.TextRecord(v.Data))
		if v.Description != "" {
			records = append(records, crs.TextRecord(v.Description))
		}
	}

	return records
}

// record returns the raw bytes of point i
func (f *File) record(i uint64) []byte {
	off := uint64(f.Header.PointOffset) + i*uint64(f.Header.RecordLength)
	return f.data[off : off+uint64(f.Header.RecordLength)]
}

// XY returns the scaled XY coordinates of every stride-th point
func (f *File) XY(ctx context.Context, stride int) ([]orb.Point, error) {
	if stride < 1 {
		stride = 1
	}

	h := f.Header
	n := h.PointCount / uint64(stride)
	if h.PointCount%uint64(stride) != 0 {
		n++
	}

	points := make([]orb.Point, 0, n)
	le := binary.LittleEndian

	for i := uint64(0); i < h.PointCount; i += uint64(stride) {
		if len(points)%checkEvery == checkEvery-1 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec := f.record(i)
		x := float64(int32(le.Uint32(rec[0:])))*h.Scale[0] + h.Offset[0]
		y := float64(int32(le.Uint32(rec[4:])))*h.Scale[1] + h.Offset[1]
		points = append(points, orb.Point{x, y})
	}

	return points, nil
}

// Histograms counts points by return number (1..5) and classification
// code (0..9). Values outside those ranges are ignored.
func (f *File) Histograms(ctx context.Context) (returns [5]int64, classes [10]int64, err error) {
	h := f.Header
	extended := h.PointFormat >= 6

	for i := uint64(0); i < h.PointCount; i++ {
		if i%checkEvery == checkEvery-1 {
			if err := ctx.Err(); err != nil {
				return returns, classes, err
			}
		}

		rec := f.record(i)
		var ret, class uint8
		if extended {
			ret = rec[14] & 0x0F
			class = rec[16]
		} else {
			ret = rec[14] & 0x07
			class = rec[15] & 0x1F
		}

		if ret >= 1 && ret <= 5 {
			returns[ret-1]++
		}
		if class <= 9 {
			classes[class]++
		}
	}

	return returns, classes, nil
}
