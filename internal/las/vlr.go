package las

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Well-known record IDs under the LASF_Projection user ID
const (
	GeoKeyDirectoryID = 34735
	GeoDoubleParamsID = 34736
	GeoASCIIParamsID  = 34737
	OGCWKTID          = 2112

	ProjectionUserID = "LASF_Projection"
)

// VLR is a variable or extended variable length record
type VLR struct {
	UserID      string
	RecordID    uint16
	Description string
	Data        []byte
	Extended    bool
}

// parseVLRs reads n records starting at off
func parseVLRs(b []byte, off int, n uint32) ([]VLR, error) {
	vlrs := make([]VLR, 0, n)
	le := binary.LittleEndian

	for i := uint32(0); i < n; i++ {
		if off+vlrHeaderSize > len(b) {
			return nil, fmt.Errorf("vlr %d header: %w", i, ErrTruncated)
		}
		h := b[off : off+vlrHeaderSize]
		length := int(le.Uint16(h[20:]))
		start := off + vlrHeaderSize
		if start+length > len(b) {
			return nil, fmt.Errorf("vlr %d payload: %w", i, ErrTruncated)
		}

		vlrs = append(vlrs, VLR{
			UserID:      cString(h[2:18]),
			RecordID:    le.Uint16(h[18:]),
			Description: cString(h[22:54]),
			Data:        b[start : start+length],
		})
		off = start + length
	}

	return vlrs, nil
}

// parseEVLRs reads the LAS 1.4 extended records at the end of the file
func parseEVLRs(b []byte, off uint64, n uint32) ([]VLR, error) {
	vlrs := make([]VLR, 0, n)
	le := binary.LittleEndian
	size := uint64(len(b))

	for i := uint32(0); i < n; i++ {
		if off+evlrHeaderSize > size {
			return nil, fmt.Errorf("evlr %d header: %w", i, ErrTruncated)
		}
		h := b[off : off+evlrHeaderSize]
		length := le.Uint64(h[20:])
		start := off + evlrHeaderSize
		if length > size || start+length > size {
			return nil, fmt.Errorf("evlr %d payload: %w", i, ErrTruncated)
		}

		vlrs = append(vlrs, VLR{
			UserID:      cString(h[2:18]),
			RecordID:    le.Uint16(h[18:]),
			Description: cString(h[28:60]),
			Data:        b[start : start+length],
			Extended:    true,
		})
		off = start + length
	}

	return vlrs, nil
}

// GeoTIFF key names rendered into text records
var geoKeyNames = map[uint16]string{
	1024: "GTModelTypeGeoKey",
	1025: "GTRasterTypeGeoKey",
	1026: "GTCitationGeoKey",
	2048: "GeographicTypeGeoKey",
	2049: "GeogCitationGeoKey",
	2050: "GeogGeodeticDatumGeoKey",
	2052: "GeogLinearUnitsGeoKey",
	2054: "GeogAngularUnitsGeoKey",
	3072: "ProjectedCSTypeGeoKey",
	3073: "PCSCitationGeoKey",
	3076: "ProjLinearUnitsGeoKey",
	4096: "VerticalCSTypeGeoKey",
	4097: "VerticalCitationGeoKey",
	4098: "VerticalDatumGeoKey",
	4099: "VerticalUnitsGeoKey",
}

// Linear unit codes from the EPSG units table
var linearUnitNames = map[uint16]string{
	9001: "Linear_Meter",
	9002: "Linear_Foot",
	9003: "Linear_Foot_US_Survey",
	9030: "Linear_Meter_Nautical_Mile",
}

func isLinearUnitKey(id uint16) bool {
	return id == 2052 || id == 3076 || id == 4099
}

// RenderGeoKeys turns a GeoKey directory and its parameter blocks into
// one line per key ("ProjLinearUnitsGeoKey: Linear_Foot_US_Survey").
// ASCII values keep their '|' terminator.
func RenderGeoKeys(directory, doubles, ascii []byte) (string, error) {
	if len(directory) < 8 || len(directory)%2 != 0 {
		return "", fmt.Errorf("geokey directory of %d bytes: %w", len(directory), ErrTruncated)
	}

	le := binary.LittleEndian
	numKeys := int(le.Uint16(directory[6:]))
	if 8+numKeys*8 > len(directory) {
		return "", fmt.Errorf("geokey directory declares %d keys: %w", numKeys, ErrTruncated)
	}

	var sb strings.Builder
	for i := 0; i < numKeys; i++ {
		entry := directory[8+i*8:]
		id := le.Uint16(entry)
		location := le.Uint16(entry[2:])
		count := int(le.Uint16(entry[4:]))
		value := le.Uint16(entry[6:])

		name, ok := geoKeyNames[id]
		if !ok {
			name = "GeoKey" + strconv.Itoa(int(id))
		}

		var text string
		switch location {
		case 0:
			text = strconv.Itoa(int(value))
			if isLinearUnitKey(id) {
				if unit, ok := linearUnitNames[value]; ok {
					text = unit
				}
			}
		case GeoDoubleParamsID:
			start := int(value) * 8
			if count < 1 || start+count*8 > len(doubles) {
				continue
			}
			parts := make([]string, count)
			for j := range parts {
				parts[j] = strconv.FormatFloat(float64At(doubles, start+j*8), 'f', -1, 64)
			}
			text = strings.Join(parts, ",")
		case GeoASCIIParamsID:
			start := int(value)
			if start+count > len(ascii) {
				continue
			}
			text = strings.TrimRight(string(ascii[start:start+count]), "\x00")
			if !strings.HasSuffix(text, "|") {
				text += "|"
			}
		default:
			continue
		}

		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(text)
		sb.WriteByte('\n')
	}

	return sb.String(), nil
}
