package crs

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"github.com/wegman-software/lasstat-go/internal/units"
)

func records(texts ...string) []Record {
	out := make([]Record, len(texts))
	for i, t := range texts {
		out[i] = TextRecord(t)
	}
	return out
}

func bound(minX, minY, maxX, maxY float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

const mainWKT = `COMPD_CS["NAD83(2011) / Maine West (ftUS) + NAVD88 height (ftUS)",` +
	`PROJCS["NAD83(2011) / Maine West (ftUS)",GEOGCS["NAD83(2011)",DATUM["NAD83_National_Spatial_Reference_System_2011"]],` +
	`UNIT["US survey foot",0.3048006096012192,AUTHORITY["EPSG","9003"]],AUTHORITY["EPSG","6486"]],` +
	`VERT_CS["NAVD88 height (ftUS)",UNIT["US survey foot",0.3048006096012192]]]`

func TestResolveSurveyFootMarker(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name    string
		records []Record
	}{
		{"plain marker", records("UNIT US survey foot")},
		{"marker without label", records("something|US survey foot|")},
		{"marker with citation", records("GTCitationGeoKey: NAD83 / Somewhere (ftUS)|", "US survey foot")},
		{"survey beats foot", records("Linear_Foot", "US survey foot")},
		{"survey beats foot in either order", records("US survey foot", "Linear_Foot", "Linear_Meter")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Resolve(tt.records, orb.Bound{})
			assert.Equal(t, units.USSurveyFeet, d.Unit)
			assert.Equal(t, SourceMetadata, d.UnitSource)
		})
	}
}

func TestResolveUnitPrecedence(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name string
		recs []Record
		want units.Unit
	}{
		{"geokey foot", records("ProjLinearUnitsGeoKey: Linear_Foot"), units.Feet},
		{"geokey survey", records("ProjLinearUnitsGeoKey: Linear_Foot_US_Survey"), units.USSurveyFeet},
		{"geokey meter", records("ProjLinearUnitsGeoKey: Linear_Meter"), units.Meters},
		{"wkt metre", records(`PROJCS["x",UNIT["metre",1]]`), units.Meters},
		{"foot beats meter", records("Linear_Meter", "Linear_Foot"), units.Feet},
		{"case insensitive", records("LINEAR_FOOT_US_SURVEY"), units.USSurveyFeet},
		{"bare meter word is not a unit", records("parameter list"), units.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.FromMetadata(tt.recs)
			assert.Equal(t, tt.want, d.Unit)
		})
	}
}

func TestResolveLabels(t *testing.T) {
	r := NewResolver()

	t.Run("citation up to delimiter", func(t *testing.T) {
		d := r.FromMetadata(records("GTCitationGeoKey: NAD83(2011) / Maine West (ftUS) + NAVD88 height (ftUS)|NAD83(2011)|"))
		assert.Equal(t, "NAD83(2011) / Maine West (ftUS) + NAVD88 height (ftUS)", d.Label)
		assert.Equal(t, units.USSurveyFeet, d.Unit)
	})

	t.Run("wkt name overrides citation", func(t *testing.T) {
		d := r.FromMetadata(records("GTCitationGeoKey: some citation|", mainWKT))
		assert.Equal(t, "NAD83(2011) / Maine West (ftUS) + NAVD88 height (ftUS)", d.Label)
		assert.Equal(t, 6486, d.EPSG)
	})

	t.Run("citation does not override wkt name", func(t *testing.T) {
		d := r.FromMetadata(records(mainWKT, "GTCitationGeoKey: some citation|"))
		assert.Equal(t, "NAD83(2011) / Maine West (ftUS) + NAVD88 height (ftUS)", d.Label)
	})

	t.Run("wkt without known datum is ignored", func(t *testing.T) {
		d := r.FromMetadata(records(`PROJCS["Local grid",UNIT["metre",1]]`))
		assert.Empty(t, d.Label)
		assert.Equal(t, units.Meters, d.Unit)
	})

	t.Run("label matching is case sensitive", func(t *testing.T) {
		d := r.FromMetadata(records("gtcitationgeokey: lower|"))
		assert.Empty(t, d.Label)
	})

	t.Run("epsg from geokey", func(t *testing.T) {
		d := r.FromMetadata(records("ProjectedCSTypeGeoKey: 26919"))
		assert.Equal(t, 26919, d.EPSG)
	})

	t.Run("user defined epsg is ignored", func(t *testing.T) {
		d := r.FromMetadata(records("ProjectedCSTypeGeoKey: 32767"))
		assert.Equal(t, 0, d.EPSG)
	})
}

func TestResolveSkipsUndecodableRecords(t *testing.T) {
	r := NewResolver()

	recs := []Record{
		TextRecord([]byte{0xff, 0xfe, 0xfd}),
		nil,
		TextRecord("GTCitationGeoKey: NAD83 / UTM zone 19N|"),
		TextRecord("ProjLinearUnitsGeoKey: Linear_Meter\x00\x00"),
	}

	d := r.Resolve(recs, orb.Bound{})
	assert.Equal(t, "NAD83 / UTM zone 19N", d.Label)
	assert.Equal(t, units.Meters, d.Unit)
}

func TestTextRecord(t *testing.T) {
	s, err := TextRecord("abc\x00\x00").Text()
	assert.NoError(t, err)
	assert.Equal(t, "abc", s)

	_, err = TextRecord([]byte{0xc3, 0x28}).Text()
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestFallbackStatePlane(t *testing.T) {
	r := NewResolver()

	d := r.Resolve(nil, bound(2_000_000, 300_000, 2_100_000, 310_000))
	assert.Equal(t, units.USSurveyFeet, d.Unit)
	assert.NotEmpty(t, d.Label)
	assert.Equal(t, LabelStatePlaneFeet, d.Label)
	assert.Equal(t, SourceCoordinates, d.LabelSource)
	assert.Equal(t, SourceCoordinates, d.UnitSource)
}

func TestFallbackRegionalZone(t *testing.T) {
	r := NewResolver()

	d := r.Resolve(nil, bound(2_900_000, 500_000, 2_905_000, 505_000))
	assert.Equal(t, "NAD83(2011) / Maine West (ftUS)", d.Label)
	assert.Equal(t, units.USSurveyFeet, d.Unit)
	assert.Equal(t, 6486, d.EPSG)
}

func TestFallbackUTM(t *testing.T) {
	r := NewResolver()

	d := r.Resolve(nil, bound(500_000, 4_800_000, 501_000, 4_801_000))
	assert.Equal(t, LabelUTMMeters, d.Label)
	assert.Equal(t, units.Meters, d.Unit)
}

func TestFallbackInconclusive(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name string
		b    orb.Bound
	}{
		{"empty", orb.Bound{}},
		{"geographic degrees", bound(-70.5, 43.1, -70.4, 43.2)},
		{"local grid", bound(0, 0, 5000, 5000)},
		{"tiny span", bound(2_000_000, 300_000, 2_000_005, 300_005)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Resolve(nil, tt.b)
			assert.Empty(t, d.Label)
			assert.Equal(t, units.Unknown, d.Unit)
			// unknown converts as meters
			assert.Equal(t, 1.0, d.Unit.MetersPerUnit())
		})
	}
}

func TestFallbackOnlyFillsMissingParts(t *testing.T) {
	r := NewResolver()

	// label from metadata, unit from coordinates
	d := r.Resolve(records("GTCitationGeoKey: Custom Grid|"), bound(2_000_000, 300_000, 2_100_000, 310_000))
	assert.Equal(t, "Custom Grid", d.Label)
	assert.Equal(t, SourceMetadata, d.LabelSource)
	assert.Equal(t, units.USSurveyFeet, d.Unit)
	assert.Equal(t, SourceCoordinates, d.UnitSource)

	// metadata unit wins over coordinate unit
	d = r.Resolve(records("Linear_Meter"), bound(2_000_000, 300_000, 2_100_000, 310_000))
	assert.Equal(t, units.Meters, d.Unit)
	assert.Equal(t, LabelStatePlaneFeet, d.Label)
}

func TestCompoundLabelParts(t *testing.T) {
	label := "NAD83(2011) / Maine West (ftUS) + NAVD88 height (ftUS)"
	assert.Equal(t, "NAVD88 height (ftUS)", VerticalDatum(label))
	assert.Equal(t, "NAD83(2011) / Maine West (ftUS)", HorizontalName(label))
	assert.Empty(t, VerticalDatum("NAD83 / UTM zone 19N"))
}
