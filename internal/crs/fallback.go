package crs

import (
	"regexp"
	"strings"

	"github.com/paulmach/orb"

	"github.com/wegman-software/lasstat-go/internal/units"
)

// Labels produced by the coordinate heuristic
const (
	LabelStatePlaneFeet = "State Plane (US survey feet)"
	LabelUTMMeters      = "UTM (meters)"
)

// Coordinate magnitude thresholds
const (
	statePlaneMinX = 1_000_000
	statePlaneMinY = 100_000
	utmMinX        = 100_000
	utmMaxX        = 1_000_000
	utmMinY        = 100_000
	minSpan        = 10
)

// ZoneWindow maps a narrow coordinate window to a specific projected system
type ZoneWindow struct {
	Label      string
	EPSG       int
	Unit       units.Unit
	MinX, MaxX float64
	MinY, MaxY float64
}

// Contains reports whether the whole bound lies inside the window
func (z ZoneWindow) Contains(b orb.Bound) bool {
	return b.Min[0] >= z.MinX && b.Max[0] <= z.MaxX &&
		b.Min[1] >= z.MinY && b.Max[1] <= z.MaxY
}

// DefaultZones holds regional windows checked before the generic rules.
// The Maine West entry is a placeholder tuned to sample data, not a general rule.
var DefaultZones = []ZoneWindow{
	{
		Label: "NAD83(2011) / Maine West (ftUS)",
		EPSG:  6486,
		Unit:  units.USSurveyFeet,
		MinX:  2_600_000,
		MaxX:  3_300_000,
		MinY:  100_000,
		MaxY:  1_200_000,
	},
}

// FromCoordinates classifies a bound by coordinate magnitude alone
func (r *Resolver) FromCoordinates(b orb.Bound) Detection {
	var d Detection
	if b.IsEmpty() {
		return d
	}

	spanX := b.Max[0] - b.Min[0]
	spanY := b.Max[1] - b.Min[1]
	if spanX < minSpan || spanY < minSpan {
		return d
	}

	if b.Min[0] > statePlaneMinX && b.Max[0] > statePlaneMinX &&
		b.Min[1] > statePlaneMinY && b.Max[1] > statePlaneMinY {
		for _, z := range r.Zones {
			if z.Contains(b) {
				d.Label, d.Unit, d.EPSG = z.Label, z.Unit, z.EPSG
				d.LabelSource, d.UnitSource = SourceCoordinates, SourceCoordinates
				return d
			}
		}
		d.Label, d.Unit = LabelStatePlaneFeet, units.USSurveyFeet
		d.LabelSource, d.UnitSource = SourceCoordinates, SourceCoordinates
		return d
	}

	if b.Min[0] > utmMinX && b.Max[0] < utmMaxX &&
		b.Min[1] > utmMinY && b.Max[1] > utmMinY {
		d.Label, d.Unit = LabelUTMMeters, units.Meters
		d.LabelSource, d.UnitSource = SourceCoordinates, SourceCoordinates
	}

	return d
}

var verticalDatums = []*regexp.Regexp{
	regexp.MustCompile(`(?i)NAVD88[^"|]*`),
	regexp.MustCompile(`(?i)NGVD29[^"|]*`),
	regexp.MustCompile(`(?i)EGM2008[^"|]*`),
	regexp.MustCompile(`(?i)EGM96[^"|]*`),
}

// VerticalDatum extracts a vertical datum name such as "NAVD88 height (ftUS)"
// from a compound system label, or "" when none is present
func VerticalDatum(label string) string {
	for _, re := range verticalDatums {
		if m := re.FindString(label); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// HorizontalName returns the horizontal part of a compound label
// ("NAD83(2011) / Maine West (ftUS) + NAVD88 height (ftUS)" -> "NAD83(2011) / Maine West (ftUS)")
func HorizontalName(label string) string {
	if i := strings.Index(label, " + "); i >= 0 {
		return strings.TrimSpace(label[:i])
	}
	return strings.TrimSpace(label)
}
