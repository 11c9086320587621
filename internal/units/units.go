package units

import "fmt"

// Unit is the linear unit of a file's horizontal coordinates
type Unit int

const (
	Unknown Unit = iota
	Meters
	Feet
	USSurveyFeet
)

// Conversion constants
const (
	MetersPerFoot         = 0.3048       // International foot
	MetersPerUSSurveyFoot = 0.3048006096 // 1200/3937 m
	SquareMetersPerAcre   = 4046.8564224
)

// String returns the canonical name used in exports and logs
func (u Unit) String() string {
	switch u {
	case Meters:
		return "meters"
	case Feet:
		return "feet"
	case USSurveyFeet:
		return "us_survey_feet"
	default:
		return "unknown"
	}
}

// Parse converts a canonical unit name back to a Unit
func Parse(s string) (Unit, error) {
	switch s {
	case "meters":
		return Meters, nil
	case "feet":
		return Feet, nil
	case "us_survey_feet":
		return USSurveyFeet, nil
	case "unknown", "":
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("unknown linear unit %q", s)
	}
}

// MetersPerUnit returns the length of one unit in meters.
// Unknown is treated as meters.
func (u Unit) MetersPerUnit() float64 {
	switch u {
	case Feet:
		return MetersPerFoot
	case USSurveyFeet:
		return MetersPerUSSurveyFoot
	default:
		return 1.0
	}
}

// ToSquareMeters converts an area expressed in squared units to m²
func (u Unit) ToSquareMeters(area float64) float64 {
	f := u.MetersPerUnit()
	return area * f * f
}

// FromSquareMeters converts an area in m² back to squared units
func (u Unit) FromSquareMeters(sqm float64) float64 {
	f := u.MetersPerUnit()
	return sqm / (f * f)
}

// SquareMetersToAcres converts m² to acres
func SquareMetersToAcres(sqm float64) float64 {
	return sqm / SquareMetersPerAcre
}
