package crs

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/paulmach/orb"

	"github.com/wegman-software/lasstat-go/internal/units"
)

// ErrUndecodable is returned by records whose payload is not valid text
var ErrUndecodable = errors.New("metadata record is not valid UTF-8 text")

// Record is one free-form metadata record attached to a file header
type Record interface {
	Text() (string, error)
}

// TextRecord is a Record backed by raw bytes
type TextRecord []byte

// Text decodes the payload, trimming NUL padding
func (r TextRecord) Text() (string, error) {
	b := []byte(r)
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	if !utf8.Valid(b) {
		return "", ErrUndecodable
	}
	return string(b), nil
}

// Source tells where a detection came from
type Source string

const (
	SourceNone        Source = ""
	SourceMetadata    Source = "metadata"
	SourceCoordinates Source = "coordinates"
)

// Detection is the resolved coordinate reference system of a file
type Detection struct {
	Label string
	Unit  units.Unit
	EPSG  int

	LabelSource Source
	UnitSource  Source

	labelPriority int
	unitPriority  int
}

// setLabel replaces the label when the new one is at least as confident
func (d *Detection) setLabel(label string, priority int) {
	label = strings.TrimSpace(label)
	if label == "" || priority < d.labelPriority {
		return
	}
	d.Label = label
	d.labelPriority = priority
	d.LabelSource = SourceMetadata
}

// setUnit keeps the strongest unit marker seen so far
func (d *Detection) setUnit(u units.Unit, priority int) {
	if priority <= d.unitPriority {
		return
	}
	d.Unit = u
	d.unitPriority = priority
	d.UnitSource = SourceMetadata
}

// Rule is one (predicate, action) pair of the detection table
type Rule struct {
	Name  string
	Match func(text, lower string) bool
	Apply func(text, lower string, d *Detection)
}

// GeoTIFF marker for a user-defined system
const userDefinedCode = 32767

// Label priorities
const (
	priorityCitation = 1
	priorityWKT      = 2
)

// Unit priorities: a survey foot marker beats a generic foot, which beats a meter
const (
	priorityMeter  = 1
	priorityFoot   = 2
	prioritySurvey = 3
)

var (
	citationMarkers = []string{"GTCitationGeoKey:", "PCSCitationGeoKey:"}
	wktMarkers      = []string{"COMPD_CS[", "PROJCS[", "COMPOUNDCRS[", "PROJCRS["}
	knownDatums     = []string{"NAD83", "NAD27", "WGS 84", "WGS84", "ETRS89", "GDA94", "GDA2020"}

	quotedName    = regexp.MustCompile(`(?:COMPD_CS|PROJCS|COMPOUNDCRS|PROJCRS)\[\s*["']([^"']+)["']`)
	epsgAuthority = regexp.MustCompile(`(?:AUTHORITY|ID)\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	epsgGeoKey    = regexp.MustCompile(`ProjectedCSTypeGeoKey:\s*(?:EPSG\s*)?(\d+)`)
)

// DefaultRules is the ordered rule list evaluated for every record.
// Label extraction is case-sensitive, unit detection is case-insensitive.
var DefaultRules = []Rule{
	{
		Name: "wkt-system-name",
		Match: func(text, _ string) bool {
			return containsAny(text, wktMarkers) && containsAny(text, knownDatums)
		},
		Apply: func(text, _ string, d *Detection) {
			if m := quotedName.FindStringSubmatch(text); m != nil {
				d.setLabel(m[1], priorityWKT)
			}
		},
	},
	{
		Name: "citation",
		Match: func(text, _ string) bool {
			return containsAny(text, citationMarkers)
		},
		Apply: func(text, _ string, d *Detection) {
			for _, marker := range citationMarkers {
				if i := strings.Index(text, marker); i >= 0 {
					rest := text[i+len(marker):]
					if j := strings.IndexByte(rest, '|'); j >= 0 {
						rest = rest[:j]
					}
					if k := strings.IndexByte(rest, '\n'); k >= 0 {
						rest = rest[:k]
					}
					d.setLabel(rest, priorityCitation)
				}
			}
		},
	},
	{
		Name: "epsg-code",
		Match: func(text, _ string) bool {
			return strings.Contains(text, "EPSG") || strings.Contains(text, "ProjectedCSTypeGeoKey")
		},
		Apply: func(text, _ string, d *Detection) {
			if d.EPSG != 0 {
				return
			}
			if m := epsgGeoKey.FindStringSubmatch(text); m != nil {
				d.EPSG = parseEPSG(m[1])
				return
			}
			d.EPSG = epsgFromWKT(text)
		},
	},
	{
		Name: "unit-us-survey-foot",
		Match: func(_, lower string) bool {
			return strings.Contains(lower, "us survey foot") ||
				strings.Contains(lower, "linear_foot_us_survey") ||
				strings.Contains(lower, "ftus")
		},
		Apply: func(_, _ string, d *Detection) {
			d.setUnit(units.USSurveyFeet, prioritySurvey)
		},
	},
	{
		Name: "unit-foot",
		Match: func(_, lower string) bool {
			return strings.Contains(lower, "linear_foot") ||
				strings.Contains(lower, `unit["foot"`) ||
				strings.Contains(lower, "international foot")
		},
		Apply: func(_, _ string, d *Detection) {
			d.setUnit(units.Feet, priorityFoot)
		},
	},
	{
		Name: "unit-meter",
		Match: func(_, lower string) bool {
			if strings.Contains(lower, "linear_meter") {
				return true
			}
			return strings.Contains(lower, "unit[") &&
				(strings.Contains(lower, "metre") || strings.Contains(lower, "meter"))
		},
		Apply: func(_, _ string, d *Detection) {
			d.setUnit(units.Meters, priorityMeter)
		},
	},
}

// Resolver detects a file's CRS label and linear unit
type Resolver struct {
	Rules []Rule
	Zones []ZoneWindow
}

// NewResolver returns a resolver with the default rules and zone windows
func NewResolver() *Resolver {
	return &Resolver{
		Rules: DefaultRules,
		Zones: DefaultZones,
	}
}

// Resolve runs the rule table over every record in order, then falls back to
// the coordinate heuristic for whatever the metadata left unresolved.
// Records that cannot be decoded are skipped.
func (r *Resolver) Resolve(records []Record, bound orb.Bound) Detection {
	d := r.FromMetadata(records)
	if d.Label == "" || d.Unit == units.Unknown {
		fb := r.FromCoordinates(bound)
		if d.Label == "" && fb.Label != "" {
			d.Label = fb.Label
			d.LabelSource = SourceCoordinates
		}
		if d.Unit == units.Unknown && fb.Unit != units.Unknown {
			d.Unit = fb.Unit
			d.UnitSource = SourceCoordinates
		}
		if d.EPSG == 0 {
			d.EPSG = fb.EPSG
		}
	}
	return d
}

// FromMetadata applies the rule table only
func (r *Resolver) FromMetadata(records []Record) Detection {
	var d Detection
	for _, rec := range records {
		if rec == nil {
			continue
		}
		text, err := rec.Text()
		if err != nil || text == "" {
			continue
		}
		lower := strings.ToLower(text)
		for _, rule := range r.Rules {
			if rule.Match(text, lower) {
				rule.Apply(text, lower, &d)
			}
		}
	}
	return d
}

// epsgFromWKT returns the authority code of the projected system: the last
// EPSG authority inside the PROJCS block, or the last one in the text when
// there is no projected block
func epsgFromWKT(text string) int {
	block := text
	for _, marker := range []string{"PROJCS[", "PROJCRS["} {
		if i := strings.Index(text, marker); i >= 0 {
			block = bracketBlock(text[i:])
			break
		}
	}

	matches := epsgAuthority.FindAllStringSubmatch(block, -1)
	if len(matches) == 0 {
		return 0
	}
	return parseEPSG(matches[len(matches)-1][1])
}

// bracketBlock returns s up to the bracket closing its first '['
func bracketBlock(s string) string {
	depth := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case '[':
			if !quoted {
				depth++
			}
		case ']':
			if !quoted {
				depth--
				if depth == 0 {
					return s[:i+1]
				}
			}
		}
	}
	return s
}

func parseEPSG(s string) int {
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 || code == userDefinedCode {
		return 0
	}
	return code
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
