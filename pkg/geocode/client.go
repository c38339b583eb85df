// Package geocode resolves postal addresses to coordinates through a tiered
// fallback chain over a single geocoding provider (Nominatim or Google).
package geocode

import (
	"math"
	"strings"
)

// Address is the input side of an address record.
type Address struct {
	ID         string // Optional identifier for log correlation
	Street     string
	Complement string
	City       string
	Region     string // state code, e.g. "BA"
	PostalCode string
}

// StreetLine joins street and complement the way they are written on an
// envelope: "Rua X 123, Loja 2". Either part may be empty.
func (a Address) StreetLine() string {
	street := strings.TrimSpace(a.Street)
	comp := strings.TrimSpace(a.Complement)
	switch {
	case street == "":
		return comp
	case comp == "":
		return street
	default:
		return street + ", " + comp
	}
}

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Valid reports whether both values are finite and inside WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Reason explains why a resolution attempt did not produce a coordinate.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoMatch        Reason = "no-match"
	ReasonTransportError Reason = "transport-error"
	ReasonRateLimited    Reason = "rate-limited"
)

// Attempt records one tier tried by the Resolver.
type Attempt struct {
	Tier   Tier
	Query  string
	Reason Reason // ReasonNone when the attempt matched
	Cached bool
}

// Result holds the geocoding output for an address or a single query.
type Result struct {
	Coordinate Coordinate
	Matched    bool
	Source     string // provider name, e.g. "nominatim" or "google"
	Quality    string // "rooftop", "range", "centroid", "approximate"
	Tier       Tier   // tier that matched, or the last tier attempted
	Reason     Reason
	Attempts   []Attempt
}

func noMatch(source string) *Result {
	return &Result{Matched: false, Source: source, Reason: ReasonNoMatch}
}
