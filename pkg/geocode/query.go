package geocode

import "strings"

// Tier is one ranked strategy in the resolver's fallback chain.
type Tier string

const (
	TierFull       Tier = "full"
	TierCityRegion Tier = "city_region"
	TierPostal     Tier = "postal"
)

// Tiers lists the resolver tiers from most to least specific.
var Tiers = []Tier{TierFull, TierCityRegion, TierPostal}

// Query is an ordered list of non-empty components submitted to a Provider.
type Query struct {
	Tier       Tier
	Components []string

	// City and Region are locality hints a provider may use to loosen the
	// query on its own. Empty when the tier carries no locality.
	City   string
	Region string
}

// NewQuery trims the given parts and drops empty ones. ok is false when no
// component survives; callers must skip the tier instead of submitting it.
func NewQuery(tier Tier, parts ...string) (q Query, ok bool) {
	q.Tier = tier
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			q.Components = append(q.Components, p)
		}
	}
	return q, len(q.Components) > 0
}

// Text renders the query as free text: components joined by ", ".
func (q Query) Text() string {
	return strings.Join(q.Components, ", ")
}

// LocalityText renders the city/region-only elaboration of the query, or ""
// when the query carries no locality hints.
func (q Query) LocalityText(country string) string {
	loc, ok := NewQuery(q.Tier, q.City, q.Region)
	if !ok {
		return ""
	}
	if country = strings.TrimSpace(country); country != "" {
		loc.Components = append(loc.Components, country)
	}
	return loc.Text()
}

// BuildQuery assembles the query for one tier. ok is false when the tier
// must be skipped for this address.
//
//	full:        street+complement, city, region, postal code
//	city_region: city, region, country
//	postal:      postal code, country (skipped without a postal code)
//
// The full tier is also skipped when the address has neither a street line
// nor a postal code, since it would only repeat the city_region query.
func BuildQuery(tier Tier, addr Address, country string) (Query, bool) {
	switch tier {
	case TierFull:
		street := addr.StreetLine()
		postal := strings.TrimSpace(addr.PostalCode)
		if street == "" && postal == "" {
			return Query{Tier: tier}, false
		}
		q, ok := NewQuery(tier, street, addr.City, addr.Region, postal)
		q.City = strings.TrimSpace(addr.City)
		q.Region = strings.TrimSpace(addr.Region)
		return q, ok
	case TierCityRegion:
		if strings.TrimSpace(addr.City) == "" && strings.TrimSpace(addr.Region) == "" {
			return Query{Tier: tier}, false
		}
		return NewQuery(tier, addr.City, addr.Region, country)
	case TierPostal:
		if strings.TrimSpace(addr.PostalCode) == "" {
			return Query{Tier: tier}, false
		}
		return NewQuery(tier, addr.PostalCode, country)
	default:
		return Query{Tier: tier}, false
	}
}
