// Package reconcile copies enrichment columns (network and region) from a
// source snapshot onto a destination snapshot using tiered key matching.
package reconcile

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Tier names the matching strategy that produced an enrichment.
type Tier string

const (
	TierCodeStore Tier = "code+store"
	TierCodeFirst Tier = "code-first"
	TierName      Tier = "name"
	TierNone      Tier = ""
)

// NamePolicy decides which record wins when two source records share a
// display name.
type NamePolicy string

const (
	// KeepLast lets later records overwrite earlier ones.
	KeepLast NamePolicy = "keep-last"
	// KeepFirst keeps the first record seen for a name.
	KeepFirst NamePolicy = "keep-first"
)

// ParseNamePolicy validates a configured policy. Empty means KeepLast.
func ParseNamePolicy(s string) (NamePolicy, error) {
	switch NamePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeepLast:
		return KeepLast, nil
	case KeepFirst:
		return KeepFirst, nil
	default:
		return "", eris.Errorf("reconcile: unknown name policy %q (want keep-last or keep-first)", s)
	}
}

// Record is one row keyed by code, optionally qualified by store and name.
type Record struct {
	Code    string
	Store   string
	Name    string
	Network string
	Region  string
}

// Enrichment is the pair of fields copied onto a destination row.
type Enrichment struct {
	Network string
	Region  string
}

func (r Record) enrichment() Enrichment {
	return Enrichment{Network: r.Network, Region: r.Region}
}

// Index answers lookups against a source snapshot. Keys are compared after
// trimming surrounding space; comparison is otherwise exact.
type Index struct {
	byCode     map[string][]Record
	byName     map[string]Record
	policy     NamePolicy
	collisions int
}

// IndexOption configures Build.
type IndexOption func(*Index)

// WithNamePolicy overrides the default KeepLast policy.
func WithNamePolicy(p NamePolicy) IndexOption {
	return func(ix *Index) {
		if p != "" {
			ix.policy = p
		}
	}
}

// Build indexes records. Every record with a code is appended to that
// code's sequence in encounter order; every record with a name is placed
// in the name map per the NamePolicy.
func Build(records []Record, opts ...IndexOption) *Index {
	ix := &Index{
		byCode: make(map[string][]Record),
		byName: make(map[string]Record),
		policy: KeepLast,
	}
	for _, opt := range opts {
		opt(ix)
	}

	for _, r := range records {
		r = r.trimmed()
		if r.Code != "" {
			ix.byCode[r.Code] = append(ix.byCode[r.Code], r)
		}
		if r.Name == "" {
			continue
		}
		if _, dup := ix.byName[r.Name]; dup {
			ix.collisions++
			if ix.policy == KeepFirst {
				continue
			}
		}
		ix.byName[r.Name] = r
	}
	return ix
}

func (r Record) trimmed() Record {
	return Record{
		Code:    strings.TrimSpace(r.Code),
		Store:   strings.TrimSpace(r.Store),
		Name:    strings.TrimSpace(r.Name),
		Network: strings.TrimSpace(r.Network),
		Region:  strings.TrimSpace(r.Region),
	}
}

// Codes returns the number of distinct codes indexed.
func (ix *Index) Codes() int { return len(ix.byCode) }

// Names returns the number of distinct names indexed.
func (ix *Index) Names() int { return len(ix.byName) }

// NameCollisions counts records whose name was already indexed.
func (ix *Index) NameCollisions() int { return ix.collisions }

// Lookup applies the tiers in order: code+store, code-first, name. ok is
// false when nothing matched.
func (ix *Index) Lookup(dest Record) (e Enrichment, tier Tier, ok bool) {
	dest = dest.trimmed()

	if entries := ix.byCode[dest.Code]; dest.Code != "" && len(entries) > 0 {
		if dest.Store != "" {
			for _, r := range entries {
				if r.Store == dest.Store {
					return r.enrichment(), TierCodeStore, true
				}
			}
		}
		return entries[0].enrichment(), TierCodeFirst, true
	}

	if dest.Name != "" {
		if r, found := ix.byName[dest.Name]; found {
			return r.enrichment(), TierName, true
		}
	}

	return Enrichment{}, TierNone, false
}
