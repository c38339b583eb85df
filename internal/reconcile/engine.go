package reconcile

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/roteiro-cli/internal/dataset"
)

// SourceColumns are required on the source snapshot.
var SourceColumns = []string{dataset.ColCode, dataset.ColNetwork, dataset.ColArea}

// DestColumns are required on the destination snapshot.
var DestColumns = []string{dataset.ColCode}

// Counters tallies destination rows by the tier that matched them.
type Counters struct {
	CodeStore int
	CodeFirst int
	Name      int
	Unmatched int
}

// Total is the number of destination rows counted.
func (c Counters) Total() int {
	return c.CodeStore + c.CodeFirst + c.Name + c.Unmatched
}

// Matched is the number of rows that received an enrichment.
func (c Counters) Matched() int {
	return c.CodeStore + c.CodeFirst + c.Name
}

func (c *Counters) add(t Tier) {
	switch t {
	case TierCodeStore:
		c.CodeStore++
	case TierCodeFirst:
		c.CodeFirst++
	case TierName:
		c.Name++
	default:
		c.Unmatched++
	}
}

// Match is the outcome for one destination record. An unmatched record
// carries empty fields and TierNone.
type Match struct {
	Record     Record
	Enrichment Enrichment
	Tier       Tier
}

// Reconcile looks up every destination record. Unmatched records are a
// normal outcome, not an error.
func Reconcile(dest []Record, ix *Index) ([]Match, Counters) {
	out := make([]Match, len(dest))
	var c Counters
	for i, d := range dest {
		m := Match{Record: d}
		if e, tier, ok := ix.Lookup(d); ok {
			m.Enrichment = e
			m.Tier = tier
		}
		c.add(m.Tier)
		out[i] = m
	}
	return out, c
}

// RecordsFromTable reads reconciliation records from a snapshot. store,
// name, and the enrichment columns are optional here; callers validate the
// required set with RequireColumns first.
func RecordsFromTable(t *dataset.Table) []Record {
	out := make([]Record, t.Len())
	for i := range t.Rows {
		out[i] = Record{
			Code:    t.Get(i, dataset.ColCode),
			Store:   t.Get(i, dataset.ColStore),
			Name:    t.Get(i, dataset.ColName),
			Network: t.Get(i, dataset.ColNetwork),
			Region:  t.Get(i, dataset.ColArea),
		}
	}
	return out
}

// ApplyOptions controls how results are written back to a table.
type ApplyOptions struct {
	// ProvenanceColumn, when set, receives the matching tier for each row
	// ("" for unmatched).
	ProvenanceColumn string
}

// ApplyTable reconciles the destination snapshot in place. Every row's
// network and region cells are reset to empty before lookup, so stale values
// never survive an unmatched row.
func ApplyTable(dest *dataset.Table, ix *Index, opts ApplyOptions) ([]Match, Counters, error) {
	if err := dest.RequireColumns(DestColumns...); err != nil {
		return nil, Counters{}, err
	}

	records := RecordsFromTable(dest)
	netCol := dest.EnsureColumn(dataset.ColNetwork)
	areaCol := dest.EnsureColumn(dataset.ColArea)
	provCol := -1
	if opts.ProvenanceColumn != "" {
		provCol = dest.EnsureColumn(opts.ProvenanceColumn)
	}

	matches, c := Reconcile(records, ix)
	for i, m := range matches {
		row := dest.Rows[i]
		row[netCol] = m.Enrichment.Network
		row[areaCol] = m.Enrichment.Region
		if provCol >= 0 {
			row[provCol] = string(m.Tier)
		}
	}

	zap.L().Info("reconcile: applied",
		zap.Int("rows", c.Total()),
		zap.Int("code_store", c.CodeStore),
		zap.Int("code_first", c.CodeFirst),
		zap.Int("name", c.Name),
		zap.Int("unmatched", c.Unmatched),
	)
	return matches, c, nil
}

// IndexTable validates the source snapshot and builds its index.
func IndexTable(src *dataset.Table, opts ...IndexOption) (*Index, error) {
	if err := src.RequireColumns(SourceColumns...); err != nil {
		return nil, err
	}
	ix := Build(RecordsFromTable(src), opts...)
	if ix.NameCollisions() > 0 {
		zap.L().Warn("reconcile: duplicate names in source",
			zap.Int("collisions", ix.NameCollisions()),
			zap.String("policy", string(ix.policy)),
		)
	}
	return ix, nil
}

// NetworkCount is one row of the network distribution report.
type NetworkCount struct {
	Network string
	Rows    int
}

// NetworkDistribution counts matched rows per network, most frequent first
// and ties by name. Unmatched rows and empty networks are left out.
func NetworkDistribution(matches []Match) []NetworkCount {
	counts := make(map[string]int)
	for _, m := range matches {
		if m.Tier != TierNone && m.Enrichment.Network != "" {
			counts[m.Enrichment.Network]++
		}
	}
	out := make([]NetworkCount, 0, len(counts))
	for n, c := range counts {
		out = append(out, NetworkCount{Network: n, Rows: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rows != out[j].Rows {
			return out[i].Rows > out[j].Rows
		}
		return out[i].Network < out[j].Network
	})
	return out
}
