// Package dataset holds the in-memory row model shared by the geocoding and
// reconciliation pipelines: a header plus string cells, addressed by
// case-insensitive column name.
package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/roteiro-cli/pkg/geocode"
)

// Well-known column names.
const (
	ColAddress    = "endereco"
	ColComplement = "complemento"
	ColCity       = "municipio"
	ColRegion     = "uf"
	ColPostalCode = "cep"
	ColLatitude   = "latitude"
	ColLongitude  = "longitude"

	ColCode    = "codigo"
	ColStore   = "loja"
	ColName    = "nome"
	ColNetwork = "rede"
	ColArea    = "regiao"
)

// GeocodeColumns must be present before a geocoding run starts.
var GeocodeColumns = []string{ColAddress, ColCity, ColRegion}

// ErrMissingColumn is returned when a required column is absent. It is fatal
// to a run and is raised before any row is processed.
var ErrMissingColumn = eris.New("dataset: missing required column")

// Table is a header row plus data rows. Every row has exactly len(Header)
// cells. A Table literal is usable; the column index is built on first
// lookup.
type Table struct {
	Header []string
	Rows   [][]string

	index   map[string]int
	indexed int // len(Header) when index was built
}

// New builds a Table, padding or trimming rows to the header width.
func New(header []string, rows [][]string) *Table {
	t := &Table{Header: append([]string(nil), header...)}
	t.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		t.Rows = append(t.Rows, fit(r, len(header)))
	}
	t.reindex()
	return t
}

// FromRows treats the first row as the header.
func FromRows(rows [][]string) *Table {
	if len(rows) == 0 {
		return New(nil, nil)
	}
	return New(rows[0], rows[1:])
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := normalize(h)
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
	t.indexed = len(t.Header)
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Col returns the index of the named column, ignoring case and surrounding
// space. Duplicate headers resolve to the first occurrence.
func (t *Table) Col(name string) (int, bool) {
	if t.index == nil || t.indexed != len(t.Header) {
		t.reindex()
	}
	i, ok := t.index[normalize(name)]
	return i, ok
}

// ColAny returns the first of names present in the header.
func (t *Table) ColAny(names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := t.Col(n); ok {
			return i, true
		}
	}
	return -1, false
}

// HasColumn reports whether name is present.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Col(name)
	return ok
}

// EnsureColumn returns the index of name, appending an empty column when it
// is missing.
func (t *Table) EnsureColumn(name string) int {
	if i, ok := t.Col(name); ok {
		return i
	}
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
	t.reindex()
	return len(t.Header) - 1
}

// RequireColumns fails with ErrMissingColumn naming every absent column.
func (t *Table) RequireColumns(names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrMissingColumn, "%s", strings.Join(missing, ", "))
	}
	return nil
}

// Get returns the trimmed cell at (row, column), or "" when the column is
// absent.
func (t *Table) Get(row int, name string) string {
	i, ok := t.Col(name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][i])
}

// Set writes a cell, creating the column if needed.
func (t *Table) Set(row int, name, value string) {
	i := t.EnsureColumn(name)
	t.Rows[row][i] = value
}

// Truncate keeps the first n rows. n <= 0 is a no-op.
func (t *Table) Truncate(n int) {
	if n > 0 && n < len(t.Rows) {
		t.Rows = t.Rows[:n]
	}
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	return New(t.Header, t.Rows)
}

// Address builds the geocoder input for a row.
func (t *Table) Address(row int) geocode.Address {
	return geocode.Address{
		ID:         t.Get(row, ColCode),
		Street:     t.Get(row, ColAddress),
		Complement: t.Get(row, ColComplement),
		City:       t.Get(row, ColCity),
		Region:     t.Get(row, ColRegion),
		PostalCode: t.Get(row, ColPostalCode),
	}
}

// Coordinate returns the row's coordinate pair. ok is true only when both
// cells parse as finite numbers.
func (t *Table) Coordinate(row int) (geocode.Coordinate, bool) {
	lat, latOK := ParseFloat(t.Get(row, ColLatitude))
	lng, lngOK := ParseFloat(t.Get(row, ColLongitude))
	if !latOK || !lngOK {
		return geocode.Coordinate{}, false
	}
	return geocode.Coordinate{Lat: lat, Lng: lng}, true
}

// SetCoordinate writes both cells.
func (t *Table) SetCoordinate(row int, c geocode.Coordinate) {
	t.Set(row, ColLatitude, FormatFloat(c.Lat))
	t.Set(row, ColLongitude, FormatFloat(c.Lng))
}

// ClearCoordinate blanks both cells so a half-written pair never survives.
func (t *Table) ClearCoordinate(row int) {
	t.Set(row, ColLatitude, "")
	t.Set(row, ColLongitude, "")
}

// ParseFloat accepts dot or comma decimals and rejects NaN and infinities.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatFloat renders v with the shortest exact representation.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
