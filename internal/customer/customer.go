// Package customer maps enriched datasets to rows of the clientes table and
// loads them into Postgres.
package customer

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/roteiro-cli/internal/dataset"
	"github.com/sells-group/roteiro-cli/pkg/geocode"
)

// SRID of stored point geometries.
const SRID = 4326

// Customer is one row of the clientes table.
type Customer struct {
	Code              string
	Name              string
	Address           string
	Complement        string
	District          string
	City              string
	Region            string
	PostalCode        string
	Country           string
	TaxID             string
	StateRegistration string
	Blocked           string
	CityCode          string
	Store             string
	Seller            string
	Network           string

	Coordinate    geocode.Coordinate
	HasCoordinate bool
}

// Header aliases per field, matched case-insensitively. The first non-empty
// cell wins.
var (
	codeCols       = []string{"codigo"}
	nameCols       = []string{"n fantasia", "nome_fantasia", dataset.ColName}
	addressCols    = []string{dataset.ColAddress}
	complementCols = []string{dataset.ColComplement}
	districtCols   = []string{"bairro"}
	cityCols       = []string{dataset.ColCity, "cidade"}
	regionCols     = []string{"estado", dataset.ColRegion}
	postalCols     = []string{dataset.ColPostalCode}
	countryCols    = []string{"pais"}
	taxIDCols      = []string{"cnpj/cpf", "cnpj_cpf"}
	stateRegCols   = []string{"ins. estad.", "ins_estadual"}
	blockedCols    = []string{"bloqueado"}
	cityCodeCols   = []string{"cd.municipio", "codigo_municipio"}
	storeCols      = []string{dataset.ColStore}
	sellerCols     = []string{"vendedores", "vendedor"}
	networkCols    = []string{dataset.ColNetwork}
)

// Stats summarizes a FromTable conversion.
type Stats struct {
	Rows       int
	Loaded     int
	NoName     int
	Inferred   int
	Duplicates int
}

// FromTable converts dataset rows to customers. Rows without a name are
// skipped. An empty network is inferred from the name. When a code repeats,
// the later row replaces the earlier one in place.
func FromTable(t *dataset.Table) ([]Customer, Stats) {
	stats := Stats{Rows: t.Len()}
	out := make([]Customer, 0, t.Len())
	byCode := make(map[string]int)

	for i := range t.Rows {
		get := func(names []string) string { return first(t, i, names) }

		c := Customer{
			Code:              get(codeCols),
			Name:              get(nameCols),
			Address:           get(addressCols),
			Complement:        get(complementCols),
			District:          get(districtCols),
			City:              get(cityCols),
			Region:            get(regionCols),
			PostalCode:        get(postalCols),
			Country:           get(countryCols),
			TaxID:             get(taxIDCols),
			StateRegistration: get(stateRegCols),
			Blocked:           get(blockedCols),
			CityCode:          get(cityCodeCols),
			Store:             get(storeCols),
			Seller:            get(sellerCols),
			Network:           get(networkCols),
		}
		if c.Name == "" {
			stats.NoName++
			continue
		}
		if c.Network == "" {
			if n, ok := InferNetwork(c.Name); ok {
				c.Network = n
				stats.Inferred++
			}
		}
		if coord, ok := t.Coordinate(i); ok && coord.Valid() {
			c.Coordinate = coord
			c.HasCoordinate = true
		}

		if c.Code != "" {
			if j, dup := byCode[c.Code]; dup {
				out[j] = c
				stats.Duplicates++
				continue
			}
			byCode[c.Code] = len(out)
		}
		out = append(out, c)
	}

	stats.Loaded = len(out)
	if stats.Duplicates > 0 {
		zap.L().Warn("customer: duplicate codes, later rows kept", zap.Int("duplicates", stats.Duplicates))
	}
	return out, stats
}

func first(t *dataset.Table, row int, names []string) string {
	for _, n := range names {
		if v := t.Get(row, n); v != "" {
			return v
		}
	}
	return ""
}

// Point returns the EWKB point geometry, or nil without a coordinate.
func (c Customer) Point() ([]byte, error) {
	if !c.HasCoordinate {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{c.Coordinate.Lng, c.Coordinate.Lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "customer: encode point for %q", c.Code)
	}
	return data, nil
}
