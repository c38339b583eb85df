package customer

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roteiro-cli/internal/db"
)

// DefaultTable is the target table when none is configured.
const DefaultTable = "public.clientes"

// Columns in COPY order.
var Columns = []string{
	"codigo", "nome", "endereco", "complemento", "bairro", "cidade", "uf", "cep", "pais",
	"cnpj_cpf", "ins_estadual", "bloqueado", "codigo_municipio", "loja", "vendedor",
	"rede", "latitude", "longitude", "geom",
}

const migrationTemplate = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS %[1]s (
	id               BIGSERIAL PRIMARY KEY,
	codigo           TEXT UNIQUE,
	nome             TEXT NOT NULL,
	endereco         TEXT,
	complemento      TEXT,
	bairro           TEXT,
	cidade           TEXT,
	uf               TEXT,
	cep              TEXT,
	pais             TEXT,
	cnpj_cpf         TEXT,
	ins_estadual     TEXT,
	bloqueado        TEXT,
	codigo_municipio TEXT,
	loja             TEXT,
	vendedor         TEXT,
	rede             TEXT,
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	geom             geometry(Point, 4326),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s USING GIST (geom);
`

// Migrate creates the target table and its spatial index if missing.
func Migrate(ctx context.Context, pool db.Pool, table string) error {
	if table == "" {
		table = DefaultTable
	}
	sql := fmt.Sprintf(migrationTemplate, db.QuoteTable(table), indexName(table))
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "customer: migrate %s", table)
	}
	return nil
}

func indexName(table string) string {
	return pgx.Identifier{"idx_" + strings.ReplaceAll(table, ".", "_") + "_geom"}.Sanitize()
}

// Upsert writes customers into table, updating rows whose codigo already
// exists. Returns the number of rows affected.
func Upsert(ctx context.Context, pool db.Pool, table string, customers []Customer) (int64, error) {
	if table == "" {
		table = DefaultTable
	}
	rows := make([][]any, 0, len(customers))
	for _, c := range customers {
		row, err := c.values()
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        table,
		Columns:      Columns,
		ConflictKeys: []string{"codigo"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "customer: upsert")
	}

	zap.L().Info("customer: upserted",
		zap.String("table", table),
		zap.Int("rows", len(rows)),
		zap.Int64("affected", n),
	)
	return n, nil
}

// values renders c in Columns order. Blank text becomes NULL.
func (c Customer) values() ([]any, error) {
	point, err := c.Point()
	if err != nil {
		return nil, err
	}
	var lat, lng, geomVal any
	if c.HasCoordinate {
		lat, lng, geomVal = c.Coordinate.Lat, c.Coordinate.Lng, point
	}
	return []any{
		nullable(c.Code), c.Name, nullable(c.Address), nullable(c.Complement),
		nullable(c.District), nullable(c.City), nullable(c.Region), nullable(c.PostalCode),
		nullable(c.Country), nullable(c.TaxID), nullable(c.StateRegistration),
		nullable(c.Blocked), nullable(c.CityCode), nullable(c.Store), nullable(c.Seller),
		nullable(c.Network), lat, lng, geomVal,
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
