package customer

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/roteiro-cli/pkg/geocode"
)

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "public"."clientes"(.|\n)*"idx_public_clientes_geom"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), mock, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE EXTENSION`).WillReturnError(errors.New("permission denied"))

	err = Migrate(context.Background(), mock, "crm.lojas")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer: migrate crm.lojas")
}

func TestUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	customers := []Customer{
		{Code: "1", Name: "Assai Paralela", City: "Salvador", Region: "BA", Network: "ASSAI",
			Coordinate: geocode.Coordinate{Lat: -12.97, Lng: -38.45}, HasCoordinate: true},
		{Code: "2", Name: "Mercado"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_public_clientes"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_public_clientes"}, Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "public"."clientes" .* ON CONFLICT \("codigo"\) DO UPDATE SET "nome" = EXCLUDED."nome"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := Upsert(context.Background(), mock, "", customers)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_Empty(t *testing.T) {
	n, err := Upsert(context.Background(), nil, "", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err = Upsert(context.Background(), mock, "", []Customer{{Code: "1", Name: "X"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer: upsert")
}

func TestValues(t *testing.T) {
	row, err := Customer{Code: "9", Name: "Loja"}.values()
	require.NoError(t, err)
	require.Len(t, row, len(Columns))
	assert.Equal(t, "9", row[0])
	assert.Equal(t, "Loja", row[1])
	for i := 2; i < len(row); i++ {
		assert.Nil(t, row[i], Columns[i])
	}

	row, err = Customer{Code: "9", Name: "Loja", Coordinate: geocode.Coordinate{Lat: 1, Lng: 2}, HasCoordinate: true}.values()
	require.NoError(t, err)
	assert.Equal(t, 1.0, row[16])
	assert.Equal(t, 2.0, row[17])
	assert.NotEmpty(t, row[18])
}
