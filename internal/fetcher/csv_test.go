package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerCSV = "codigo;endereco;municipio;uf\n" +
	"10;Rua Chile, 22;Salvador;BA\n" +
	"11;Av. Paulista, 1000;São Paulo;SP\n"

func drain(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_CustomerFile(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(customerCSV), CSVOptions{Delimiter: ';'})
	rows, err := drain(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"codigo", "endereco", "municipio", "uf"}, rows[0])
	assert.Equal(t, []string{"10", "Rua Chile, 22", "Salvador", "BA"}, rows[1])
	assert.Equal(t, []string{"11", "Av. Paulista, 1000", "São Paulo", "SP"}, rows[2])
}

func TestStreamCSV_DefaultCommaKeepsQuotedAddress(t *testing.T) {
	input := "codigo,endereco\n10,\"Rua Chile, 22\"\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"10", "Rua Chile, 22"}, rows[1])
}

func TestStreamCSV_Empty(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_LazyQuotesInStoreName(t *testing.T) {
	input := "codigo;loja\n10;Mercado \"Bom\" Preco\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';', LazyQuotes: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "10", rows[1][0])
}

func TestStreamCSV_CommentLinesIgnored(t *testing.T) {
	input := "# export 2024-03\ncodigo;uf\n10;BA\n# fim\n11;SP\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';', Comment: '#'})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"codigo", "uf"}, rows[0])
	assert.Equal(t, []string{"11", "SP"}, rows[2])
}

func TestStreamCSV_SkipRowsBeforeHeader(t *testing.T) {
	input := "Relatorio de clientes;\n;\ncodigo;uf\n10;BA\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';', SkipRows: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"codigo", "uf"}, rows[0])
	assert.Equal(t, []string{"10", "BA"}, rows[1])
}

func TestStreamCSV_CancelledContext(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("codigo;uf\n")
	for range 10000 {
		sb.WriteString("10;BA\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{Delimiter: ';'})

	count := 0
	for range rowCh {
		count++
		if count >= 5 {
			cancel()
			break
		}
	}
	for range rowCh {
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context cancelled")
	}
}

func TestReadCSV_Windows1252(t *testing.T) {
	// 0xE3 is "ã" in windows-1252.
	input := "municipio\nS\xe3o Paulo\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Encoding: "windows-1252"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "São Paulo", rows[1][0])
}

func TestReadCSV_StripsBOM(t *testing.T) {
	input := "\xef\xbb\xbfcodigo;rede\n10;ASSAI\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"codigo", "rede"}, rows[0])
}

func TestReadCSV_UnknownCharset(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a\n"), CSVOptions{Encoding: "klingon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported charset")
}
