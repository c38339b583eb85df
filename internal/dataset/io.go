package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/roteiro-cli/internal/fetcher"
)

// DefaultDelimiter is the separator used by the customer spreadsheets.
const DefaultDelimiter = ';'

// Options controls how delimited files are read and written.
type Options struct {
	Delimiter rune   // default ';'
	Encoding  string // input charset; output is always UTF-8
	Comment   rune   // comment marker for delimited input (0 = none)
	Sheet     string // workbook sheet name; default first sheet
	SkipRows  int    // leading rows above the header
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return DefaultDelimiter
	}
	return o.Delimiter
}

// DelimiterRune parses a config value such as ";" or "\t".
func DelimiterRune(s string) (rune, error) {
	switch s {
	case "":
		return DefaultDelimiter, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\n' || r[0] == '\r' {
		return 0, eris.Errorf("dataset: invalid delimiter %q", s)
	}
	return r[0], nil
}

// CommentRune parses a config value; "" disables comments.
func CommentRune(s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\n' || r[0] == '\r' {
		return 0, eris.Errorf("dataset: invalid comment marker %q", s)
	}
	return r[0], nil
}

// IsXLSX reports whether path names a spreadsheet workbook.
func IsXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// Read parses delimited text with a header row.
func Read(ctx context.Context, r io.Reader, opts Options) (*Table, error) {
	rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{
		Delimiter:  opts.delimiter(),
		Encoding:   opts.Encoding,
		Comment:    opts.Comment,
		SkipRows:   opts.SkipRows,
		LazyQuotes: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv")
	}
	return FromRows(rows), nil
}

// ReadFile opens a .csv or .xlsx file from local disk.
func ReadFile(ctx context.Context, path string, opts Options) (*Table, error) {
	if IsXLSX(path) {
		rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{
			SheetName: opts.Sheet,
			SkipRows:  opts.SkipRows,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: read %s", path)
		}
		return FromRows(rows), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Read(ctx, f, opts)
}

// Write renders the table as delimited text with a header row.
func Write(w io.Writer, t *Table, opts Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = opts.delimiter()
	if err := cw.Write(t.Header); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return eris.Wrap(err, "dataset: write rows")
	}
	return nil
}

// Encode returns the table as delimited text.
func Encode(t *Table, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, t, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
