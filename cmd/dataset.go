package main

import (
	"bytes"
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/roteiro-cli/internal/config"
	"github.com/sells-group/roteiro-cli/internal/dataset"
	"github.com/sells-group/roteiro-cli/internal/storage"
)

// datasetOptions builds read options from the enrich config section.
func datasetOptions(c *config.Config) (dataset.Options, error) {
	delim, err := dataset.DelimiterRune(c.Enrich.Delimiter)
	if err != nil {
		return dataset.Options{}, err
	}
	comment, err := dataset.CommentRune(c.Enrich.Comment)
	if err != nil {
		return dataset.Options{}, err
	}
	return dataset.Options{
		Delimiter: delim,
		Encoding:  c.Enrich.Encoding,
		Comment:   comment,
		Sheet:     c.Enrich.Sheet,
		SkipRows:  c.Enrich.SkipRows,
	}, nil
}

// outputOptions drops the input charset; outputs are always UTF-8.
func outputOptions(opts dataset.Options) dataset.Options {
	return dataset.Options{Delimiter: opts.Delimiter}
}

// readDataset loads a local .csv/.xlsx path or a CSV object at a bucket URL.
func readDataset(ctx context.Context, location string, opts dataset.Options) (*dataset.Table, error) {
	if location == "" {
		return nil, eris.New("input location is required")
	}
	if !strings.Contains(location, "://") {
		return dataset.ReadFile(ctx, location, opts)
	}

	store, key, err := storage.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer store.Close() //nolint:errcheck
	return readObject(ctx, store, key, opts)
}

func readObject(ctx context.Context, store *storage.Store, key string, opts dataset.Options) (*dataset.Table, error) {
	data, err := store.ReadAll(ctx, key)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", key)
	}
	return dataset.Read(ctx, bytes.NewReader(data), opts)
}

// writeDataset replaces the object at location with t.
func writeDataset(ctx context.Context, location string, t *dataset.Table, opts dataset.Options) error {
	store, key, err := storage.Open(ctx, location)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	data, err := dataset.Encode(t, outputOptions(opts))
	if err != nil {
		return err
	}
	return store.WriteAll(ctx, key, data, "text/csv")
}
