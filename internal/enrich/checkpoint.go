package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/roteiro-cli/internal/dataset"
	"github.com/sells-group/roteiro-cli/internal/storage"
)

// Checkpoint is the resume manifest stored next to the output dataset. The
// dataset snapshot written with it holds the coordinates; the manifest holds
// the position.
type Checkpoint struct {
	RunID     string    `yaml:"run_id"`
	Input     string    `yaml:"input"`
	Provider  string    `yaml:"provider,omitempty"`
	StartRow  int       `yaml:"start_row"`
	LastRow   int       `yaml:"last_processed_row"`
	Resolved  int       `yaml:"resolved"`
	Failed    int       `yaml:"failed"`
	Skipped   int       `yaml:"skipped"`
	StartedAt time.Time `yaml:"started_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// NextRow is the row a resumed run should start from.
func (c *Checkpoint) NextRow() int { return c.LastRow + 1 }

// ManifestKey returns the checkpoint object name for an output key.
func ManifestKey(outputKey string) string {
	return outputKey + ".checkpoint.yaml"
}

// LoadCheckpoint reads the manifest for outputKey. It returns an error
// wrapping storage.ErrNotFound when no run is in progress.
func LoadCheckpoint(ctx context.Context, store *storage.Store, outputKey string) (*Checkpoint, error) {
	data, err := store.ReadAll(ctx, ManifestKey(outputKey))
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrap(err, "enrich: parse checkpoint")
	}
	return &cp, nil
}

// Sink receives full dataset snapshots. Save is called at every checkpoint;
// Finish once on normal completion.
type Sink interface {
	Save(ctx context.Context, t *dataset.Table, cp *Checkpoint) error
	Finish(ctx context.Context, t *dataset.Table, cp *Checkpoint) error
}

// BlobSink writes the dataset and its manifest to a storage bucket.
type BlobSink struct {
	store *storage.Store
	key   string
	opts  dataset.Options
}

// NewBlobSink writes snapshots to key in store, encoded with opts.
func NewBlobSink(store *storage.Store, key string, opts dataset.Options) *BlobSink {
	return &BlobSink{store: store, key: key, opts: opts}
}

// Save writes the dataset first and the manifest second, so the manifest
// never points past rows that are not yet durable.
func (s *BlobSink) Save(ctx context.Context, t *dataset.Table, cp *Checkpoint) error {
	if err := s.writeTable(ctx, t); err != nil {
		return err
	}
	data, err := yaml.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "enrich: marshal checkpoint")
	}
	return s.store.WriteAll(ctx, ManifestKey(s.key), data, "application/yaml")
}

// Finish writes the final dataset and discards the manifest.
func (s *BlobSink) Finish(ctx context.Context, t *dataset.Table, _ *Checkpoint) error {
	if err := s.writeTable(ctx, t); err != nil {
		return err
	}
	return s.store.Delete(ctx, ManifestKey(s.key))
}

func (s *BlobSink) writeTable(ctx context.Context, t *dataset.Table) error {
	data, err := dataset.Encode(t, s.opts)
	if err != nil {
		return err
	}
	return s.store.WriteAll(ctx, s.key, data, "text/csv")
}
