package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/roteiro-cli/internal/enrich"
	"github.com/sells-group/roteiro-cli/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status <output>",
	Short: "Show the checkpoint of an interrupted geocode run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, err := loadStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if cp == nil {
			zap.L().Info("no run in progress", zap.String("output", args[0]))
			return nil
		}
		formatCheckpoint(os.Stdout, cp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// loadStatus returns the manifest for output, or nil when none exists.
func loadStatus(ctx context.Context, output string) (*enrich.Checkpoint, error) {
	store, key, err := storage.Open(ctx, output)
	if err != nil {
		return nil, err
	}
	defer store.Close() //nolint:errcheck

	cp, err := enrich.LoadCheckpoint(ctx, store, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return cp, err
}

func formatCheckpoint(out io.Writer, cp *enrich.Checkpoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "RUN\t%s\n", cp.RunID)
	_, _ = fmt.Fprintf(w, "INPUT\t%s\n", cp.Input)
	_, _ = fmt.Fprintf(w, "PROVIDER\t%s\n", cp.Provider)
	_, _ = fmt.Fprintf(w, "LAST ROW\t%d\n", cp.LastRow)
	_, _ = fmt.Fprintf(w, "NEXT ROW\t%d\n", cp.NextRow())
	_, _ = fmt.Fprintf(w, "RESOLVED\t%d\n", cp.Resolved)
	_, _ = fmt.Fprintf(w, "FAILED\t%d\n", cp.Failed)
	_, _ = fmt.Fprintf(w, "SKIPPED\t%d\n", cp.Skipped)
	_, _ = fmt.Fprintf(w, "STARTED\t%s\n", cp.StartedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "UPDATED\t%s\n", cp.UpdatedAt.Format(time.RFC3339))
	_ = w.Flush()
}
