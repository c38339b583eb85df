package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/roteiro-cli/internal/config"
	"github.com/sells-group/roteiro-cli/internal/dataset"
	"github.com/sells-group/roteiro-cli/internal/metrics"
	"github.com/sells-group/roteiro-cli/internal/reconcile"
)

type reconcileFlags struct {
	source     string
	dest       string
	output     string
	namePolicy string
	provenance string
}

var reconcileOpts reconcileFlags

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Copy rede/regiao from a source snapshot onto a destination snapshot",
	Long: `Matches destination rows to source rows by code and store, then code alone, then name,
and copies the network (rede) and region (regiao) columns from the match. Unmatched rows get empty values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runReconcile(cmd.Context(), cfg, reconcileOpts)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}
		formatReconcile(os.Stdout, res)
		return nil
	},
}

func init() {
	f := reconcileCmd.Flags()
	f.StringVar(&reconcileOpts.source, "source", "", "snapshot that carries rede/regiao (required)")
	f.StringVar(&reconcileOpts.dest, "dest", "", "snapshot to enrich (required)")
	f.StringVar(&reconcileOpts.output, "output", "", "output path or bucket URL (default: overwrite --dest)")
	f.StringVar(&reconcileOpts.namePolicy, "name-policy", "", "keep-last or keep-first for duplicate source names")
	f.StringVar(&reconcileOpts.provenance, "provenance-column", "", "column that records the matching tier per row")
	_ = reconcileCmd.MarkFlagRequired("source")
	_ = reconcileCmd.MarkFlagRequired("dest")
	rootCmd.AddCommand(reconcileCmd)
}

// reconcileResult is what a reconcile run reports.
type reconcileResult struct {
	Output       string
	Counters     reconcile.Counters
	Distribution []reconcile.NetworkCount
}

// runReconcile loads both snapshots concurrently, applies the source index to
// the destination, and writes the destination to the output location.
func runReconcile(ctx context.Context, c *config.Config, f reconcileFlags) (*reconcileResult, error) {
	if f.namePolicy != "" {
		c.Reconcile.NamePolicy = f.namePolicy
	}
	if f.provenance != "" {
		c.Reconcile.ProvenanceColumn = f.provenance
	}
	if err := c.Validate("reconcile"); err != nil {
		return nil, err
	}
	out := f.output
	if out == "" {
		if dataset.IsXLSX(f.dest) {
			return nil, eris.New("--output is required when --dest is a workbook")
		}
		out = f.dest
	}
	policy, err := reconcile.ParseNamePolicy(c.Reconcile.NamePolicy)
	if err != nil {
		return nil, err
	}
	opts, err := datasetOptions(c)
	if err != nil {
		return nil, err
	}

	var src, dest *dataset.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := readDataset(gctx, f.source, opts)
		if err != nil {
			return eris.Wrap(err, "read source")
		}
		src = t
		return nil
	})
	g.Go(func() error {
		t, err := readDataset(gctx, f.dest, opts)
		if err != nil {
			return eris.Wrap(err, "read destination")
		}
		dest = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix, err := reconcile.IndexTable(src, reconcile.WithNamePolicy(policy))
	if err != nil {
		return nil, eris.Wrap(err, "source")
	}
	matches, counters, err := reconcile.ApplyTable(dest, ix, reconcile.ApplyOptions{
		ProvenanceColumn: c.Reconcile.ProvenanceColumn,
	})
	if err != nil {
		return nil, eris.Wrap(err, "destination")
	}

	if err := writeDataset(ctx, out, dest, opts); err != nil {
		return nil, err
	}

	m := metrics.New()
	m.Reconciled(string(reconcile.TierCodeStore), counters.CodeStore)
	m.Reconciled(string(reconcile.TierCodeFirst), counters.CodeFirst)
	m.Reconciled(string(reconcile.TierName), counters.Name)
	m.Reconciled("unmatched", counters.Unmatched)
	if err := m.WriteTextfile(c.Metrics.Textfile); err != nil {
		zap.L().Warn("metrics export failed", zap.Error(err))
	}

	return &reconcileResult{
		Output:       out,
		Counters:     counters,
		Distribution: reconcile.NetworkDistribution(matches),
	}, nil
}

// formatReconcile writes per-tier counters and the network distribution.
func formatReconcile(out io.Writer, r *reconcileResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "OUTPUT\t%s\n", r.Output)
	_, _ = fmt.Fprintf(w, "CODE+STORE\t%d\n", r.Counters.CodeStore)
	_, _ = fmt.Fprintf(w, "CODE-FIRST\t%d\n", r.Counters.CodeFirst)
	_, _ = fmt.Fprintf(w, "NAME\t%d\n", r.Counters.Name)
	_, _ = fmt.Fprintf(w, "UNMATCHED\t%d\n", r.Counters.Unmatched)
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", r.Counters.Total())
	if len(r.Distribution) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "REDE\tROWS")
		_, _ = fmt.Fprintln(w, "----\t----")
		for _, d := range r.Distribution {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", d.Network, d.Rows)
		}
	}
	_ = w.Flush()
}
