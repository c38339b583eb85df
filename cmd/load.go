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

	"github.com/sells-group/roteiro-cli/internal/config"
	"github.com/sells-group/roteiro-cli/internal/customer"
	"github.com/sells-group/roteiro-cli/internal/db"
)

var (
	loadInput   string
	loadTable   string
	loadMigrate bool
	loadDryRun  bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Upsert an enriched dataset into the clientes table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if loadTable != "" {
			cfg.Store.Table = loadTable
		}
		customers, stats, err := readCustomers(ctx, cfg, loadInput)
		if err != nil {
			return eris.Wrap(err, "load")
		}
		if loadDryRun {
			formatLoad(os.Stdout, stats, 0)
			return nil
		}

		if err := cfg.Validate("load"); err != nil {
			return err
		}
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "load")
		}
		defer pool.Close()

		affected, err := loadCustomers(ctx, pool, cfg.Store.Table, customers, loadMigrate)
		if err != nil {
			return eris.Wrap(err, "load")
		}
		formatLoad(os.Stdout, stats, affected)
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadInput, "input", "", "enriched .csv/.xlsx path or bucket URL (required)")
	loadCmd.Flags().StringVar(&loadTable, "table", "", "target table (overrides store.table)")
	loadCmd.Flags().BoolVar(&loadMigrate, "migrate", false, "create the target table if missing")
	loadCmd.Flags().BoolVar(&loadDryRun, "dry-run", false, "parse and report without touching the database")
	_ = loadCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(loadCmd)
}

func readCustomers(ctx context.Context, c *config.Config, input string) ([]customer.Customer, customer.Stats, error) {
	opts, err := datasetOptions(c)
	if err != nil {
		return nil, customer.Stats{}, err
	}
	t, err := readDataset(ctx, input, opts)
	if err != nil {
		return nil, customer.Stats{}, err
	}
	customers, stats := customer.FromTable(t)
	zap.L().Info("customers parsed",
		zap.Int("rows", stats.Rows),
		zap.Int("loaded", stats.Loaded),
		zap.Int("no_name", stats.NoName),
		zap.Int("network_inferred", stats.Inferred),
	)
	return customers, stats, nil
}

func loadCustomers(ctx context.Context, pool db.Pool, table string, customers []customer.Customer, migrate bool) (int64, error) {
	if migrate {
		if err := customer.Migrate(ctx, pool, table); err != nil {
			return 0, err
		}
	}
	return customer.Upsert(ctx, pool, table, customers)
}

func formatLoad(out io.Writer, s customer.Stats, affected int64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ROWS\t%d\n", s.Rows)
	_, _ = fmt.Fprintf(w, "CUSTOMERS\t%d\n", s.Loaded)
	_, _ = fmt.Fprintf(w, "NO NAME\t%d\n", s.NoName)
	_, _ = fmt.Fprintf(w, "DUPLICATE CODES\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(w, "REDE INFERRED\t%d\n", s.Inferred)
	_, _ = fmt.Fprintf(w, "UPSERTED\t%d\n", affected)
	_ = w.Flush()
}
