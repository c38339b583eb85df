package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/roteiro-cli/internal/config"
	"github.com/sells-group/roteiro-cli/internal/dataset"
	"github.com/sells-group/roteiro-cli/internal/enrich"
	"github.com/sells-group/roteiro-cli/internal/metrics"
	"github.com/sells-group/roteiro-cli/internal/resilience"
	"github.com/sells-group/roteiro-cli/internal/storage"
	"github.com/sells-group/roteiro-cli/pkg/geocode"
)

// geocodeFlags holds the geocode command's flag values.
type geocodeFlags struct {
	input           string
	output          string
	provider        string
	startRow        int
	maxRows         int
	checkpointEvery int
	resume          bool
	noCache         bool
}

var geocodeOpts geocodeFlags

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Fill latitude/longitude for every customer row",
	Long: `Resolves each row's address with tiered fallback queries (full address, city and state, postal code)
against Nominatim or Google. Rows that already have coordinates are skipped. Progress is checkpointed to the
output location, and an interrupted run can continue with --resume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := runGeocode(ctx, cfg, geocodeOpts)
		if summary != nil {
			formatSummary(os.Stdout, summary)
		}
		if err != nil {
			return eris.Wrap(err, "geocode")
		}
		return nil
	},
}

func init() {
	f := geocodeCmd.Flags()
	f.StringVar(&geocodeOpts.input, "input", "", "input .csv/.xlsx path or bucket URL")
	f.StringVar(&geocodeOpts.output, "output", "", "output path or bucket URL (required)")
	f.StringVar(&geocodeOpts.provider, "provider", "", "nominatim or google (overrides geocode.provider)")
	f.IntVar(&geocodeOpts.startRow, "start-row", 0, "first row index to process")
	f.IntVar(&geocodeOpts.maxRows, "max-rows", 0, "process only the first N rows (0 = all)")
	f.IntVar(&geocodeOpts.checkpointEvery, "checkpoint-every", 0, "rows between checkpoints (overrides enrich.checkpoint_every)")
	f.BoolVar(&geocodeOpts.resume, "resume", false, "continue the run checkpointed at --output")
	f.BoolVar(&geocodeOpts.noCache, "no-cache", false, "bypass the local geocode cache")
	_ = geocodeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(geocodeCmd)
}

// runGeocode wires config and flags into a checkpointing run. The provider
// is constructed before any row is read so credential problems fail fast.
func runGeocode(ctx context.Context, c *config.Config, f geocodeFlags) (*enrich.Summary, error) {
	if f.provider != "" {
		c.Geocode.Provider = f.provider
	}
	if f.checkpointEvery > 0 {
		c.Enrich.CheckpointEvery = f.checkpointEvery
	}
	if err := c.Validate("geocode"); err != nil {
		return nil, err
	}
	if !f.resume && f.input == "" {
		return nil, eris.New("--input is required unless --resume is set")
	}

	opts, err := datasetOptions(c)
	if err != nil {
		return nil, err
	}

	limiter := geocode.NewRateLimiter(c.Geocode.Interval())
	provider, err := newProvider(c, limiter)
	if err != nil {
		return nil, err
	}

	store, key, err := storage.Open(ctx, f.output)
	if err != nil {
		return nil, err
	}
	defer store.Close() //nolint:errcheck

	runOpts := enrich.Options{
		StartRow:           f.startRow,
		MaxRows:            f.maxRows,
		CheckpointEvery:    c.Enrich.CheckpointEvery,
		CheckpointInterval: c.Enrich.CheckpointInterval(),
		Input:              f.input,
		Provider:           provider.Name(),
	}

	var t *dataset.Table
	if f.resume {
		cp, err := enrich.LoadCheckpoint(ctx, store, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, eris.Errorf("no checkpoint found for %s", f.output)
			}
			return nil, err
		}
		t, err = readObject(ctx, store, key, outputOptions(opts))
		if err != nil {
			return nil, err
		}
		runOpts.StartRow = cp.NextRow()
		runOpts.RunID = cp.RunID
		if runOpts.Input == "" {
			runOpts.Input = cp.Input
		}
		zap.L().Info("resuming run",
			zap.String("run_id", cp.RunID),
			zap.Int("start_row", runOpts.StartRow),
			zap.Time("checkpointed_at", cp.UpdatedAt),
		)
	} else {
		t, err = readDataset(ctx, f.input, opts)
		if err != nil {
			return nil, err
		}
	}

	resolverOpts := []geocode.ResolverOption{geocode.WithCountry(c.Geocode.Country)}
	if c.Geocode.Cache.Enabled && !f.noCache {
		cache, err := geocode.OpenSQLiteCache(ctx, c.Geocode.Cache.Path, c.Geocode.Cache.TTLDays)
		if err != nil {
			return nil, err
		}
		defer cache.Close() //nolint:errcheck
		resolverOpts = append(resolverOpts, geocode.WithCache(cache))
	}
	resolver := geocode.NewResolver(provider, limiter, resolverOpts...)

	m := metrics.New()
	sink := enrich.NewBlobSink(store, key, outputOptions(opts))
	runner := enrich.NewRunner(resolver, sink, enrich.WithMetrics(m))

	zap.L().Info("geocoding",
		zap.String("provider", provider.Name()),
		zap.Duration("interval", limiter.Interval()),
		zap.Int("rows", t.Len()),
		zap.String("output", f.output),
	)

	summary, runErr := runner.Run(ctx, t, runOpts)
	if err := m.WriteTextfile(c.Metrics.Textfile); err != nil {
		zap.L().Warn("metrics export failed", zap.Error(err))
	}
	return summary, runErr
}

// newProvider builds the configured provider. Google fails here on a
// missing or placeholder key.
func newProvider(c *config.Config, throttle geocode.Throttler) (geocode.Provider, error) {
	hc := &http.Client{Timeout: c.Geocode.Timeout()}
	retry := resilience.FromRetryConfig(
		c.Geocode.Retry.MaxAttempts,
		c.Geocode.Retry.InitialBackoffMs,
		c.Geocode.Retry.MaxBackoffMs,
	)

	switch c.Geocode.Provider {
	case config.ProviderGoogle:
		g, err := geocode.NewGoogle(c.Geocode.Google.Key,
			geocode.WithGoogleBaseURL(c.Geocode.Google.BaseURL),
			geocode.WithGoogleHTTPClient(hc),
			geocode.WithGoogleRegion(c.Geocode.Google.Region, c.Geocode.Google.Language),
			geocode.WithGoogleRetry(retry),
		)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.ProviderNominatim:
		return geocode.NewNominatim(
			geocode.WithNominatimBaseURL(c.Geocode.Nominatim.BaseURL),
			geocode.WithNominatimUserAgent(c.Geocode.UserAgent),
			geocode.WithNominatimHTTPClient(hc),
			geocode.WithNominatimCountry(c.Geocode.CountryCode, c.Geocode.Country),
			geocode.WithNominatimThrottle(throttle),
			geocode.WithNominatimRetry(retry),
		), nil
	default:
		return nil, eris.Errorf("unsupported geocode provider: %s", c.Geocode.Provider)
	}
}

// formatSummary writes a run report to w.
func formatSummary(out io.Writer, s *enrich.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "RUN\t%s\n", s.RunID)
	_, _ = fmt.Fprintf(w, "ROWS\t%d\n", s.Rows)
	_, _ = fmt.Fprintf(w, "SKIPPED\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "RESOLVED\t%d\n", s.Resolved)
	_, _ = fmt.Fprintf(w, "FAILED\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "CHECKPOINTS\t%d\n", s.Checkpoints)
	_, _ = fmt.Fprintf(w, "LAST ROW\t%d\n", s.LastRow)
	_, _ = fmt.Fprintf(w, "DURATION\t%s\n", s.Duration.Round(time.Millisecond))

	tiers := make([]string, 0, len(s.ByTier))
	for tier := range s.ByTier {
		tiers = append(tiers, string(tier))
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		_, _ = fmt.Fprintf(w, "TIER %s\t%d\n", tier, s.ByTier[geocode.Tier(tier)])
	}
	_ = w.Flush()
}
