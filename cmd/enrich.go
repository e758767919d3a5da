package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resale-enrich/internal/enrich"
	"github.com/sells-group/resale-enrich/internal/runstore"
	"github.com/sells-group/resale-enrich/internal/stats"
	"github.com/sells-group/resale-enrich/internal/tabular"
)

var (
	enrichInput     string
	enrichOutput    string
	enrichReport    string
	enrichCacheFile string
	enrichBlockCol  string
	enrichStreetCol string
	enrichWorkers   int
	enrichNoHistory bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a resale records file with coordinates and nearest MRT",
	Long: "Reads a CSV or XLSX of resale records, resolves each unique address once " +
		"(cache, then coordinates table, then OneMap), and writes the records with " +
		"latitude, longitude, nearest_mrt, dist_mrt_km, and search_radius_km columns.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if enrichWorkers > 0 {
			cfg.Enrich.Workers = enrichWorkers
		}

		env, err := initEnrich(ctx, enrichCacheFile)
		if err != nil {
			return err
		}

		tbl, records, err := loadRecords(ctx, enrichInput, enrichBlockCol, enrichStreetCol)
		if err != nil {
			return err
		}

		var history runstore.Store
		var run *runstore.Run
		if !enrichNoHistory {
			history, err = initRunStore(ctx)
			if err != nil {
				return err
			}
			defer history.Close() //nolint:errcheck

			run, err = history.CreateRun(ctx, enrichInput, env.Store.Path())
			if err != nil {
				return eris.Wrap(err, "record run")
			}
		}

		opts := enrich.Options{
			Workers:       cfg.Enrich.Workers,
			ProgressEvery: cfg.Enrich.ProgressEvery,
		}
		bar := newProgressBar(enrich.BuildPlan(records, env.Cache, env.Coords))
		if bar != nil {
			opts.OnProgress = func(enrich.Progress) { _ = bar.Add(1) }
		}

		res, runErr := enrich.New(env.Deps, opts).Run(ctx, records)
		if bar != nil {
			_ = bar.Finish()
		}
		if res == nil {
			if run != nil {
				_ = history.FailRun(ctx, run.ID, runErr, nil)
			}
			return runErr
		}
		if run != nil {
			res.Report.RunID = run.ID
		}

		output := enrichOutput
		if output == "" {
			output = defaultOutputPath(enrichInput)
		}
		report := enrichReport
		if report == "" {
			report = defaultReportPath(output)
		}
		writeErr := writeOutput(output, tbl.Header, res.Records)
		if writeErr == nil {
			writeErr = stats.WriteReport(report, res.Report)
		}

		if run != nil {
			// The run may have been cancelled; history still gets the outcome.
			hctx := cmd.Context()
			if err := firstErr(runErr, writeErr); err != nil {
				_ = history.FailRun(hctx, run.ID, err, &res.Report)
			} else if err := history.CompleteRun(hctx, run.ID, output, &res.Report); err != nil {
				zap.L().Warn("record run completion", zap.Error(err))
			}
		}

		printSummary(os.Stdout, res.Report, output)
		zap.L().Info("enrichment finished",
			zap.String("output", output),
			zap.String("report", report),
			zap.Int64("duration_ms", res.Report.DurationMs),
		)
		return firstErr(runErr, writeErr)
	},
}

func init() {
	enrichCmd.Flags().StringVarP(&enrichInput, "input", "i", "", "input CSV or XLSX of resale records")
	enrichCmd.Flags().StringVarP(&enrichOutput, "output", "o", "", "output CSV (default <input>_enriched.csv)")
	enrichCmd.Flags().StringVar(&enrichReport, "report", "", "run report path, .json or .yaml (default <output>_report.json)")
	enrichCmd.Flags().StringVar(&enrichCacheFile, "cache", "", "location cache file (default from config)")
	enrichCmd.Flags().StringVar(&enrichBlockCol, "block-col", enrich.DefaultBlockColumn, "block number column")
	enrichCmd.Flags().StringVar(&enrichStreetCol, "street-col", enrich.DefaultStreetColumn, "street name column")
	enrichCmd.Flags().IntVar(&enrichWorkers, "workers", 0, "concurrent address workers (default from config)")
	enrichCmd.Flags().BoolVar(&enrichNoHistory, "no-history", false, "do not record the run in the history database")
	_ = enrichCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(enrichCmd)
}

// newProgressBar returns a bar sized to the pending addresses, or nil when
// stderr is not a terminal or nothing needs resolving.
func newProgressBar(plan enrich.Plan) *progressbar.ProgressBar {
	n := len(plan.Pending())
	if n == 0 || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetDescription("Resolving addresses"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_enriched.csv"
}

func defaultReportPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + "_report.json"
}

func writeOutput(path string, header []string, records []enrich.EnrichedRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create output dir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create output %s", path)
	}
	outHeader, rows := enrich.OutputTable(header, records)
	if err := tabular.WriteCSV(f, outHeader, rows); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "close output")
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// printSummary writes the end-of-run summary to w.
func printSummary(out io.Writer, r stats.Report, output string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	c := r.Counters
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", c.Records)
	_, _ = fmt.Fprintf(w, "Unique addresses:\t%d\n", c.UniqueAddresses)
	_, _ = fmt.Fprintf(w, "  Cached:\t%d\n", c.Cached)
	_, _ = fmt.Fprintf(w, "  From coordinates:\t%d\n", c.HasCoords)
	_, _ = fmt.Fprintf(w, "  Geocoded:\t%d\n", c.GeocodeSuccess)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", c.Failed())
	_, _ = fmt.Fprintf(w, "MRT within 2 km:\t%d\n", r.Coverage.Within2Km)
	_, _ = fmt.Fprintf(w, "MRT within 5 km:\t%d\n", r.Coverage.Between2And5)
	_, _ = fmt.Fprintf(w, "No MRT within 5 km:\t%d (%.1f%%)\n", r.Coverage.NoStation, r.Coverage.NoStationPct)
	_, _ = fmt.Fprintf(w, "API calls:\t%d (naive %d, %.1f%% fewer)\n", r.Calls.Made, r.Calls.NaiveBaseline, r.Calls.ReductionPct)
	if r.Distance != nil {
		_, _ = fmt.Fprintf(w, "Median MRT distance:\t%.3f km\n", r.Distance.Median)
	}
	if output != "" {
		_, _ = fmt.Fprintf(w, "Output:\t%s\n", output)
	}
	_ = w.Flush()
}
