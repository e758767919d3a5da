package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/locache"
)

var cacheFile string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the location cache",
}

// -- cache stats --

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize cache entries by MRT tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries, err := inspectCache()
		if err != nil {
			return err
		}
		formatCacheSummary(os.Stdout, locache.Summarize(entries))
		return nil
	},
}

// -- cache get --

var cacheGetCmd = &cobra.Command{
	Use:   "get <block> <street>",
	Short: "Print the cached entry for an address",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := inspectCache()
		if err != nil {
			return err
		}

		key := address.NewKey(args[0], strings.Join(args[1:], " "))
		e, ok := entries[key]
		if !ok {
			return eris.Errorf("cache get: %q is not cached", key)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"key": key, "location": e})
	},
}

// -- cache prune --

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Re-key or drop entries whose keys are not normalized",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		fs := locache.NewFileStore(cachePath())
		entries, err := fs.Inspect()
		if err != nil {
			return err
		}

		pruned, removed := locache.Prune(entries)
		for _, k := range removed {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", k)
		}
		_, _ = fmt.Fprintf(os.Stdout, "%d non-canonical keys, %d entries -> %d\n", len(removed), len(entries), len(pruned))

		if dryRun || len(removed) == 0 {
			return nil
		}
		if err := fs.Save(cmd.Context(), pruned); err != nil {
			return eris.Wrap(err, "cache prune")
		}
		zap.L().Info("cache pruned",
			zap.String("path", fs.Path()),
			zap.Int("removed", len(removed)),
			zap.Int("entries", len(pruned)),
		)
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheFile, "cache", "", "location cache file (default from config)")
	cachePruneCmd.Flags().Bool("dry-run", false, "list affected keys without rewriting the cache")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cachePath() string {
	if cacheFile != "" {
		return cacheFile
	}
	return cfg.Enrich.CacheFile
}

// inspectCache reads the cache without recovering from corruption, so
// maintenance commands report a damaged file instead of hiding it.
func inspectCache() (locache.Entries, error) {
	return locache.NewFileStore(cachePath()).Inspect()
}

// formatCacheSummary writes a cache summary to w.
func formatCacheSummary(out io.Writer, s locache.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Entries:\t%d\n", s.Entries)
	_, _ = fmt.Fprintf(w, "With station:\t%d\n", s.WithStation)
	_, _ = fmt.Fprintf(w, "  Within 2 km:\t%d\n", s.Within2Km)
	_, _ = fmt.Fprintf(w, "  2 to 5 km:\t%d\n", s.Between2And5)
	_, _ = fmt.Fprintf(w, "No station:\t%d\n", s.NoStation)
	_, _ = fmt.Fprintf(w, "Non-canonical keys:\t%d\n", s.NonCanonical)
	_ = w.Flush()
}
