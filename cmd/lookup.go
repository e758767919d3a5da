package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/enrich"
	"github.com/sells-group/resale-enrich/internal/locache"
)

var (
	lookupBlock     string
	lookupStreet    string
	lookupCacheFile string
)

// lookupResult is printed by the lookup command.
type lookupResult struct {
	Key      address.Key    `json:"key"`
	Source   string         `json:"source"`
	Location *locache.Entry `json:"location"`
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [address]",
	Short: "Resolve a single address, using the cache when possible",
	Example: `  resale-enrich lookup "10 BISHAN ST 13"
  resale-enrich lookup --block 10 --street "BISHAN ST 13"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		block, street := lookupBlock, lookupStreet
		if len(args) == 1 {
			b, s, ok := address.SplitFreeText(args[0])
			if !ok {
				return eris.Errorf("lookup: cannot parse %q as <block> <street>", args[0])
			}
			block, street = b, s
		}
		if strings.TrimSpace(block) == "" && strings.TrimSpace(street) == "" {
			return eris.New("lookup: an address or --block/--street is required")
		}

		env, err := initEnrich(ctx, lookupCacheFile)
		if err != nil {
			return err
		}

		rec := enrich.Record{Block: block, Street: street}
		out := lookupResult{Key: rec.Key(), Source: "cache"}
		if !env.Cache.Has(out.Key) {
			out.Source = "onemap"
			if _, ok := env.Coords.Lookup(out.Key); ok {
				out.Source = "coordinates"
			}
		}

		res, err := enrich.New(env.Deps, enrich.Options{}).Run(ctx, []enrich.Record{rec})
		if err != nil {
			return err
		}
		out.Location = res.Records[0].Location
		if out.Location == nil {
			out.Source = "unresolved"
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupBlock, "block", "", "block number")
	lookupCmd.Flags().StringVar(&lookupStreet, "street", "", "street name")
	lookupCmd.Flags().StringVar(&lookupCacheFile, "cache", "", "location cache file (default from config)")
	rootCmd.AddCommand(lookupCmd)
}
