package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/resale-enrich/internal/enrich"
)

var (
	planInput     string
	planCacheFile string
	planBlockCol  string
	planStreetCol string
	planShow      int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show how many lookups an enrichment run would make, without calling OneMap",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnrich(ctx, planCacheFile)
		if err != nil {
			return err
		}

		_, records, err := loadRecords(ctx, planInput, planBlockCol, planStreetCol)
		if err != nil {
			return err
		}

		plan := enrich.BuildPlan(records, env.Cache, env.Coords)
		formatPlan(os.Stdout, plan, planShow)
		return nil
	},
}

func init() {
	planCmd.Flags().StringVarP(&planInput, "input", "i", "", "input CSV or XLSX of resale records")
	planCmd.Flags().StringVar(&planCacheFile, "cache", "", "location cache file (default from config)")
	planCmd.Flags().StringVar(&planBlockCol, "block-col", enrich.DefaultBlockColumn, "block number column")
	planCmd.Flags().StringVar(&planStreetCol, "street-col", enrich.DefaultStreetColumn, "street name column")
	planCmd.Flags().IntVar(&planShow, "show", 10, "list up to N pending addresses")
	_ = planCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(planCmd)
}

// formatPlan writes the plan partition and up to show pending addresses.
func formatPlan(out io.Writer, p enrich.Plan, show int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", p.Records)
	_, _ = fmt.Fprintf(w, "Invalid records:\t%d\n", p.Invalid)
	_, _ = fmt.Fprintf(w, "Unique addresses:\t%d\n", p.Unique)
	_, _ = fmt.Fprintf(w, "  Cached:\t%d\n", len(p.Cached))
	_, _ = fmt.Fprintf(w, "  Has coordinates:\t%d\n", len(p.ProximityOnly))
	_, _ = fmt.Fprintf(w, "  Need geocode:\t%d\n", len(p.FullGeocode))
	_, _ = fmt.Fprintf(w, "Estimated API calls:\t%d\n", p.EstimatedCalls())
	_, _ = fmt.Fprintf(w, "Saved by coordinates:\t%d\n", p.CallsSavedByCoordinates())
	_ = w.Flush()

	pending := p.Pending()
	if show <= 0 || len(pending) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ADDRESS\tSTATE")
	for i, a := range pending {
		if i == show {
			_, _ = fmt.Fprintf(w, "... %d more\t\n", len(pending)-show)
			break
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", a.Key, a.State)
	}
	_ = w.Flush()
}
