package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/enrich"
	"github.com/sells-group/resale-enrich/internal/locache"
	"github.com/sells-group/resale-enrich/internal/stats"
)

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "data/resale_enriched.csv", defaultOutputPath("data/resale.csv"))
	assert.Equal(t, "resale_enriched.csv", defaultOutputPath("resale.xlsx"))
	assert.Equal(t, "out/resale_enriched_report.json", defaultReportPath("out/resale_enriched.csv"))
}

func TestWriteOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "enriched.csv")
	name, dist, radius := "BISHAN MRT STATION", 0.228, 2.0

	records := []enrich.EnrichedRecord{
		{
			Record: enrich.Record{Block: "10", Street: "BISHAN ST 13", Values: []string{"10", "BISHAN ST 13"}},
			Key:    address.Key("10 BISHAN STREET 13"),
			Location: &locache.Entry{Latitude: 1.35, Longitude: 103.85,
				NearestMRT: &name, DistMRTKm: &dist, SearchRadiusKm: &radius},
		},
		{
			Record: enrich.Record{Block: "1", Street: "NOWHERE RD", Values: []string{"1", "NOWHERE RD"}},
			Key:    address.Key("1 NOWHERE ROAD"),
		},
	}

	require.NoError(t, writeOutput(path, []string{"block", "street_name"}, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "block,street_name,latitude,longitude,nearest_mrt,dist_mrt_km,search_radius_km")
	assert.Contains(t, out, "BISHAN MRT STATION")
	assert.Contains(t, out, "2.0")
}

func TestFirstErr(t *testing.T) {
	a := assert.AnError
	assert.NoError(t, firstErr(nil, nil))
	assert.Equal(t, a, firstErr(nil, a))
}

func TestPrintSummary(t *testing.T) {
	r := stats.Report{
		Counters: stats.Counters{Records: 101, UniqueAddresses: 3, GeocodeSuccess: 3},
		Calls:    stats.Calls{Made: 6, NaiveBaseline: 202, ReductionPct: 97.0},
		Coverage: stats.Coverage{Within2Km: 101},
		Distance: &stats.Distance{Median: 0.228},
	}

	var buf bytes.Buffer
	printSummary(&buf, r, "out.csv")

	output := buf.String()
	assert.Contains(t, output, "Records:")
	assert.Contains(t, output, "101")
	assert.Contains(t, output, "naive 202")
	assert.Contains(t, output, "0.228 km")
	assert.Contains(t, output, "out.csv")
}
