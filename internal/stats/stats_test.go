package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/resale-enrich/internal/locache"
)

func entry(dist, radius float64) *locache.Entry {
	name := "STATION"
	return &locache.Entry{NearestMRT: &name, DistMRTKm: &dist, SearchRadiusKm: &radius}
}

func TestCollector(t *testing.T) {
	col := NewCollector()
	col.Plan(100, 3, 0, 1, 1, 1)

	assert.Equal(t, 1, col.Resolved(1, nil))
	col.Calls(1)
	col.GeocodeSucceeded()
	assert.Equal(t, 2, col.Resolved(2, []int{1}))
	col.Calls(3)
	assert.Equal(t, 3, col.GeocodeFailed(true))
	col.Calls(1)

	got := col.Snapshot()
	want := Counters{
		Records: 100, UniqueAddresses: 3, Cached: 1, HasCoords: 1, NeedGeocode: 1,
		Processed: 3, Resolved: 2, GeocodeSuccess: 1, GeocodeNotFound: 1,
		Within2Km: 1, Within5Km: 1, Tier1ServiceErrors: 1, CallsMade: 5,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, got.Failed())
}

func TestCollector_Concurrent(t *testing.T) {
	col := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			col.Resolved(0, nil)
			col.Calls(2)
		}()
	}
	wg.Wait()

	got := col.Snapshot()
	assert.Equal(t, 50, got.Processed)
	assert.Equal(t, 50, got.NoStation)
	assert.Equal(t, 100, got.CallsMade)
}

func TestSummarize(t *testing.T) {
	c := Counters{Records: 5, HasCoords: 1, NeedGeocode: 2, CallsMade: 4}
	locs := []*locache.Entry{
		entry(0.5, 2.0),
		entry(1.5, 2.0),
		entry(3.2, 5.0),
		{Latitude: 1.3, Longitude: 103.8},
		nil,
	}
	failures := []Failure{{Key: "20 BISHAN STREET", Reason: ReasonServiceError}}

	r := Summarize(c, locs, failures, 0)

	assert.Equal(t, Calls{
		Made: 4, Estimated: 5, SavedByCoordinates: 1,
		NaiveBaseline: 10, Avoided: 6, ReductionPct: 60,
	}, r.Calls)

	assert.Equal(t, Coverage{
		TotalRecords: 5, Unresolved: 1, HasStation: 3, CoveragePct: 60,
		Within2Km: 2, Between2And5: 1, NoStation: 2, NoStationPct: 40,
	}, r.Coverage)

	require.NotNil(t, r.Distance)
	assert.Equal(t, 3, r.Distance.Count)
	assert.Equal(t, 1.5, r.Distance.Median)
	assert.Equal(t, 1.733, r.Distance.Mean)
	assert.Equal(t, 0.5, r.Distance.Min)
	assert.Equal(t, 3.2, r.Distance.Max)
	assert.Len(t, r.Failures, 1)
}

func TestCollector_CustomTiers(t *testing.T) {
	col := NewCollector()
	col.Resolved(1, nil)
	col.Resolved(3, []int{1, 2})
	col.Resolved(0, []int{1, 2, 3})

	got := col.Snapshot()
	assert.Equal(t, 1, got.Within2Km)
	assert.Equal(t, 1, got.Within5Km)
	assert.Equal(t, 1, got.NoStation)
	assert.Equal(t, 2, got.Tier1ServiceErrors)
	assert.Equal(t, 3, got.Tier2ServiceErrors)
}

func TestSummarize_CustomFirstTier(t *testing.T) {
	locs := []*locache.Entry{entry(0.8, 1.0), entry(2.5, 3.0), entry(5.5, 6.0)}

	r := Summarize(Counters{}, locs, nil, 1.0)

	assert.Equal(t, 3, r.Coverage.HasStation)
	assert.Equal(t, 1, r.Coverage.Within2Km)
	assert.Equal(t, 2, r.Coverage.Between2And5)
	assert.Zero(t, r.Coverage.NoStation)
}

func TestSummarize_EvenMedianAndEmpty(t *testing.T) {
	r := Summarize(Counters{}, []*locache.Entry{entry(1, 2.0), entry(2, 2.0)}, nil, 0)
	assert.Equal(t, 1.5, r.Distance.Median)

	empty := Summarize(Counters{}, nil, nil, 0)
	assert.Nil(t, empty.Distance)
	assert.Zero(t, empty.Coverage.CoveragePct)
	assert.Zero(t, empty.Calls.ReductionPct)
}

func TestWriteReport_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	r := Summarize(Counters{Records: 2, CallsMade: 1}, []*locache.Entry{entry(1.2, 2.0), nil}, nil, 0)
	r.RunID = "run-1"

	jsonPath := filepath.Join(dir, "out", "report.json")
	require.NoError(t, WriteReport(jsonPath, r))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Contains(t, decoded, "coverage")

	yamlPath := filepath.Join(dir, "report.yaml")
	require.NoError(t, WriteReport(yamlPath, r))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)

	var y map[string]any
	require.NoError(t, yaml.Unmarshal(data, &y))
	assert.Equal(t, "run-1", y["run_id"])
	cov, ok := y["coverage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, cov["has_station"])
}
