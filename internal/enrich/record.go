// Package enrich joins transaction records to resolved locations, fetching
// only the addresses the cache does not already hold.
package enrich

import (
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/locache"
	"github.com/sells-group/resale-enrich/internal/tabular"
)

// Default input column names.
const (
	DefaultBlockColumn  = "block"
	DefaultStreetColumn = "street_name"
)

// Output columns appended to every enriched row. Input columns with the same
// names are replaced.
var OutputColumns = []string{"latitude", "longitude", "nearest_mrt", "dist_mrt_km", "search_radius_km"}

// Record is one input transaction. Values holds the full input row.
type Record struct {
	Index  int
	Block  string
	Street string
	Values []string
}

// Key returns the record's address key.
func (r Record) Key() address.Key {
	return address.NewKey(r.Block, r.Street)
}

// EnrichedRecord is a record joined to its resolved location. Location is
// nil when the address could not be resolved.
type EnrichedRecord struct {
	Record
	Key      address.Key
	Location *locache.Entry
}

// RecordsFromTable builds records from a table using the given block and
// street columns.
func RecordsFromTable(t *tabular.Table, blockCol, streetCol string) ([]Record, error) {
	if !t.Has(blockCol, streetCol) {
		return nil, eris.Errorf("enrich: input needs columns %q and %q", blockCol, streetCol)
	}
	records := make([]Record, 0, len(t.Rows))
	for i, row := range t.Rows {
		records = append(records, Record{
			Index:  i,
			Block:  t.Value(row, blockCol),
			Street: t.Value(row, streetCol),
			Values: row,
		})
	}
	return records, nil
}

// OutputTable renders enriched records under header with the location
// columns appended.
func OutputTable(header []string, records []EnrichedRecord) ([]string, [][]string) {
	drop := make(map[int]bool)
	in := tabular.NewTable(header, nil)
	for _, c := range OutputColumns {
		if i := in.Col(c); i >= 0 {
			drop[i] = true
		}
	}

	outHeader := make([]string, 0, len(header)+len(OutputColumns))
	for i, h := range header {
		if !drop[i] {
			outHeader = append(outHeader, h)
		}
	}
	outHeader = append(outHeader, OutputColumns...)

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, 0, len(outHeader))
		for i := range header {
			if drop[i] {
				continue
			}
			v := ""
			if i < len(rec.Values) {
				v = rec.Values[i]
			}
			row = append(row, v)
		}
		rows = append(rows, append(row, locationColumns(rec.Location)...))
	}
	return outHeader, rows
}

func locationColumns(e *locache.Entry) []string {
	cols := make([]string, len(OutputColumns))
	if e == nil {
		return cols
	}
	cols[0] = strconv.FormatFloat(e.Latitude, 'f', -1, 64)
	cols[1] = strconv.FormatFloat(e.Longitude, 'f', -1, 64)
	if e.NearestMRT != nil {
		cols[2] = *e.NearestMRT
	}
	if e.DistMRTKm != nil {
		cols[3] = strconv.FormatFloat(*e.DistMRTKm, 'f', -1, 64)
	}
	if e.SearchRadiusKm != nil {
		cols[4] = strconv.FormatFloat(*e.SearchRadiusKm, 'f', 1, 64)
	}
	return cols
}
