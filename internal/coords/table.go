// Package coords loads the optional block/road coordinate table that lets
// the enricher skip geocoding for addresses whose position is already known.
package coords

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/tabular"
)

// Column names in the coordinate table.
const (
	ColBlock     = "blk_no"
	ColRoad      = "road_name"
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
)

var requiredColumns = []string{ColBlock, ColRoad, ColLatitude, ColLongitude}

// Point is a latitude/longitude pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Table maps address keys to known coordinates. It is read-only once loaded.
type Table struct {
	points  map[address.Key]Point
	skipped int
}

// Empty returns a table with no entries.
func Empty() *Table {
	return &Table{points: map[address.Key]Point{}}
}

// Lookup returns the coordinates for key.
func (t *Table) Lookup(key address.Key) (Point, bool) {
	if t == nil {
		return Point{}, false
	}
	p, ok := t.points[key]
	return p, ok
}

// Len returns the number of usable rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// Skipped returns the number of rows dropped for missing or invalid values.
func (t *Table) Skipped() int {
	if t == nil {
		return 0
	}
	return t.skipped
}

type row struct {
	Block     string `csv:"blk_no"`
	Road      string `csv:"road_name"`
	Latitude  string `csv:"latitude"`
	Longitude string `csv:"longitude"`
}

// Load reads a CSV or XLSX coordinate table. An empty path yields an empty
// table.
func Load(ctx context.Context, path string) (*Table, error) {
	if path == "" {
		return Empty(), nil
	}

	var (
		rows []row
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = loadXLSX(path)
	} else {
		rows, err = loadCSV(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	t := build(rows)
	zap.L().Info("loaded coordinate table",
		zap.String("path", path),
		zap.Int("addresses", t.Len()),
		zap.Int("skipped", t.skipped),
	)
	return t, nil
}

// FromReader decodes a CSV coordinate table from r.
func FromReader(ctx context.Context, r io.Reader) (*Table, error) {
	rows, err := decodeCSV(ctx, r)
	if err != nil {
		return nil, err
	}
	return build(rows), nil
}

func loadCSV(ctx context.Context, path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "coords: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return decodeCSV(ctx, f)
}

// asUTF8 returns r unchanged when it holds valid UTF-8 and otherwise
// decodes it as Latin-1, the encoding older coordinate exports use.
func asUTF8(r io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "coords: read")
	}
	if utf8.Valid(data) {
		return bytes.NewReader(data), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, eris.Wrap(err, "coords: decode latin-1")
	}
	zap.L().Debug("coordinate table is not UTF-8, decoded as Latin-1")
	return bytes.NewReader(decoded), nil
}

func decodeCSV(ctx context.Context, r io.Reader) ([]row, error) {
	r, err := asUTF8(r)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "coords: read header")
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	if err := checkColumns(tabular.NewTable(header, nil)); err != nil {
		return nil, err
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, eris.Wrap(err, "coords: create decoder")
	}

	var rows []row
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "coords: context cancelled")
		}
		var rw row
		if err := dec.Decode(&rw); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "coords: decode row")
		}
		rows = append(rows, rw)
	}
	return rows, nil
}

func loadXLSX(path string) ([]row, error) {
	tbl, err := tabular.ReadXLSX(path, tabular.XLSXOptions{})
	if err != nil {
		return nil, err
	}
	if err := checkColumns(tbl); err != nil {
		return nil, err
	}

	rows := make([]row, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		rows = append(rows, row{
			Block:     tbl.Value(r, ColBlock),
			Road:      tbl.Value(r, ColRoad),
			Latitude:  tbl.Value(r, ColLatitude),
			Longitude: tbl.Value(r, ColLongitude),
		})
	}
	return rows, nil
}

func checkColumns(tbl *tabular.Table) error {
	var missing []string
	for _, c := range requiredColumns {
		if tbl.Col(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("coords: missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// build keys rows by normalized address; the first usable row for a key wins.
func build(rows []row) *Table {
	t := Empty()
	for _, r := range rows {
		key := address.NewKey(r.Block, r.Road)
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(r.Latitude), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(r.Longitude), 64)
		if key.IsZero() || latErr != nil || lonErr != nil {
			t.skipped++
			continue
		}
		if _, dup := t.points[key]; dup {
			continue
		}
		t.points[key] = Point{Latitude: lat, Longitude: lon}
	}
	return t
}
