package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Marshal encodes the report as YAML when format is "yaml" or "yml", and as
// indented JSON otherwise.
func Marshal(r Report, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		data, err := yaml.Marshal(r)
		if err != nil {
			return nil, eris.Wrap(err, "stats: marshal yaml")
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "stats: marshal json")
		}
		return append(data, '\n'), nil
	}
}

// WriteReport writes r to path, choosing the encoding from the extension.
func WriteReport(path string, r Report) error {
	data, err := Marshal(r, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "stats: create dir %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "stats: write %s", path)
	}
	return nil
}
