package factory

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// DecodeRows parses a JSON array of objects into rows. Numbers are kept as
// their literal text so large ids and money amounts survive unchanged.
func DecodeRows(data []byte) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}

	rows := make([]Row, 0, len(raw))
	for _, m := range raw {
		row := make(Row, len(m))
		for k, v := range m {
			if n, ok := v.(json.Number); ok {
				v = n.String()
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
