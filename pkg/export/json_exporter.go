package export

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONExporter renders datasets as a JSON array of objects keeping column order.
type JSONExporter struct {
	indent string
}

// NewJSONExporter builds a JSON exporter that indents with two spaces.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{indent: "  "}
}

// Render produces an indented JSON array, one object per row.
func (e *JSONExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("json"); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	if len(data.Rows) == 0 {
		buf.WriteString("[]\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("[\n")
	for i, row := range data.Rows {
		buf.WriteString(e.indent + "{\n")
		for j, col := range data.Columns {
			key, err := json.Marshal(col.Key)
			if err != nil {
				return nil, fmt.Errorf("encode json key %s: %w", col.Key, err)
			}
			value, err := json.Marshal(row[col.Key])
			if err != nil {
				return nil, fmt.Errorf("encode json value %s: %w", col.Key, err)
			}
			buf.WriteString(e.indent + e.indent)
			buf.Write(key)
			buf.WriteString(": ")
			buf.Write(value)
			if j < len(data.Columns)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString(e.indent + "}")
		if i < len(data.Rows)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}
