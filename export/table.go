// Package export renders already-fetched query results as downloadable
// artifacts: an xlsx workbook and a standalone HTML report.
package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// Column is a result column name. It unmarshals from either a plain string
// or an object with a "name" field, the two shapes clients send.
type Column string

func (c *Column) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = Column(name)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("column must be a string or an object with a name: %w", err)
	}
	*c = Column(obj.Name)
	return nil
}

// Table is a set of positional rows under named columns.
type Table struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Names returns the column names as strings.
func (t Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = string(c)
	}
	return names
}

// cell returns row[i], or nil when the row is short.
func cell(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}

// FormatValue renders a decoded JSON value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w\-.]`)

const maxFilenameLen = 100

// SanitizeFilename keeps word characters, '-' and '.', replaces everything
// else with '_' and truncates to 100 characters. An empty name becomes
// fallback.
func SanitizeFilename(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	safe := unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(safe) > maxFilenameLen {
		safe = safe[:maxFilenameLen]
	}
	return safe
}
