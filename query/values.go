package query

import (
	"database/sql/driver"
	"encoding"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeRow converts driver values in place into forms that encode to
// readable JSON.
func normalizeRow(values []any) []any {
	for i, v := range values {
		values[i] = normalizeValue(v)
	}
	return values
}

// normalizeValue maps one decoded cell to a JSON-friendly value. Types pgx
// decodes into raw arrays or bare structs (uuid, interval, time, ranges,
// geometric types) become their PostgreSQL text form.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		time.Time:
		return v
	case float64:
		return normalizeFloat(x)
	case float32:
		return normalizeFloat(float64(x))
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return `\x` + hex.EncodeToString(x)
	case net.HardwareAddr:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		return x
	case pgtype.Range[any]:
		return rangeText(x)
	case json.Marshaler, encoding.TextMarshaler:
		return v
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return normalizeValue(dv)
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}

// normalizeFloat spells out the values encoding/json refuses.
func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func rangeText(r pgtype.Range[any]) any {
	if !r.Valid {
		return nil
	}
	if r.LowerType == pgtype.Empty {
		return "empty"
	}
	var b strings.Builder
	if r.LowerType == pgtype.Inclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if r.LowerType != pgtype.Unbounded {
		b.WriteString(boundText(r.Lower))
	}
	b.WriteByte(',')
	if r.UpperType != pgtype.Unbounded {
		b.WriteString(boundText(r.Upper))
	}
	if r.UpperType == pgtype.Inclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}

func boundText(v any) string {
	switch x := normalizeValue(v).(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
