package executor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MrThearMan/undine-sub001/internal/dbexec"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

type row = map[string]any

// scanRows materializes a result set into field-keyed rows. The statement
// selected exactly the plan node's columns in order, so fields map to
// result columns positionally.
func scanRows(rows dbexec.Rows, fields []*schema.Field) ([]row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}
	if len(cols) != len(fields) {
		return nil, fmt.Errorf("result has %d columns, plan selected %d", len(cols), len(fields))
	}

	var out []row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r := make(row, len(fields))
		for i, f := range fields {
			r[f.Name] = convertValue(values[i], f.Type)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// convertValue normalizes driver values to the field's declared type.
// The MySQL driver returns []byte for most textual columns.
func convertValue(v any, t schema.FieldType) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok && t != schema.TypeBytes {
		s := string(b)
		switch t {
		case schema.TypeInt:
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		case schema.TypeFloat:
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		case schema.TypeBool:
			if parsed, err := strconv.ParseBool(s); err == nil {
				return parsed
			}
		case schema.TypeTime:
			if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
				return ts
			}
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return ts
			}
		}
		return s
	}
	return v
}

// scanCount reads a single COUNT(*) result.
func scanCount(rows dbexec.Rows) (int64, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("count query returned no rows")
	}
	var count int64
	if err := rows.Scan(&count); err != nil {
		return 0, fmt.Errorf("scan count: %w", err)
	}
	return count, rows.Err()
}

// keyFor canonicalizes a parent link value for group lookup. Numeric
// types collapse to their decimal form so an int64 fetched at one level
// matches the same value scanned differently at the next.
func keyFor(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", x)
	}
}
