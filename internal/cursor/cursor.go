// Package cursor implements opaque pagination cursors. A cursor is a
// base64 URL-encoded JSON payload carrying the entity name, the ordering
// it was minted under, and the string-coerced ordering key values of one
// row (tiebreak included). A cursor is therefore self-contained: resuming
// needs no server-side state, only the same entity and ordering.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MrThearMan/undine-sub001/internal/schema"
)

const version = 1

// Payload is the decoded cursor contents.
type Payload struct {
	Version    int      `json:"v"`
	Entity     string   `json:"e"`
	OrderKey   string   `json:"o"`
	Directions []string `json:"d"`
	Values     []string `json:"x"`
}

// Encode mints a cursor for one row. Values are the row's ordering key
// values, in ordering-step order.
func Encode(entity string, orderKey string, directions []string, values []any) (string, error) {
	coerced := make([]string, len(values))
	for i, v := range values {
		s, err := coerceToString(v)
		if err != nil {
			return "", fmt.Errorf("cursor value %d: %w", i, err)
		}
		coerced[i] = s
	}
	payload := Payload{
		Version:    version,
		Entity:     entity,
		OrderKey:   orderKey,
		Directions: directions,
		Values:     coerced,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Decode parses an opaque cursor. Any defect fails closed: truncated
// base64, malformed JSON, an unknown version, or empty values all reject
// the cursor rather than guessing at a resume position.
func Decode(raw string) (*Payload, error) {
	if raw == "" {
		return nil, errors.New("empty cursor")
	}
	data, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor encoding: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed cursor payload: %w", err)
	}
	if payload.Version != version {
		return nil, fmt.Errorf("unsupported cursor version %d", payload.Version)
	}
	if len(payload.Values) == 0 {
		return nil, errors.New("cursor carries no ordering values")
	}
	if len(payload.Directions) != len(payload.Values) {
		return nil, fmt.Errorf("cursor carries %d directions for %d values", len(payload.Directions), len(payload.Values))
	}
	return &payload, nil
}

// Validate checks a decoded cursor against the query it is applied to.
// Entity, ordering key, and per-step directions must all match the
// ordering the current request compiled; otherwise the positions the
// cursor encodes are meaningless.
func (p *Payload) Validate(entity string, orderKey string, directions []string) error {
	if p.Entity != entity {
		return fmt.Errorf("cursor was issued for entity %q, not %q", p.Entity, entity)
	}
	if p.OrderKey != orderKey {
		return fmt.Errorf("cursor ordering %q does not match requested ordering %q", p.OrderKey, orderKey)
	}
	if len(p.Directions) != len(directions) {
		return fmt.Errorf("cursor has %d ordering steps, requested ordering has %d", len(p.Directions), len(directions))
	}
	for i, dir := range directions {
		if p.Directions[i] != dir {
			return fmt.Errorf("cursor direction %q at step %d does not match requested %q", p.Directions[i], i, dir)
		}
	}
	return nil
}

// ParseValues converts the cursor's string-coerced values back into
// driver values using the ordering fields' declared types.
func (p *Payload) ParseValues(fields []*schema.Field) ([]any, error) {
	if len(fields) != len(p.Values) {
		return nil, fmt.Errorf("cursor has %d values for %d ordering fields", len(p.Values), len(fields))
	}
	out := make([]any, len(p.Values))
	for i, s := range p.Values {
		v, err := parseValue(fields[i].Type, s)
		if err != nil {
			return nil, fmt.Errorf("cursor value for %q: %w", fields[i].Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func coerceToString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", errors.New("nil ordering value")
	case string:
		return x, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("unsupported ordering value type %T", v)
	}
}

func parseValue(t schema.FieldType, s string) (any, error) {
	switch t {
	case schema.TypeInt:
		return strconv.ParseInt(s, 10, 64)
	case schema.TypeFloat:
		return strconv.ParseFloat(s, 64)
	case schema.TypeBool:
		return strconv.ParseBool(s)
	case schema.TypeTime:
		return time.Parse(time.RFC3339Nano, s)
	case schema.TypeUUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case schema.TypeBytes:
		return base64.StdEncoding.DecodeString(s)
	default:
		return s, nil
	}
}
