package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Parsed is either an accepted value or Unparsable with a reason
type Parsed[T any] struct {
	Value  T
	OK     bool
	Reason string
}

// Accept wraps a validated value
func Accept[T any](v T) Parsed[T] {
	return Parsed[T]{Value: v, OK: true}
}

// Unparsable marks model output that failed validation
func Unparsable[T any](reason string) Parsed[T] {
	return Parsed[T]{Reason: reason}
}

// StripFence removes an optional ``` or ```json opening line and the
// trailing fence, then trims whitespace
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return strings.TrimSpace(strings.Trim(s, "`"))
		}
		s = s[idx+1:]
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeObject decodes a single JSON object into a generic map. Numbers are
// kept as json.Number. Anything after the object is an error.
func DecodeObject(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if obj == nil {
		return nil, errors.New("decode object: null")
	}
	if dec.More() {
		return nil, errors.New("decode object: trailing data")
	}
	return obj, nil
}

func stringField(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key].(string)
	return strings.TrimSpace(v), ok
}

// decimalField accepts a JSON number or a numeric string
func decimalField(obj map[string]any, key string) (decimal.Decimal, bool) {
	switch v := obj[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func currencyCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return ""
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return s
}
