package assessment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Classify returns the label of the first rule under key whose closed
// interval contains value. It returns nil when value is nil, the key has no
// rule table, value is not numeric, or no rule matches. Rules are scanned in
// declared order, so with overlapping rules the earlier one wins.
func Classify(key string, value interface{}, table ClassificationTable) *string {
	if value == nil {
		return nil
	}
	rules, ok := table[key]
	if !ok {
		return nil
	}
	n, ok := toNumber(value)
	if !ok {
		return nil
	}
	for _, r := range rules {
		if r.Contains(n) {
			label := r.Label
			return &label
		}
	}
	return nil
}

// toNumber coerces decoded JSON values to a finite float64.
func toNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
