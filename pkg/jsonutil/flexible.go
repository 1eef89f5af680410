// Package jsonutil decodes loosely-typed JSON values produced by language models.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var leadingNumberPattern = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?`)

// IsNull reports whether raw is absent or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if IsNull(raw) {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Objects and arrays keep their raw representation
	return string(raw)
}

// FlexibleOptionalString is FlexibleStringValue that preserves null as nil.
// Blank strings are also reported as nil.
func FlexibleOptionalString(raw json.RawMessage) *string {
	s := strings.TrimSpace(FlexibleStringValue(raw))
	if s == "" {
		return nil
	}
	return &s
}

// FlexibleIntValue reads an integer from a number, a numeric string ("4", "4 drains")
// or null. Fractions are rounded to the nearest integer. Anything else yields 0, false.
func FlexibleIntValue(raw json.RawMessage) (int, bool) {
	f, ok := FlexibleFloatValue(raw)
	if !ok {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(math.Round(f)), true
}

// FlexibleFloatValue reads a float from a number or a string with a leading number.
func FlexibleFloatValue(raw json.RawMessage) (float64, bool) {
	if IsNull(raw) {
		return 0, false
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal, true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		match := leadingNumberPattern.FindString(strings.TrimSpace(strVal))
		if match == "" {
			return 0, false
		}
		v, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}

	return 0, false
}

// FlexibleStringSlice reads a list of strings. A single string becomes a
// one-element list, scalars inside arrays are stringified and nulls are dropped.
func FlexibleStringSlice(raw json.RawMessage) []string {
	out := []string{}
	if IsNull(raw) {
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := strings.TrimSpace(FlexibleStringValue(raw)); s != "" {
			out = append(out, s)
		}
		return out
	}

	for _, item := range items {
		if s := strings.TrimSpace(FlexibleStringValue(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
