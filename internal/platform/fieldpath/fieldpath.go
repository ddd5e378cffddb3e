// Package fieldpath resolves dotted field paths such as
// "vitalsMap.vitals.heart_rate" or "exercises[2].setList[0].time" against
// decoded JSON trees (map[string]interface{}, []interface{} and scalars).
//
// Resolution is total: absent values, type mismatches, out-of-range indexes
// and malformed expressions all report "not found" instead of an error.
package fieldpath

import (
	"regexp"
	"strconv"
	"strings"
)

// Shape describes what a lookup found at the end of a path.
type Shape int

const (
	// Missing means the path did not resolve, or resolved to JSON null.
	Missing Shape = iota
	// Scalar means a non-array value was found.
	Scalar
	// Array means a []interface{} value was found.
	Array
)

// indexedSegment matches "name[3]". The name may not itself contain brackets.
var indexedSegment = regexp.MustCompile(`^([^\[\]]+)\[(\d+)\]$`)

// Resolve returns the value located at path inside root. The boolean is
// false when the path cannot be followed or ends on a null value.
func Resolve(root interface{}, path string) (interface{}, bool) {
	if root == nil || path == "" {
		return nil, false
	}

	current := root
	for _, segment := range strings.Split(path, ".") {
		if current == nil {
			return nil, false
		}
		next, ok := step(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}

	if current == nil {
		return nil, false
	}
	return current, true
}

// ResolveArray returns the array located at path, or an empty slice when the
// value is missing or is not an array. The result is never nil.
func ResolveArray(root interface{}, path string) []interface{} {
	v, ok := Resolve(root, path)
	if !ok {
		return []interface{}{}
	}
	arr, isArr := v.([]interface{})
	if !isArr {
		return []interface{}{}
	}
	return arr
}

// Lookup resolves path and classifies the result, so callers can tell an
// absent value apart from one that is present with the wrong shape.
func Lookup(root interface{}, path string) (interface{}, Shape) {
	v, ok := Resolve(root, path)
	if !ok {
		return nil, Missing
	}
	if _, isArr := v.([]interface{}); isArr {
		return v, Array
	}
	return v, Scalar
}

// Exists reports whether path resolves to a non-null value.
func Exists(root interface{}, path string) bool {
	_, ok := Resolve(root, path)
	return ok
}

// step follows a single path segment from current.
func step(current interface{}, segment string) (interface{}, bool) {
	if segment == "" {
		return nil, false
	}

	obj, ok := current.(map[string]interface{})
	if !ok {
		return nil, false
	}

	if !strings.ContainsAny(segment, "[]") {
		v, found := obj[segment]
		return v, found
	}

	m := indexedSegment.FindStringSubmatch(segment)
	if m == nil {
		return nil, false
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		// digits that overflow int
		return nil, false
	}
	arr, isArr := obj[m[1]].([]interface{})
	if !isArr || idx >= len(arr) {
		return nil, false
	}
	return arr[idx], true
}
