// Package internal holds helpers shared by the ilw packages.
package internal

import (
	"reflect"
	"strings"
)

// IsTypedNil reports whether x is nil or an interface holding a nil pointer,
// map, slice, func or channel. Sinks stored behind interfaces are checked with
// it so a (*T)(nil) observer is never registered.
func IsTypedNil(x any) bool {
	if x == nil {
		return true
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

// NormalizeName trims surrounding whitespace and lowercases a registry name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
