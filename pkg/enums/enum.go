// Package enums holds the string-backed states persisted in Postgres enum columns.
package enums

import (
	"fmt"
	"slices"
)

func oneOf[T ~string](value T, allowed ...T) bool {
	return slices.Contains(allowed, value)
}

// parseExact matches raw against allowed without case folding; stored values are canonical.
func parseExact[T ~string](kind, raw string, allowed ...T) (T, error) {
	if value := T(raw); oneOf(value, allowed...) {
		return value, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
