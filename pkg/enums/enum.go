package enums

import (
	"fmt"
	"slices"
)

func known[T ~string](v T, valid []T) bool {
	return slices.Contains(valid, v)
}

func parse[T ~string](kind, value string, valid []T) (T, error) {
	if v := T(value); known(v, valid) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
