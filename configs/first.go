package configs

import (
	"errors"
)

// First decodes the value at path from the first file defining it.
// A missing value is the zero T; an invalid one panics.
func First[T any](loader Loader, path string) T {
	var value T
	if err := loader.AssignFirst(path, &value); err != nil {
		if errors.Is(err, ErrValueNotFound) {
			return value
		}
		panic(err)
	}
	return value
}
