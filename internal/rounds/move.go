package rounds

import (
	"slices"

	"rememberme/api/internal/apperr"
)

// moveTarget validates moving the element at index by moveBy and returns the
// destination index.
func moveTarget(index, moveBy, length int, what string) (int, error) {
	if index < 0 {
		return 0, apperr.NotFound(what + " not found")
	}
	target := index + moveBy
	if moveBy == 0 || target < 0 || target >= length {
		return 0, apperr.OutOfRange(what + " cannot be moved that far")
	}
	return target, nil
}

// move removes the element at from and reinserts it at to, where to is an
// index into the list after removal.
func move[T any](list []T, from, to int) []T {
	item := list[from]
	out := slices.Delete(slices.Clone(list), from, from+1)
	return slices.Insert(out, to, item)
}
