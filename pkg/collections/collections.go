// Package collections holds the small generic slice helpers shared by
// otherwise unrelated packages.
package collections

// Apply applies fn to every item and returns the results in order.
func Apply[T, V any](items []T, fn func(T) V) []V {
	out := make([]V, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}

// MinBy returns a pointer into items at the smallest element under
// less. Ties keep the earliest element; an empty slice returns nil.
func MinBy[T any](items []T, less func(a, b T) bool) *T {
	var best *T
	for i := range items {
		if best == nil || less(items[i], *best) {
			best = &items[i]
		}
	}
	return best
}
