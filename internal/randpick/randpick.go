// Package randpick selects random subsets without replacement.
package randpick

import "math/rand"

// Choose returns up to k elements of items, each appearing at most once.
// When k >= len(items) the whole slice is returned in its original order.
// A nil result means nothing could be chosen (k <= 0 or empty input).
// The input slice is never modified.
func Choose[T any](items []T, k int) []T {
	if k <= 0 || len(items) == 0 {
		return nil
	}
	if k >= len(items) {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	shuffled := make([]T, len(items))
	copy(shuffled, items)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:k]
}
