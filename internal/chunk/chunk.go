// Package chunk splits ordered slices into bounded, consecutive sub-slices.
package chunk

import (
	"fmt"

	"github.com/annachatkara/moviedb/internal/common"
)

// Split partitions items into consecutive chunks of at most size elements.
// Concatenating the result reproduces items exactly. Each chunk is a
// sub-slice of items with its capacity capped, so appending to one chunk
// never overwrites the next.
//
// Split returns common.ErrInvalidArgument when size is not positive.
// An empty input yields no chunks.
func Split[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", common.ErrInvalidArgument, size)
	}

	chunks := make([][]T, 0, Count(len(items), size))
	for start := 0; start < len(items); {
		end := start + min(size, len(items)-start)
		chunks = append(chunks, items[start:end:end])
		start = end
	}
	return chunks, nil
}

// Count reports how many chunks Split produces for n items.
// It returns 0 for non-positive sizes.
func Count(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	c := n / size
	if n%size != 0 {
		c++
	}
	return c
}
