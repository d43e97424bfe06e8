// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package chunk

import (
	"fmt"
)

// Chunk is a contiguous slice [Start, End) of a row sequence sized to fit one batch.
type Chunk struct {
	Index int // Chunk index (0-based)
	Start int // First row (inclusive)
	End   int // Last row (exclusive)
}

// Len returns the number of rows covered by the chunk.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Partition splits total rows into consecutive chunks of at most size rows.
// Every chunk but the last holds exactly size rows; the last holds the remainder
// (or size when total divides evenly). Zero rows yield no chunks.
func Partition(total, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if total < 0 {
		return nil, fmt.Errorf("row count cannot be negative, got %d", total)
	}

	chunks := make([]Chunk, 0, Count(total, size))
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
		})
	}

	return chunks, nil
}

// Count returns ceil(total/size), the number of batches needed for total rows.
func Count(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Slice returns the part of rows covered by c.
func Slice[T any](rows []T, c Chunk) []T {
	return rows[c.Start:c.End]
}
