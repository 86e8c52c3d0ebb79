// Package chunker plans how a batch of tracking events is split into
// deliveries that respect the sink's payload budget.
//
// The plan is an estimate, not a guarantee: the per-event size is averaged
// over a sample taken from the head of the batch, so a chunk's true
// serialized size can still exceed the budget when the sample
// underestimates. The sink rejects oversize chunks explicitly; nothing is
// silently truncated.
package chunker

import (
	"github.com/eventrelay/eventrelay/pkg/events"
	"github.com/eventrelay/eventrelay/pkg/json"
)

// Chunk is a contiguous sub-sequence of the batch sent in one delivery.
type Chunk []events.TrackingEvent

// Plan partitions batch into consecutive chunks of the estimated size.
// The chunks concatenate back to exactly the input: no overlap, no gaps,
// order preserved. An empty batch yields no chunks.
func Plan(batch []events.TrackingEvent, maxChunkBytes, sampleSize int) []Chunk {
	if len(batch) == 0 {
		return nil
	}

	size := ChunkSize(batch, maxChunkBytes, sampleSize)

	chunks := make([]Chunk, 0, (len(batch)+size-1)/size)
	for start := 0; start < len(batch); start += size {
		end := start + size
		if end > len(batch) {
			end = len(batch)
		}
		chunks = append(chunks, Chunk(batch[start:end]))
	}

	return chunks
}

// ChunkSize estimates how many events fit in maxChunkBytes, based on the
// average serialized size of up to sampleSize events from the head of the
// batch. Always at least 1, so even a batch of oversized events makes
// progress one event at a time.
func ChunkSize(batch []events.TrackingEvent, maxChunkBytes, sampleSize int) int {
	n := sampleSize
	if len(batch) < n {
		n = len(batch)
	}
	if n <= 0 {
		return 1
	}

	total := 0
	for _, e := range batch[:n] {
		total += json.SerializedSize(e)
	}

	avg := total / n
	if avg < 1 {
		avg = 1
	}

	size := maxChunkBytes / avg
	if size < 1 {
		size = 1
	}
	return size
}
