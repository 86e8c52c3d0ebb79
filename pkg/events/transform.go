package events

import (
	"go.uber.org/zap"

	"github.com/eventrelay/eventrelay/pkg/errors"
	"github.com/eventrelay/eventrelay/pkg/json"
)

// Stats records per-row defects absorbed during transformation. They are
// surfaced as diagnostics; none of them fail a run.
type Stats struct {
	RowsIn    int
	Oversize  int
	Malformed int
}

// Skipped returns the total number of rows dropped.
func (s Stats) Skipped() int {
	return s.Oversize + s.Malformed
}

// Transform maps raw rows into tracking events, preserving input order.
// Rows whose serialized size exceeds maxEventSize are skipped and counted,
// as are rows missing a required field. Both are per-row defects: the run
// continues without them.
func Transform(rows []RawRow, mapping FieldMapping, maxEventSize int, logger *zap.Logger) ([]TrackingEvent, Stats) {
	stats := Stats{RowsIn: len(rows)}
	batch := make([]TrackingEvent, 0, len(rows))

	for _, raw := range rows {
		size := json.SerializedSize(raw)
		if size > maxEventSize {
			stats.Oversize++
			logger.Warn("row too large, skipping",
				zap.Int("size_bytes", size),
				zap.Int("max_bytes", maxEventSize))
			continue
		}

		row, err := ParseRow(raw, mapping)
		if err != nil {
			stats.Malformed++
			logger.Warn("malformed row, skipping",
				zap.String("reason", string(errors.TypeOf(err))),
				zap.Error(err))
			continue
		}

		batch = append(batch, row.Tracking())
	}

	return batch, stats
}

// MaxTimestamp returns the largest numeric timestamp across all input rows,
// including rows the transformer later drops. The watermark must advance
// past skipped rows or the next run would re-read them forever.
func MaxTimestamp(rows []RawRow, tsField string) (int64, bool) {
	var max int64
	found := false

	for _, raw := range rows {
		ts, ok := NumericTimestamp(raw[tsField])
		if !ok {
			continue
		}
		if !found || ts > max {
			max = ts
			found = true
		}
	}

	return max, found
}
