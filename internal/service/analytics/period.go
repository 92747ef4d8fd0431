// Package analytics computes time-series, project, and category cost
// aggregates over telemetry rows, and flags statistical anomalies among
// them. All aggregation and detection functions are pure, synchronous,
// single-pass computations over in-memory slices; they hold no state and
// are safe to call concurrently.
package analytics

import (
	"time"

	"github.com/ashita-ai/keisoku/internal/model"
)

// AggregatePeriod buckets rows into fixed-width, gap-filled intervals of
// the given granularity covering the inclusive range [startMs, endMs].
//
// Bucket boundaries are aligned to the epoch, not to startMs, so the first
// bucket may begin strictly before the requested range. Buckets with no
// contributing rows still appear with all sums at zero. Rows with
// timestamps outside the range are dropped silently.
func AggregatePeriod(rows []model.TelemetryRecord, g model.Granularity, startMs, endMs int64) []model.PeriodBucket {
	size := g.SizeMs()
	if size <= 0 || startMs > endMs {
		return []model.PeriodBucket{}
	}

	firstStart := alignToBucket(startMs, size)

	// Generate the contiguous series first so gaps are zero-filled.
	var buckets []model.PeriodBucket
	index := make(map[int64]int)
	for start := firstStart; start <= endMs; start += size {
		index[start] = len(buckets)
		buckets = append(buckets, model.PeriodBucket{
			BucketStart: start,
			BucketEnd:   start + size - 1,
			Label:       bucketLabel(start, g),
		})
	}

	for _, row := range rows {
		if row.TimestampMs < startMs || row.TimestampMs > endMs {
			continue
		}
		i, ok := index[alignToBucket(row.TimestampMs, size)]
		if !ok {
			// Cannot happen for in-range rows given the series above,
			// but a missing bucket must never panic the query path.
			continue
		}
		buckets[i].Entries++
		buckets[i].InputTokens += row.InputTokens
		buckets[i].OutputTokens += row.OutputTokens
		buckets[i].CostUSD += row.EstimatedCostUSD
	}

	return buckets
}

// alignToBucket floors ms to the nearest bucket boundary at or below it.
// Integer division truncates toward zero, so negative timestamps need the
// explicit floor adjustment.
func alignToBucket(ms, size int64) int64 {
	q := ms / size
	if ms%size != 0 && ms < 0 {
		q--
	}
	return q * size
}

// bucketLabel renders the bucket start as a human label: the ISO-8601
// timestamp truncated to the hour for hour granularity, the date alone for
// day and week. The label always reflects the bucket start.
func bucketLabel(startMs int64, g model.Granularity) string {
	t := time.UnixMilli(startMs).UTC()
	if g == model.GranularityHour {
		return t.Format("2006-01-02T15:00:00Z")
	}
	return t.Format("2006-01-02")
}
