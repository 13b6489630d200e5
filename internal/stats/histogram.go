package stats

import "math/bits"

const (
	// 36 buckets allows a value up to 2^42 which covers 1hr in nanoseconds
	// 6 entries per bucket keeps a relative error of 1 / 2^6 or ~1.5%.
	histEntriesBits = 6
	histBuckets     = 36
	histEntries     = 1 << histEntriesBits
)

// histBucket is the type of a histogram bucket.
type histBucket [histEntries]int64

// lowerValue returns the smallest value that can be stored at the entry.
func lowerValue(bucket uint, entry int) int64 {
	return (1<<bucket-1)<<histEntriesBits + int64(entry<<bucket)
}

// middleValue returns the value between the smallest and largest that can be
// stored at the entry.
func middleValue(bucket uint, entry int) int64 {
	return (1<<bucket-1)<<histEntriesBits + int64(entry<<bucket) + (1 << bucket / 2)
}

// upperValue returns the largest value that can be stored at the entry.
func upperValue(bucket uint, entry int) int64 {
	return (1<<bucket-1)<<histEntriesBits + int64(entry<<bucket) + (1 << bucket)
}

// Histogram keeps track of an exponentially increasing range of buckets
// so that there is a consistent relative error per bucket. It is only
// touched by the event loop, so it does no synchronization.
type Histogram struct {
	total  int64
	counts [histBuckets]*histBucket
}

// Observe records a value, typically a duration in nanoseconds. Negative
// values are recorded as zero.
func (h *Histogram) Observe(v int64) {
	if v < 0 {
		v = 0
	}
	v += histEntries
	bucket := uint64(bits.Len64(uint64(v))) - histEntriesBits - 1
	entry := uint64(v>>bucket) - histEntries

	if bucket < histBuckets && entry < histEntries {
		b := h.counts[bucket]
		if b == nil {
			b = new(histBucket)
			h.counts[bucket] = b
		}
		b[entry]++
		h.total++
	}
}

// Total returns the number of observed values.
func (h *Histogram) Total() int64 { return h.total }

// Quantile returns an estimation of the qth quantile in [0, 1].
func (h *Histogram) Quantile(q float64) int64 {
	target, acc := int64(q*float64(h.total)+0.5), int64(0)

	for bucket, b := range h.counts {
		if b == nil {
			continue
		}
		for entry := range b {
			acc += b[entry]
			if acc >= target {
				return lowerValue(uint(bucket), entry)
			}
		}
	}

	return upperValue(histBuckets, histEntries)
}

// Average returns an estimation of the average.
func (h *Histogram) Average() float64 {
	if h.total == 0 {
		return 0
	}

	acc := int64(0)
	for bucket, b := range h.counts {
		if b == nil {
			continue
		}
		for entry, count := range b {
			if count > 0 {
				acc += count * middleValue(uint(bucket), entry)
			}
		}
	}
	return float64(acc) / float64(h.total)
}
