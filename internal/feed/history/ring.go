// Package history keeps a bounded record of broadcast repairs so the
// reconciliation read path can serve catch-up without unbounded memory.
package history

import (
	"time"

	"candlecast/internal/series"
)

// Entry records one repaired candle at the time it was broadcast.
type Entry struct {
	OpenTime   int64         `json:"open_time"`
	Candle     series.Candle `json:"candle"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Ring is a fixed-capacity circular buffer of repair entries. The oldest
// entry is evicted on overflow. Not safe for concurrent use; the owning
// feed serializes access.
type Ring struct {
	buf   []Entry
	head  int // index of the oldest entry
	count int
}

// NewRing returns an empty ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Append records an entry, evicting the oldest when full.
func (r *Ring) Append(e Entry) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
}

// Since returns every retained entry with an open time strictly after
// the checkpoint, in ascending open time order.
func (r *Ring) Since(openTime int64) []Entry {
	var out []Entry
	for i := 0; i < r.count; i++ {
		e := r.buf[(r.head+i)%len(r.buf)]
		if e.OpenTime > openTime {
			out = append(out, e)
		}
	}
	sortByOpenTime(out)
	return out
}

// Len reports the number of retained entries.
func (r *Ring) Len() int {
	return r.count
}

func sortByOpenTime(entries []Entry) {
	// Insertion sort; repair batches are small and mostly ordered.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].OpenTime < entries[j-1].OpenTime; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
