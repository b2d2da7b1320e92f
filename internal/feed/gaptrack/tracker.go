// Package gaptrack observes the forward stream of confirmed candles for a
// single series and maintains the set of detected gap segments until a
// repair batch fills them.
package gaptrack

// SegmentState describes whether a gap segment still has missing bars.
type SegmentState string

const (
	SegmentOpen   SegmentState = "open"
	SegmentClosed SegmentState = "closed"
)

// Segment is a contiguous range of expected-but-missing confirmed candles.
// From and To are the first and last missing open times, inclusive.
type Segment struct {
	From        int64        `json:"from"`
	To          int64        `json:"to"`
	MissingBars int          `json:"missing"`
	State       SegmentState `json:"state"`

	remaining map[int64]struct{}
}

// Remaining reports how many bars in the segment are still missing.
func (s *Segment) Remaining() int {
	return len(s.remaining)
}

// Tracker detects gaps on the confirmed forward stream and closes them as
// repairs arrive. It performs no I/O and is not safe for concurrent use;
// the owning feed serializes access.
type Tracker struct {
	intervalMS int64
	lastOpen   int64
	seen       bool
	segments   []*Segment
}

// New returns a tracker for a series with the given interval duration.
func New(intervalMS int64) *Tracker {
	return &Tracker{intervalMS: intervalMS}
}

// ObserveForward records a confirmed candle's open time. It returns the
// newly opened gap segment when the candle arrived more than one interval
// ahead of the previous one, and nil otherwise. Duplicate or backwards
// open times are absorbed without effect.
func (t *Tracker) ObserveForward(openTime int64) *Segment {
	if !t.seen {
		// First observation, nothing to compare against.
		t.seen = true
		t.lastOpen = openTime
		return nil
	}

	delta := openTime - t.lastOpen
	if delta <= 0 {
		// Retransmitted or out-of-order tick.
		return nil
	}

	missing := delta/t.intervalMS - 1
	t.lastOpen = openTime
	if missing <= 0 {
		return nil
	}

	seg := &Segment{
		From:        openTime - missing*t.intervalMS,
		To:          openTime - t.intervalMS,
		MissingBars: int(missing),
		State:       SegmentOpen,
		remaining:   make(map[int64]struct{}, missing),
	}
	for ts := seg.From; ts <= seg.To; ts += t.intervalMS {
		seg.remaining[ts] = struct{}{}
	}
	t.segments = append(t.segments, seg)

	return seg
}

// ObserveRepairs discards the provided open times from their matching open
// segments and returns every segment that became fully repaired. An open
// time matching no open segment is ignored. Repair attribution uses the
// first matching segment; segments produced by a single tracker never
// overlap since each spans strictly between two observed candles.
func (t *Tracker) ObserveRepairs(openTimes []int64) []*Segment {
	var closed []*Segment
	for _, ts := range openTimes {
		for _, seg := range t.segments {
			if seg.State != SegmentOpen || ts < seg.From || ts > seg.To {
				continue
			}
			delete(seg.remaining, ts)
			if len(seg.remaining) == 0 {
				seg.State = SegmentClosed
				closed = append(closed, seg)
			}
			break
		}
	}
	return closed
}

// OpenSegments returns the number of segments still missing bars.
func (t *Tracker) OpenSegments() int {
	n := 0
	for _, seg := range t.segments {
		if seg.State == SegmentOpen {
			n++
		}
	}
	return n
}

// LastConfirmed returns the most recent confirmed open time and whether
// any candle has been observed yet.
func (t *Tracker) LastConfirmed() (int64, bool) {
	return t.lastOpen, t.seen
}
