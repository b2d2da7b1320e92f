package feed

import (
	"sync"

	"candlecast/internal/series"
)

// Registry hands out the per-series feed instances. Feeds are created
// at startup from the configured series list; lookups for unknown
// series fail rather than lazily creating state.
type Registry struct {
	mu    sync.RWMutex
	feeds map[series.Key]*Feed
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[series.Key]*Feed)}
}

// Add registers a feed under its series key.
func (r *Registry) Add(f *Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[series.Key{Symbol: f.Symbol(), Interval: f.Interval()}] = f
}

// Get returns the feed for a series, if configured.
func (r *Registry) Get(symbol, interval string) (*Feed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[series.Key{Symbol: symbol, Interval: interval}]
	return f, ok
}

// All returns every registered feed.
func (r *Registry) All() []*Feed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Feed, 0, len(r.feeds))
	for _, f := range r.feeds {
		out = append(out, f)
	}
	return out
}
