package gateway

import (
	"context"
	"sort"
	"sync"
)

// Hub fans out events per session id to any number of feeds.
//
// Callers that need snapshots delivered in write order must hold their own
// write lock across the write and the Publish call.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Feed]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Feed]struct{})}
}

// Subscribe registers a new feed for id. The feed is removed from the hub
// when it stops, and stopped when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, id string) *Feed {
	var f *Feed
	f = NewFeed(func() { h.remove(id, f) })

	h.mu.Lock()
	set, ok := h.subs[id]
	if !ok {
		set = make(map[*Feed]struct{})
		h.subs[id] = set
	}
	set[f] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-f.Done():
		}
	}()
	return f
}

// Publish sends one event per feed subscribed to id. build is called once
// per feed so each consumer owns its snapshot.
func (h *Hub) Publish(id string, build func() Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for f := range h.subs[id] {
		f.Publish(build())
	}
	return len(h.subs[id])
}

// Count returns the number of live feeds for id.
func (h *Hub) Count(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

// IDs returns the session ids with at least one live feed, sorted.
func (h *Hub) IDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll stops every feed.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*Feed
	for _, set := range h.subs {
		for f := range set {
			all = append(all, f)
		}
	}
	h.mu.Unlock()
	for _, f := range all {
		f.Close()
	}
}

func (h *Hub) remove(id string, f *Feed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[id]
	delete(set, f)
	if len(set) == 0 {
		delete(h.subs, id)
	}
}
