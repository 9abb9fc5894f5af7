package cdpcontrol

import (
	"sync"

	"github.com/chromedp/cdproto/target"
)

// TabRegistry hands out stable integer handles for CDP target IDs. A handle
// lives until its target disappears from a sync and is never reused.
type TabRegistry struct {
	mu       sync.RWMutex
	next     int64
	byTarget map[target.ID]int64
	byHandle map[int64]target.ID
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{
		byTarget: make(map[target.ID]int64),
		byHandle: make(map[int64]target.ID),
	}
}

// Register returns the handle for targetID, allocating one on first sight.
func (r *TabRegistry) Register(targetID target.ID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byTarget[targetID]; ok {
		return h
	}
	r.next++
	r.byTarget[targetID] = r.next
	r.byHandle[r.next] = targetID
	return r.next
}

func (r *TabRegistry) Target(handle int64) (target.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handle]
	return id, ok
}

// Retain drops every target not in keep.
func (r *TabRegistry) Retain(keep map[target.ID]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.byTarget {
		if _, ok := keep[id]; ok {
			continue
		}
		delete(r.byTarget, id)
		delete(r.byHandle, h)
	}
}

// Count returns the number of live handles.
func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTarget)
}
