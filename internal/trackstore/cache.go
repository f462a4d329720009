package trackstore

import (
	"context"
	"sort"
	"sync"

	"github.com/raceplayback/server/internal/geometry"
	"golang.org/x/sync/singleflight"
)

// CenterlineCache builds each track's centerline once and shares it.
// Concurrent misses for the same track load it only once.
type CenterlineCache struct {
	store Store
	steps int

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*geometry.TrackCenterline
}

// NewCenterlineCache creates a cache over store. steps <= 0 uses the
// default sampling.
func NewCenterlineCache(store Store, steps int) *CenterlineCache {
	if steps <= 0 {
		steps = geometry.DefaultCenterlineSteps
	}
	return &CenterlineCache{
		store:   store,
		steps:   steps,
		entries: make(map[string]*geometry.TrackCenterline),
	}
}

// Get returns the centerline of track, loading it on first use.
func (c *CenterlineCache) Get(ctx context.Context, track string) (*geometry.TrackCenterline, error) {
	key := NormalizeTrack(track)

	c.mu.RLock()
	cl, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return cl, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		cl, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return cl, nil
		}

		b, err := c.store.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		left, right := b.Edges()
		cl = geometry.NewTrackCenterlineWithSteps(left, right, c.steps)

		c.mu.Lock()
		c.entries[key] = cl
		c.mu.Unlock()
		return cl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*geometry.TrackCenterline), nil
}

// Invalidate drops one track, e.g. after a rescan.
func (c *CenterlineCache) Invalidate(track string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, NormalizeTrack(track))
}

// Clear drops every cached centerline and returns how many there were.
func (c *CenterlineCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*geometry.TrackCenterline)
	return n
}

// Tracks lists the cached track names.
func (c *CenterlineCache) Tracks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tracks := make([]string, 0, len(c.entries))
	for k := range c.entries {
		tracks = append(tracks, k)
	}
	sort.Strings(tracks)
	return tracks
}
