package mcp

import (
	"sync"
	"time"
)

// replayGuard remembers accepted signatures per agent for ttl. A signature
// covers the timestamp, so the ttl only needs to outlast the skew window.
type replayGuard struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	limit     int
	lastPrune time.Time
}

func newReplayGuard(ttl time.Duration) *replayGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &replayGuard{seen: map[string]time.Time{}, ttl: ttl, limit: 65536}
}

func (g *replayGuard) allow(sessionKey, signature string, now time.Time) bool {
	if g == nil || signature == "" {
		return true
	}
	key := sessionKey + "|" + signature

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.seen) > 4096 || now.Sub(g.lastPrune) > g.ttl/2 {
		for k, exp := range g.seen {
			if !exp.After(now) {
				delete(g.seen, k)
			}
		}
		g.lastPrune = now
	}
	if exp, ok := g.seen[key]; ok && exp.After(now) {
		return false
	}
	if len(g.seen) >= g.limit {
		// Still full after pruning: start over rather than grow.
		g.seen = map[string]time.Time{}
	}
	g.seen[key] = now.Add(g.ttl)
	return true
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
