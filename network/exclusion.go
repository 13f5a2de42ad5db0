package network

import (
	"sync"
	"time"
)

// scoreLimit is the misbehaviour score at which a peer starts being
// excluded (§4.10).
const scoreLimit = 2

const (
	excludeTime   = time.Hour
	excludeRemove = 24 * time.Hour
)

// excludedPeer tracks one misbehaving IP's score and exclusion window,
// grounded on the original implementation's Peer/PeerExclusion shape.
type excludedPeer struct {
	score        uint64
	excludeUntil time.Time
}

func (p *excludedPeer) misbehaved(now time.Time) {
	p.score++
	factor := p.score * 2
	if factor < 1 {
		factor = 1
	}
	p.excludeUntil = now.Add(excludeTime * time.Duration(factor))
}

func (p *excludedPeer) isExcluded(now time.Time) bool {
	return p.score >= scoreLimit && p.excludeUntil.After(now)
}

func (p *excludedPeer) hasExpired(now time.Time) bool {
	return p.excludeUntil.Add(excludeRemove * time.Duration(p.score)).Before(now)
}

// DefaultExclusionMaxSize bounds the peer exclusion map.
const DefaultExclusionMaxSize = 5000

// PeerExclusion scores misbehaving peers by IP and temporarily excludes
// them, clearing the entry once its exclusion window plus a cooldown has
// fully elapsed.
type PeerExclusion struct {
	maxSize int

	mu     sync.Mutex
	byIP   map[string]*excludedPeer
}

func NewPeerExclusion() *PeerExclusion {
	return &PeerExclusion{maxSize: DefaultExclusionMaxSize, byIP: make(map[string]*excludedPeer)}
}

// PeerMisbehaved records a misbehaviour for ip, returning its new score.
func (e *PeerExclusion) PeerMisbehaved(ip string) uint64 {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.byIP[ip]; ok {
		p.misbehaved(now)
		return p.score
	}
	e.evictIfFull()
	p := &excludedPeer{score: 1, excludeUntil: now.Add(excludeTime)}
	e.byIP[ip] = p
	return p.score
}

// IsExcluded reports whether ip is currently excluded, lazily removing its
// entry if the exclusion has fully expired.
func (e *PeerExclusion) IsExcluded(ip string) bool {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.byIP[ip]
	if !ok {
		return false
	}
	if p.hasExpired(now) {
		delete(e.byIP, ip)
		return false
	}
	return p.isExcluded(now)
}

func (e *PeerExclusion) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byIP)
}

// evictIfFull drops the entry with the nearest exclusion deadline once the
// table is at capacity. Called with mu held.
func (e *PeerExclusion) evictIfFull() {
	if len(e.byIP) < e.maxSize {
		return
	}
	var oldestIP string
	var oldest time.Time
	for ip, p := range e.byIP {
		if oldestIP == "" || p.excludeUntil.Before(oldest) {
			oldestIP, oldest = ip, p.excludeUntil
		}
	}
	if oldestIP != "" {
		delete(e.byIP, oldestIP)
	}
}
