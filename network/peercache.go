package network

import (
	"encoding/json"
	"time"

	"github.com/nanolattice/nanod/store"
)

// peerRecord is the value stored per address in store.TablePeers.
type peerRecord struct {
	Addr string `json:"addr"`
	Seen int64  `json:"seen"` // unix seconds
}

// defaultEraseCutoff discards a cached peer once its last-seen timestamp is
// older than this (§4.10).
const defaultEraseCutoff = time.Hour

// PeerCache periodically snapshots every live channel's address into
// store.TablePeers, and prunes entries that have gone stale. It gives a
// restarted node a list of addresses to redial before any peer speaks up.
type PeerCache struct {
	s           store.Store
	eraseCutoff time.Duration
}

func NewPeerCache(s store.Store) *PeerCache {
	return &PeerCache{s: s, eraseCutoff: defaultEraseCutoff}
}

// Snapshot records addrs as seen now, then prunes any cached address older
// than the erase cutoff or dated in the future (a clock-skewed or malicious
// entry).
func (c *PeerCache) Snapshot(addrs []string) error {
	now := time.Now()

	tx, err := c.s.BeginWrite()
	if err != nil {
		return err
	}
	defer tx.Discard()

	for _, addr := range addrs {
		rec := peerRecord{Addr: addr, Seen: now.Unix()}
		buf, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := tx.Put(store.TablePeers, []byte(addr), buf); err != nil {
			return err
		}
	}

	var stale [][]byte
	_ = tx.Iterate(store.TablePeers, nil, func(key, value []byte) bool {
		var rec peerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			stale = append(stale, append([]byte(nil), key...))
			return true
		}
		seen := time.Unix(rec.Seen, 0)
		if now.Sub(seen) > c.eraseCutoff || seen.After(now) {
			stale = append(stale, append([]byte(nil), key...))
		}
		return true
	})
	for _, k := range stale {
		if err := tx.Delete(store.TablePeers, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Addresses returns every currently cached peer address.
func (c *PeerCache) Addresses() ([]string, error) {
	tx, err := c.s.BeginRead()
	if err != nil {
		return nil, err
	}
	defer tx.Discard()

	var out []string
	err = tx.Iterate(store.TablePeers, nil, func(key, value []byte) bool {
		var rec peerRecord
		if json.Unmarshal(value, &rec) == nil {
			out = append(out, rec.Addr)
		}
		return true
	})
	return out, err
}
