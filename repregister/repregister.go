// Package repregister implements the Representative Register and Online
// Representatives sampler (§4.9): tracking which channels carry which
// representative accounts, and which reps have been seen voting recently
// enough to count toward online weight.
package repregister

import (
	"sync"
	"time"

	"github.com/nanolattice/nanod/types"
)

// Entry is one tracked representative.
type Entry struct {
	Account      types.Account
	Channel      uint64
	LastRequest  time.Time
	LastResponse time.Time
}

// Register indexes representatives by account and by channel, so that a
// dropped channel evicts every rep it carried (§4.9).
type Register struct {
	mu         sync.RWMutex
	byAccount  map[types.Account]*Entry
	byChannel  map[uint64]map[types.Account]bool
}

func New() *Register {
	return &Register{
		byAccount: make(map[types.Account]*Entry),
		byChannel: make(map[uint64]map[types.Account]bool),
	}
}

// OnRepResponse upserts account as a representative seen on channel and
// refreshes its last_response time.
func (r *Register) OnRepResponse(channel uint64, account types.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byAccount[account]
	if !ok {
		e = &Entry{Account: account}
		r.byAccount[account] = e
	} else if e.Channel != channel {
		delete(r.byChannel[e.Channel], account)
	}
	e.Channel = channel
	e.LastResponse = time.Now()

	if r.byChannel[channel] == nil {
		r.byChannel[channel] = make(map[types.Account]bool)
	}
	r.byChannel[channel][account] = true
}

// OnRepRequest updates last_request for every representative bound to
// channel (a confirm-request was just sent there).
func (r *Register) OnRepRequest(channel uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for acc := range r.byChannel[channel] {
		if e, ok := r.byAccount[acc]; ok {
			e.LastRequest = now
		}
	}
}

// OnChannelDropped evicts every representative that was bound to channel.
func (r *Register) OnChannelDropped(channel uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for acc := range r.byChannel[channel] {
		delete(r.byAccount, acc)
	}
	delete(r.byChannel, channel)
}

// ChannelFor returns the channel currently bound to account, if any.
func (r *Register) ChannelFor(account types.Account) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byAccount[account]
	if !ok {
		return 0, false
	}
	return e.Channel, true
}

// Representatives returns a snapshot of every tracked representative.
func (r *Register) Representatives() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.byAccount))
	for _, e := range r.byAccount {
		out = append(out, *e)
	}
	return out
}
