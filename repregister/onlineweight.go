package repregister

import (
	"math/big"
	"sync"
	"time"

	"github.com/nanolattice/nanod/types"
)

// samplingInterval is how often Observe's accumulated set is folded into the
// trended-weight history; a fresh sample starts empty after each fold.
const samplingInterval = 5 * time.Minute

// trendHistory bounds how many samples the trended (moving) average considers.
const trendHistory = 2

// OnlineWeight tracks which representatives have been observed voting in
// the current sampling interval, and derives trended weight as a simple
// moving average over the last few intervals (§4.6: "online weight = rolling
// sample ...; trended weight = decayed average").
type OnlineWeight struct {
	weightOf func(types.Account) types.Amount

	mu      sync.Mutex
	current map[types.Account]bool
	samples []types.Amount // most recent first
	last    time.Time
}

func NewOnlineWeight(weightOf func(types.Account) types.Amount) *OnlineWeight {
	return &OnlineWeight{
		weightOf: weightOf,
		current:  make(map[types.Account]bool),
		last:     time.Now(),
	}
}

// Observe marks rep as online for the current sampling interval, folding
// the prior interval into the trend history if it has elapsed.
func (w *OnlineWeight) Observe(rep types.Account) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.last) >= samplingInterval {
		w.fold()
	}
	w.current[rep] = true
}

func (w *OnlineWeight) fold() {
	total := types.ZeroAmount
	for acc := range w.current {
		sum, overflow := total.Add(w.weightOf(acc))
		if !overflow {
			total = sum
		}
	}
	w.samples = append([]types.Amount{total}, w.samples...)
	if len(w.samples) > trendHistory {
		w.samples = w.samples[:trendHistory]
	}
	w.current = make(map[types.Account]bool)
	w.last = time.Now()
}

// Online returns the current interval's accumulated online weight without
// waiting for it to fold.
func (w *OnlineWeight) Online() types.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := types.ZeroAmount
	for acc := range w.current {
		sum, overflow := total.Add(w.weightOf(acc))
		if !overflow {
			total = sum
		}
	}
	return total
}

// Trended returns the arithmetic mean of the last trendHistory folded
// samples, or the current interval's weight if nothing has folded yet.
func (w *OnlineWeight) Trended() types.Amount {
	w.mu.Lock()
	samples := append([]types.Amount(nil), w.samples...)
	w.mu.Unlock()
	if len(samples) == 0 {
		return w.Online()
	}
	sum := new(big.Int)
	for _, s := range samples {
		sum.Add(sum, s.BigInt())
	}
	sum.Div(sum, big.NewInt(int64(len(samples))))
	return amountFromBig(sum)
}

func amountFromBig(v *big.Int) types.Amount {
	b := v.Bytes()
	padded := make([]byte, types.AmountSize)
	copy(padded[types.AmountSize-len(b):], b)
	a, _ := types.AmountFromBytes(padded)
	return a
}

// Delta returns the quorum threshold: max(online_weight * 67%, minimum *
// 67%), matching §4.6's confirmation rule.
func Delta(onlineWeight, minimum types.Amount) types.Amount {
	base := onlineWeight
	if minimum.Cmp(base) > 0 {
		base = minimum
	}
	v := new(big.Int).Mul(base.BigInt(), big.NewInt(67))
	v.Div(v, big.NewInt(100))
	return amountFromBig(v)
}

// IsPrincipal reports whether weight meets the principal representative
// threshold: a configurable fraction of online weight (§4.9).
func IsPrincipal(weight, onlineWeight types.Amount, factor float64) bool {
	threshold := new(big.Int).Mul(onlineWeight.BigInt(), big.NewInt(int64(factor*1_000_000)))
	threshold.Div(threshold, big.NewInt(1_000_000))
	return weight.BigInt().Cmp(threshold) >= 0
}
