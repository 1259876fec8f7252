package exchange

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowdex/pkg/storage"
)

// FillBook tracks per-order-hash settlement state: cumulative filled amount
// (taker-asset terms, monotonically increasing), cancelled flag, and on-chain
// registrations. Records are created lazily on first touch and never deleted.
//
// Per hash the lifecycle is Open -> PartiallyFilled* -> Filled, with
// Open|PartiallyFilled -> Cancelled as an independent terminal edge. Filled
// and Cancelled both block further fills; neither is ever left.
//
// In-memory cache with Pebble write-through (shared store). Fill increments
// are two-phase: StageFill produces the KV for the settlement batch, and the
// returned apply closure updates memory only after the batch committed.
type FillBook struct {
	mu         sync.RWMutex
	store      *storage.Store
	filled     map[common.Hash]*big.Int
	cancelled  map[common.Hash]bool
	registered map[string]bool
}

func NewFillBook(store *storage.Store) *FillBook {
	return &FillBook{
		store:      store,
		filled:     make(map[common.Hash]*big.Int),
		cancelled:  make(map[common.Hash]bool),
		registered: make(map[string]bool),
	}
}

// Filled returns a copy of the cumulative filled amount for hash.
func (fb *FillBook) Filled(hash common.Hash) *big.Int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return new(big.Int).Set(fb.filledLocked(hash))
}

// Cancelled reports whether the order hash was cancelled.
func (fb *FillBook) Cancelled(hash common.Hash) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.cancelledLocked(hash)
}

// Remaining returns totalTakerAmount minus the cumulative fill, clamped to
// zero when cancelled or over-accounted.
func (fb *FillBook) Remaining(hash common.Hash, totalTakerAmount *big.Int) *big.Int {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.cancelledLocked(hash) {
		return new(big.Int)
	}
	rem := new(big.Int).Sub(totalTakerAmount, fb.filledLocked(hash))
	if rem.Sign() < 0 {
		return new(big.Int)
	}
	return rem
}

// StageFill prepares a fill increment without applying it. It checks
// filled+delta <= total with non-wrapping big arithmetic and returns the
// durable KV for the settlement batch plus a closure that applies the new
// cumulative value to memory once the batch has committed.
func (fb *FillBook) StageFill(hash common.Hash, delta, total *big.Int) (storage.KV, func(), error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if delta == nil || delta.Sign() <= 0 {
		return storage.KV{}, nil, fmt.Errorf("fill delta must be positive")
	}
	if fb.cancelledLocked(hash) {
		return storage.KV{}, nil, fmt.Errorf("order %s is cancelled", hash.Hex())
	}

	next := new(big.Int).Add(fb.filledLocked(hash), delta)
	if next.Cmp(total) > 0 {
		return storage.KV{}, nil, fmt.Errorf("fill %s would exceed order capacity %s", next, total)
	}

	kv := storage.KV{Key: fillKey(hash), Value: storage.EncodeBig(next)}
	apply := func() {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.filled[hash] = next
	}
	return kv, apply, nil
}

// Cancel marks the hash cancelled. Idempotent: re-cancelling is a no-op and
// never reduces the recorded fill.
func (fb *FillBook) Cancel(hash common.Hash) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.cancelledLocked(hash) {
		return nil
	}
	if err := fb.store.Set(cancelKey(hash), []byte("1")); err != nil {
		return fmt.Errorf("cancel %s: %w", hash.Hex(), err)
	}
	fb.cancelled[hash] = true
	return nil
}

// Register records an on-chain registration for (maker, hash). A second
// registration of the same pair fails.
func (fb *FillBook) Register(maker common.Address, hash common.Hash) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.registeredLocked(maker, hash) {
		return fmt.Errorf("%w: %s by %s", ErrDuplicateRegistration, hash.Hex(), maker.Hex())
	}
	if err := fb.store.Set(registrationKey(maker, hash), []byte("1")); err != nil {
		return fmt.Errorf("register %s: %w", hash.Hex(), err)
	}
	fb.registered[string(registrationKey(maker, hash))] = true
	return nil
}

// IsRegistered reports whether (maker, hash) was registered on chain.
func (fb *FillBook) IsRegistered(maker common.Address, hash common.Hash) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.registeredLocked(maker, hash)
}

// ---- locked helpers (caller holds mu) ----

func (fb *FillBook) filledLocked(hash common.Hash) *big.Int {
	if v, ok := fb.filled[hash]; ok {
		return v
	}
	v := new(big.Int)
	if data, ok, err := fb.store.Get(fillKey(hash)); err == nil && ok {
		v = storage.DecodeBig(data)
	}
	fb.filled[hash] = v
	return v
}

func (fb *FillBook) cancelledLocked(hash common.Hash) bool {
	if v, ok := fb.cancelled[hash]; ok {
		return v
	}
	flag := false
	if data, ok, err := fb.store.Get(cancelKey(hash)); err == nil && ok {
		flag = string(data) == "1"
	}
	fb.cancelled[hash] = flag
	return flag
}

func (fb *FillBook) registeredLocked(maker common.Address, hash common.Hash) bool {
	key := string(registrationKey(maker, hash))
	if v, ok := fb.registered[key]; ok {
		return v
	}
	flag, err := fb.store.Has(registrationKey(maker, hash))
	if err != nil {
		flag = false
	}
	fb.registered[key] = flag
	return flag
}
