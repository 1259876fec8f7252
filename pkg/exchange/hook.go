package exchange

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TradeHook is the settlement-notification capability a maker may expose.
// It is invoked after a trade is fully committed, with the asset and amount
// the maker received. Best effort: errors and panics are logged and swallowed,
// never propagated into the settlement.
type TradeHook interface {
	OnAssetReceived(asset common.Address, amount *big.Int) error
}

// HookRegistry maps maker identities to their settlement hooks. Absence of a
// registration is a normal, checked case: no notification is attempted.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[common.Address]TradeHook
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[common.Address]TradeHook)}
}

// Register installs (or replaces) the hook for a maker.
func (r *HookRegistry) Register(maker common.Address, hook TradeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[maker] = hook
}

// Deregister removes a maker's hook.
func (r *HookRegistry) Deregister(maker common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, maker)
}

// Lookup returns the maker's hook, or (nil, false) when none is registered.
func (r *HookRegistry) Lookup(maker common.Address) (TradeHook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hook, ok := r.hooks[maker]
	return hook, ok
}
