package exchange

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowdex/pkg/crypto"
	"github.com/uhyunpark/escrowdex/pkg/ledger"
	"github.com/uhyunpark/escrowdex/pkg/storage"
	"github.com/uhyunpark/escrowdex/pkg/util"
)

// feeScale is the fixed-point denominator for the fee rate: a rate of
// 2_500_000_000_000_000 is 0.25%.
var feeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Ledger is the escrow balance service the engine settles against. Passed by
// reference at construction; Settle is its single all-or-nothing commit
// boundary, and balances/allowances are read inside it, never cached across
// calls.
type Ledger interface {
	BalanceOf(asset, owner common.Address) *big.Int
	Approved(owner, spender common.Address) bool
	Settle(spender common.Address, entries []ledger.Entry, extra []storage.KV) error
	ReclaimSurplus(asset common.Address, amount *big.Int) error
}

// Config fixes the per-instance settlement parameters.
type Config struct {
	Address    common.Address // exchange instance identity, bound into order hashes
	FeeRate    *big.Int       // 1e18 fixed point, charged on the maker-asset side
	FeeAccount common.Address // receives extracted fees as a ledger balance
	Owner      common.Address // may reclaim custody surplus
}

// Engine authorizes orders and settles trades against the escrow ledger.
// One mutex serializes all mutating operations, so every settlement is a
// single atomic unit: validation happens inside the same critical section as
// the commit, and a failed precondition leaves no trace.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	ledger Ledger
	fills  *FillBook
	auth   *Authorizer
	clock  util.Clock
	hooks  *HookRegistry

	// Logger and Events are optional and may be set after construction.
	Logger *zap.SugaredLogger
	Events Sink
}

func NewEngine(cfg Config, led Ledger, store *storage.Store, clock util.Clock) (*Engine, error) {
	if cfg.FeeRate == nil || cfg.FeeRate.Sign() < 0 || cfg.FeeRate.Cmp(feeScale) >= 0 {
		return nil, fmt.Errorf("fee rate must be in [0, 1e18)")
	}
	fills := NewFillBook(store)
	typed := crypto.NewTypedSigner(crypto.DefaultDomain(cfg.Address))
	return &Engine{
		cfg:    cfg,
		ledger: led,
		fills:  fills,
		auth:   NewAuthorizer(typed, fills),
		clock:  clock,
		hooks:  NewHookRegistry(),
	}, nil
}

// Address returns the exchange instance identity.
func (e *Engine) Address() common.Address { return e.cfg.Address }

// Hooks exposes the settlement-notification registry.
func (e *Engine) Hooks() *HookRegistry { return e.hooks }

// Trade settles up to requestedAmount (taker-asset terms) of the order against
// the caller's escrowed balance. Returns the actual filled delta, which is the
// minimum of the request, the order's remaining capacity, and the maker's
// spendable balance converted at the order's fixed ratio.
func (e *Engine) Trade(order *Order, sigBlob []byte, requestedAmount *big.Int, caller common.Address) (*big.Int, error) {
	delta, filled, err := e.trade(order, sigBlob, requestedAmount, caller)
	if err != nil {
		return nil, err
	}

	hash := order.Hash()
	e.logw("trade_settled",
		"hash", hash.Hex(),
		"maker", order.Maker.Hex(),
		"taker", caller.Hex(),
		"delta", delta.String(),
		"filled", filled.String(),
	)
	e.publish(Event{
		Type:       EventTraded,
		Hash:       hash,
		Maker:      order.Maker,
		Taker:      caller,
		MakerAsset: order.MakerAsset,
		TakerAsset: order.TakerAsset,
		Delta:      delta,
		Filled:     filled,
	})

	// Notify the maker's hook strictly after all state is committed and the
	// engine lock is released: a re-entrant call from the hook observes the
	// updated fill and balances and cannot double-spend this capacity.
	if hook, ok := e.hooks.Lookup(order.Maker); ok {
		e.notify(hook, order, delta)
	}

	return delta, nil
}

// trade holds the lock for validation and commit, but not for notification.
func (e *Engine) trade(order *Order, sigBlob []byte, requestedAmount *big.Int, caller common.Address) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller == (common.Address{}) {
		return nil, nil, fmt.Errorf("%w: missing caller identity", ErrAuthorizationFailed)
	}
	if caller == order.Maker {
		return nil, nil, ErrSelfTrade
	}

	hash := order.Hash()
	if e.expired(order) {
		return nil, nil, fmt.Errorf("%w: expires=%s", ErrOrderExpired, order.Expires)
	}
	if !e.auth.Authorize(order, hash, sigBlob) {
		return nil, nil, ErrAuthorizationFailed
	}

	remaining := e.fills.Remaining(hash, order.TakerAmount)
	if remaining.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrOrderExhausted, hash.Hex())
	}

	tradeAmount := minBig(requestedAmount, remaining, e.makerSpendable(order))
	if tradeAmount == nil || tradeAmount.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}

	// Maker side is rounded up so the taker is never under-delivered; the fee
	// comes out of the maker's released asset before the taker is credited.
	makerSide := ceilMulDiv(tradeAmount, order.MakerAmount, order.TakerAmount)
	fee := new(big.Int).Div(new(big.Int).Mul(makerSide, e.cfg.FeeRate), feeScale)
	toTaker := new(big.Int).Sub(makerSide, fee)

	kv, applyFill, err := e.fills.StageFill(hash, tradeAmount, order.TakerAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrOrderExhausted, err)
	}

	entries := []ledger.Entry{
		{Asset: order.MakerAsset, From: order.Maker, To: caller, Amount: toTaker},
		{Asset: order.MakerAsset, From: order.Maker, To: e.cfg.FeeAccount, Amount: fee},
		{Asset: order.TakerAsset, From: caller, To: order.Maker, Amount: tradeAmount},
	}
	if err := e.ledger.Settle(e.cfg.Address, entries, []storage.KV{kv}); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
	}
	applyFill()

	return tradeAmount, e.fills.Filled(hash), nil
}

// Cancel voids the order's remaining capacity. Only the maker may cancel;
// re-cancelling is a no-op and already-recorded fills are untouched.
func (e *Engine) Cancel(order *Order, caller common.Address) error {
	e.mu.Lock()
	if caller != order.Maker {
		e.mu.Unlock()
		return ErrUnauthorizedCancel
	}

	hash := order.Hash()
	if err := e.fills.Cancel(hash); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.logw("order_cancelled", "hash", hash.Hex(), "maker", order.Maker.Hex())
	e.publish(Event{Type: EventCancelled, Hash: hash, Maker: order.Maker})
	return nil
}

// Order registers the order on chain so it can be taken without an off-chain
// signature. Requires the maker's approval of this exchange and a current
// balance covering the full maker amount; each (maker, hash) registers once.
func (e *Engine) Order(order *Order, caller common.Address) error {
	e.mu.Lock()
	if caller != order.Maker {
		e.mu.Unlock()
		return fmt.Errorf("%w: only maker may register", ErrAuthorizationFailed)
	}

	hash := order.Hash()
	if !e.ledger.Approved(order.Maker, e.cfg.Address) {
		e.mu.Unlock()
		return fmt.Errorf("registration of %s: %w", hash.Hex(), ledger.ErrNotApproved)
	}
	if e.ledger.BalanceOf(order.MakerAsset, order.Maker).Cmp(order.MakerAmount) < 0 {
		e.mu.Unlock()
		return fmt.Errorf("registration of %s: %w", hash.Hex(), ledger.ErrInsufficientBalance)
	}
	if err := e.fills.Register(order.Maker, hash); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.logw("order_registered", "hash", hash.Hex(), "maker", order.Maker.Hex())
	e.publish(Event{Type: EventOrdered, Hash: hash, Maker: order.Maker, Order: order})
	return nil
}

// AvailableAmount previews the liquidity a trade could settle right now:
// min(remaining capacity, maker's spendable balance in taker terms). Pure read.
func (e *Engine) AvailableAmount(order *Order) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := e.fills.Remaining(order.Hash(), order.TakerAmount)
	spendable := e.makerSpendable(order)
	if remaining.Cmp(spendable) < 0 {
		return remaining
	}
	return spendable
}

// CanTrade previews authorization validity without settling: not expired,
// properly authorized, capacity remaining, maker approved the exchange, and
// some liquidity actually available.
func (e *Engine) CanTrade(order *Order, sigBlob []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.expired(order) {
		return false
	}
	hash := order.Hash()
	if !e.auth.Authorize(order, hash, sigBlob) {
		return false
	}
	if e.fills.Remaining(hash, order.TakerAmount).Sign() == 0 {
		return false
	}
	if !e.ledger.Approved(order.Maker, e.cfg.Address) {
		return false
	}
	return e.makerSpendable(order).Sign() > 0
}

// Filled returns the cumulative filled amount for an order hash.
func (e *Engine) Filled(hash common.Hash) *big.Int {
	return e.fills.Filled(hash)
}

// IsOrdered reports whether (maker, hash) was registered on chain.
func (e *Engine) IsOrdered(maker common.Address, hash common.Hash) bool {
	return e.fills.IsRegistered(maker, hash)
}

// Withdraw reclaims custody surplus: asset balance held by the ledger beyond
// what tracked deposits account for. Restricted to the configured owner, and
// never reaches funds backing user balances.
func (e *Engine) Withdraw(asset common.Address, amount *big.Int, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return fmt.Errorf("%w: caller %s is not owner", ErrUnauthorizedWithdraw, caller.Hex())
	}
	if err := e.ledger.ReclaimSurplus(asset, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorizedWithdraw, err)
	}

	e.logw("surplus_withdrawn", "asset", asset.Hex(), "amount", amount.String())
	return nil
}

// ReceiveNative rejects unsolicited native-currency transfers to the engine.
// All value must enter through the ledger's deposit path; anything pushed at
// custody regardless becomes reclaimable surplus via Withdraw.
func (e *Engine) ReceiveNative(from common.Address, amount *big.Int) error {
	return fmt.Errorf("%w: %s pushed %s", ErrDirectTransferRejected, from.Hex(), amount)
}

// ---- internals ----

func (e *Engine) expired(order *Order) bool {
	now := big.NewInt(e.clock.Now().Unix())
	return now.Cmp(order.Expires) >= 0
}

// makerSpendable converts the maker's current maker-asset balance into
// taker-asset terms at the order's fixed ratio, rounding down.
func (e *Engine) makerSpendable(order *Order) *big.Int {
	if order.MakerAmount.Sign() <= 0 {
		return new(big.Int)
	}
	balance := e.ledger.BalanceOf(order.MakerAsset, order.Maker)
	return new(big.Int).Div(new(big.Int).Mul(balance, order.TakerAmount), order.MakerAmount)
}

// notify delivers the settlement hook outside the engine lock. Failures are
// logged and swallowed: notification is best effort and never unwinds a
// committed trade.
func (e *Engine) notify(hook TradeHook, order *Order, amount *big.Int) {
	defer func() {
		if r := recover(); r != nil {
			e.logw("trade_hook_panic", "maker", order.Maker.Hex(), "panic", fmt.Sprint(r))
		}
	}()
	if err := hook.OnAssetReceived(order.TakerAsset, amount); err != nil {
		e.logw("trade_hook_failed", "maker", order.Maker.Hex(), "err", err.Error())
	}
}

func (e *Engine) publish(ev Event) {
	if e.Events != nil {
		e.Events.Publish(ev)
	}
}

func (e *Engine) logw(msg string, kv ...interface{}) {
	if e.Logger != nil {
		e.Logger.Infow(msg, kv...)
	}
}

func minBig(vals ...*big.Int) *big.Int {
	var min *big.Int
	for _, v := range vals {
		if v == nil {
			continue
		}
		if min == nil || v.Cmp(min) < 0 {
			min = v
		}
	}
	if min == nil {
		return nil
	}
	return new(big.Int).Set(min)
}

// ceilMulDiv computes ceil(a*b/c) without intermediate truncation.
func ceilMulDiv(a, b, c *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	num.Add(num, new(big.Int).Sub(c, big.NewInt(1)))
	return num.Div(num, c)
}
