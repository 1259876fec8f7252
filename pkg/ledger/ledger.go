package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowdex/pkg/storage"
)

// NativeAsset is the asset identity of the chain's native settlement currency.
// Token assets use their contract address; the native currency uses zero.
var NativeAsset = common.Address{}

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotApproved         = errors.New("spender not approved by owner")
	ErrExceedsSurplus      = errors.New("amount exceeds custody surplus")
)

// Entry is one balance move inside a settlement: debit From, credit To.
type Entry struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Manager is the custodial escrow ledger: per (asset, owner) balances, per
// (owner, spender) allowance flags, and per-asset tracked/custody totals.
// In-memory cache with Pebble write-through, one mutex over all state.
//
// The custody total moves only on deposits, user withdrawals, and surplus
// reclamation; settlements shuffle tracked balances between owners and leave
// both totals untouched. Anything pushed to custody outside the deposit flow
// arrives via CreditCustody and is reclaimable as surplus.
type Manager struct {
	mu        sync.RWMutex
	store     *storage.Store
	balances  map[common.Address]map[common.Address]*big.Int // asset -> owner -> amount
	approvals map[common.Address]map[common.Address]bool     // owner -> spender -> approved
	tracked   map[common.Address]*big.Int                    // asset -> sum of balances
	custody   map[common.Address]*big.Int                    // asset -> actual holdings
}

func NewManager(store *storage.Store) *Manager {
	return &Manager{
		store:     store,
		balances:  make(map[common.Address]map[common.Address]*big.Int),
		approvals: make(map[common.Address]map[common.Address]bool),
		tracked:   make(map[common.Address]*big.Int),
		custody:   make(map[common.Address]*big.Int),
	}
}

// Deposit credits owner's balance of asset. Balance, tracked total, and
// custody total move together in one batch.
func (m *Manager) Deposit(owner, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bal := new(big.Int).Add(m.balanceLocked(asset, owner), amount)
	tot := new(big.Int).Add(m.trackedLocked(asset), amount)
	cust := new(big.Int).Add(m.custodyLocked(asset), amount)

	kvs := []storage.KV{
		{Key: balanceKey(asset, owner), Value: storage.EncodeBig(bal)},
		{Key: trackedKey(asset), Value: storage.EncodeBig(tot)},
		{Key: custodyKey(asset), Value: storage.EncodeBig(cust)},
	}
	if err := m.store.Commit(kvs); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}

	m.setBalanceLocked(asset, owner, bal)
	m.tracked[asset] = tot
	m.custody[asset] = cust
	return nil
}

// Withdraw debits owner's balance of asset back out of custody.
func (m *Manager) Withdraw(owner, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.balanceLocked(asset, owner)
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("withdraw %s of %s: %w", amount, asset.Hex(), ErrInsufficientBalance)
	}

	bal := new(big.Int).Sub(cur, amount)
	tot := new(big.Int).Sub(m.trackedLocked(asset), amount)
	cust := new(big.Int).Sub(m.custodyLocked(asset), amount)

	kvs := []storage.KV{
		{Key: balanceKey(asset, owner), Value: storage.EncodeBig(bal)},
		{Key: trackedKey(asset), Value: storage.EncodeBig(tot)},
		{Key: custodyKey(asset), Value: storage.EncodeBig(cust)},
	}
	if err := m.store.Commit(kvs); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}

	m.setBalanceLocked(asset, owner, bal)
	m.tracked[asset] = tot
	m.custody[asset] = cust
	return nil
}

// Approve grants spender the right to move owner's escrowed balances.
// The allowance is a flag, not an amount: settlement sizing is bounded by the
// order and the balance, never by a running allowance counter.
func (m *Manager) Approve(owner, spender common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(approvalKey(owner, spender), []byte("1")); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if m.approvals[owner] == nil {
		m.approvals[owner] = make(map[common.Address]bool)
	}
	m.approvals[owner][spender] = true
	return nil
}

// Revoke withdraws a previously granted approval.
func (m *Manager) Revoke(owner, spender common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(approvalKey(owner, spender), []byte("0")); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	if m.approvals[owner] == nil {
		m.approvals[owner] = make(map[common.Address]bool)
	}
	m.approvals[owner][spender] = false
	return nil
}

// Approved reports whether owner has approved spender.
func (m *Manager) Approved(owner, spender common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approvedLocked(owner, spender)
}

// BalanceOf returns a copy of owner's balance of asset.
func (m *Manager) BalanceOf(asset, owner common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balanceLocked(asset, owner))
}

// CreditCustody records value that reached the custody address outside the
// deposit flow. No owner is credited, so the full amount becomes surplus.
func (m *Manager) CreditCustody(asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cust := new(big.Int).Add(m.custodyLocked(asset), amount)
	if err := m.store.Set(custodyKey(asset), storage.EncodeBig(cust)); err != nil {
		return fmt.Errorf("credit custody: %w", err)
	}
	m.custody[asset] = cust
	return nil
}

// Surplus returns custody holdings minus tracked balances for an asset.
// Never negative.
func (m *Manager) Surplus(asset common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := new(big.Int).Sub(m.custodyLocked(asset), m.trackedLocked(asset))
	if s.Sign() < 0 {
		return new(big.Int)
	}
	return s
}

// ReclaimSurplus removes up to the untracked excess from custody. User-backed
// funds are unreachable here: the tracked total is not touched, and amounts
// beyond the surplus are rejected.
func (m *Manager) ReclaimSurplus(asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	surplus := new(big.Int).Sub(m.custodyLocked(asset), m.trackedLocked(asset))
	if surplus.Cmp(amount) < 0 {
		return fmt.Errorf("reclaim %s of %s: %w", amount, asset.Hex(), ErrExceedsSurplus)
	}

	cust := new(big.Int).Sub(m.custodyLocked(asset), amount)
	if err := m.store.Set(custodyKey(asset), storage.EncodeBig(cust)); err != nil {
		return fmt.Errorf("reclaim surplus: %w", err)
	}
	m.custody[asset] = cust
	return nil
}

// Settle applies a group of balance moves plus caller-supplied extra writes as
// one all-or-nothing unit. Every debited owner must have approved spender, and
// every debit must be covered by the balance as it stands inside this call;
// nothing is read ahead of time or cached across calls. On any validation
// failure no state changes.
func (m *Manager) Settle(spender common.Address, entries []Entry, extra []storage.KV) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate before touching anything.
	for _, e := range entries {
		if e.Amount == nil || e.Amount.Sign() < 0 {
			return ErrInvalidAmount
		}
		if e.Amount.Sign() == 0 {
			continue
		}
		if !m.approvedLocked(e.From, spender) {
			return fmt.Errorf("debit %s: %w", e.From.Hex(), ErrNotApproved)
		}
	}

	// Compute final balances on scratch copies so a failed check midway leaves
	// the live maps untouched.
	type slot struct {
		asset, owner common.Address
	}
	scratch := make(map[slot]*big.Int)
	get := func(asset, owner common.Address) *big.Int {
		k := slot{asset, owner}
		if v, ok := scratch[k]; ok {
			return v
		}
		v := new(big.Int).Set(m.balanceLocked(asset, owner))
		scratch[k] = v
		return v
	}

	for _, e := range entries {
		if e.Amount.Sign() == 0 {
			continue
		}
		from := get(e.Asset, e.From)
		if from.Cmp(e.Amount) < 0 {
			return fmt.Errorf("debit %s of %s from %s: %w",
				e.Amount, e.Asset.Hex(), e.From.Hex(), ErrInsufficientBalance)
		}
		from.Sub(from, e.Amount)
		get(e.Asset, e.To).Add(get(e.Asset, e.To), e.Amount)
	}

	kvs := make([]storage.KV, 0, len(scratch)+len(extra))
	for k, v := range scratch {
		kvs = append(kvs, storage.KV{Key: balanceKey(k.asset, k.owner), Value: storage.EncodeBig(v)})
	}
	kvs = append(kvs, extra...)

	if err := m.store.Commit(kvs); err != nil {
		return fmt.Errorf("settle: %w", err)
	}

	for k, v := range scratch {
		m.setBalanceLocked(k.asset, k.owner, v)
	}
	return nil
}

// ---- locked helpers (caller holds mu) ----

func (m *Manager) balanceLocked(asset, owner common.Address) *big.Int {
	if owners, ok := m.balances[asset]; ok {
		if v, ok := owners[owner]; ok {
			return v
		}
	}

	v := new(big.Int)
	if data, ok, err := m.store.Get(balanceKey(asset, owner)); err == nil && ok {
		v = storage.DecodeBig(data)
	}
	m.setBalanceLocked(asset, owner, v)
	return v
}

func (m *Manager) setBalanceLocked(asset, owner common.Address, v *big.Int) {
	owners, ok := m.balances[asset]
	if !ok {
		owners = make(map[common.Address]*big.Int)
		m.balances[asset] = owners
	}
	owners[owner] = v
}

func (m *Manager) trackedLocked(asset common.Address) *big.Int {
	if v, ok := m.tracked[asset]; ok {
		return v
	}
	v := new(big.Int)
	if data, ok, err := m.store.Get(trackedKey(asset)); err == nil && ok {
		v = storage.DecodeBig(data)
	}
	m.tracked[asset] = v
	return v
}

func (m *Manager) custodyLocked(asset common.Address) *big.Int {
	if v, ok := m.custody[asset]; ok {
		return v
	}
	v := new(big.Int)
	if data, ok, err := m.store.Get(custodyKey(asset)); err == nil && ok {
		v = storage.DecodeBig(data)
	}
	m.custody[asset] = v
	return v
}

func (m *Manager) approvedLocked(owner, spender common.Address) bool {
	if spenders, ok := m.approvals[owner]; ok {
		if v, ok := spenders[spender]; ok {
			return v
		}
	}

	approved := false
	if data, ok, err := m.store.Get(approvalKey(owner, spender)); err == nil && ok {
		approved = string(data) == "1"
	}
	if m.approvals[owner] == nil {
		m.approvals[owner] = make(map[common.Address]bool)
	}
	m.approvals[owner][spender] = approved
	return approved
}
