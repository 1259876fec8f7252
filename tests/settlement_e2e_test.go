package tests

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/escrowdex/pkg/crypto"
	"github.com/uhyunpark/escrowdex/pkg/exchange"
	"github.com/uhyunpark/escrowdex/pkg/ledger"
	"github.com/uhyunpark/escrowdex/pkg/storage"
	"github.com/uhyunpark/escrowdex/pkg/util"
)

// Full settlement lifecycle against a real Pebble store: deposits, a signed
// order taken in two bites by different takers, fee accrual, cancellation,
// surplus reclamation, and state survival across a node restart.

var (
	unit = big.NewInt(1_000_000_000_000_000_000)

	exchAddr   = common.HexToAddress("0xed")
	feeAccount = common.HexToAddress("0xfe")
	ownerAddr  = common.HexToAddress("0x01")
	tokenA     = common.HexToAddress("0xa1")
	tokenB     = common.HexToAddress("0xa2")
	taker1     = common.HexToAddress("0x21")
	taker2     = common.HexToAddress("0x22")
)

type node struct {
	store  *storage.Store
	led    *ledger.Manager
	engine *exchange.Engine
	clock  *util.FakeClock
}

func startNode(t *testing.T, dir string, clock *util.FakeClock) *node {
	t.Helper()
	store, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	led := ledger.NewManager(store)
	eng, err := exchange.NewEngine(exchange.Config{
		Address:    exchAddr,
		FeeRate:    big.NewInt(2_500_000_000_000_000),
		FeeAccount: feeAccount,
		Owner:      ownerAddr,
	}, led, store, clock)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &node{store: store, led: led, engine: eng, clock: clock}
}

func signOrder(t *testing.T, signer *crypto.Signer, o *exchange.Order) []byte {
	t.Helper()
	envelope := ethcrypto.Keccak256(
		[]byte("\x19Ethereum Signed Message:\n32"), o.Hash().Bytes())
	raw, err := signer.Sign(envelope)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	blob, err := exchange.WireSignature(exchange.SigModePersonal, raw)
	if err != nil {
		t.Fatalf("wire signature: %v", err)
	}
	return blob
}

func TestSettlementLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	clock := util.NewFakeClock(time.Unix(1_700_000_000, 0))
	n := startNode(t, dir, clock)

	maker, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	// Everyone escrows and approves the exchange.
	deposits := []struct {
		owner  common.Address
		asset  common.Address
		amount *big.Int
	}{
		{maker.Address(), tokenA, new(big.Int).Mul(unit, big.NewInt(2))},
		{taker1, tokenB, unit},
		{taker2, tokenB, unit},
	}
	for _, d := range deposits {
		if err := n.led.Deposit(d.owner, d.asset, d.amount); err != nil {
			t.Fatalf("deposit for %s: %v", d.owner.Hex(), err)
		}
		if err := n.led.Approve(d.owner, exchAddr); err != nil {
			t.Fatalf("approve for %s: %v", d.owner.Hex(), err)
		}
	}

	// Maker offers 2 A for 2 B, open for a day.
	order := &exchange.Order{
		Maker:       maker.Address(),
		MakerAsset:  tokenA,
		TakerAsset:  tokenB,
		MakerAmount: new(big.Int).Mul(unit, big.NewInt(2)),
		TakerAmount: new(big.Int).Mul(unit, big.NewInt(2)),
		Expires:     big.NewInt(clock.Now().Unix() + 86400),
		Nonce:       big.NewInt(1),
		Exchange:    exchAddr,
	}
	sig := signOrder(t, maker, order)

	// First taker takes half the order.
	d1, err := n.engine.Trade(order, sig, unit, taker1)
	if err != nil {
		t.Fatalf("first trade: %v", err)
	}
	if d1.Cmp(unit) != 0 {
		t.Fatalf("first delta = %s, want %s", d1, unit)
	}

	// Second taker asks for the whole order, gets the remaining half.
	d2, err := n.engine.Trade(order, sig, order.TakerAmount, taker2)
	if err != nil {
		t.Fatalf("second trade: %v", err)
	}
	if d2.Cmp(unit) != 0 {
		t.Fatalf("second delta = %s, want %s", d2, unit)
	}

	// 0.25% fee per released unit of A; takers split the rest evenly.
	feePerUnit := big.NewInt(2_500_000_000_000_000)
	wantPerTaker := new(big.Int).Sub(unit, feePerUnit)
	wantFees := new(big.Int).Mul(feePerUnit, big.NewInt(2))

	for _, taker := range []common.Address{taker1, taker2} {
		if got := n.led.BalanceOf(tokenA, taker); got.Cmp(wantPerTaker) != 0 {
			t.Errorf("taker %s holds %s A, want %s", taker.Hex(), got, wantPerTaker)
		}
		if got := n.led.BalanceOf(tokenB, taker); got.Sign() != 0 {
			t.Errorf("taker %s still holds %s B", taker.Hex(), got)
		}
	}
	if got := n.led.BalanceOf(tokenA, feeAccount); got.Cmp(wantFees) != 0 {
		t.Errorf("fee account holds %s, want %s", got, wantFees)
	}
	if got := n.led.BalanceOf(tokenB, maker.Address()); got.Cmp(order.TakerAmount) != 0 {
		t.Errorf("maker holds %s B, want %s", got, order.TakerAmount)
	}

	// The order is exhausted.
	if _, err := n.engine.Trade(order, sig, unit, taker1); !errors.Is(err, exchange.ErrOrderExhausted) {
		t.Errorf("err = %v, want ErrOrderExhausted", err)
	}

	// Restart the node on the same directory: fills and balances survive.
	if err := n.store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	n2 := startNode(t, dir, clock)
	t.Cleanup(func() { n2.store.Close() })

	if got := n2.engine.Filled(order.Hash()); got.Cmp(order.TakerAmount) != 0 {
		t.Errorf("filled after restart = %s, want %s", got, order.TakerAmount)
	}
	if got := n2.led.BalanceOf(tokenA, feeAccount); got.Cmp(wantFees) != 0 {
		t.Errorf("fee balance after restart = %s, want %s", got, wantFees)
	}
	if _, err := n2.engine.Trade(order, sig, unit, taker1); !errors.Is(err, exchange.ErrOrderExhausted) {
		t.Errorf("replay after restart: err = %v, want ErrOrderExhausted", err)
	}
}

func TestCancelAndWithdrawLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	clock := util.NewFakeClock(time.Unix(1_700_000_000, 0))
	n := startNode(t, dir, clock)
	t.Cleanup(func() { n.store.Close() })

	maker, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := n.led.Deposit(maker.Address(), tokenA, unit); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := n.led.Approve(maker.Address(), exchAddr); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := n.led.Deposit(taker1, tokenB, unit); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := n.led.Approve(taker1, exchAddr); err != nil {
		t.Fatalf("approve: %v", err)
	}

	order := &exchange.Order{
		Maker:       maker.Address(),
		MakerAsset:  tokenA,
		TakerAsset:  tokenB,
		MakerAmount: new(big.Int).Set(unit),
		TakerAmount: new(big.Int).Set(unit),
		Expires:     big.NewInt(clock.Now().Unix() + 3600),
		Nonce:       big.NewInt(1),
		Exchange:    exchAddr,
	}
	sig := signOrder(t, maker, order)

	// Cancel before any fill, then verify nothing can settle.
	if err := n.engine.Cancel(order, maker.Address()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := n.engine.Trade(order, sig, unit, taker1); !errors.Is(err, exchange.ErrOrderExhausted) {
		t.Errorf("err = %v, want ErrOrderExhausted", err)
	}

	// The maker exits their escrow untouched.
	if err := n.led.Withdraw(maker.Address(), tokenA, unit); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := n.led.BalanceOf(tokenA, maker.Address()); got.Sign() != 0 {
		t.Errorf("maker balance after exit = %s, want 0", got)
	}

	// Stray value pushed at custody is reclaimable by the owner only.
	if err := n.led.CreditCustody(tokenA, big.NewInt(42)); err != nil {
		t.Fatalf("credit custody: %v", err)
	}
	if err := n.engine.Withdraw(tokenA, big.NewInt(42), taker1); !errors.Is(err, exchange.ErrUnauthorizedWithdraw) {
		t.Errorf("err = %v, want ErrUnauthorizedWithdraw", err)
	}
	if err := n.engine.Withdraw(tokenA, big.NewInt(42), ownerAddr); err != nil {
		t.Fatalf("owner withdraw: %v", err)
	}
	if got := n.led.Surplus(tokenA); got.Sign() != 0 {
		t.Errorf("surplus = %s, want 0", got)
	}
}

func TestExpiryLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	clock := util.NewFakeClock(time.Unix(1_700_000_000, 0))
	n := startNode(t, dir, clock)
	t.Cleanup(func() { n.store.Close() })

	maker, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := n.led.Deposit(maker.Address(), tokenA, unit); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := n.led.Approve(maker.Address(), exchAddr); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := n.led.Deposit(taker1, tokenB, unit); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := n.led.Approve(taker1, exchAddr); err != nil {
		t.Fatalf("approve: %v", err)
	}

	order := &exchange.Order{
		Maker:       maker.Address(),
		MakerAsset:  tokenA,
		TakerAsset:  tokenB,
		MakerAmount: new(big.Int).Set(unit),
		TakerAmount: new(big.Int).Set(unit),
		Expires:     big.NewInt(clock.Now().Unix() + 60),
		Nonce:       big.NewInt(1),
		Exchange:    exchAddr,
	}
	sig := signOrder(t, maker, order)

	half := new(big.Int).Div(unit, big.NewInt(2))
	if _, err := n.engine.Trade(order, sig, half, taker1); err != nil {
		t.Fatalf("trade: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := n.engine.Trade(order, sig, half, taker1); !errors.Is(err, exchange.ErrOrderExpired) {
		t.Errorf("err = %v, want ErrOrderExpired", err)
	}
	if n.engine.CanTrade(order, sig) {
		t.Error("canTrade true on an expired order")
	}
	// The partial fill before expiry stands.
	if got := n.engine.Filled(order.Hash()); got.Cmp(half) != 0 {
		t.Errorf("filled = %s, want %s", got, half)
	}
}
