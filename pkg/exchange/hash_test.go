package exchange

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func sampleOrder() *Order {
	return &Order{
		Maker:       common.HexToAddress("0x11"),
		MakerAsset:  common.HexToAddress("0xa1"),
		TakerAsset:  common.HexToAddress("0xa2"),
		MakerAmount: big.NewInt(1_000_000_000_000_000_000),
		TakerAmount: big.NewInt(2_000_000_000_000_000_000),
		Expires:     big.NewInt(1_900_000_000),
		Nonce:       big.NewInt(7),
		Exchange:    common.HexToAddress("0xed"),
	}
}

func TestHashDeterministic(t *testing.T) {
	a := sampleOrder()
	b := sampleOrder()
	if a.Hash() != b.Hash() {
		t.Error("identical orders must hash identically")
	}
}

func TestHashCommitsToEveryField(t *testing.T) {
	base := sampleOrder().Hash()

	mutations := map[string]func(*Order){
		"maker":       func(o *Order) { o.Maker = common.HexToAddress("0x12") },
		"makerAsset":  func(o *Order) { o.MakerAsset = common.HexToAddress("0xb1") },
		"takerAsset":  func(o *Order) { o.TakerAsset = common.HexToAddress("0xb2") },
		"makerAmount": func(o *Order) { o.MakerAmount = big.NewInt(999) },
		"takerAmount": func(o *Order) { o.TakerAmount = big.NewInt(999) },
		"expires":     func(o *Order) { o.Expires = big.NewInt(1_900_000_001) },
		"nonce":       func(o *Order) { o.Nonce = big.NewInt(8) },
		"exchange":    func(o *Order) { o.Exchange = common.HexToAddress("0xee") },
	}
	for name, mutate := range mutations {
		o := sampleOrder()
		mutate(o)
		if o.Hash() == base {
			t.Errorf("changing %s did not change the hash", name)
		}
	}
}

func TestHashBindsExchangeInstance(t *testing.T) {
	// Same economic order on two deployments must not share capacity.
	a := sampleOrder()
	b := sampleOrder()
	b.Exchange = common.HexToAddress("0xffff")
	if a.Hash() == b.Hash() {
		t.Error("orders on different exchange instances must hash differently")
	}
}

func TestOrderFromWireShape(t *testing.T) {
	o := sampleOrder()
	got, err := OrderFromWire(o.AddressGroup(), o.ValueGroup(), o.Exchange)
	if err != nil {
		t.Fatalf("wire roundtrip: %v", err)
	}
	if got.Hash() != o.Hash() {
		t.Error("wire roundtrip changed the hash")
	}

	if _, err := OrderFromWire(o.AddressGroup()[:2], o.ValueGroup(), o.Exchange); err == nil {
		t.Error("short address group accepted")
	}
	if _, err := OrderFromWire(o.AddressGroup(), o.ValueGroup()[:3], o.Exchange); err == nil {
		t.Error("short value group accepted")
	}
}

func TestOrderValidate(t *testing.T) {
	cases := map[string]func(*Order){
		"zero maker":       func(o *Order) { o.Maker = common.Address{} },
		"zero makerAmount": func(o *Order) { o.MakerAmount = big.NewInt(0) },
		"negative taker":   func(o *Order) { o.TakerAmount = big.NewInt(-1) },
		"nil makerAmount":  func(o *Order) { o.MakerAmount = nil },
		"negative expires": func(o *Order) { o.Expires = big.NewInt(-1) },
		"missing nonce":    func(o *Order) { o.Nonce = nil },
	}
	for name, mutate := range cases {
		o := sampleOrder()
		mutate(o)
		if err := o.Validate(); err == nil {
			t.Errorf("%s: validation passed, want error", name)
		}
	}

	if err := sampleOrder().Validate(); err != nil {
		t.Errorf("valid order rejected: %v", err)
	}
}
