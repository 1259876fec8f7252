package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is a maker's signed (or registered) intent to swap MakerAmount of
// MakerAsset for TakerAmount of TakerAsset, open until Expires. Immutable
// once constructed; only its hash and derived fill state are ever persisted.
//
// Exchange is the settlement instance the order is bound to. It is mixed into
// the hash, so an order signed for one deployment cannot be replayed against
// another.
type Order struct {
	Maker       common.Address
	MakerAsset  common.Address
	TakerAsset  common.Address
	MakerAmount *big.Int
	TakerAmount *big.Int
	Expires     *big.Int // Unix seconds
	Nonce       *big.Int
	Exchange    common.Address
}

// OrderFromWire reconstructs an Order from the canonical wire grouping:
// addresses [maker, makerAsset, takerAsset] and values
// [makerAmount, takerAmount, expires, nonce]. The exchange instance address
// is supplied by the receiving engine, not by the caller.
func OrderFromWire(addresses []common.Address, values []*big.Int, exchange common.Address) (*Order, error) {
	if len(addresses) != 3 {
		return nil, fmt.Errorf("%w: want 3 addresses, got %d", ErrMalformedOrder, len(addresses))
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("%w: want 4 values, got %d", ErrMalformedOrder, len(values))
	}

	o := &Order{
		Maker:       addresses[0],
		MakerAsset:  addresses[1],
		TakerAsset:  addresses[2],
		MakerAmount: values[0],
		TakerAmount: values[1],
		Expires:     values[2],
		Nonce:       values[3],
		Exchange:    exchange,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate rejects orders no settlement could ever act on.
func (o *Order) Validate() error {
	if o.Maker == (common.Address{}) {
		return fmt.Errorf("%w: zero maker", ErrMalformedOrder)
	}
	if o.MakerAmount == nil || o.MakerAmount.Sign() <= 0 {
		return fmt.Errorf("%w: maker amount must be positive", ErrMalformedOrder)
	}
	if o.TakerAmount == nil || o.TakerAmount.Sign() <= 0 {
		return fmt.Errorf("%w: taker amount must be positive", ErrMalformedOrder)
	}
	if o.Expires == nil || o.Expires.Sign() < 0 {
		return fmt.Errorf("%w: bad expiry", ErrMalformedOrder)
	}
	if o.Nonce == nil {
		return fmt.Errorf("%w: missing nonce", ErrMalformedOrder)
	}
	return nil
}

// AddressGroup is the wire projection [maker, makerAsset, takerAsset].
func (o *Order) AddressGroup() []common.Address {
	return []common.Address{o.Maker, o.MakerAsset, o.TakerAsset}
}

// ValueGroup is the wire projection [makerAmount, takerAmount, expires, nonce].
func (o *Order) ValueGroup() []*big.Int {
	return []*big.Int{o.MakerAmount, o.TakerAmount, o.Expires, o.Nonce}
}
