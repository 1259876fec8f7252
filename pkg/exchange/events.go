package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminates settlement events for subscribers.
type EventType string

const (
	EventTraded    EventType = "traded"
	EventCancelled EventType = "cancelled"
	EventOrdered   EventType = "ordered"
)

// Event is emitted after an operation has fully committed. Traded carries the
// actual filled delta and the resulting cumulative fill; Ordered carries the
// full order so off-chain takers can discover registered liquidity.
type Event struct {
	Type       EventType
	Hash       common.Hash
	Maker      common.Address
	Taker      common.Address
	MakerAsset common.Address
	TakerAsset common.Address
	Delta      *big.Int
	Filled     *big.Int
	Order      *Order
}

// Sink receives settlement events. The API server's websocket hub implements
// it; a nil sink on the engine disables emission.
type Sink interface {
	Publish(Event)
}
