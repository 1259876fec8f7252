package api

// Request/response types for the settlement REST surface. Big integers travel
// as decimal strings; signatures and hashes as 0x hex. The addresses/values
// groups mirror the canonical order encoding:
// addresses [maker, makerAsset, takerAsset],
// values [makerAmount, takerAmount, expires, nonce].

// OrderWire is the wire form of an order shared by all order-bearing requests.
type OrderWire struct {
	Addresses []string `json:"addresses"`
	Values    []string `json:"values"`
}

// TradeRequest asks the engine to settle up to Amount of the order.
type TradeRequest struct {
	OrderWire
	Signature string `json:"signature"` // 0x hex, empty for on-chain orders
	Amount    string `json:"amount"`    // requested taker-asset amount
	Taker     string `json:"taker"`     // caller identity
}

// TradeResponse reports the actually settled delta and the cumulative fill.
type TradeResponse struct {
	Hash   string `json:"hash"`
	Delta  string `json:"delta"`
	Filled string `json:"filled"`
}

// CancelRequest voids an order's remaining capacity.
type CancelRequest struct {
	OrderWire
	Maker string `json:"maker"` // caller, must equal the order's maker
}

// RegisterRequest registers an order on chain (signature-free path).
type RegisterRequest struct {
	OrderWire
	Maker string `json:"maker"`
}

// QuoteRequest is an order-bearing read (availableAmount, canTrade).
type QuoteRequest struct {
	OrderWire
	Signature string `json:"signature,omitempty"`
}

// BalanceRequest covers deposit, withdrawal and approval mutations.
type BalanceRequest struct {
	Owner   string `json:"owner"`
	Asset   string `json:"asset,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Spender string `json:"spender,omitempty"`
}

// ReclaimRequest is the owner-restricted surplus withdrawal.
type ReclaimRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Caller string `json:"caller"`
}

// AmountResponse wraps a single big amount.
type AmountResponse struct {
	Amount string `json:"amount"`
}

// BoolResponse wraps a single predicate result.
type BoolResponse struct {
	Result bool `json:"result"`
}

// StatusResponse acknowledges a mutation with no payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a failure kind and detail.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is the client→server subscription control message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// EventMessage is the server→client settlement event payload.
type EventMessage struct {
	Type       string `json:"type"` // traded | cancelled | ordered
	Hash       string `json:"hash"`
	Maker      string `json:"maker,omitempty"`
	Taker      string `json:"taker,omitempty"`
	MakerAsset string `json:"makerAsset,omitempty"`
	TakerAsset string `json:"takerAsset,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Filled     string `json:"filled,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}
