package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema for per-order state. Fill records share the database with
// the ledger so a settlement commits balances and fill in one batch.
const (
	prefixFill     = "fill:" // cumulative filled amount, taker-asset terms
	prefixCancel   = "cxl:"  // cancelled flag
	prefixRegistry = "reg:"  // on-chain registration flag
)

// fillKey returns the key for an order's cumulative fill.
// Format: "fill:{hash}"
func fillKey(hash common.Hash) []byte {
	return []byte(prefixFill + hash.Hex())
}

// cancelKey returns the key for an order's cancelled flag.
// Format: "cxl:{hash}"
func cancelKey(hash common.Hash) []byte {
	return []byte(prefixCancel + hash.Hex())
}

// registrationKey returns the key for an on-chain registration.
// Format: "reg:{maker}:{hash}"
func registrationKey(maker common.Address, hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixRegistry, maker.Hex(), hash.Hex()))
}
