package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema for the escrow ledger.
// Design principles:
// 1. Prefix-based so all balances of an asset can be scanned in one range.
// 2. Hex addresses keep keys readable when inspecting the database.
// 3. Per-asset tracked/custody totals live under their own prefixes so the
//    surplus computation never needs a full scan.
const (
	prefixBalance  = "bal:"  // per (asset, owner) balance
	prefixApproval = "apr:"  // per (owner, spender) allowance flag
	prefixTracked  = "tot:"  // per asset, sum of all tracked balances
	prefixCustody  = "cust:" // per asset, actual custody holdings
)

// balanceKey returns the key for an owner's balance of an asset.
// Format: "bal:{asset}:{owner}"
func balanceKey(asset, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, asset.Hex(), owner.Hex()))
}

// approvalKey returns the key for an owner→spender allowance flag.
// Format: "apr:{owner}:{spender}"
func approvalKey(owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixApproval, owner.Hex(), spender.Hex()))
}

// trackedKey returns the key for the tracked total of an asset.
func trackedKey(asset common.Address) []byte {
	return []byte(prefixTracked + asset.Hex())
}

// custodyKey returns the key for the custody holdings of an asset.
func custodyKey(asset common.Address) []byte {
	return []byte(prefixCustody + asset.Hex())
}
