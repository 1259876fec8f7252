package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// orderSchema is the canonical field layout an order hash commits to. Any
// change to the order structure must change this string, which changes every
// hash, so digests from different schema versions can never collide.
const orderSchema = "SwapOrder(address maker,address makerAsset,address takerAsset," +
	"uint256 makerAmount,uint256 takerAmount,uint256 expires,uint256 nonce,address exchange)"

// schemaHash is the fixed schema identifier mixed into every order hash.
var schemaHash = keccakOf([]byte(orderSchema))

func keccakOf(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Hash derives the canonical order digest:
//
//	keccak256(schemaHash || keccak256(pack(order)))
//
// where pack is 20-byte addresses and 32-byte big-endian amounts in declared
// field order. Pure function of the order fields; the hash is the order's sole
// identity for fill tracking and cancellation.
func (o *Order) Hash() common.Hash {
	packed := make([]byte, 0, 3*20+4*32+20)
	packed = append(packed, o.Maker.Bytes()...)
	packed = append(packed, o.MakerAsset.Bytes()...)
	packed = append(packed, o.TakerAsset.Bytes()...)
	packed = append(packed, uint256Bytes(o.MakerAmount)...)
	packed = append(packed, uint256Bytes(o.TakerAmount)...)
	packed = append(packed, uint256Bytes(o.Expires)...)
	packed = append(packed, uint256Bytes(o.Nonce)...)
	packed = append(packed, o.Exchange.Bytes()...)

	inner := crypto.Keccak256(packed)
	return crypto.Keccak256Hash(schemaHash, inner)
}

func uint256Bytes(v *big.Int) []byte {
	var buf [32]byte
	if v != nil && v.Sign() > 0 {
		v.FillBytes(buf[:])
	}
	return buf[:]
}
