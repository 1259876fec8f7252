package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/escrowdex/pkg/crypto"
)

// Signature scheme modes. The mode byte is the first byte of the wire blob and
// selects how the signed digest is derived from the order.
const (
	// SigModePersonal signs the personal-message digest of the order hash:
	// keccak256("\x19Ethereum Signed Message:\n32" || orderHash).
	// This is what eth_sign produces.
	SigModePersonal byte = 1

	// SigModeTyped signs the EIP-712 typed-data digest of the full order
	// (eth_signTypedData_v4).
	SigModeTyped byte = 2
)

// SignatureLen is the fixed wire width: mode(1) || v(1) || r(32) || s(32).
const SignatureLen = 66

// Signature is a decoded maker authorization.
type Signature struct {
	Mode byte
	V    uint8 // 27 or 28 on the wire
	R    *big.Int
	S    *big.Int
}

// DecodeSignature parses the fixed-width wire blob. A nil or empty blob is the
// "no signature" sentinel and decodes to (nil, true): authorization then falls
// back to on-chain registration. Any other length is malformed.
func DecodeSignature(blob []byte) (*Signature, bool) {
	if len(blob) == 0 {
		return nil, true
	}
	if len(blob) != SignatureLen {
		return nil, false
	}
	return &Signature{
		Mode: blob[0],
		V:    blob[1],
		R:    new(big.Int).SetBytes(blob[2:34]),
		S:    new(big.Int).SetBytes(blob[34:66]),
	}, true
}

// EncodeSignature renders a signature to its 66-byte wire form.
func EncodeSignature(sig *Signature) []byte {
	blob := make([]byte, SignatureLen)
	blob[0] = sig.Mode
	blob[1] = sig.V
	sig.R.FillBytes(blob[2:34])
	sig.S.FillBytes(blob[34:66])
	return blob
}

// WireSignature wraps a raw 65-byte [R||S||V] secp256k1 signature (V of 0/1)
// into the wire blob for the given mode.
func WireSignature(mode byte, raw []byte) ([]byte, error) {
	r, s, v, err := crypto.SignatureToRSV(raw)
	if err != nil {
		return nil, err
	}
	return EncodeSignature(&Signature{Mode: mode, V: v + 27, R: r, S: s}), nil
}

// RegistrationReader is the persisted on-chain registration state the
// authorizer consults when no signature is supplied.
type RegistrationReader interface {
	IsRegistered(maker common.Address, hash common.Hash) bool
}

// Authorizer decides whether an order hash was authorized by the claimed
// maker. Pure predicate: no mutation, and failures never raise.
type Authorizer struct {
	typed         *crypto.TypedSigner
	registrations RegistrationReader
}

func NewAuthorizer(typed *crypto.TypedSigner, registrations RegistrationReader) *Authorizer {
	return &Authorizer{typed: typed, registrations: registrations}
}

// Authorize reports whether sigBlob proves the claimed maker authorized the
// order. With a signature it recovers the signing address from the mode's
// digest and compares; without one it checks the on-chain registration flag.
func (a *Authorizer) Authorize(order *Order, hash common.Hash, sigBlob []byte) bool {
	sig, ok := DecodeSignature(sigBlob)
	if !ok {
		return false
	}
	if sig == nil {
		return a.registrations.IsRegistered(order.Maker, hash)
	}

	digest, ok := a.digestFor(order, hash, sig.Mode)
	if !ok {
		return false
	}

	if sig.V < 27 {
		return false
	}
	raw := crypto.RSVToSignature(sig.R, sig.S, sig.V-27)
	recovered, err := crypto.RecoverAddress(digest, raw)
	if err != nil {
		return false
	}
	return recovered == order.Maker
}

func (a *Authorizer) digestFor(order *Order, hash common.Hash, mode byte) ([]byte, bool) {
	switch mode {
	case SigModePersonal:
		return personalDigest(hash), true
	case SigModeTyped:
		digest, err := a.typed.HashOrder(&crypto.SwapOrderTyped{
			Maker:       order.Maker,
			MakerAsset:  order.MakerAsset,
			TakerAsset:  order.TakerAsset,
			MakerAmount: order.MakerAmount,
			TakerAmount: order.TakerAmount,
			Expires:     order.Expires,
			Nonce:       order.Nonce,
		})
		if err != nil {
			return nil, false
		}
		return digest, true
	default:
		return nil, false
	}
}

// personalDigest is the eth_sign envelope over a 32-byte order hash.
func personalDigest(hash common.Hash) []byte {
	return ethcrypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), hash.Bytes())
}
