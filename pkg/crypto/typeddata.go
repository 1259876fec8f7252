package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedDomain is the EIP-712 domain separator for typed order signing.
// Binding the exchange instance address as the verifying contract prevents a
// signature from being replayed against a different deployment.
type TypedDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// SwapOrderTyped is the typed-data form of a swap order, the structure a
// wallet shows the maker with eth_signTypedData_v4.
type SwapOrderTyped struct {
	Maker       common.Address
	MakerAsset  common.Address
	TakerAsset  common.Address
	MakerAmount *big.Int
	TakerAmount *big.Int
	Expires     *big.Int
	Nonce       *big.Int
}

// TypedSigner hashes swap orders according to EIP-712.
type TypedSigner struct {
	domain TypedDomain
}

func NewTypedSigner(domain TypedDomain) *TypedSigner {
	return &TypedSigner{domain: domain}
}

// DefaultDomain returns the EscrowDEX signing domain for an exchange instance.
func DefaultDomain(exchange common.Address) TypedDomain {
	return TypedDomain{
		Name:              "EscrowDEX",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: exchange,
	}
}

// HashOrder computes the EIP-712 digest a maker signs for a swap order.
func (t *TypedSigner) HashOrder(order *SwapOrderTyped) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SwapOrder": []apitypes.Type{
				{Name: "maker", Type: "address"},
				{Name: "makerAsset", Type: "address"},
				{Name: "takerAsset", Type: "address"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expires", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "SwapOrder",
		Domain: apitypes.TypedDataDomain{
			Name:              t.domain.Name,
			Version:           t.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(t.domain.ChainID),
			VerifyingContract: t.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"maker":       order.Maker.Hex(),
			"makerAsset":  order.MakerAsset.Hex(),
			"takerAsset":  order.TakerAsset.Hex(),
			"makerAmount": order.MakerAmount.String(),
			"takerAmount": order.TakerAmount.String(),
			"expires":     order.Expires.String(),
			"nonce":       order.Nonce.String(),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// digest = keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	digest := crypto.Keccak256Hash(rawData)
	return digest.Bytes(), nil
}

// SignOrder signs the typed digest of an order.
func (t *TypedSigner) SignOrder(signer *Signer, order *SwapOrderTyped) ([]byte, error) {
	hash, err := t.HashOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}
	return signer.Sign(hash)
}

// RecoverOrderSigner recovers the address that produced a typed order signature.
func (t *TypedSigner) RecoverOrderSigner(order *SwapOrderTyped, signature []byte) (common.Address, error) {
	hash, err := t.HashOrder(order)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash order: %w", err)
	}
	return RecoverAddress(hash, signature)
}
