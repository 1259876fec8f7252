package exchange

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowdex/pkg/crypto"
)

type regStub map[string]bool

func (r regStub) IsRegistered(maker common.Address, hash common.Hash) bool {
	return r[maker.Hex()+hash.Hex()]
}

func newTestAuthorizer(exchange common.Address, regs regStub) *Authorizer {
	typed := crypto.NewTypedSigner(crypto.DefaultDomain(exchange))
	return NewAuthorizer(typed, regs)
}

func signPersonal(t *testing.T, signer *crypto.Signer, hash common.Hash) []byte {
	t.Helper()
	raw, err := signer.Sign(personalDigest(hash))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	blob, err := WireSignature(SigModePersonal, raw)
	if err != nil {
		t.Fatalf("wire signature: %v", err)
	}
	return blob
}

func TestSignatureWireRoundtrip(t *testing.T) {
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash := sampleOrder().Hash()
	blob := signPersonal(t, signer, hash)

	if len(blob) != SignatureLen {
		t.Fatalf("blob length = %d, want %d", len(blob), SignatureLen)
	}
	sig, ok := DecodeSignature(blob)
	if !ok || sig == nil {
		t.Fatalf("decode failed")
	}
	if sig.Mode != SigModePersonal {
		t.Errorf("mode = %d, want %d", sig.Mode, SigModePersonal)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig.V)
	}
	if !bytes.Equal(EncodeSignature(sig), blob) {
		t.Error("encode(decode(blob)) != blob")
	}
}

func TestDecodeSignatureSentinels(t *testing.T) {
	if sig, ok := DecodeSignature(nil); !ok || sig != nil {
		t.Error("nil blob must decode to the no-signature sentinel")
	}
	if sig, ok := DecodeSignature([]byte{}); !ok || sig != nil {
		t.Error("empty blob must decode to the no-signature sentinel")
	}
	if _, ok := DecodeSignature(make([]byte, 65)); ok {
		t.Error("wrong-length blob must be rejected")
	}
}

func TestAuthorizePersonal(t *testing.T) {
	maker, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	order := sampleOrder()
	order.Maker = maker.Address()
	hash := order.Hash()

	auth := newTestAuthorizer(order.Exchange, regStub{})

	blob := signPersonal(t, maker, hash)
	if !auth.Authorize(order, hash, blob) {
		t.Error("valid maker signature rejected")
	}

	// A signature from any other key must not authorize the order.
	stranger, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	forged := signPersonal(t, stranger, hash)
	if auth.Authorize(order, hash, forged) {
		t.Error("stranger's signature accepted")
	}

	// A valid signature over a different order must not transfer.
	other := sampleOrder()
	other.Maker = maker.Address()
	other.Nonce = big.NewInt(9)
	if auth.Authorize(order, hash, signPersonal(t, maker, other.Hash())) {
		t.Error("signature over a different hash accepted")
	}
}

func TestAuthorizeTyped(t *testing.T) {
	maker, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	order := sampleOrder()
	order.Maker = maker.Address()
	hash := order.Hash()

	typed := crypto.NewTypedSigner(crypto.DefaultDomain(order.Exchange))
	raw, err := typed.SignOrder(maker, &crypto.SwapOrderTyped{
		Maker:       order.Maker,
		MakerAsset:  order.MakerAsset,
		TakerAsset:  order.TakerAsset,
		MakerAmount: order.MakerAmount,
		TakerAmount: order.TakerAmount,
		Expires:     order.Expires,
		Nonce:       order.Nonce,
	})
	if err != nil {
		t.Fatalf("sign typed: %v", err)
	}
	blob, err := WireSignature(SigModeTyped, raw)
	if err != nil {
		t.Fatalf("wire signature: %v", err)
	}

	auth := newTestAuthorizer(order.Exchange, regStub{})
	if !auth.Authorize(order, hash, blob) {
		t.Error("valid typed signature rejected")
	}

	// The same raw signature presented under the personal mode recovers a
	// different address and must fail.
	wrongMode, err := WireSignature(SigModePersonal, raw)
	if err != nil {
		t.Fatalf("wire signature: %v", err)
	}
	if auth.Authorize(order, hash, wrongMode) {
		t.Error("typed signature accepted under personal mode")
	}
}

func TestAuthorizeRegistrationFallback(t *testing.T) {
	order := sampleOrder()
	hash := order.Hash()

	regs := regStub{}
	auth := newTestAuthorizer(order.Exchange, regs)

	if auth.Authorize(order, hash, nil) {
		t.Error("unregistered order authorized without signature")
	}
	regs[order.Maker.Hex()+hash.Hex()] = true
	if !auth.Authorize(order, hash, nil) {
		t.Error("registered order rejected without signature")
	}
}

func TestAuthorizeRejectsMalformedBlobs(t *testing.T) {
	maker, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	order := sampleOrder()
	order.Maker = maker.Address()
	hash := order.Hash()

	auth := newTestAuthorizer(order.Exchange, regStub{})
	good := signPersonal(t, maker, hash)

	// Unknown mode byte.
	bad := append([]byte{}, good...)
	bad[0] = 9
	if auth.Authorize(order, hash, bad) {
		t.Error("unknown mode accepted")
	}

	// V below the 27/28 wire convention.
	bad = append([]byte{}, good...)
	bad[1] = 1
	if auth.Authorize(order, hash, bad) {
		t.Error("v < 27 accepted")
	}

	// Truncated blob.
	if auth.Authorize(order, hash, good[:40]) {
		t.Error("truncated blob accepted")
	}
}
