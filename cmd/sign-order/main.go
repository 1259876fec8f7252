package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/escrowdex/params"
	"github.com/uhyunpark/escrowdex/pkg/crypto"
	"github.com/uhyunpark/escrowdex/pkg/exchange"
)

// Developer utility: generates a maker key, builds a sample order, and prints
// the order hash plus both signature modes together with a ready-to-POST
// /api/v1/trade body.
func main() {
	cfg := params.LoadFromEnv("")

	var signer *crypto.Signer
	var err error
	if hexKey := os.Getenv("MAKER_KEY"); hexKey != "" {
		signer, err = crypto.FromPrivateKeyHex(hexKey)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	order := &exchange.Order{
		Maker:       signer.Address(),
		MakerAsset:  common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		TakerAsset:  common.HexToAddress("0x00000000000000000000000000000000000000a2"),
		MakerAmount: big.NewInt(1_000_000_000_000_000_000),
		TakerAmount: big.NewInt(1_000_000_000_000_000_000),
		Expires:     big.NewInt(time.Now().Add(24 * time.Hour).Unix()),
		Nonce:       big.NewInt(1),
		Exchange:    cfg.Exchange.Address,
	}
	if err := order.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	hash := order.Hash()
	fmt.Println("Order Details:")
	fmt.Printf("  Maker:       %s\n", order.Maker.Hex())
	fmt.Printf("  MakerAsset:  %s\n", order.MakerAsset.Hex())
	fmt.Printf("  TakerAsset:  %s\n", order.TakerAsset.Hex())
	fmt.Printf("  MakerAmount: %s\n", order.MakerAmount.String())
	fmt.Printf("  TakerAmount: %s\n", order.TakerAmount.String())
	fmt.Printf("  Expires:     %s\n", order.Expires.String())
	fmt.Printf("  Nonce:       %s\n", order.Nonce.String())
	fmt.Printf("  Hash:        %s\n\n", hash.Hex())

	// Mode 1: personal-message envelope over the order hash (eth_sign).
	envelope := ethcrypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), hash.Bytes())
	rawPersonal, err := signer.Sign(envelope)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	personal, err := exchange.WireSignature(exchange.SigModePersonal, rawPersonal)
	if err != nil {
		fmt.Printf("Error encoding: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature (personal): 0x%x\n", personal)

	// Mode 2: EIP-712 typed data (eth_signTypedData_v4).
	typed := crypto.NewTypedSigner(crypto.DefaultDomain(cfg.Exchange.Address))
	rawTyped, err := typed.SignOrder(signer, &crypto.SwapOrderTyped{
		Maker:       order.Maker,
		MakerAsset:  order.MakerAsset,
		TakerAsset:  order.TakerAsset,
		MakerAmount: order.MakerAmount,
		TakerAmount: order.TakerAmount,
		Expires:     order.Expires,
		Nonce:       order.Nonce,
	})
	if err != nil {
		fmt.Printf("Error signing typed data: %v\n", err)
		os.Exit(1)
	}
	typedBlob, err := exchange.WireSignature(exchange.SigModeTyped, rawTyped)
	if err != nil {
		fmt.Printf("Error encoding: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature (typed):    0x%x\n\n", typedBlob)

	body := map[string]interface{}{
		"addresses": []string{
			order.Maker.Hex(),
			order.MakerAsset.Hex(),
			order.TakerAsset.Hex(),
		},
		"values": []string{
			order.MakerAmount.String(),
			order.TakerAmount.String(),
			order.Expires.String(),
			order.Nonce.String(),
		},
		"signature": fmt.Sprintf("0x%x", personal),
		"amount":    order.TakerAmount.String(),
		"taker":     "0x0000000000000000000000000000000000000002",
	}
	bodyJSON, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("POST /api/v1/trade body:")
	fmt.Println(string(bodyJSON))
}
