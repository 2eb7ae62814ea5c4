package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrEmptyKey = errors.New("private key is empty")

// Wallet is the signing identity a lock is created for. Only the address is
// exposed; the key stays with the submitter process.
type Wallet struct {
	address common.Address
}

// FromPrivateKey parses a hex encoded secp256k1 key, with or without 0x prefix.
func FromPrivateKey(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrEmptyKey
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Wallet{address: addressOf(key)}, nil
}

func addressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Address returns the EIP-55 checksummed address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// SameAddress compares two hex addresses ignoring case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
