// Package eth holds the Ethereum primitives used by wallet verification:
// address normalization and EIP-191 personal message signatures.
package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an [R || S || V] signature.
const SignatureLength = crypto.SignatureLength

var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidSignature = errors.New("invalid signature")
)

// ChecksumAddress validates a hex address and returns its EIP-55 form.
func ChecksumAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(address).Hex(), nil
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// RecoverPersonal returns the address that produced signature over message
// with personal_sign (EIP-191 version 0x45). V may be 0/1 or 27/28.
func RecoverPersonal(message string, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", ErrInvalidSignature)
	}
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", SignatureLength, ErrInvalidSignature)
	}

	// Copy so the caller's bytes are not modified when normalizing V.
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %w", ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// SignPersonal signs message the way wallets implement personal_sign and
// returns the hex signature with V in 27/28.
func SignPersonal(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
