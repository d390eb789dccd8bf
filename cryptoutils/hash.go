package cryptoutils

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeStateHash returns the hash identifying a raw contract state.
func ComputeStateHash(rawState []byte) []byte {
	return crypto.Keccak256(rawState)
}

// ComputeMessageHash is the SHA-256 digest used for identifiers derived from
// signatures and other opaque messages.
func ComputeMessageHash(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}

// EncodeStateHash renders a state hash the way the ledger indexes it.
func EncodeStateHash(stateHash []byte) string {
	return base64.StdEncoding.EncodeToString(stateHash)
}

// DecodeStateHash reverses EncodeStateHash.
func DecodeStateHash(encoded string) ([]byte, error) {
	hash, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid encoded state hash: %w", err)
	}
	return hash, nil
}

// TransactionSignatureToID turns a hex transaction signature into the base64
// identifier used for contract ids.
func TransactionSignatureToID(signature string) (string, error) {
	raw, err := hex.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("invalid transaction signature: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ComputeMessageHash(raw)), nil
}
