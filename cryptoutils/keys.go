package cryptoutils

import (
	"crypto/ecdsa"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	privateKeyPEMType = "EC PRIVATE KEY"
	publicKeyPEMType  = "PUBLIC KEY"
)

var (
	// ErrInvalidKey is returned when key material cannot be deserialized.
	ErrInvalidKey = errors.New("invalid key material")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// ecPrivateKey is the SEC 1 ASN.1 structure of an EC private key.
// The standard library rejects curves it does not implement, so secp256k1
// keys are encoded by hand.
type ecPrivateKey struct {
	Version       int
	PrivateKey    []byte
	NamedCurveOID asn1.ObjectIdentifier `asn1:"optional,explicit,tag:0"`
	PublicKey     asn1.BitString        `asn1:"optional,explicit,tag:1"`
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

// ClientKeys is the secp256k1 signing identity of a contract invoker.
type ClientKeys struct {
	privateKey *ecdsa.PrivateKey
}

// GenerateClientKeys creates a fresh random signing identity.
func GenerateClientKeys() (*ClientKeys, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &ClientKeys{privateKey: key}, nil
}

// NewClientKeys wraps an existing secp256k1 private key.
func NewClientKeys(key *ecdsa.PrivateKey) *ClientKeys {
	return &ClientKeys{privateKey: key}
}

// ParseClientKeys deserializes a private key in PEM, sealed PEM or hex form.
// The passphrase is only consulted for sealed keys.
func ParseClientKeys(data []byte, passphrase string) (*ClientKeys, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "-----BEGIN") {
		block, _ := pem.Decode([]byte(trimmed))
		if block == nil {
			return nil, fmt.Errorf("%w: malformed PEM", ErrInvalidKey)
		}

		switch block.Type {
		case privateKeyPEMType:
			return parsePrivateKeyDER(block.Bytes)
		case sealedKeyPEMType:
			return unsealClientKeys(block, passphrase)
		default:
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
		}
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(trimmed, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &ClientKeys{privateKey: key}, nil
}

func parsePrivateKeyDER(der []byte) (*ClientKeys, error) {
	var parsed ecPrivateKey
	rest, err := asn1.Unmarshal(der, &parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing data after private key", ErrInvalidKey)
	}
	if parsed.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported private key version %d", ErrInvalidKey, parsed.Version)
	}
	if len(parsed.NamedCurveOID) != 0 && !parsed.NamedCurveOID.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("%w: unsupported curve %v", ErrInvalidKey, parsed.NamedCurveOID)
	}

	key, err := crypto.ToECDSA(parsed.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &ClientKeys{privateKey: key}, nil
}

// SerializePEM encodes the private key as a SEC 1 "EC PRIVATE KEY" PEM block.
func (k *ClientKeys) SerializePEM() ([]byte, error) {
	der, err := asn1.Marshal(ecPrivateKey{
		Version:       1,
		PrivateKey:    math.PaddedBigBytes(k.privateKey.D, 32),
		NamedCurveOID: oidSecp256k1,
		PublicKey:     asn1.BitString{Bytes: crypto.FromECDSAPub(&k.privateKey.PublicKey), BitLength: 65 * 8},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: der}), nil
}

// SerializeHex encodes the private key in the go-ethereum hex key file format.
func (k *ClientKeys) SerializeHex() string {
	return hex.EncodeToString(crypto.FromECDSA(k.privateKey))
}

// PublicKey returns the uncompressed public key.
func (k *ClientKeys) PublicKey() []byte {
	return crypto.FromECDSAPub(&k.privateKey.PublicKey)
}

// PublicKeyPEM encodes the public key as a SubjectPublicKeyInfo PEM block.
func (k *ClientKeys) PublicKeyPEM() ([]byte, error) {
	return SerializePublicKeyPEM(&k.privateKey.PublicKey)
}

// Address is the ledger identity derived from the public key.
func (k *ClientKeys) Address() common.Address {
	return crypto.PubkeyToAddress(k.privateKey.PublicKey)
}

// Identity returns the lowercase hex address used as the invoker identity.
func (k *ClientKeys) Identity() string {
	return strings.ToLower(k.Address().Hex())
}

// Sign produces a 65 byte recoverable signature over a 32 byte digest.
func (k *ClientKeys) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.privateKey)
}

// ECDSA exposes the underlying key, for ledger transactors.
func (k *ClientKeys) ECDSA() *ecdsa.PrivateKey {
	return k.privateKey
}

// SerializePublicKeyPEM encodes a secp256k1 public key as PEM.
func SerializePublicKeyPEM(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{Algorithm: oidECPublicKey, Parameters: oidSecp256k1},
		PublicKey: asn1.BitString{Bytes: crypto.FromECDSAPub(pub), BitLength: 65 * 8},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: der}), nil
}

// ParsePublicKeyPEM decodes a secp256k1 public key from PEM.
func ParsePublicKeyPEM(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: malformed PEM", ErrInvalidKey)
	}
	if block.Type != publicKeyPEMType {
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}

	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(block.Bytes, &spki); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if !spki.Algorithm.Algorithm.Equal(oidECPublicKey) || !spki.Algorithm.Parameters.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("%w: not a secp256k1 public key", ErrInvalidKey)
	}

	pub, err := crypto.UnmarshalPubkey(spki.PublicKey.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// VerifySignature checks a recoverable signature over digest against an
// uncompressed public key.
func VerifySignature(pubkey []byte, digest []byte, signature []byte) error {
	if len(signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: bad length %d", ErrInvalidSignature, len(signature))
	}
	if !crypto.VerifySignature(pubkey, digest, signature[:crypto.RecoveryIDOffset]) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifySignatureFrom checks that signature over digest was produced by the
// key controlling address.
func VerifySignatureFrom(address common.Address, digest []byte, signature []byte) error {
	if len(signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: bad length %d", ErrInvalidSignature, len(signature))
	}
	pub, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != address {
		return fmt.Errorf("%w: signed by %s, expected %s", ErrInvalidSignature, signer.Hex(), address.Hex())
	}
	return nil
}

// AddressFromPublicKey derives the ledger address of an uncompressed public key.
func AddressFromPublicKey(pubkey []byte) (common.Address, error) {
	pub, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
