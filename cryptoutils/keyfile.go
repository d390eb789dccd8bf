package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

const (
	sealedKeyPEMType = "SEALED EC PRIVATE KEY"

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// ErrPassphraseRequired is returned when a sealed key file is read without a passphrase.
var ErrPassphraseRequired = errors.New("passphrase required for sealed key")

// SealClientKeys encrypts the private key under a passphrase-derived key
// (argon2id, AES-GCM) and returns a PEM block carrying the KDF salt.
func SealClientKeys(keys *ClientKeys, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := passphraseAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	plaintext, err := hex.DecodeString(keys.SerializeHex())
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	return pem.EncodeToMemory(&pem.Block{
		Type: sealedKeyPEMType,
		Headers: map[string]string{
			"KDF":  "argon2id",
			"Salt": hex.EncodeToString(salt),
		},
		Bytes: sealed,
	}), nil
}

func unsealClientKeys(block *pem.Block, passphrase string) (*ClientKeys, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	if kdf := block.Headers["KDF"]; kdf != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrInvalidKey, kdf)
	}

	salt, err := hex.DecodeString(block.Headers["Salt"])
	if err != nil || len(salt) != saltLen {
		return nil, fmt.Errorf("%w: invalid salt", ErrInvalidKey)
	}

	aead, err := passphraseAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	if len(block.Bytes) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: sealed key too short", ErrInvalidKey)
	}

	nonce, ciphertext := block.Bytes[:aead.NonceSize()], block.Bytes[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupted key", ErrInvalidKey)
	}

	return ParseClientKeys([]byte(hex.EncodeToString(plaintext)), "")
}

func passphraseAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// WriteClientKeys stores keys at path, sealed when a passphrase is given.
func WriteClientKeys(path string, keys *ClientKeys, passphrase string) error {
	var (
		data []byte
		err  error
	)
	if passphrase != "" {
		data, err = SealClientKeys(keys, passphrase)
	} else {
		data, err = keys.SerializePEM()
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ReadClientKeys loads keys from a file in any supported encoding.
func ReadClientKeys(path string, passphrase string) (*ClientKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseClientKeys(data, passphrase)
}
