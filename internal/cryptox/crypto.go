// Package cryptox protects values persisted by the local store. Tokens are
// sealed with AES-GCM under a key derived from an application-supplied
// secret, so a copied database file does not leak credentials.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/argon2"

	"github.com/fells-code/seamless-auth-go/internal/common"
)

// DeriveStorageKey derives a 32-byte AES key from an application secret and
// a per-installation salt using argon2id.
func DeriveStorageKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext with AES-GCM. A fresh random nonce is generated
// per call and returned alongside the ciphertext.
func Seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Open decrypts ciphertext produced by Seal. The key and nonce must match
// the values used for sealing.
func Open(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}
