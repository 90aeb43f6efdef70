package storage

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/fells-code/seamless-auth-go/internal/cryptox"
)

// SealedStore wraps another Store and encrypts values at rest with
// AES-GCM. Keys stay in the clear; only values are sealed. The encoded
// form is base64(nonce || ciphertext).
type SealedStore struct {
	inner Store
	key   []byte
}

func NewSealedStore(inner Store, key []byte) *SealedStore {
	return &SealedStore{inner: inner, key: key}
}

func (s *SealedStore) Get(ctx context.Context, key string) (string, error) {
	encoded, err := s.inner.Get(ctx, key)
	if err != nil || encoded == "" {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode storage[%s]: %w", key, err)
	}
	if len(raw) <= nonceSize {
		return "", fmt.Errorf("sealed value for storage[%s] is truncated", key)
	}

	plaintext, err := cryptox.Open(raw[nonceSize:], raw[:nonceSize], s.key)
	if err != nil {
		return "", fmt.Errorf("failed to unseal storage[%s]: %w", key, err)
	}
	return string(plaintext), nil
}

func (s *SealedStore) Set(ctx context.Context, key string, value string) error {
	ciphertext, nonce, err := cryptox.Seal([]byte(value), s.key)
	if err != nil {
		return fmt.Errorf("failed to seal storage[%s]: %w", key, err)
	}
	encoded := base64.StdEncoding.EncodeToString(append(nonce, ciphertext...))
	return s.inner.Set(ctx, key, encoded)
}

func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SealedStore) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

// AES-GCM standard nonce length.
const nonceSize = 12
