// Package storage is the local persistence collaborator: named string
// values that survive restarts (tokens in bearer mode, the prior-sign-in
// marker). It plays the role browser local storage plays for the hosted
// web client.
package storage

import "context"

// Store holds named string values. Get returns ("", nil) for an absent
// key; absence and emptiness are equivalent to every caller.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
