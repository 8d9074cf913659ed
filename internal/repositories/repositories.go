package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/soundshare/internal/models"
)

// CredentialStore persists the access token, refresh token and expiry with atomic per-key semantics.
type CredentialStore interface {
	// Set overwrites the value stored under key.
	Set(ctx context.Context, key models.CredentialKey, value string) error
	// Get returns the value under key; ok is false when nothing is stored.
	Get(ctx context.Context, key models.CredentialKey) (value string, ok bool, err error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key models.CredentialKey) error
}

func validKey(key models.CredentialKey) error {
	for _, k := range models.CredentialKeys {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("unknown credential key %q", key)
}
