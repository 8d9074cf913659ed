package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
)

// SQLiteCredentialStore implements [CredentialStore] over the credentials table.
type SQLiteCredentialStore struct {
	db *sql.DB
}

// NewSQLiteCredentialStore creates a store over db, which must already be migrated.
func NewSQLiteCredentialStore(db *sql.DB) *SQLiteCredentialStore {
	return &SQLiteCredentialStore{db: db}
}

// Set upserts value under key.
func (s *SQLiteCredentialStore) Set(ctx context.Context, key models.CredentialKey, value string) error {
	if err := validKey(key); err != nil {
		return err
	}

	query := `
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, string(key), value); err != nil {
		return fmt.Errorf("%w: failed to store %s: %v", shared.ErrCredentialStore, key, err)
	}
	return nil
}

// Get reads the value under key.
func (s *SQLiteCredentialStore) Get(ctx context.Context, key models.CredentialKey) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE key = ?", string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to read %s: %v", shared.ErrCredentialStore, key, err)
	}

	return value, true, nil
}

// Delete removes key if present.
func (s *SQLiteCredentialStore) Delete(ctx context.Context, key models.CredentialKey) error {
	if err := validKey(key); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", string(key)); err != nil {
		return fmt.Errorf("%w: failed to delete %s: %v", shared.ErrCredentialStore, key, err)
	}
	return nil
}

// MemoryCredentialStore implements [CredentialStore] in process memory.
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	values map[models.CredentialKey]string
}

// NewMemoryCredentialStore creates an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{values: make(map[models.CredentialKey]string)}
}

func (s *MemoryCredentialStore) Set(_ context.Context, key models.CredentialKey, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryCredentialStore) Get(_ context.Context, key models.CredentialKey) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, key models.CredentialKey) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
