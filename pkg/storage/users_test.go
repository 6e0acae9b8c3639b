package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, "Alice@Example.com", "hashed")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email, "emails are stored lowercased")
	assert.Equal(t, "hashed", u.PasswordHash)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, "alice@example.com", "h1")
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "ALICE@example.com", "h2")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGetUserByEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateUser(ctx, "alice@example.com", "hashed")
	require.NoError(t, err)

	u, err := store.GetUserByEmail(ctx, "  ALICE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUserByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateUser(ctx, "alice@example.com", "hashed")
	require.NoError(t, err)

	u, err := store.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	_, err = store.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsersExcept(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := store.CreateUser(ctx, "alice@example.com", "h")
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, "bob@example.com", "h")
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, "carol@example.com", "h")
	require.NoError(t, err)

	users, err := store.ListUsersExcept(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob@example.com", users[0].Email)
	assert.Equal(t, "carol@example.com", users[1].Email)
}

func TestClosedStore(t *testing.T) {
	var s *Store
	_, err := s.CreateUser(context.Background(), "a@b.c", "h")
	assert.ErrorIs(t, err, ErrStoreClosed)
}
