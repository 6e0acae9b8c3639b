package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, store *Store, email string) *User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), email, "hashed")
	require.NoError(t, err)
	return u
}

func TestValidProjectID(t *testing.T) {
	assert.True(t, ValidProjectID(uuid.NewString()))
	assert.False(t, ValidProjectID(""))
	assert.False(t, ValidProjectID("not-a-uuid"))
	assert.False(t, ValidProjectID("../../etc/passwd"))
}

func TestCreateProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")

	p, err := store.CreateProject(ctx, "  My App  ", owner.ID)
	require.NoError(t, err)
	assert.True(t, ValidProjectID(p.ID))
	assert.Equal(t, "my app", p.Name, "names are stored lowercased")
	assert.Equal(t, []string{owner.ID}, p.Members)
	assert.JSONEq(t, `{}`, string(p.FileTree))
}

func TestCreateProjectDuplicateName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")

	_, err := store.CreateProject(ctx, "my app", owner.ID)
	require.NoError(t, err)

	_, err = store.CreateProject(ctx, "MY APP", owner.ID)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateProjectEmptyName(t *testing.T) {
	store := newTestStore(t)
	owner := seedUser(t, store, "owner@example.com")

	_, err := store.CreateProject(context.Background(), "   ", owner.ID)
	assert.Error(t, err)
}

func TestGetProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")

	created, err := store.CreateProject(ctx, "my app", owner.ID)
	require.NoError(t, err)

	p, err := store.GetProject(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, p.ID)
	assert.Equal(t, []string{owner.ID}, p.Members)

	_, err = store.GetProject(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProjectsByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")
	other := seedUser(t, store, "other@example.com")

	_, err := store.CreateProject(ctx, "first", owner.ID)
	require.NoError(t, err)
	_, err = store.CreateProject(ctx, "second", owner.ID)
	require.NoError(t, err)
	_, err = store.CreateProject(ctx, "theirs", other.ID)
	require.NoError(t, err)

	mine, err := store.ListProjectsByUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "first", mine[0].Name)
	assert.Equal(t, "second", mine[1].Name)

	theirs, err := store.ListProjectsByUser(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestAddUsersToProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")
	bob := seedUser(t, store, "bob@example.com")
	carol := seedUser(t, store, "carol@example.com")

	p, err := store.CreateProject(ctx, "my app", owner.ID)
	require.NoError(t, err)

	updated, err := store.AddUsersToProject(ctx, p.ID, []string{bob.ID, carol.ID}, owner.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{owner.ID, bob.ID, carol.ID}, updated.Members)

	// Re-adding an existing member is a no-op.
	updated, err = store.AddUsersToProject(ctx, p.ID, []string{bob.ID}, owner.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Members, 3)
}

func TestAddUsersToProjectNonMemberCaller(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")
	outsider := seedUser(t, store, "outsider@example.com")

	p, err := store.CreateProject(ctx, "my app", owner.ID)
	require.NoError(t, err)

	_, err = store.AddUsersToProject(ctx, p.ID, []string{outsider.ID}, outsider.ID)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestUpdateFileTree(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")

	p, err := store.CreateProject(ctx, "my app", owner.ID)
	require.NoError(t, err)

	tree := json.RawMessage(`{"src":{"main.go":""}}`)
	updated, err := store.UpdateFileTree(ctx, p.ID, tree)
	require.NoError(t, err)
	assert.JSONEq(t, string(tree), string(updated.FileTree))

	_, err = store.UpdateFileTree(ctx, p.ID, json.RawMessage(`{broken`))
	assert.Error(t, err)

	_, err = store.UpdateFileTree(ctx, uuid.NewString(), tree)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsProjectMember(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com")
	outsider := seedUser(t, store, "outsider@example.com")

	p, err := store.CreateProject(ctx, "my app", owner.ID)
	require.NoError(t, err)

	isMember, err := store.IsProjectMember(ctx, p.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, isMember)

	isMember, err = store.IsProjectMember(ctx, p.ID, outsider.ID)
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestMigrationsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, runMigrations(store.DB()))
}
