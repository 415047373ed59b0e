package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatewood/bridgesync/internal/types"
)

type fakeStore struct {
	tables  map[string][]types.Mapping
	saveErr error
	saves   int
}

func storeKey(scope types.Scope, projectID int) string {
	return scope.String() + "/" + string(rune('0'+projectID))
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string][]types.Mapping)}
}

func (s *fakeStore) LoadMappings(_ context.Context, scope types.Scope, projectID int) ([]types.Mapping, error) {
	return s.tables[storeKey(scope, projectID)], nil
}

func (s *fakeStore) SaveMappings(_ context.Context, scope types.Scope, projectID int, ms []types.Mapping) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	key := storeKey(scope, projectID)
	s.tables[key] = append(s.tables[key], ms...)
	return nil
}

type fakeDirectory struct {
	users map[int]*types.HubUser
}

func (d *fakeDirectory) UserByID(_ context.Context, id int) (*types.HubUser, error) {
	return d.users[id], nil
}

func (d *fakeDirectory) UserByLogin(_ context.Context, login string) (*types.HubUser, error) {
	for _, u := range d.users {
		if u.Login == login {
			return u, nil
		}
	}
	return nil, nil
}

func TestByInternalIDReturnsPrimary(t *testing.T) {
	store := newFakeStore()
	store.tables[storeKey(types.ScopeIncident, 7)] = []types.Mapping{
		{Scope: types.ScopeIncident, HubProjectID: 7, InternalID: 42, ExternalKey: "DEMO-1", Primary: false},
		{Scope: types.ScopeIncident, HubProjectID: 7, InternalID: 42, ExternalKey: "DEMO-2", Primary: true},
	}

	r := NewResolver(store, nil, false)
	require.NoError(t, r.Load(context.Background(), types.ScopeIncident, 7))

	m := r.ByInternalID(types.ScopeIncident, 7, 42)
	require.NotNil(t, m)
	assert.Equal(t, "DEMO-2", m.ExternalKey)
	assert.Nil(t, r.ByInternalID(types.ScopeIncident, 7, 99))
}

func TestByExternalKeyFirstMatchWins(t *testing.T) {
	store := newFakeStore()
	store.tables[storeKey(types.ScopeRelease, 7)] = []types.Mapping{
		{Scope: types.ScopeRelease, HubProjectID: 7, InternalID: 1, ExternalKey: "9001", Primary: false},
		{Scope: types.ScopeRelease, HubProjectID: 7, InternalID: 2, ExternalKey: "9001", Primary: true},
	}

	r := NewResolver(store, nil, false)
	require.NoError(t, r.Load(context.Background(), types.ScopeRelease, 7))

	m := r.ByExternalKey(types.ScopeRelease, 7, "9001", false)
	require.NotNil(t, m)
	assert.Equal(t, 1, m.InternalID, "first entry in iteration order wins")

	m = r.ByExternalKey(types.ScopeRelease, 7, "9001", true)
	require.NotNil(t, m)
	assert.Equal(t, 2, m.InternalID, "onlyPrimary excludes aliases before the scan")
}

func TestAddVisibleBeforeFlush(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, nil, false)

	r.Add(types.ScopeIncident, 7, types.Mapping{
		Scope: types.ScopeIncident, HubProjectID: 7, InternalID: 42, ExternalKey: "DEMO-5", Primary: true,
	})

	// Visible to both lookup directions before any store write.
	require.NotNil(t, r.ByInternalID(types.ScopeIncident, 7, 42))
	require.NotNil(t, r.ByExternalKey(types.ScopeIncident, 7, "DEMO-5", true))
	assert.Equal(t, 0, store.saves)

	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 0, r.PendingCount(types.ScopeIncident, 7))

	// Property: after flush, ByInternalID still returns the mapping.
	m := r.ByInternalID(types.ScopeIncident, 7, 42)
	require.NotNil(t, m)
	assert.Equal(t, "DEMO-5", m.ExternalKey)
}

func TestFlushErrorKeepsPending(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("session expired")
	r := NewResolver(store, nil, false)
	r.Add(types.ScopeIncident, 7, types.Mapping{InternalID: 1, ExternalKey: "DEMO-9"})

	err := r.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, r.PendingCount(types.ScopeIncident, 7))

	// Retry after the store recovers.
	store.saveErr = nil
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 0, r.PendingCount(types.ScopeIncident, 7))
}

func TestAutoMapUsersBypassesStore(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{users: map[int]*types.HubUser{
		5: {ID: 5, Login: "alice", Name: "Alice"},
	}}

	r := NewResolver(store, dir, true)
	ctx := context.Background()

	m, err := r.UserByInternalID(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "alice", m.ExternalKey)

	m, err = r.UserByExternalKey(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 5, m.InternalID)

	m, err = r.UserByExternalKey(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestUserLookupWithoutAutoMapUsesStore(t *testing.T) {
	store := newFakeStore()
	store.tables[storeKey(types.ScopeUser, 0)] = []types.Mapping{
		{Scope: types.ScopeUser, InternalID: 5, ExternalKey: "alice", Primary: true},
	}
	r := NewResolver(store, nil, false)
	require.NoError(t, r.Load(context.Background(), types.ScopeUser, 0))

	m, err := r.UserByExternalKey(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 5, m.InternalID)
}
