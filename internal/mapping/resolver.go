// Package mapping implements the identity-mapping resolver: the translation
// layer between hub-internal numeric ids and tracker external keys for
// projects, users, artifacts, releases, custom properties, and option values.
//
// The mapping tables are owned by the hub side; the resolver caches them per
// run, buffers additions, and flushes at engine checkpoints.
package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/slatewood/bridgesync/internal/types"
)

// Store persists mapping tables. The hub client implements it; tests use an
// in-memory fake.
type Store interface {
	LoadMappings(ctx context.Context, scope types.Scope, hubProjectID int) ([]types.Mapping, error)
	SaveMappings(ctx context.Context, scope types.Scope, hubProjectID int, mappings []types.Mapping) error
}

// UserDirectory resolves hub users directly, for the auto-map bypass.
type UserDirectory interface {
	UserByID(ctx context.Context, id int) (*types.HubUser, error)
	UserByLogin(ctx context.Context, login string) (*types.HubUser, error)
}

type scopeKey struct {
	scope     types.Scope
	projectID int
}

// Resolver answers mapping lookups and buffers new mappings until Flush.
//
// When AutoMapUsers is set, user lookups bypass the mapping store entirely
// and query the hub directory, synthesizing {internalId=userId,
// externalKey=userLogin} on the fly. The resolver is the sole user-lookup
// chokepoint; callers never branch on the policy themselves.
type Resolver struct {
	store        Store
	users        UserDirectory
	autoMapUsers bool

	tables  map[scopeKey][]types.Mapping
	pending map[scopeKey][]types.Mapping

	// toRemove collects stale mappings for administrative cleanup. The
	// engine never deletes mappings itself.
	toRemove []types.Mapping
}

// NewResolver creates a resolver over the given store and user directory.
func NewResolver(store Store, users UserDirectory, autoMapUsers bool) *Resolver {
	return &Resolver{
		store:        store,
		users:        users,
		autoMapUsers: autoMapUsers,
		tables:       make(map[scopeKey][]types.Mapping),
		pending:      make(map[scopeKey][]types.Mapping),
	}
}

// Load fetches the mapping table for a scope into the resolver's cache,
// replacing any previously loaded table for that scope. The engine reloads
// artifact scopes between phases so that push results are visible to pull.
func (r *Resolver) Load(ctx context.Context, scope types.Scope, hubProjectID int) error {
	ms, err := r.store.LoadMappings(ctx, scope, hubProjectID)
	if err != nil {
		return fmt.Errorf("load %s mappings for project %d: %w", scope, hubProjectID, err)
	}
	r.tables[scopeKey{scope, hubProjectID}] = ms
	return nil
}

// Preload seeds a scope table without touching the store. Used for tables
// that arrive bundled with another hub call.
func (r *Resolver) Preload(scope types.Scope, hubProjectID int, ms []types.Mapping) {
	r.tables[scopeKey{scope, hubProjectID}] = ms
}

// ByInternalID returns the primary mapping for an internal id, or nil.
func (r *Resolver) ByInternalID(scope types.Scope, hubProjectID, internalID int) *types.Mapping {
	for _, table := range [][]types.Mapping{
		r.tables[scopeKey{scope, hubProjectID}],
		r.pending[scopeKey{scope, hubProjectID}],
	} {
		for i := range table {
			m := &table[i]
			if m.InternalID == internalID && m.Primary {
				return m
			}
		}
	}
	return nil
}

// ByExternalKey returns the first mapping whose external key matches, in
// iteration order. With onlyPrimary, alias entries are excluded before the
// scan.
func (r *Resolver) ByExternalKey(scope types.Scope, hubProjectID int, externalKey string, onlyPrimary bool) *types.Mapping {
	for _, table := range [][]types.Mapping{
		r.tables[scopeKey{scope, hubProjectID}],
		r.pending[scopeKey{scope, hubProjectID}],
	} {
		for i := range table {
			m := &table[i]
			if onlyPrimary && !m.Primary {
				continue
			}
			if m.ExternalKey == externalKey {
				return m
			}
		}
	}
	return nil
}

// UserByInternalID resolves a hub user id to its mapping.
func (r *Resolver) UserByInternalID(ctx context.Context, internalID int) (*types.Mapping, error) {
	if r.autoMapUsers {
		u, err := r.users.UserByID(ctx, internalID)
		if err != nil {
			return nil, fmt.Errorf("auto-map user %d: %w", internalID, err)
		}
		if u == nil {
			return nil, nil
		}
		return &types.Mapping{
			Scope:       types.ScopeUser,
			InternalID:  u.ID,
			ExternalKey: u.Login,
			Primary:     true,
		}, nil
	}
	return r.ByInternalID(types.ScopeUser, 0, internalID), nil
}

// UserByExternalKey resolves a tracker login to its hub user mapping.
func (r *Resolver) UserByExternalKey(ctx context.Context, externalKey string) (*types.Mapping, error) {
	if r.autoMapUsers {
		u, err := r.users.UserByLogin(ctx, externalKey)
		if err != nil {
			return nil, fmt.Errorf("auto-map user %q: %w", externalKey, err)
		}
		if u == nil {
			return nil, nil
		}
		return &types.Mapping{
			Scope:       types.ScopeUser,
			InternalID:  u.ID,
			ExternalKey: u.Login,
			Primary:     true,
		}, nil
	}
	return r.ByExternalKey(types.ScopeUser, 0, externalKey, false), nil
}

// Add buffers mappings for the scope. Buffered entries are visible to
// lookups immediately and written to the store at the next Flush.
func (r *Resolver) Add(scope types.Scope, hubProjectID int, mappings ...types.Mapping) {
	if len(mappings) == 0 {
		return
	}
	key := scopeKey{scope, hubProjectID}
	r.pending[key] = append(r.pending[key], mappings...)
}

// PendingCount reports how many mappings are buffered for a scope.
func (r *Resolver) PendingCount(scope types.Scope, hubProjectID int) int {
	return len(r.pending[scopeKey{scope, hubProjectID}])
}

// MarkForRemoval records a stale mapping for administrative cleanup.
func (r *Resolver) MarkForRemoval(m types.Mapping) {
	r.toRemove = append(r.toRemove, m)
}

// Removals returns the mappings recorded for cleanup.
func (r *Resolver) Removals() []types.Mapping { return r.toRemove }

// Flush writes all buffered mappings to the store and merges them into the
// cached tables. Mappings are append-only within a cycle.
func (r *Resolver) Flush(ctx context.Context) error {
	var errs []string
	for key, ms := range r.pending {
		if len(ms) == 0 {
			continue
		}
		if err := r.store.SaveMappings(ctx, key.scope, key.projectID, ms); err != nil {
			errs = append(errs, fmt.Sprintf("%s/%d: %v", key.scope, key.projectID, err))
			continue
		}
		r.tables[key] = append(r.tables[key], ms...)
		delete(r.pending, key)
	}
	if len(errs) > 0 {
		return fmt.Errorf("flush mappings: %s", strings.Join(errs, "; "))
	}
	return nil
}
