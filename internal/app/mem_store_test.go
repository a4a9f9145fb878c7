package app

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"taskhive/api/internal/session"
	"taskhive/api/internal/store"
)

// memStore is an in-memory dataStore (and authpw.UserStore) used by the
// HTTP-level tests. userLookupErr, when set, makes user lookups fail as if
// the database were unreachable.
type memStore struct {
	users         map[string]store.User
	groups        map[string]store.Group
	members       map[string]map[string]bool
	items         map[string]store.Item
	refresh       map[string]refreshRecord
	revokedJTI    map[string]bool
	userLookupErr error
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]store.User),
		groups:     make(map[string]store.Group),
		members:    make(map[string]map[string]bool),
		items:      make(map[string]store.Item),
		refresh:    make(map[string]refreshRecord),
		revokedJTI: make(map[string]bool),
	}
}

func (m *memStore) CreateUser(ctx context.Context, user store.User) error {
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if m.userLookupErr != nil {
		return store.User{}, m.userLookupErr
	}
	if user, ok := m.users[userID]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if m.userLookupErr != nil {
		return store.User{}, m.userLookupErr
	}
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.refresh[tokenHash] = refreshRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	record, ok := m.refresh[tokenHash]
	if !ok || record.revoked || time.Now().After(record.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	return m.GetUserByID(ctx, record.userID)
}

func (m *memStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if record, ok := m.refresh[tokenHash]; ok {
		record.revoked = true
		m.refresh[tokenHash] = record
	}
	return nil
}

func (m *memStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	m.revokedJTI[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return m.revokedJTI[jti], nil
}

func (m *memStore) GetGroup(ctx context.Context, groupID string) (store.Group, error) {
	if group, ok := m.groups[groupID]; ok {
		return group, nil
	}
	return store.Group{}, sql.ErrNoRows
}

func (m *memStore) GroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	ids := make([]string, 0)
	for id := range m.members[groupID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) ListGroupsForMember(ctx context.Context, userID, nameFilter string) ([]store.Group, error) {
	groups := make([]store.Group, 0)
	for groupID, memberSet := range m.members {
		if !memberSet[userID] {
			continue
		}
		group := m.groups[groupID]
		if nameFilter != "" && !strings.Contains(strings.ToLower(group.Name), strings.ToLower(nameFilter)) {
			continue
		}
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].CreatedAt.Before(groups[j].CreatedAt) })
	return groups, nil
}

func (m *memStore) ListGroupMembers(ctx context.Context, groupID string) ([]store.User, error) {
	users := make([]store.User, 0)
	for id := range m.members[groupID] {
		users = append(users, m.users[id])
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *memStore) InGroupTx(ctx context.Context, fn func(ops store.GroupOps) error) error {
	return fn(&memGroupOps{store: m})
}

func (m *memStore) InsertItem(ctx context.Context, item store.Item) error {
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	m.items[item.ID] = item
	return nil
}

func (m *memStore) GetItemForOwner(ctx context.Context, itemID, userID string) (store.Item, error) {
	item, ok := m.items[itemID]
	if !ok || item.UserID != userID {
		return store.Item{}, sql.ErrNoRows
	}
	return item, nil
}

func (m *memStore) ListItemsForOwner(ctx context.Context, userID, nameFilter string) ([]store.Item, error) {
	items := make([]store.Item, 0)
	for _, item := range m.items {
		if item.UserID != userID {
			continue
		}
		if nameFilter != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(nameFilter)) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (m *memStore) UpdateItem(ctx context.Context, item store.Item) error {
	existing, ok := m.items[item.ID]
	if !ok {
		return sql.ErrNoRows
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	m.items[item.ID] = item
	return nil
}

func (m *memStore) DeleteItemForOwner(ctx context.Context, itemID, userID string) (bool, error) {
	item, ok := m.items[itemID]
	if !ok || item.UserID != userID {
		return false, nil
	}
	delete(m.items, itemID)
	return true, nil
}

func (m *memStore) Ping(ctx context.Context) error {
	return nil
}

type memGroupOps struct {
	store *memStore
}

func (o *memGroupOps) InsertGroup(ctx context.Context, group store.Group) error {
	group.CreatedAt = time.Now().UTC()
	group.UpdatedAt = group.CreatedAt
	o.store.groups[group.ID] = group
	o.store.members[group.ID] = make(map[string]bool)
	return nil
}

func (o *memGroupOps) GetGroupForUpdate(ctx context.Context, groupID string) (store.Group, error) {
	return o.store.GetGroup(ctx, groupID)
}

func (o *memGroupOps) GroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return o.store.GroupMemberIDs(ctx, groupID)
}

func (o *memGroupOps) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	return o.store.GetUserByID(ctx, userID)
}

func (o *memGroupOps) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	return o.store.GetUserByEmail(ctx, email)
}

func (o *memGroupOps) AddMember(ctx context.Context, groupID, userID string) error {
	if o.store.members[groupID] == nil {
		o.store.members[groupID] = make(map[string]bool)
	}
	o.store.members[groupID][userID] = true
	return nil
}

func (o *memGroupOps) RemoveMember(ctx context.Context, groupID, userID string) error {
	delete(o.store.members[groupID], userID)
	return nil
}

func (o *memGroupOps) UpdateGroup(ctx context.Context, groupID, name, description string) error {
	group, ok := o.store.groups[groupID]
	if !ok {
		return sql.ErrNoRows
	}
	group.Name = name
	group.Description = description
	group.UpdatedAt = time.Now().UTC()
	o.store.groups[groupID] = group
	return nil
}

func (o *memGroupOps) DeleteGroup(ctx context.Context, groupID string) error {
	delete(o.store.members, groupID)
	delete(o.store.groups, groupID)
	return nil
}

var _ store.GroupOps = (*memGroupOps)(nil)

// memSessionStore backs SessionStore in tests that exercise the external
// session path.
type memSessionStore struct {
	sessions map[string]session.TokenData
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]session.TokenData)}
}

func (m *memSessionStore) Save(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error {
	m.sessions[tokenHash] = data
	return nil
}

func (m *memSessionStore) Lookup(ctx context.Context, tokenHash string) (session.TokenData, error) {
	if data, ok := m.sessions[tokenHash]; ok {
		return data, nil
	}
	return session.TokenData{}, session.ErrNotFound
}

func (m *memSessionStore) Revoke(ctx context.Context, tokenHash string) error {
	delete(m.sessions, tokenHash)
	return nil
}
