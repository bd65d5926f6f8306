package rbac

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type memoryRepo struct {
	mu          sync.Mutex
	identities  map[string]Identity
	roles       map[string]Role
	assignments []Assignment
	nextID      int
	fetches     atomic.Int64
	failWith    error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{identities: make(map[string]Identity), roles: make(map[string]Role)}
}

func (m *memoryRepo) addIdentity(id string, superuser bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id] = Identity{ID: id, IsActive: true, IsSuperuser: superuser}
}

func (m *memoryRepo) addRole(name string, perms PermissionMap) Role {
	role, err := m.InsertRole(context.Background(), Role{Name: name, Permissions: perms})
	if err != nil {
		panic(err)
	}
	return role
}

// assign appends without deduplication so duplicate assignments can be exercised.
func (m *memoryRepo) assign(identityID, roleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, Assignment{IdentityID: identityID, RoleID: roleID, CreatedAt: time.Now()})
}

func (m *memoryRepo) GetIdentity(_ context.Context, identityID string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return Identity{}, m.failWith
	}
	id, ok := m.identities[identityID]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return id, nil
}

func (m *memoryRepo) ListAssignments(_ context.Context, identityID string) ([]Assignment, error) {
	m.fetches.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.assignments {
		if a.IdentityID == identityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetRolesByIDs(_ context.Context, ids []string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for _, id := range ids {
		if role, ok := m.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListRoles(_ context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepo) GetRole(_ context.Context, id string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memoryRepo) GetRoleByName(_ context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, ErrNotFound
}

func (m *memoryRepo) InsertRole(_ context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return Role{}, ErrDuplicateRole
		}
	}
	m.nextID++
	role.ID = "role-" + strconv.Itoa(m.nextID)
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) UpdateRole(_ context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.roles[role.ID]
	if !ok {
		return Role{}, ErrNotFound
	}
	role.IsSystem = current.IsSystem
	role.CreatedAt = current.CreatedAt
	role.UpdatedAt = time.Now()
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) DeleteRole(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.RoleID != id {
			kept = append(kept, a)
		}
	}
	m.assignments = kept
	return nil
}

func (m *memoryRepo) InsertAssignment(_ context.Context, identityID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.IdentityID == identityID && a.RoleID == roleID {
			return nil
		}
	}
	m.assignments = append(m.assignments, Assignment{IdentityID: identityID, RoleID: roleID, CreatedAt: time.Now()})
	return nil
}

func (m *memoryRepo) DeleteAssignment(_ context.Context, identityID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.IdentityID == identityID && a.RoleID == roleID {
			continue
		}
		kept = append(kept, a)
	}
	m.assignments = kept
	return nil
}

func (m *memoryRepo) ReplaceAssignments(_ context.Context, identityID string, roleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.IdentityID != identityID {
			kept = append(kept, a)
		}
	}
	for _, id := range roleIDs {
		kept = append(kept, Assignment{IdentityID: identityID, RoleID: id, CreatedAt: time.Now()})
	}
	m.assignments = kept
	return nil
}

func (m *memoryRepo) ListRoleMembers(_ context.Context, roleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.assignments {
		if a.RoleID == roleID {
			out = append(out, a.IdentityID)
		}
	}
	return out, nil
}

var errBackendDown = errors.New("backend down")
