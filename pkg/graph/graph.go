package graph

import (
	"sort"
	"time"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// User is a principal in the tenant's authorization graph. Sensitive
// attributes are stored as encrypted fields, never as plaintext.
type User struct {
	ID         int64                            `json:"id" msgpack:"id"`
	Name       string                           `json:"name" msgpack:"name"`
	CreatedAt  time.Time                        `json:"createdAt" msgpack:"createdAt"`
	Attributes map[string]*types.EncryptedField `json:"attributes,omitempty" msgpack:"attributes,omitempty"`
}

// Group is a named set of users
type Group struct {
	ID      int64              `json:"id" msgpack:"id"`
	Name    string             `json:"name" msgpack:"name"`
	Members map[int64]struct{} `json:"-" msgpack:"-"`
}

// Role carries permission grants
type Role struct {
	ID     int64   `json:"id" msgpack:"id"`
	Name   string  `json:"name" msgpack:"name"`
	Grants []Grant `json:"grants" msgpack:"grants"`
}

// Grant permits an action on a resource
type Grant struct {
	Resource string `json:"resource" msgpack:"resource"`
	Action   string `json:"action" msgpack:"action"`
}

// Graph is one tenant's in-memory authorization model. It is deliberately
// lock-free: the command buffer guarantees a single writer, and reads also
// run as buffered commands.
type Graph struct {
	tenantID string

	nextID     int64
	users      map[int64]*User
	userOrder  []int64
	groups     map[int64]*Group
	roles      map[int64]*Role
	userRoles  map[int64]map[int64]struct{} // userID -> roleIDs
	groupRoles map[int64]map[int64]struct{} // groupID -> roleIDs
}

// New creates an empty graph for a tenant
func New(tenantID string) *Graph {
	return &Graph{
		tenantID:   tenantID,
		users:      make(map[int64]*User),
		groups:     make(map[int64]*Group),
		roles:      make(map[int64]*Role),
		userRoles:  make(map[int64]map[int64]struct{}),
		groupRoles: make(map[int64]map[int64]struct{}),
	}
}

// TenantID returns the owning tenant
func (g *Graph) TenantID() string {
	return g.tenantID
}

func (g *Graph) nextIdentity() int64 {
	g.nextID++
	return g.nextID
}

// CreateUser adds a user and returns it
func (g *Graph) CreateUser(name string) (*User, error) {
	if name == "" {
		return nil, errdefs.New(errdefs.KindBadCommandPayload, "user name is required")
	}
	u := &User{
		ID:         g.nextIdentity(),
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		Attributes: make(map[string]*types.EncryptedField),
	}
	g.users[u.ID] = u
	g.userOrder = append(g.userOrder, u.ID)
	return u, nil
}

// GetUser returns a user by id
func (g *Graph) GetUser(id int64) (*User, error) {
	u, ok := g.users[id]
	if !ok {
		return nil, errdefs.New(errdefs.KindNotFound, "user %d not found", id)
	}
	return u, nil
}

// ListUsers returns users in creation order
func (g *Graph) ListUsers() []*User {
	out := make([]*User, 0, len(g.userOrder))
	for _, id := range g.userOrder {
		if u, ok := g.users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

// DeleteUser removes a user and its memberships
func (g *Graph) DeleteUser(id int64) error {
	if _, ok := g.users[id]; !ok {
		return errdefs.New(errdefs.KindNotFound, "user %d not found", id)
	}
	delete(g.users, id)
	delete(g.userRoles, id)
	for _, grp := range g.groups {
		delete(grp.Members, id)
	}
	return nil
}

// CreateGroup adds a group
func (g *Graph) CreateGroup(name string) (*Group, error) {
	if name == "" {
		return nil, errdefs.New(errdefs.KindBadCommandPayload, "group name is required")
	}
	grp := &Group{
		ID:      g.nextIdentity(),
		Name:    name,
		Members: make(map[int64]struct{}),
	}
	g.groups[grp.ID] = grp
	return grp, nil
}

// AddUserToGroup records a membership
func (g *Graph) AddUserToGroup(userID, groupID int64) error {
	if _, ok := g.users[userID]; !ok {
		return errdefs.New(errdefs.KindNotFound, "user %d not found", userID)
	}
	grp, ok := g.groups[groupID]
	if !ok {
		return errdefs.New(errdefs.KindNotFound, "group %d not found", groupID)
	}
	grp.Members[userID] = struct{}{}
	return nil
}

// CreateRole adds a role
func (g *Graph) CreateRole(name string) (*Role, error) {
	if name == "" {
		return nil, errdefs.New(errdefs.KindBadCommandPayload, "role name is required")
	}
	r := &Role{ID: g.nextIdentity(), Name: name}
	g.roles[r.ID] = r
	return r, nil
}

// AssignRoleToUser links a role to a user
func (g *Graph) AssignRoleToUser(userID, roleID int64) error {
	if _, ok := g.users[userID]; !ok {
		return errdefs.New(errdefs.KindNotFound, "user %d not found", userID)
	}
	if _, ok := g.roles[roleID]; !ok {
		return errdefs.New(errdefs.KindNotFound, "role %d not found", roleID)
	}
	if g.userRoles[userID] == nil {
		g.userRoles[userID] = make(map[int64]struct{})
	}
	g.userRoles[userID][roleID] = struct{}{}
	return nil
}

// AssignRoleToGroup links a role to a group
func (g *Graph) AssignRoleToGroup(groupID, roleID int64) error {
	if _, ok := g.groups[groupID]; !ok {
		return errdefs.New(errdefs.KindNotFound, "group %d not found", groupID)
	}
	if _, ok := g.roles[roleID]; !ok {
		return errdefs.New(errdefs.KindNotFound, "role %d not found", roleID)
	}
	if g.groupRoles[groupID] == nil {
		g.groupRoles[groupID] = make(map[int64]struct{})
	}
	g.groupRoles[groupID][roleID] = struct{}{}
	return nil
}

// GrantPermission adds a grant to a role
func (g *Graph) GrantPermission(roleID int64, resource, action string) error {
	r, ok := g.roles[roleID]
	if !ok {
		return errdefs.New(errdefs.KindNotFound, "role %d not found", roleID)
	}
	for _, grant := range r.Grants {
		if grant.Resource == resource && grant.Action == action {
			return nil
		}
	}
	r.Grants = append(r.Grants, Grant{Resource: resource, Action: action})
	return nil
}

// CheckAccess walks user -> direct roles and user -> groups -> group roles
// and reports whether any role grants the action on the resource.
func (g *Graph) CheckAccess(userID int64, resource, action string) (bool, error) {
	if _, ok := g.users[userID]; !ok {
		return false, errdefs.New(errdefs.KindNotFound, "user %d not found", userID)
	}

	roleIDs := make(map[int64]struct{})
	for id := range g.userRoles[userID] {
		roleIDs[id] = struct{}{}
	}
	for gid, grp := range g.groups {
		if _, member := grp.Members[userID]; member {
			for id := range g.groupRoles[gid] {
				roleIDs[id] = struct{}{}
			}
		}
	}

	for id := range roleIDs {
		r, ok := g.roles[id]
		if !ok {
			continue
		}
		for _, grant := range r.Grants {
			if grant.Resource == resource && grant.Action == action {
				return true, nil
			}
		}
	}
	return false, nil
}

// SetUserAttribute attaches an encrypted field to a user
func (g *Graph) SetUserAttribute(userID int64, field *types.EncryptedField) error {
	u, ok := g.users[userID]
	if !ok {
		return errdefs.New(errdefs.KindNotFound, "user %d not found", userID)
	}
	u.Attributes[field.FieldName] = field
	return nil
}

// GetUserAttribute returns a user's encrypted field
func (g *Graph) GetUserAttribute(userID int64, fieldName string) (*types.EncryptedField, error) {
	u, ok := g.users[userID]
	if !ok {
		return nil, errdefs.New(errdefs.KindNotFound, "user %d not found", userID)
	}
	f, ok := u.Attributes[fieldName]
	if !ok {
		return nil, errdefs.New(errdefs.KindNotFound, "attribute %s not set for user %d", fieldName, userID)
	}
	return f, nil
}

// Stats summarizes graph contents for health reporting
func (g *Graph) Stats() map[string]int {
	return map[string]int{
		"users":  len(g.users),
		"groups": len(g.groups),
		"roles":  len(g.roles),
	}
}

// SortedGroupNames is a helper for deterministic listings
func (g *Graph) SortedGroupNames() []string {
	names := make([]string, 0, len(g.groups))
	for _, grp := range g.groups {
		names = append(names, grp.Name)
	}
	sort.Strings(names)
	return names
}
