package graph

import (
	"fmt"
	"testing"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

func TestCreateUserAssignsSequentialIDs(t *testing.T) {
	g := New("acme")
	for i := 1; i <= 3; i++ {
		u, err := g.CreateUser(fmt.Sprintf("user-%d", i))
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		if u.ID != int64(i) {
			t.Errorf("user ID = %d, want %d", u.ID, i)
		}
	}
}

func TestCreateUserRejectsEmptyName(t *testing.T) {
	g := New("acme")
	_, err := g.CreateUser("")
	if !errdefs.IsKind(err, errdefs.KindBadCommandPayload) {
		t.Errorf("CreateUser(\"\") = %v, want BadCommandPayload", err)
	}
}

func TestListUsersCreationOrder(t *testing.T) {
	g := New("acme")
	names := []string{"zeta", "alpha", "mike"}
	for _, n := range names {
		if _, err := g.CreateUser(n); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", n, err)
		}
	}

	users := g.ListUsers()
	if len(users) != len(names) {
		t.Fatalf("ListUsers() len = %d, want %d", len(users), len(names))
	}
	for i, n := range names {
		if users[i].Name != n {
			t.Errorf("ListUsers()[%d] = %q, want %q (creation order, not sorted)", i, users[i].Name, n)
		}
	}
}

func TestDeleteUserCleansMemberships(t *testing.T) {
	g := New("acme")
	u, _ := g.CreateUser("alice")
	grp, _ := g.CreateGroup("admins")
	if err := g.AddUserToGroup(u.ID, grp.ID); err != nil {
		t.Fatalf("AddUserToGroup() error = %v", err)
	}

	if err := g.DeleteUser(u.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, member := grp.Members[u.ID]; member {
		t.Error("deleted user still a group member")
	}
	if _, err := g.GetUser(u.ID); !errdefs.IsKind(err, errdefs.KindNotFound) {
		t.Errorf("GetUser() after delete = %v, want NotFound", err)
	}
	// Users list must not contain the deleted user
	for _, lu := range g.ListUsers() {
		if lu.ID == u.ID {
			t.Error("deleted user still listed")
		}
	}
}

func TestCheckAccessDirectRole(t *testing.T) {
	g := New("acme")
	u, _ := g.CreateUser("alice")
	r, _ := g.CreateRole("editor")
	if err := g.GrantPermission(r.ID, "document", "write"); err != nil {
		t.Fatalf("GrantPermission() error = %v", err)
	}
	if err := g.AssignRoleToUser(u.ID, r.ID); err != nil {
		t.Fatalf("AssignRoleToUser() error = %v", err)
	}

	tests := []struct {
		resource string
		action   string
		want     bool
	}{
		{"document", "write", true},
		{"document", "delete", false},
		{"invoice", "write", false},
	}
	for _, tt := range tests {
		got, err := g.CheckAccess(u.ID, tt.resource, tt.action)
		if err != nil {
			t.Fatalf("CheckAccess(%s,%s) error = %v", tt.resource, tt.action, err)
		}
		if got != tt.want {
			t.Errorf("CheckAccess(%s,%s) = %v, want %v", tt.resource, tt.action, got, tt.want)
		}
	}
}

func TestCheckAccessViaGroup(t *testing.T) {
	g := New("acme")
	u, _ := g.CreateUser("bob")
	grp, _ := g.CreateGroup("auditors")
	r, _ := g.CreateRole("reader")

	if err := g.GrantPermission(r.ID, "ledger", "read"); err != nil {
		t.Fatalf("GrantPermission() error = %v", err)
	}
	if err := g.AssignRoleToGroup(grp.ID, r.ID); err != nil {
		t.Fatalf("AssignRoleToGroup() error = %v", err)
	}

	// Not yet a member: no access
	allowed, err := g.CheckAccess(u.ID, "ledger", "read")
	if err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if allowed {
		t.Error("access granted before group membership")
	}

	if err := g.AddUserToGroup(u.ID, grp.ID); err != nil {
		t.Fatalf("AddUserToGroup() error = %v", err)
	}
	allowed, err = g.CheckAccess(u.ID, "ledger", "read")
	if err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if !allowed {
		t.Error("group role grant did not reach the member")
	}
}

func TestCheckAccessUnknownUser(t *testing.T) {
	g := New("acme")
	_, err := g.CheckAccess(99, "doc", "read")
	if !errdefs.IsKind(err, errdefs.KindNotFound) {
		t.Errorf("CheckAccess() for missing user = %v, want NotFound", err)
	}
}

func TestGrantPermissionDeduplicates(t *testing.T) {
	g := New("acme")
	r, _ := g.CreateRole("editor")
	for i := 0; i < 3; i++ {
		if err := g.GrantPermission(r.ID, "doc", "write"); err != nil {
			t.Fatalf("GrantPermission() error = %v", err)
		}
	}
	if len(r.Grants) != 1 {
		t.Errorf("grants = %d, want 1 (duplicates collapsed)", len(r.Grants))
	}
}

func TestUserAttributes(t *testing.T) {
	g := New("acme")
	u, _ := g.CreateUser("carol")

	field := &types.EncryptedField{
		EntityID:   "1",
		FieldName:  "ssn",
		Ciphertext: "abc",
		KeyVersion: "1",
	}
	if err := g.SetUserAttribute(u.ID, field); err != nil {
		t.Fatalf("SetUserAttribute() error = %v", err)
	}

	got, err := g.GetUserAttribute(u.ID, "ssn")
	if err != nil {
		t.Fatalf("GetUserAttribute() error = %v", err)
	}
	if got.Ciphertext != "abc" {
		t.Errorf("attribute ciphertext = %q, want abc", got.Ciphertext)
	}

	if _, err := g.GetUserAttribute(u.ID, "email"); !errdefs.IsKind(err, errdefs.KindNotFound) {
		t.Errorf("GetUserAttribute() for unset field = %v, want NotFound", err)
	}
}
