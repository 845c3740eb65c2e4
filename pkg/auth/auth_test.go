package auth

import (
	"testing"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/config"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
)

func testAuthenticator() *Authenticator {
	return New("test-secret", []config.Account{
		{
			Username: "alice",
			Password: "s3cret",
			TenantID: "acme",
			Roles:    []string{"Operator"},
		},
		{
			Username: "root",
			Password: "admin",
			Roles:    []string{RoleSystemAdministrator},
		},
	})
}

func TestLogin(t *testing.T) {
	a := testAuthenticator()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{"valid credentials", "alice", "s3cret", false},
		{"wrong password", "alice", "nope", true},
		{"unknown user", "mallory", "s3cret", true},
		{"empty credentials", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := a.Login(tt.username, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Login() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errdefs.IsKind(err, errdefs.KindUnauthenticated) {
					t.Errorf("Login() error kind = %v, want Unauthenticated", errdefs.KindOf(err))
				}
				return
			}
			if pair.AccessToken == "" || pair.RefreshToken == "" {
				t.Error("Login() returned empty tokens")
			}
		})
	}
}

func TestVerifyRoundtrip(t *testing.T) {
	a := testAuthenticator()
	pair, err := a.Login("alice", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	claims, err := a.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("claims.Subject = %q, want alice", claims.Subject)
	}
	if claims.TenantID != "acme" {
		t.Errorf("claims.TenantID = %q, want acme", claims.TenantID)
	}
}

func TestVerifyRejectsForgedToken(t *testing.T) {
	a := testAuthenticator()
	forger := New("other-secret", []config.Account{{Username: "alice", Password: "s3cret", TenantID: "acme"}})
	pair, err := forger.Login("alice", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := a.Verify(pair.AccessToken); !errdefs.IsKind(err, errdefs.KindUnauthenticated) {
		t.Errorf("Verify() of foreign-signed token = %v, want Unauthenticated", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	a := testAuthenticator()
	if _, err := a.Verify("not.a.token"); !errdefs.IsKind(err, errdefs.KindUnauthenticated) {
		t.Errorf("Verify() of garbage = %v, want Unauthenticated", err)
	}
}

func TestRefresh(t *testing.T) {
	a := testAuthenticator()
	pair, err := a.Login("alice", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	fresh, err := a.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	claims, err := a.Verify(fresh.AccessToken)
	if err != nil {
		t.Fatalf("Verify() of refreshed token error = %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("refreshed Subject = %q, want alice", claims.Subject)
	}
}

func TestMayAccess(t *testing.T) {
	tests := []struct {
		name   string
		claims Claims
		tenant string
		want   bool
	}{
		{"own tenant", Claims{TenantID: "acme"}, "acme", true},
		{"other tenant", Claims{TenantID: "acme"}, "globex", false},
		{"admin role", Claims{Roles: []string{RoleSystemAdministrator}}, "globex", true},
		{"accessible list", Claims{TenantID: "acme", AccessibleTenants: []string{"globex", "hooli"}}, "hooli", true},
		{"blanket access", Claims{TenantID: "acme", CrossTenantAccess: CrossTenantAll}, "globex", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.claims.MayAccess(tt.tenant); got != tt.want {
				t.Errorf("MayAccess(%s) = %v, want %v", tt.tenant, got, tt.want)
			}
		})
	}
}
