package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/config"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
)

// RoleSystemAdministrator may act across tenant boundaries
const RoleSystemAdministrator = "SystemAdministrator"

// CrossTenantAll marks an account that may reach every tenant
const CrossTenantAll = "all"

const (
	defaultTokenTTL   = time.Hour
	defaultRefreshTTL = 24 * time.Hour
)

// Claims is the JWT payload the gateway mints and verifies
type Claims struct {
	TenantID          string   `json:"tenant_id,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	AccessibleTenants []string `json:"accessible_tenants,omitempty"`
	CrossTenantAccess string   `json:"cross_tenant_access,omitempty"`
	jwt.RegisteredClaims
}

// IsSystemAdministrator reports whether the claims carry the admin role
func (c *Claims) IsSystemAdministrator() bool {
	for _, r := range c.Roles {
		if r == RoleSystemAdministrator {
			return true
		}
	}
	return false
}

// MayAccess reports whether the claims permit acting on tenantID
func (c *Claims) MayAccess(tenantID string) bool {
	if c.TenantID == tenantID {
		return true
	}
	if c.IsSystemAdministrator() || c.CrossTenantAccess == CrossTenantAll {
		return true
	}
	for _, t := range c.AccessibleTenants {
		if t == tenantID {
			return true
		}
	}
	return false
}

// TokenPair is the login and refresh response body
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Authenticator verifies credentials and mints tokens
type Authenticator struct {
	secret   []byte
	accounts map[string]config.Account
}

// New creates an authenticator over the configured accounts
func New(secret string, accounts []config.Account) *Authenticator {
	byName := make(map[string]config.Account, len(accounts))
	for _, a := range accounts {
		byName[a.Username] = a
	}
	return &Authenticator{secret: []byte(secret), accounts: byName}
}

// Login checks a username/password pair and mints a token pair
func (a *Authenticator) Login(username, password string) (*TokenPair, error) {
	acct, ok := a.accounts[username]
	if !ok || acct.Password != password {
		return nil, errdefs.New(errdefs.KindUnauthenticated, "invalid credentials")
	}
	return a.mint(acct)
}

// Refresh validates a refresh token and mints a fresh pair
func (a *Authenticator) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := a.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	acct, ok := a.accounts[claims.Subject]
	if !ok {
		return nil, errdefs.New(errdefs.KindUnauthenticated, "account no longer exists")
	}
	return a.mint(acct)
}

func (a *Authenticator) mint(acct config.Account) (*TokenPair, error) {
	now := time.Now().UTC()
	base := Claims{
		TenantID:          acct.TenantID,
		Roles:             acct.Roles,
		AccessibleTenants: acct.AccessibleTenants,
		CrossTenantAccess: acct.CrossTenantAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(defaultTokenTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, base).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshClaims := base
	refreshClaims.ExpiresAt = jwt.NewNumericDate(now.Add(defaultRefreshTTL))
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(defaultTokenTTL.Seconds()),
	}, nil
}

// Verify parses and validates a token, returning its claims
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errdefs.Wrap(err, errdefs.KindUnauthenticated, "invalid token")
	}
	return claims, nil
}
