package resolver

import (
	"net/http"
	"strings"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/auth"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/registry"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// HeaderTenantID names the explicit tenant header, the highest-priority
// resolution source.
const HeaderTenantID = "X-Tenant-ID"

// QueryTenantID names the query-string fallback source
const QueryTenantID = "tenantId"

// Subdomain labels that never name a tenant
var reservedSubdomains = map[string]bool{
	"www": true,
	"api": true,
}

// Resolver extracts the tenant identity from a request. Sources are tried
// in a fixed priority order; the first hit wins and later sources are not
// consulted even if they disagree.
type Resolver struct {
	registry   *registry.Registry
	devDefault string
}

// New creates a resolver. devDefault, when non-empty, is returned for
// requests that carry no tenant signal at all; production deployments leave
// it unset.
func New(reg *registry.Registry, devDefault string) *Resolver {
	return &Resolver{registry: reg, devDefault: devDefault}
}

// Resolve determines the tenant a request addresses. It fails with
// TenantRequired when no source yields a tenant, InvalidFormat when the
// winning source yields a malformed identifier, and UnknownTenant when the
// tenant is not in the catalog.
func (r *Resolver) Resolve(req *http.Request, claims *auth.Claims) (string, error) {
	tenantID := r.extract(req, claims)
	if tenantID == "" {
		return "", errdefs.New(errdefs.KindTenantRequired,
			"no tenant in header, host, path, query, or token")
	}
	if !types.TenantIDPattern.MatchString(tenantID) {
		return "", errdefs.New(errdefs.KindInvalidFormat, "malformed tenant id %q", tenantID)
	}
	if _, err := r.registry.Get(tenantID); err != nil {
		return "", err
	}
	return tenantID, nil
}

func (r *Resolver) extract(req *http.Request, claims *auth.Claims) string {
	if v := req.Header.Get(HeaderTenantID); v != "" {
		return v
	}
	if v := fromSubdomain(req.Host); v != "" {
		return v
	}
	if v := fromPath(req.URL.Path); v != "" {
		return v
	}
	if v := req.URL.Query().Get(QueryTenantID); v != "" {
		return v
	}
	if claims != nil && claims.TenantID != "" {
		return claims.TenantID
	}
	return r.devDefault
}

// fromSubdomain reads the tenant from hosts like acme.acs.example.com.
// Two-label hosts have no subdomain and bare IPs or localhost never match.
func fromSubdomain(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	if reservedSubdomains[labels[0]] {
		return ""
	}
	return labels[0]
}

// fromPath reads the tenant from /tenants/{id}/... paths
func fromPath(path string) string {
	const prefix = "/tenants/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// Authorize checks that the authenticated principal may act on tenantID.
// Same-tenant access always passes; cross-tenant access requires the
// SystemAdministrator role, an accessible-tenants grant, or blanket
// cross-tenant access.
func Authorize(claims *auth.Claims, tenantID string) error {
	if claims == nil {
		return errdefs.New(errdefs.KindUnauthenticated, "no authenticated principal")
	}
	if !claims.MayAccess(tenantID) {
		return errdefs.New(errdefs.KindCrossTenantDenied,
			"principal of tenant %s may not act on tenant %s", claims.TenantID, tenantID)
	}
	return nil
}
