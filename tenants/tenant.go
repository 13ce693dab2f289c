// Package tenants models the isolation boundary of the system. Each tenant
// owns exactly one storage namespace; sessions and credentials live inside it
// and can only be addressed through an explicit tenant Context.
package tenants

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrContextMissing is returned when a storage call required a resolved
// tenant namespace and none was available. It is fatal for the call and is
// never silently defaulted to the public namespace.
var ErrContextMissing = errors.New("tenant context missing")

// ErrNotFound is returned when a tenant lookup yields nothing.
var ErrNotFound = errors.New("tenant not found")

// PublicNamespace is the credential-free namespace used when no tenant could
// be resolved (e.g. unauthenticated requests on the apex domain).
const PublicNamespace = "public"

// Tenant is an isolation boundary. Created once, never merged; soft-deleted
// by dropping its namespace.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"created_at"`
}

// Context pins a namespace for the duration of one call chain. It is passed
// explicitly on every storage call - namespace selection is a property of the
// call, never of shared mutable state - so concurrent requests for different
// tenants cannot observe each other's namespace.
type Context struct {
	TenantID  string
	Namespace string
}

// Public is the tenant-free context for public-facing lookups.
var Public = Context{Namespace: PublicNamespace}

// Require fails with ErrContextMissing unless the context carries a resolved
// tenant namespace.
func (c Context) Require() error {
	if c.TenantID == "" || c.Namespace == "" || c.Namespace == PublicNamespace {
		return ErrContextMissing
	}
	return nil
}

// NamespaceForID derives the storage namespace for a tenant ID. Tenant IDs
// are UUIDs; the dashes are stripped to produce a valid schema identifier.
func NamespaceForID(tenantID string) string {
	return "tenant_" + strings.ReplaceAll(strings.ToLower(tenantID), "-", "")
}

// Repo is the tenant directory, stored in the shared control-plane schema.
type Repo interface {
	Upsert(ctx context.Context, tenant *Tenant) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	Delete(ctx context.Context, tenantID string) error
	List(ctx context.Context, offset, limit int) ([]*Tenant, error)
}
