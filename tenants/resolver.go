package tenants

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/postloop/postloop/token"
)

// Resolver maps an inbound request to a tenant Context. Resolution order:
// the tenant claim of a verified access token, then a subdomain lookup, then
// the public namespace.
type Resolver struct {
	tokens *token.Issuer
	repo   Repo
	domain string // apex domain stripped when extracting the subdomain
}

func NewResolver(tokens *token.Issuer, repo Repo, domain string) (*Resolver, error) {
	if tokens == nil {
		return nil, errors.New("[NewResolver] token issuer is required")
	}
	if repo == nil {
		return nil, errors.New("[NewResolver] tenant repo is required")
	}
	return &Resolver{tokens: tokens, repo: repo, domain: domain}, nil
}

// Resolve returns the tenant Context for a request. A verified access token
// wins over the Host header. An unresolvable request gets the public,
// credential-free context rather than an error; callers that require a
// tenant enforce that with Context.Require.
func (r *Resolver) Resolve(ctx context.Context, bearerToken, host string) (Context, error) {
	if bearerToken != "" {
		claims, err := r.tokens.Verify(bearerToken, token.KindAccess)
		if err == nil && claims.TenantID != "" {
			tenant, err := r.repo.Get(ctx, claims.TenantID)
			if err != nil {
				// A verified token naming an unknown tenant is a hard
				// failure, not a fall-through to public.
				return Context{}, errors.Wrap(ErrContextMissing, "[Resolver.Resolve] token tenant not found")
			}
			return Context{TenantID: tenant.ID, Namespace: tenant.Namespace}, nil
		}
	}

	if sub := r.subdomain(host); sub != "" {
		tenant, err := r.repo.GetBySubdomain(ctx, sub)
		if err == nil {
			return Context{TenantID: tenant.ID, Namespace: tenant.Namespace}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Context{}, errors.Wrap(err, "[Resolver.Resolve] subdomain lookup")
		}
	}

	return Public, nil
}

func (r *Resolver) subdomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if r.domain == "" || host == r.domain {
		return ""
	}
	if suffix := "." + r.domain; strings.HasSuffix(host, suffix) {
		sub := strings.TrimSuffix(host, suffix)
		if !strings.Contains(sub, ".") {
			return sub
		}
	}
	return ""
}
