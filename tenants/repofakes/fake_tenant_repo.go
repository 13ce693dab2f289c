package repofakes

import (
	"context"
	"sort"
	"sync"

	"github.com/postloop/postloop/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	byID map[string]*tenants.Tenant
	lock sync.RWMutex
}

func NewFakeTenantRepo() *FakeTenantRepo {
	return &FakeTenantRepo{byID: make(map[string]*tenants.Tenant)}
}

func (r *FakeTenantRepo) Upsert(_ context.Context, tenant *tenants.Tenant) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	copied := *tenant
	r.byID[tenant.ID] = &copied
	return nil
}

func (r *FakeTenantRepo) Get(_ context.Context, tenantID string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	tenant, ok := r.byID[tenantID]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (r *FakeTenantRepo) GetBySubdomain(_ context.Context, subdomain string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, tenant := range r.byID {
		if tenant.Subdomain == subdomain {
			copied := *tenant
			return &copied, nil
		}
	}
	return nil, tenants.ErrNotFound
}

func (r *FakeTenantRepo) Delete(_ context.Context, tenantID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.byID, tenantID)
	return nil
}

func (r *FakeTenantRepo) List(_ context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	all := make([]*tenants.Tenant, 0, len(r.byID))
	for _, tenant := range r.byID {
		copied := *tenant
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
