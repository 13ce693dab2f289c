package repofakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/postloop/postloop/credentials"
	"github.com/postloop/postloop/tenants"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

// FakeCredentialRepo keys all state by namespace, mirroring the per-tenant
// schema isolation of the real store.
type FakeCredentialRepo struct {
	byNamespace map[string]map[string]*credentials.Credential // namespace -> id -> credential
	lock        sync.Mutex
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{byNamespace: make(map[string]map[string]*credentials.Credential)}
}

func (r *FakeCredentialRepo) namespace(tc tenants.Context) (map[string]*credentials.Credential, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ns, ok := r.byNamespace[tc.Namespace]
	if !ok {
		ns = make(map[string]*credentials.Credential)
		r.byNamespace[tc.Namespace] = ns
	}
	return ns, nil
}

func (r *FakeCredentialRepo) Upsert(_ context.Context, tc tenants.Context, credential *credentials.Credential) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}

	for _, existing := range ns {
		if existing.UserID == credential.UserID &&
			existing.Provider == credential.Provider &&
			existing.ExternalID == credential.ExternalID {
			existing.Username = credential.Username
			existing.AccessSecret = credential.AccessSecret
			if credential.RefreshSecret != "" {
				existing.RefreshSecret = credential.RefreshSecret
			}
			existing.TokenExpiresAt = credential.TokenExpiresAt
			existing.Scopes = credential.Scopes
			existing.Metadata = credential.Metadata
			existing.Version++
			existing.UpdatedAt = time.Now()
			*credential = *existing
			return nil
		}
	}

	credential.Active = true
	credential.Version = 1
	copied := *credential
	ns[credential.ID] = &copied
	return nil
}

func (r *FakeCredentialRepo) GetByID(_ context.Context, tc tenants.Context, id string) (*credentials.Credential, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return nil, err
	}
	credential, ok := ns[id]
	if !ok {
		return nil, credentials.ErrNotFound
	}
	copied := *credential
	return &copied, nil
}

func (r *FakeCredentialRepo) ListForUser(_ context.Context, tc tenants.Context, userID, provider string) ([]*credentials.Credential, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return nil, err
	}
	var out []*credentials.Credential
	for _, credential := range ns {
		if credential.UserID != userID || !credential.Active {
			continue
		}
		if provider != "" && credential.Provider != provider {
			continue
		}
		copied := *credential
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *FakeCredentialRepo) Delete(_ context.Context, tc tenants.Context, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}
	if _, ok := ns[id]; !ok {
		return credentials.ErrNotFound
	}
	delete(ns, id)
	return nil
}

func (r *FakeCredentialRepo) UpdateLabel(_ context.Context, tc tenants.Context, id, label string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}
	credential, ok := ns[id]
	if !ok {
		return credentials.ErrNotFound
	}
	credential.Label = label
	credential.UpdatedAt = time.Now()
	return nil
}

func (r *FakeCredentialRepo) CountForUser(_ context.Context, tc tenants.Context, userID, provider string) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, credential := range ns {
		if credential.UserID == userID && credential.Provider == provider && credential.Active {
			count++
		}
	}
	return count, nil
}

func (r *FakeCredentialRepo) UpdateSecrets(_ context.Context, tc tenants.Context, id string, update credentials.SecretUpdate) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}
	credential, ok := ns[id]
	if !ok {
		return credentials.ErrNotFound
	}
	if credential.Version != update.Version {
		return credentials.ErrRefreshConflict
	}
	credential.AccessSecret = update.AccessSecret
	if update.RefreshSecret != "" {
		credential.RefreshSecret = update.RefreshSecret
	}
	credential.TokenExpiresAt = update.TokenExpiresAt
	credential.Version++
	credential.UpdatedAt = time.Now()
	return nil
}
