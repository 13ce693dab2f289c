package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/postloop/postloop/tenants"
	"github.com/postloop/postloop/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	byNamespace map[string]map[string]*users.User // namespace -> userID -> user
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{byNamespace: make(map[string]map[string]*users.User)}
}

func (r *FakeUserRepo) namespace(tc tenants.Context) (map[string]*users.User, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ns, ok := r.byNamespace[tc.Namespace]
	if !ok {
		ns = make(map[string]*users.User)
		r.byNamespace[tc.Namespace] = ns
	}
	return ns, nil
}

func (r *FakeUserRepo) Create(_ context.Context, tc tenants.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}
	copied := *user
	ns[user.ID] = &copied
	return nil
}

func (r *FakeUserRepo) GetByEmail(_ context.Context, tc tenants.Context, email string) (*users.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return nil, err
	}
	for _, user := range ns {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, users.ErrNotFound
}

func (r *FakeUserRepo) GetByID(_ context.Context, tc tenants.Context, userID string) (*users.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return nil, err
	}
	user, ok := ns[userID]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *FakeUserRepo) UpdatePassword(_ context.Context, tc tenants.Context, userID, passwordHash string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}
	user, ok := ns[userID]
	if !ok {
		return users.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (r *FakeUserRepo) TouchLastLogin(_ context.Context, tc tenants.Context, userID string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}
	if user, ok := ns[userID]; ok {
		user.LastLogin = at
	}
	return nil
}
