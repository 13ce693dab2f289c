package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/postloop/postloop/sessions"
	"github.com/postloop/postloop/tenants"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keys all state by namespace, mirroring the per-tenant
// schema isolation of the real store.
type FakeSessionRepo struct {
	byNamespace map[string]map[string]*sessions.Session // namespace -> refreshHash -> session
	lock        sync.Mutex
	nowFunc     func() time.Time
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		byNamespace: make(map[string]map[string]*sessions.Session),
		nowFunc:     time.Now,
	}
}

// SetNowFunc overrides the clock used by SweepExpired and ListActive.
func (r *FakeSessionRepo) SetNowFunc(now func() time.Time) { r.nowFunc = now }

func (r *FakeSessionRepo) namespace(tc tenants.Context) (map[string]*sessions.Session, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	ns, ok := r.byNamespace[tc.Namespace]
	if !ok {
		ns = make(map[string]*sessions.Session)
		r.byNamespace[tc.Namespace] = ns
	}
	return ns, nil
}

func (r *FakeSessionRepo) Create(_ context.Context, tc tenants.Context, session *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}
	copied := *session
	ns[session.RefreshHash] = &copied
	return nil
}

func (r *FakeSessionRepo) GetByHash(_ context.Context, tc tenants.Context, refreshHash string) (*sessions.Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return nil, err
	}
	session, ok := ns[refreshHash]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *FakeSessionRepo) DeleteByHash(_ context.Context, tc tenants.Context, refreshHash string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return false, err
	}
	if _, ok := ns[refreshHash]; !ok {
		return false, nil
	}
	delete(ns, refreshHash)
	return true, nil
}

func (r *FakeSessionRepo) DeleteForUser(_ context.Context, tc tenants.Context, userID string) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return 0, err
	}
	var count int64
	for hash, session := range ns {
		if session.UserID == userID {
			delete(ns, hash)
			count++
		}
	}
	return count, nil
}

func (r *FakeSessionRepo) ListActive(_ context.Context, tc tenants.Context, userID string) ([]*sessions.Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return nil, err
	}
	now := r.nowFunc()
	var out []*sessions.Session
	for _, session := range ns {
		if session.UserID == userID && !session.Expired(now) {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *FakeSessionRepo) SweepExpired(_ context.Context, tc tenants.Context) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return 0, err
	}
	now := r.nowFunc()
	var count int64
	for hash, session := range ns {
		if session.Expired(now) {
			delete(ns, hash)
			count++
		}
	}
	return count, nil
}

func (r *FakeSessionRepo) Rotate(_ context.Context, tc tenants.Context, oldHash string, next *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	ns, err := r.namespace(tc)
	if err != nil {
		return err
	}
	if _, ok := ns[oldHash]; !ok {
		return sessions.ErrNotFound
	}
	delete(ns, oldHash)
	copied := *next
	ns[next.RefreshHash] = &copied
	return nil
}
