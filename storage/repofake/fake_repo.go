package fakestoragerepo

import (
	"context"
	"sync"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/storage"
)

var _ storage.Repo = (*FakeRepo)(nil)

// FakeRepo is an in-memory storage.Repo. FailGets and FailSets make the
// corresponding calls return ErrStorage, mimicking a browser refusing storage.
type FakeRepo struct {
	values   map[string]string
	writes   int
	failGets bool
	failSets bool
	lock     sync.RWMutex
}

func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		values: make(map[string]string),
	}
}

func (r *FakeRepo) Get(_ context.Context, key string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.failGets {
		return "", storeerrors.Wrapf(storeerrors.ErrStorage, "get %q", key)
	}
	v, ok := r.values[key]
	if !ok {
		return "", storeerrors.Wrapf(storeerrors.ErrNotFound, "get %q", key)
	}
	return v, nil
}

func (r *FakeRepo) Set(_ context.Context, key, value string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.failSets {
		return storeerrors.Wrapf(storeerrors.ErrStorage, "set %q", key)
	}
	r.values[key] = value
	r.writes++
	return nil
}

func (r *FakeRepo) Delete(_ context.Context, key string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.failSets {
		return storeerrors.Wrapf(storeerrors.ErrStorage, "delete %q", key)
	}
	delete(r.values, key)
	return nil
}

func (r *FakeRepo) FailGets(fail bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failGets = fail
}

func (r *FakeRepo) FailSets(fail bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failSets = fail
}

// Writes is the number of successful Set calls.
func (r *FakeRepo) Writes() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.writes
}

// Raw returns the stored value without failure injection.
func (r *FakeRepo) Raw(key string) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.values[key]
	return v, ok
}
