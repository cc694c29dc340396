package admin

import (
	"context"
	"errors"
	"sync"

	"github.com/jacksonlee411/mandi-console/internal/store"
)

// principal is the logged-in console user attached to a request.
type principal struct {
	ID         string
	Identifier string
	Roles      []string
}

func (p principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type principalStore interface {
	GetByID(ctx context.Context, id string) (principal, bool, error)
}

type userStore interface {
	ByIdentifier(ctx context.Context, identifier string) (store.User, error)
	ByID(ctx context.Context, id string) (store.User, error)
}

type memoryPrincipalStore struct {
	mu   sync.Mutex
	byID map[string]principal
}

func newMemoryPrincipalStore() *memoryPrincipalStore {
	return &memoryPrincipalStore{byID: map[string]principal{}}
}

func (s *memoryPrincipalStore) Put(p principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p
}

func (s *memoryPrincipalStore) GetByID(_ context.Context, id string) (principal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	return p, ok, nil
}

// userPrincipalStore resolves principals from the configured user table on
// every request, so role changes apply to live sessions.
type userPrincipalStore struct {
	users userStore
}

func newPrincipalStore(users userStore) principalStore {
	if users == nil {
		return newMemoryPrincipalStore()
	}
	return &userPrincipalStore{users: users}
}

func (s *userPrincipalStore) GetByID(ctx context.Context, id string) (principal, bool, error) {
	u, err := s.users.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return principal{}, false, nil
		}
		return principal{}, false, err
	}
	return principal{ID: u.ID, Identifier: u.Identifier, Roles: u.Roles}, true, nil
}
