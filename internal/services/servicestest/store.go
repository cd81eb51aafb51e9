// Package servicestest provides an in-memory store with the same conditional
// write semantics as the PostgreSQL store, for use in tests.
package servicestest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/db"
	"github.com/rlms-portal/forms-services/models"
)

// ErrInjected is returned by every call once Fail has been set.
var ErrInjected = errors.New("injected store failure")

type Store struct {
	mu sync.RWMutex

	users     map[uuid.UUID]models.User
	responses map[uuid.UUID]models.FormResponse

	// Fail makes every call return ErrInjected.
	Fail bool
}

func NewStore() *Store {
	return &Store{
		users:     make(map[uuid.UUID]models.User),
		responses: make(map[uuid.UUID]models.FormResponse),
	}
}

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail {
		return ErrInjected
	}
	for _, existing := range s.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return db.ErrDuplicate
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail {
		return nil, ErrInjected
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail {
		return nil, ErrInjected
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail {
		return nil, ErrInjected
	}
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) SetRefreshToken(_ context.Context, id uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail {
		return ErrInjected
	}
	u, ok := s.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.RefreshToken = token
	s.users[id] = u
	return nil
}

func (s *Store) RotateRefreshToken(_ context.Context, id uuid.UUID, old, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail {
		return false, ErrInjected
	}
	u, ok := s.users[id]
	if !ok || u.RefreshToken == "" || u.RefreshToken != old {
		return false, nil
	}
	u.RefreshToken = next
	s.users[id] = u
	return true, nil
}

// PutUser stores u as is, bypassing duplicate checks.
func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// DeleteUser removes a user but leaves their responses behind.
func (s *Store) DeleteUser(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func (s *Store) CreateResponse(_ context.Context, r *models.FormResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail {
		return ErrInjected
	}
	if _, ok := s.users[r.UserID]; !ok {
		return errors.New("foreign key violation: user does not exist")
	}
	s.responses[r.ID] = *r
	return nil
}

func (s *Store) listResponses(match func(models.FormResponse) bool) ([]models.FormResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail {
		return nil, ErrInjected
	}
	var out []models.FormResponse
	for _, r := range s.responses {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListResponsesByUser(_ context.Context, userID uuid.UUID) ([]models.FormResponse, error) {
	return s.listResponses(func(r models.FormResponse) bool { return r.UserID == userID })
}

func (s *Store) ListResponsesByFormType(_ context.Context, formType models.FormType) ([]models.FormResponse, error) {
	return s.listResponses(func(r models.FormResponse) bool { return r.FormType == formType })
}

func (s *Store) ListDecidedSince(_ context.Context, since time.Time) ([]models.FormResponse, error) {
	return s.listResponses(func(r models.FormResponse) bool {
		return r.DecidedAt != nil && !r.DecidedAt.Before(since)
	})
}

func inScope(r models.FormResponse, scope models.ResponseScope) bool {
	return scope.AllFormTypes || r.FormType == scope.FormType
}

func (s *Store) DecidePendingResponse(_ context.Context, id uuid.UUID, scope models.ResponseScope,
	status models.Status, by uuid.UUID, at time.Time) (*models.FormResponse, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail {
		return nil, ErrInjected
	}
	r, ok := s.responses[id]
	if !ok || r.Status != models.StatusPending || !inScope(r, scope) {
		return nil, nil
	}
	r.Status = status
	r.UpdatedAt = at
	r.DecidedAt = &at
	r.DecidedBy = &by
	s.responses[id] = r
	return &r, nil
}

func (s *Store) GetScopedResponse(_ context.Context, id uuid.UUID, scope models.ResponseScope) (*models.FormResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Fail {
		return nil, ErrInjected
	}
	r, ok := s.responses[id]
	if !ok || !inScope(r, scope) {
		return nil, nil
	}
	return &r, nil
}

// Response returns the stored response without any scope check.
func (s *Store) Response(id uuid.UUID) (models.FormResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[id]
	return r, ok
}
