package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ AccountStore = (*InMemory)(nil)

// InMemory implements AccountStore with in-process concurrency safety.
// It backs tests and database-less development runs.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneAccount(a *Account) *Account {
	c := *a
	if a.BirthDate != nil {
		bd := *a.BirthDate
		c.BirthDate = &bd
	}
	if a.HouseID != nil {
		h := *a.HouseID
		c.HouseID = &h
	}
	return &c
}

func (s *InMemory) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

func (s *InMemory) FindByID(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(acct), nil
}

func (s *InMemory) Insert(ctx context.Context, acct *Account) error {
	if acct == nil || acct.ID == "" {
		return ErrInvalidInput
	}
	key := emailKey(acct.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[key]; taken {
		return ErrEmailInUse
	}
	if _, taken := s.byID[acct.ID]; taken {
		return ErrInvalidInput
	}
	if acct.InscriptionDate.IsZero() {
		acct.InscriptionDate = time.Now().UTC()
	}
	s.byID[acct.ID] = cloneAccount(acct)
	s.byEmail[key] = acct.ID
	return nil
}

func (s *InMemory) List(ctx context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.byID))
	for _, acct := range s.byID {
		out = append(out, cloneAccount(acct).Profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, id string, upd ProfileUpdate) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cloneAccount(acct)
	if upd.Email != nil {
		key := emailKey(*upd.Email)
		if owner, taken := s.byEmail[key]; taken && owner != id {
			return nil, ErrEmailInUse
		}
		next.Email = *upd.Email
	}
	applyUpdate(&next.Profile, upd)

	delete(s.byEmail, emailKey(acct.Email))
	s.byEmail[emailKey(next.Email)] = id
	s.byID[id] = next
	return cloneAccount(next), nil
}

func (s *InMemory) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	acct.PasswordHash = passwordHash
	return nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, emailKey(acct.Email))
	delete(s.byID, id)
	return nil
}

// applyUpdate copies every non-nil field except Email, which the caller
// handles together with its uniqueness index.
func applyUpdate(p *Profile, upd ProfileUpdate) {
	if upd.LastName != nil {
		p.LastName = *upd.LastName
	}
	if upd.FirstName != nil {
		p.FirstName = *upd.FirstName
	}
	if upd.Username != nil {
		p.Username = *upd.Username
	}
	if upd.Phone != nil {
		p.Phone = *upd.Phone
	}
	if upd.BirthDate != nil {
		bd := *upd.BirthDate
		p.BirthDate = &bd
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.HouseID != nil {
		h := *upd.HouseID
		p.HouseID = &h
	}
}
