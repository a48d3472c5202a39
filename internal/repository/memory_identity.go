package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/movieflex/internal/domain"
	"github.com/iliyamo/movieflex/internal/model"
	"github.com/iliyamo/movieflex/internal/utils"
)

// MemoryUsers is an in-process UserStore.
type MemoryUsers struct {
	mu     sync.RWMutex
	users  map[uint64]*model.User
	nextID uint64
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[uint64]*model.User)}
}

func (s *MemoryUsers) Create(ctx context.Context, username, email, password string, staff bool, cost int) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return nil, ErrUsernameExists
		}
		if u.Email == email {
			return nil, ErrEmailExists
		}
	}
	s.nextID++
	now := time.Now().UTC()
	u := &model.User{
		ID:           s.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsStaff:      staff,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	out := *u
	return &out, nil
}

func (s *MemoryUsers) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.TrimSpace(login)
	email := strings.ToLower(login)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == login || u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *MemoryUsers) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryUsers) SetStaff(ctx context.Context, login string, staff bool) error {
	u, err := s.GetByLogin(ctx, login)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.users[u.ID].IsStaff = staff
	s.users[u.ID].UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

// MemoryTokens is an in-process TokenStore.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]*model.RefreshToken)}
}

func (s *MemoryTokens) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenHash] = &model.RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryTokens) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return 0, ErrTokenInvalid
	}
	return t.UserID, nil
}

func (s *MemoryTokens) RevokeByHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok && t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
	}
	return nil
}

func (s *MemoryTokens) RevokeAllForUser(ctx context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}
