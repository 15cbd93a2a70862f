// Package auth maps usernames to password hashes and session tokens to user ids.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"yellowcore-go/internal/models"
)

var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidUsername    = errors.New("username must not be empty")
)

type user struct {
	id           models.UserID
	passwordHash []byte
}

// Service registers users and issues session tokens.
type Service struct {
	logger *zap.Logger
	cost   int

	mu     sync.Mutex
	users  map[string]user
	tokens map[string]models.UserID
	nextID models.UserID
}

// NewService creates an empty credential store hashing with the given bcrypt cost.
func NewService(logger *zap.Logger, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		logger: logger.Named("auth"),
		cost:   cost,
		users:  make(map[string]user),
		tokens: make(map[string]models.UserID),
		nextID: 1,
	}
}

// Register creates a user and returns its id.
func (s *Service) Register(username, password string) (models.UserID, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, ErrInvalidUsername
	}

	// Hashing is slow; keep it outside the lock.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return 0, ErrUsernameTaken
	}
	id := s.nextID
	s.nextID++
	s.users[username] = user{id: id, passwordHash: hash}

	s.logger.Info("User registered", zap.String("username", username), zap.Uint64("user_id", uint64(id)))
	return id, nil
}

// Login checks the password and issues a fresh token.
func (s *Service) Login(username, password string) (string, error) {
	s.mu.Lock()
	u, ok := s.users[strings.TrimSpace(username)]
	s.mu.Unlock()

	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to verify password: %w", err)
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = u.id
	s.mu.Unlock()
	return token, nil
}

// Logout revokes token. It reports whether the token was live.
func (s *Service) Logout(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token]; !ok {
		return false
	}
	delete(s.tokens, token)
	return true
}

// Validate resolves token to the user it was issued to.
func (s *Service) Validate(token string) (models.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tokens[token]
	if !ok {
		return 0, ErrInvalidToken
	}
	return id, nil
}
