package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/parley/internal/core"
	"github.com/markdave123-py/parley/internal/models"
)

const minPasswordLen = 8

type UserService struct {
	db     core.DbClient
	tokens *TokenService
}

func NewUserService(db core.DbClient, tokens *TokenService) *UserService {
	return &UserService{db: db, tokens: tokens}
}

// UserSummary is the admin list row.
type UserSummary struct {
	models.User
	SessionCount int `json:"session_count"`
}

// Signup creates a regular user and returns a bearer token for it.
func (s *UserService) Signup(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return "", nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return "", nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.db.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.db.GetUserByID(ctx, id)
}

// ListWithCounts returns every user with its number of sessions.
func (s *UserService) ListWithCounts(ctx context.Context) ([]UserSummary, error) {
	users, err := s.db.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]UserSummary, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range users {
		out[i].User = users[i]
		g.Go(func() error {
			n, err := s.db.CountSessionsByUser(gctx, users[i].ID)
			if err != nil {
				return fmt.Errorf("count sessions for %s: %w", users[i].ID, err)
			}
			out[i].SessionCount = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetRole changes another user's role. Admins cannot change their own.
func (s *UserService) SetRole(ctx context.Context, actorID, targetID string, role models.Role) error {
	if !role.Valid() || targetID == "" {
		return fmt.Errorf("%w: role must be user or admin", ErrInvalidInput)
	}
	if actorID == targetID {
		return fmt.Errorf("%w: cannot change your own role", ErrForbidden)
	}
	return s.db.UpdateUserRole(ctx, targetID, role)
}
