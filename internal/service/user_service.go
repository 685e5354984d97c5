package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dm-chat/internal/domain"
	"dm-chat/internal/repository"
)

// UserService coordina registro y autenticación de usuarios.
type UserService struct {
	logger *zap.Logger
	users  repository.UserRepository
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUsernameTaken      = repository.ErrUsernameTaken
)

func NewUserService(logger *zap.Logger, users repository.UserRepository) *UserService {
	return &UserService{logger: logger, users: users}
}

func (s *UserService) Signup(ctx context.Context, username, password string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	username = normalizeUsername(username)
	if username == "" || len(username) > 64 {
		return domain.User{}, ErrInvalidUsername
	}
	if len(password) < 4 {
		return domain.User{}, ErrInvalidPassword
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hashBytes),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	username = normalizeUsername(username)
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// List devuelve el directorio de usuarios excluyendo al que consulta.
func (s *UserService) List(ctx context.Context, excludeID string) ([]domain.User, error) {
	if s == nil || s.users == nil {
		return nil, errors.New("user service not configured")
	}
	return s.users.List(ctx, excludeID)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
