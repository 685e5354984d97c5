package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dm-chat/internal/domain"
	"dm-chat/internal/repository"
)

type mockUserRepo struct {
	byUsername map[string]domain.User
	created    []domain.User
	createErr  error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byUsername: make(map[string]domain.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byUsername[user.Username]; ok {
		return repository.ErrUsernameTaken
	}
	m.byUsername[user.Username] = user
	m.created = append(m.created, user)
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	for _, u := range m.byUsername {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrUserNotFound
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	u, ok := m.byUsername[username]
	if !ok {
		return domain.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserRepo) List(_ context.Context, excludeID string) ([]domain.User, error) {
	var out []domain.User
	for _, u := range m.byUsername {
		if u.ID != excludeID {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestUserServiceSignup(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(zap.NewNop(), repo)

	user, err := svc.Signup(context.Background(), " Alice ", "hunter2")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected normalized username, got %q", user.Username)
	}
	if user.ID == "" {
		t.Fatalf("expected generated id")
	}
	if user.PasswordHash == "" || user.PasswordHash == "hunter2" {
		t.Fatalf("expected bcrypt hash, got %q", user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter2")); err != nil {
		t.Fatalf("hash does not match password: %v", err)
	}
}

func TestUserServiceSignup_Validation(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(zap.NewNop(), repo)

	if _, err := svc.Signup(context.Background(), "  ", "hunter2"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
	if _, err := svc.Signup(context.Background(), "alice", "ab"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestUserServiceSignup_DuplicateUsername(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(zap.NewNop(), repo)

	if _, err := svc.Signup(context.Background(), "alice", "hunter2"); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	if _, err := svc.Signup(context.Background(), "ALICE", "hunter2"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestUserServiceAuthenticate(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(zap.NewNop(), repo)

	if _, err := svc.Signup(context.Background(), "alice", "hunter2"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	user, err := svc.Authenticate(context.Background(), "Alice", "hunter2")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := svc.Authenticate(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestUserServiceList_ExcludesCaller(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(zap.NewNop(), repo)

	alice, _ := svc.Signup(context.Background(), "alice", "hunter2")
	if _, err := svc.Signup(context.Background(), "bob", "hunter2"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	users, err := svc.List(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Fatalf("expected only bob, got %+v", users)
	}
}
