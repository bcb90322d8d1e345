package user

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles a user can register with. Role is fixed at registration.
const (
	RoleStudent    = "Student"
	RoleInstructor = "Instructor"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// User is a registered account. PasswordHash never leaves the service.
type User struct {
	ID           string    `json:"userId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store is the persistence needed by the service.
type Store interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// Service registers and authenticates users.
type Service struct {
	store Store
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register stores a new user with a bcrypt password hash. The email must
// not already be taken.
func (s *Service) Register(ctx context.Context, name, email, password, role string) error {
	if name == "" || email == "" || password == "" {
		return ErrInvalidInput
	}
	if role != RoleStudent && role != RoleInstructor {
		return ErrInvalidInput
	}

	exists, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.store.Create(ctx, User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	})
}

// Authenticate verifies email and password and returns the matching user.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return *u, nil
}
