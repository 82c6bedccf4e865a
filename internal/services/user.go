package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage"
)

// UserService is the minimal directory behind wallet ownership checks and
// OTP email resolution. Registration, login and token issuance live in the
// auth service.
type UserService struct {
	users storage.UserStore
	now   func() time.Time
}

func NewUserService(users storage.UserStore) *UserService {
	return &UserService{users: users, now: time.Now}
}

func (s *UserService) CreateUser(ctx context.Context, fullName, email string) (*models.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" {
		return nil, fmt.Errorf("%w: fullname and email cannot be empty", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
	}

	user := &models.User{
		ID:        uuid.NewString(),
		FullName:  fullName,
		Email:     email,
		CreatedAt: s.now(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %v", err)
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user %s: %v", id, err)
	}
	return user, nil
}
