package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/jwt"
	"github.com/lwald/semgrade/internal/pkg/password"
	"github.com/lwald/semgrade/internal/pkg/timeutil"
	"github.com/lwald/semgrade/internal/repo"
)

type AuthService struct {
	users     *repo.UserRepo
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewAuthService(users *repo.UserRepo, jwtSecret []byte, jwtTTL time.Duration) *AuthService {
	return &AuthService{users: users, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

func (s *AuthService) Login(ctx context.Context, name, plain string) (string, *model.User, error) {
	user, err := s.users.GetByName(ctx, name)
	if err != nil {
		if appErr.IsNotFound(err) {
			return "", nil, appErr.ErrUnauthorized
		}
		return "", nil, err
	}
	if err := password.Compare(user.PasswordHash, plain); err != nil {
		return "", nil, appErr.ErrUnauthorized
	}
	token, err := jwt.GenerateToken(user.ID, user.Name, user.Role, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) CreateUser(ctx context.Context, name, plain, role string) (*model.User, error) {
	if role != model.RoleTutor && role != model.RoleInstructor {
		return nil, appErr.ErrInvalid
	}
	hash, err := password.Hash(plain)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		Ctime:        timeutil.NowUnix(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
