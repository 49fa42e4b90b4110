package services

import (
	"context"
	"fmt"

	"skinscope/internal/auth"
	"skinscope/internal/common"
	"skinscope/internal/models"

	"github.com/rs/zerolog/log"
)

// UserStore - хранилище пользователей, которое нужно сервису учётных записей.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Accounts регистрирует и аутентифицирует пользователей.
type Accounts struct {
	users UserStore
}

func NewAccounts(users UserStore) *Accounts {
	return &Accounts{users: users}
}

// Register нормализует email, хеширует пароль и создаёт пользователя.
// Если email уже занят, ошибка оборачивает common.ErrDuplicateEmail.
func (a *Accounts) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = auth.NormalizeEmail(email)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	id, err := a.users.CreateUser(ctx, name, email, hash)
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Name: name, Email: email, PasswordHash: hash}, nil
}

// Authenticate ищет пользователя по email и проверяет пароль.
// Неизвестный email и неверный пароль дают одну и ту же ошибку common.ErrInvalidCredentials:
// вызывающий код не должен различать эти случаи.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = auth.NormalizeEmail(email)

	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	if user == nil {
		auth.BurnPasswordCheck(password)
		log.Info().Msg("Неудачная попытка входа: пользователь не найден")
		return nil, common.ErrInvalidCredentials
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		log.Info().Int64("user_id", user.ID).Msg("Неудачная попытка входа: неверный пароль")
		return nil, common.ErrInvalidCredentials
	}
	return user, nil
}
