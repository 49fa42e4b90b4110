package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"skinscope/internal/common"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "skinscope"

// Identity - подтверждённая личность клиента, которую видят обработчики.
type Identity struct {
	UserID int64
	Name   string
	Email  string
}

// Claims - утверждения токена сессии: стандартные плюс имя и email пользователя.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Sessions выпускает и проверяет токены сессий (HS256).
// Токен не зависит от транспорта: его можно хранить в cookie или передавать в заголовке.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions создаёт выпускающего токены с секретом и временем жизни ttl.
func NewSessions(secret []byte, ttl time.Duration) *Sessions {
	return &Sessions{secret: secret, ttl: ttl}
}

// TTL возвращает время жизни токена.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue выпускает токен для пользователя.
func (s *Sessions) Issue(id Identity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Name:  id.Name,
		Email: id.Email,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена сессии: %w", err)
	}
	return signed, nil
}

// Parse проверяет подпись и срок действия токена и возвращает личность.
// Любая проблема с токеном сводится к common.ErrNotAuthenticated.
func (s *Sessions) Parse(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, common.ErrNotAuthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", common.ErrNotAuthenticated, err)
	}
	if !token.Valid {
		return Identity{}, common.ErrNotAuthenticated
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, errors.Join(common.ErrNotAuthenticated, fmt.Errorf("некорректный subject %q", claims.Subject))
	}
	return Identity{UserID: userID, Name: claims.Name, Email: claims.Email}, nil
}

type identityKey struct{}

// WithIdentity кладёт личность в контекст запроса.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext достаёт личность из контекста запроса.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
