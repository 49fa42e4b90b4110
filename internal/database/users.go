package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"skinscope/internal/common"
	"skinscope/internal/models"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

// Store - доступ к таблицам users и history поверх пула соединений.
// Соединение берётся из пула на время одного запроса и сразу возвращается.
type Store struct {
	db         *sql.DB
	maxHistory int // 0 - без ограничения

	providerOnce sync.Once
	provider     *goose.Provider
	providerErr  error
}

// NewStore создаёт Store поверх открытой базы.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithHistoryLimit задаёт, сколько последних записей истории хранить на пользователя.
// n <= 0 отключает ограничение.
func (s *Store) WithHistoryLimit(n int) *Store {
	if n < 0 {
		n = 0
	}
	s.maxHistory = n
	return s
}

// CreateUser создаёт пользователя. Email должен быть уже нормализован.
// При нарушении уникальности email возвращает common.ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		name, email, passwordHash, now())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("пользователь %q: %w", email, common.ErrDuplicateEmail)
		}
		return 0, fmt.Errorf("ошибка при выполнении запроса CreateUser: %w", err)
	}

	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ошибка при получении ID пользователя CreateUser: %w", err)
	}

	log.Info().Int64("user_id", lastID).Str("email", email).Msg("Создан пользователь")
	return lastID, nil
}

// GetUserByEmail ищет пользователя по нормализованному email.
// Возвращает nil, nil, если пользователь не найден.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	var createdAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка сканирования результата GetUserByEmail: %w", err)
	}
	user.CreatedAt = parseTime(createdAt)
	return user, nil
}
