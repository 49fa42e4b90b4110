package database

import (
	// Стандартные библиотеки
	"context"      // Для передачи контекста в запросы
	"database/sql" // Основной пакет для работы с SQL базами данных
	"errors"       // Для errors.As при разборе ошибок драйвера
	"fmt"          // Для форматирования строк и ошибок
	"strings"      // Для поиска подстроки в тексте ошибки
	"time"         // Для таймаутов соединения и временных меток

	// Сторонние библиотеки
	"github.com/rs/zerolog/log" // Структурированное логирование

	// Драйвер SQLite. Регистрирует драйвер "sqlite" в database/sql.
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib" // Коды ошибок SQLite
)

// timeLayout - формат, в котором SQLite возвращает datetime('now').
// Все временные метки пишем в этом же формате, чтобы старые и новые строки не различались.
const timeLayout = "2006-01-02 15:04:05"

// DBTX - подмножество database/sql, которым пользуются запросы.
// Ему удовлетворяют и *sql.DB, и *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open открывает файл базы SQLite, проверяет соединение и прогоняет миграции.
// Любая ошибка миграции возвращается наверх: работать с частично мигрированной базой нельзя.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	// Параметры modernc.org/sqlite передаются через _pragma:
	// - busy_timeout(5000): ждём снятия блокировки до 5 секунд.
	// - journal_mode(WAL): чтение не блокируется записью.
	// - synchronous(NORMAL): компромисс между скоростью и надёжностью в режиме WAL.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка при открытии %s: %w", path, err)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка при проверке соединения с %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Успешно подключились к базе данных")

	if err = Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка миграции схемы: %w", err)
	}

	// Пул ограничиваем одним соединением только после миграций:
	// goose держит собственное соединение на время прогона.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// WithTx открывает транзакцию, выполняет fn и фиксирует её при успехе.
// При ошибке или панике транзакция откатывается, паника пробрасывается дальше.
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// isUniqueViolation сообщает, нарушено ли ограничение UNIQUE.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	// Запасной вариант на случай, если ошибка пришла обёрнутой без типа драйвера.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// parseTime разбирает временную метку из TEXT-столбца.
// Строки, записанные старыми версиями, могут быть пустыми - тогда возвращается нулевое время.
func parseTime(value sql.NullString) time.Time {
	if !value.Valid || value.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, value.String, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// now возвращает текущее время UTC в формате хранения.
func now() string {
	return time.Now().UTC().Format(timeLayout)
}
