package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// newProvider собирает упорядоченный список миграций: SQL-файлы из migrations/
// и Go-миграции, которым нужна проверка наличия столбца.
func newProvider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения встроенных миграций: %w", err)
	}

	return goose.NewProvider(goose.DialectSQLite3, db, fsys,
		goose.WithGoMigrations(
			goose.NewGoMigration(2, &goose.GoFunc{RunTx: addHistoryOwner, Mode: goose.TransactionEnabled}, nil),
			goose.NewGoMigration(3, &goose.GoFunc{RunTx: addHistoryCreatedAt, Mode: goose.TransactionEnabled}, nil),
		),
	)
}

// Migrate применяет все недостающие миграции. Версия схемы хранится в goose_db_version,
// поэтому на актуальной базе вызов ничего не меняет.
func Migrate(ctx context.Context, db *sql.DB) error {
	provider, err := newProvider(db)
	if err != nil {
		return fmt.Errorf("ошибка инициализации goose: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	for _, r := range results {
		log.Info().Int64("version", r.Source.Version).Dur("duration", r.Duration).Msg("Миграция применена")
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}
	log.Info().Int64("version", version).Int("applied", len(results)).Msg("Схема базы данных актуальна")
	return nil
}

// SchemaVersion возвращает текущую версию схемы. Провайдер goose собирается один раз на Store.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	s.providerOnce.Do(func() {
		s.provider, s.providerErr = newProvider(s.db)
	})
	if s.providerErr != nil {
		return 0, fmt.Errorf("ошибка инициализации goose: %w", s.providerErr)
	}
	return s.provider.GetDBVersion(ctx)
}

// addHistoryOwner добавляет history.user_id.
// Базы старой версии приложения могли получить этот столбец без goose, поэтому сначала проверяем.
func addHistoryOwner(ctx context.Context, tx *sql.Tx) error {
	exists, err := columnExists(ctx, tx, "history", "user_id")
	if err != nil || exists {
		return err
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE history ADD COLUMN user_id INTEGER`); err != nil {
		return fmt.Errorf("ошибка добавления history.user_id: %w", err)
	}
	return nil
}

// addHistoryCreatedAt добавляет history.created_at и заполняет его у существующих строк.
// DEFAULT CURRENT_TIMESTAMP в ALTER TABLE SQLite не допускает, поэтому заполняем отдельным UPDATE.
func addHistoryCreatedAt(ctx context.Context, tx *sql.Tx) error {
	exists, err := columnExists(ctx, tx, "history", "created_at")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE history ADD COLUMN created_at TEXT`); err != nil {
			return fmt.Errorf("ошибка добавления history.created_at: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE history
		SET created_at = datetime('now')
		WHERE created_at IS NULL OR created_at = ''`)
	if err != nil {
		return fmt.Errorf("ошибка заполнения history.created_at: %w", err)
	}
	return nil
}

func columnExists(ctx context.Context, db DBTX, table, column string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки столбца %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}
