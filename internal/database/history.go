package database

import (
	"context"
	"database/sql"
	"fmt"

	"skinscope/internal/models"

	"github.com/rs/zerolog/log"
)

// AppendHistory сохраняет одну запись истории с серверной временной меткой.
// Проверка обязательных полей - на стороне вызывающего кода.
// Если задан лимит истории, самые старые записи пользователя сверх лимита удаляются в той же транзакции.
func (s *Store) AppendHistory(ctx context.Context, rec models.HistoryRecord) (int64, error) {
	var id int64
	err := WithTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO history (user_id, image_data, disease_name, query, response, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.UserID, rec.ImageData, rec.Disease, rec.Question, rec.Answer, now())
		if err != nil {
			return fmt.Errorf("ошибка выполнения запроса AppendHistory: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("ошибка получения ID записи истории: %w", err)
		}

		if s.maxHistory > 0 {
			pruned, err := tx.ExecContext(ctx, `
				DELETE FROM history
				WHERE user_id = ? AND id NOT IN (
					SELECT id FROM history WHERE user_id = ? ORDER BY id DESC LIMIT ?
				)`, rec.UserID, rec.UserID, s.maxHistory)
			if err != nil {
				return fmt.Errorf("ошибка очистки старой истории: %w", err)
			}
			if n, _ := pruned.RowsAffected(); n > 0 {
				log.Info().Int64("user_id", rec.UserID).Int64("pruned", n).Msg("Старые записи истории удалены по лимиту")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("history_id", id).Int64("user_id", rec.UserID).Str("disease", rec.Disease).Msg("Запись истории сохранена")
	return id, nil
}

// ListHistory возвращает все записи пользователя, новые первыми.
// id монотонно растёт вместе с порядком вставки, поэтому сортируем по нему.
func (s *Store) ListHistory(ctx context.Context, userID int64) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, image_data, disease_name, query, response, created_at
		FROM history
		WHERE user_id = ?
		ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса ListHistory: %w", err)
	}
	defer rows.Close()

	records := make([]models.HistoryRecord, 0)
	for rows.Next() {
		var rec models.HistoryRecord
		var createdAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ImageData, &rec.Disease, &rec.Question, &rec.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ListHistory: %w", err)
		}
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк ListHistory: %w", err)
	}
	return records, nil
}

// DeleteHistory удаляет запись, только если она принадлежит userID.
// Проверка владельца входит в условие самого DELETE: отдельный SELECT перед удалением
// открыл бы окно для гонки. Возвращает true, если строка действительно удалена.
func (s *Store) DeleteHistory(ctx context.Context, userID, recordID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ? AND user_id = ?`, recordID, userID)
	if err != nil {
		return false, fmt.Errorf("ошибка выполнения запроса DeleteHistory для ID %d: %w", recordID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка получения rowsAffected в DeleteHistory для ID %d: %w", recordID, err)
	}

	if rowsAffected == 0 {
		log.Warn().Int64("history_id", recordID).Int64("user_id", userID).Msg("DeleteHistory не затронул строк (чужая или несуществующая запись)")
		return false, nil
	}
	log.Info().Int64("history_id", recordID).Int64("user_id", userID).Msg("Запись истории удалена")
	return true, nil
}
