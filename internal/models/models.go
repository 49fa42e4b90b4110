package models

import (
	// Стандартные библиотеки
	"time" // Для временных меток создания записей
)

// User представляет пользователя в системе.
// Поля структуры соответствуют столбцам таблицы 'users'.
// `json:"-"` означает, что поле не попадает в JSON-ответы.
type User struct {
	ID           int64     `json:"id"`         // Уникальный идентификатор пользователя (Primary Key)
	Name         string    `json:"name"`       // Отображаемое имя
	Email        string    `json:"email"`      // Email (UNIQUE, всегда в нижнем регистре)
	PasswordHash string    `json:"-"`          // bcrypt-хеш пароля (НЕ ДОЛЖЕН передаваться клиенту)
	CreatedAt    time.Time `json:"created_at"` // Время регистрации
}

// HistoryRecord - одна сохранённая пара вопрос/ответ вместе с изображением и диагнозом.
// Принадлежит пользователю UserID (слабая ссылка, внешнего ключа нет).
type HistoryRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ImageData string    `json:"image_data"` // Изображение в base64
	Disease   string    `json:"disease"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
