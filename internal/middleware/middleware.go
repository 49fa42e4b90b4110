package middleware

import (
	// Стандартные библиотеки
	"net/http" // Для кодов статуса HTTP (StatusFound)
	"strings"  // Для разбора заголовка Authorization

	// Внутренние пакеты
	"skinscope/internal/auth"

	// Сторонние библиотеки
	"github.com/gin-contrib/sessions" // Для работы с сессиями
	"github.com/gin-gonic/gin"        // Основной фреймворк
	"github.com/rs/zerolog/log"       // Структурированное логирование
)

const (
	// SessionTokenKey - ключ, под которым токен сессии лежит в cookie-сессии.
	SessionTokenKey = "token"
	// IdentityKey - ключ личности в контексте Gin.
	IdentityKey = "identity"
	// LoginPath - куда отправляем неаутентифицированных пользователей.
	LoginPath = "/login"
)

// Identify достаёт токен сессии из cookie или заголовка Authorization: Bearer,
// проверяет его и кладёт личность в контекст запроса. Запрос без токена пропускается дальше
// как неаутентифицированный: решение о доступе принимает AuthRequired.
func Identify(issuer *auth.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		token, fromCookie := "", false
		if raw, ok := session.Get(SessionTokenKey).(string); ok && raw != "" {
			token, fromCookie = raw, true
		} else if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		if token == "" {
			c.Next()
			return
		}

		id, err := issuer.Parse(token)
		if err != nil {
			log.Warn().Err(err).Str("ip", c.ClientIP()).Str("path", c.Request.URL.Path).Msg("Недействительный токен сессии")
			// Испорченный или просроченный токен в cookie удаляем, чтобы не проверять его на каждом запросе.
			if fromCookie {
				session.Delete(SessionTokenKey)
				if err := session.Save(); err != nil {
					log.Error().Err(err).Msg("Ошибка сохранения сессии при очистке токена")
				}
			}
			c.Next()
			return
		}

		c.Set(IdentityKey, id)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// AuthRequired пропускает только аутентифицированные запросы.
// Остальные перенаправляются на страницу входа (302), а не получают ошибку.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := auth.IdentityFromContext(c.Request.Context()); !ok {
			log.Info().Str("path", c.Request.URL.Path).Str("ip", c.ClientIP()).Msg("Доступ запрещен (не аутентифицирован)")
			c.Redirect(http.StatusFound, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentIdentity возвращает личность текущего запроса.
func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	return auth.IdentityFromContext(c.Request.Context())
}
