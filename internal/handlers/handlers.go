package handlers

import (
	// Стандартные библиотеки
	"context"
	"net/http"

	// Внутренние пакеты
	"skinscope/internal/auth"
	"skinscope/internal/middleware"
	"skinscope/internal/models"
	"skinscope/internal/services"

	// Сторонние библиотеки
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HistoryStore - хранилище истории, которое нужно обработчикам.
type HistoryStore interface {
	AppendHistory(ctx context.Context, rec models.HistoryRecord) (int64, error)
	ListHistory(ctx context.Context, userID int64) ([]models.HistoryRecord, error)
	DeleteHistory(ctx context.Context, userID, recordID int64) (bool, error)
}

// Classifier - адаптер модели классификации.
type Classifier interface {
	Ready() bool
	Classify(ctx context.Context, data []byte) (string, error)
}

// Assistant - адаптер LLM-ассистента.
type Assistant interface {
	Ready() bool
	Ask(ctx context.Context, disease, question, language string) (string, error)
}

// Deps - зависимости обработчиков.
type Deps struct {
	Accounts       *services.Accounts
	History        HistoryStore
	Classifier     Classifier
	Assistant      Assistant
	Sessions       *auth.Sessions
	MaxUploadBytes int64
	// SchemaVersion отдаёт текущую версию схемы для /healthz.
	SchemaVersion func(ctx context.Context) (int64, error)
}

// Handler обрабатывает HTTP-маршруты приложения.
type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// Root перенаправляет на главную страницу или на страницу входа.
func (h *Handler) Root(c *gin.Context) {
	if _, ok := middleware.CurrentIdentity(c); ok {
		c.Redirect(http.StatusFound, "/home")
		return
	}
	c.Redirect(http.StatusFound, middleware.LoginPath)
}

// ShowHome отображает стартовую страницу пользователя.
func (h *Handler) ShowHome(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	c.HTML(http.StatusOK, "home.html", gin.H{
		"title":    "Home",
		"username": id.Name,
	})
}

// ShowAnalysis отображает страницу загрузки снимка и чата.
func (h *Handler) ShowAnalysis(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)
	c.HTML(http.StatusOK, "analysis.html", gin.H{
		"title":    "Analysis",
		"username": id.Name,
	})
}

// ShowDashboard показывает историю текущего пользователя, новые записи первыми.
// Клиенты с Accept: application/json получают ту же историю в JSON.
func (h *Handler) ShowDashboard(c *gin.Context) {
	id, _ := middleware.CurrentIdentity(c)

	history, err := h.History.ListHistory(c.Request.Context(), id.UserID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id.UserID).Msg("Ошибка получения истории")
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"title":   "Error",
			"message": "Could not load your history. Please try again later.",
		})
		return
	}

	switch c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) {
	case gin.MIMEJSON:
		c.JSON(http.StatusOK, gin.H{"history": history})
	default:
		c.HTML(http.StatusOK, "dashboard.html", gin.H{
			"title":    "Dashboard",
			"username": id.Name,
			"history":  history,
		})
	}
}

// Healthz сообщает о состоянии базы и адаптеров.
func (h *Handler) Healthz(c *gin.Context) {
	version, err := h.SchemaVersion(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Ошибка проверки версии схемы")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"schema_version": version,
		"classifier":     h.Classifier.Ready(),
		"assistant":      h.Assistant.Ready(),
	})
}

// startSession выпускает токен для пользователя и сохраняет его в cookie-сессии.
func (h *Handler) startSession(c *gin.Context, user *models.User) error {
	token, err := h.Sessions.Issue(auth.Identity{UserID: user.ID, Name: user.Name, Email: user.Email})
	if err != nil {
		return err
	}
	session := sessions.Default(c)
	session.Set(middleware.SessionTokenKey, token)
	return session.Save()
}
