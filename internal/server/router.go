// Package server собирает gin.Engine: middleware, шаблоны, статику и маршруты.
package server

import (
	// Стандартные библиотеки
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	// Внутренние пакеты
	"skinscope/internal/auth"
	"skinscope/internal/handlers"
	"skinscope/internal/middleware"
	"skinscope/internal/ratelimit"
	"skinscope/web"

	// Сторонние библиотеки
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// SessionCookieName - имя cookie сессии.
const SessionCookieName = "skinscope_session"

// Options - всё, что нужно для сборки роутера.
type Options struct {
	Handler      *handlers.Handler
	Sessions     *auth.Sessions
	CookieSecret []byte
	CookieSecure bool
	// Limiter ограничивает POST /login и /register. nil отключает ограничение.
	Limiter            middleware.Limiter
	MaxMultipartMemory int64
	// TrustedProxies передаётся в SetTrustedProxies. При nil IP клиента берётся из RemoteAddr.
	TrustedProxies []string
}

// NewRouter собирает роутер приложения.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Handler == nil || opts.Sessions == nil {
		return nil, errors.New("не заданы обработчики или выпуск сессий")
	}
	if len(opts.CookieSecret) == 0 {
		return nil, errors.New("секрет cookie не может быть пустым")
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	if opts.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = opts.MaxMultipartMemory
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		return nil, err
	}
	router.StaticFS("/static", http.FS(staticFS))

	// Cookie хранит только подписанный токен сессии, срок жизни совпадает с токеном.
	store := cookie.NewStore(opts.CookieSecret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.Sessions.TTL() / time.Second),
		HttpOnly: true,
		Secure:   opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(SessionCookieName, store))
	router.Use(middleware.Identify(opts.Sessions))

	h := opts.Handler

	public := router.Group("/")
	{
		public.GET("/", h.Root)
		public.GET("/healthz", h.Healthz)
		public.GET("/login", h.ShowLoginPage)
		public.POST("/login", middleware.RateLimit(opts.Limiter, ratelimit.ScopeLogin, handlers.LoginRateLimited), h.HandleLogin)
		public.GET("/register", h.ShowRegisterPage)
		public.POST("/register", middleware.RateLimit(opts.Limiter, ratelimit.ScopeRegister, handlers.RegisterRateLimited), h.HandleRegister)
	}

	protected := router.Group("/")
	protected.Use(middleware.AuthRequired())
	{
		protected.GET("/logout", h.HandleLogout)
		protected.GET("/home", h.ShowHome)
		protected.GET("/analysis", h.ShowAnalysis)
		protected.GET("/dashboard", h.ShowDashboard)
		protected.POST("/predict", h.HandlePredict)
		protected.POST("/chatbot", h.HandleChatbot)
		protected.POST("/delete_history/:id", h.HandleDeleteHistory)
	}

	return router, nil
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
	"imageSrc": imageSrc,
}

// imageSrc собирает data: URL для сохранённого base64-изображения.
// html/template не пропускает data: в src, поэтому значение помечается как безопасное
// только после проверки, что это действительно base64.
func imageSrc(data string) template.URL {
	if data == "" || strings.IndexFunc(data, notBase64) >= 0 {
		return ""
	}
	return template.URL("data:image/jpeg;base64," + data)
}

func notBase64(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return false
	case r == '+', r == '/', r == '=':
		return false
	}
	return true
}
