package main

import (
	// Стандартные библиотеки
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	// Внутренние пакеты
	"skinscope/internal/assistant"
	"skinscope/internal/auth"
	"skinscope/internal/classifier"
	"skinscope/internal/config"
	"skinscope/internal/database"
	"skinscope/internal/handlers"
	"skinscope/internal/logging"
	"skinscope/internal/middleware"
	"skinscope/internal/ratelimit"
	"skinscope/internal/server"
	"skinscope/internal/services"

	// Сторонние библиотеки
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// checkOrCreateDir проверяет, что dirPath существует и является директорией,
// при необходимости создаёт её. Любая проблема с путём завершает программу.
func checkOrCreateDir(dirPath string) {
	if dirPath == "" || dirPath == "/" {
		log.Fatal().Str("path", dirPath).Msg("КРИТИЧЕСКАЯ ОШИБКА: небезопасный путь к директории")
	}

	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		log.Info().Str("path", dirPath).Msg("Папка не найдена, создаем...")
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			log.Fatal().Err(err).Str("path", dirPath).Msg("КРИТИЧЕСКАЯ ОШИБКА: не удалось создать папку")
		}
		return
	}
	if err != nil {
		log.Fatal().Err(err).Str("path", dirPath).Msg("КРИТИЧЕСКАЯ ОШИБКА: ошибка при проверке папки")
	}
	if !info.IsDir() {
		log.Fatal().Str("path", dirPath).Msg("КРИТИЧЕСКАЯ ОШИБКА: путь существует, но не является директорией")
	}
}

func main() {
	// --- 1. Конфигурация ---
	cfg, err := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка конфигурации")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	// --- 2. База данных ---
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		checkOrCreateDir(dir)
	}
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации базы данных")
	}
	defer db.Close()
	store := database.NewStore(db).WithHistoryLimit(cfg.HistoryMaxPerUser)

	// --- 3. Модель и ассистент ---
	// Без модели и без ключа API сервер всё равно стартует: /predict и /chatbot отвечают ошибкой.
	clf, err := classifier.Load(cfg.ModelWeightsPath, cfg.ModelLabelsPath)
	if err != nil {
		log.Error().Err(err).Msg("Модель не загружена, классификация недоступна")
		clf = classifier.Disabled(err)
	} else {
		clf.WithMaxPixels(cfg.MaxImagePixels)
	}

	var gen assistant.TextGenerator
	if cfg.OpenAIAPIKey != "" {
		gen = assistant.NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.AssistantTemperature, cfg.AssistantTimeout)
	} else {
		log.Warn().Msg("OPENAI_API_KEY не задан, ассистент недоступен")
	}

	// --- 4. Сессии и лимиты ---
	cookieSecret := cfg.CookieSecret
	if cookieSecret == "" {
		cookieSecret, err = services.GenerateSecureToken(32)
		if err != nil {
			log.Fatal().Err(err).Msg("Не удалось сгенерировать секрет cookie")
		}
		log.Warn().Msg("COOKIE_SECRET не задан: используется случайный секрет, сессии не переживут перезапуск")
	}
	sess := auth.NewSessions([]byte(cookieSecret), cfg.SessionTTL)

	var limiter middleware.Limiter
	if cfg.LoginRateLimitPerMinute > 0 {
		l, err := ratelimit.NewAttemptLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.LoginRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка настройки лимитера")
		}
		defer l.Close()
		limiter = l
		log.Info().Int("per_minute", cfg.LoginRateLimitPerMinute).Msg("Ограничение попыток входа включено")
	}

	// --- 5. Роутер ---
	gin.SetMode(gin.ReleaseMode)
	h := handlers.New(handlers.Deps{
		Accounts:       services.NewAccounts(store),
		History:        store,
		Classifier:     clf,
		Assistant:      assistant.New(gen),
		Sessions:       sess,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SchemaVersion:  store.SchemaVersion,
	})
	router, err := server.NewRouter(server.Options{
		Handler:            h,
		Sessions:           sess,
		CookieSecret:       []byte(cookieSecret),
		CookieSecure:       cfg.CookieSecure,
		Limiter:            limiter,
		MaxMultipartMemory: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка сборки роутера")
	}

	// --- 6. Запуск ---
	srv := &http.Server{
		Addr:              ":" + cfg.ListenPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки сервера")
		}
	}()

	log.Info().Str("port", cfg.ListenPort).Msg("Сервер запускается")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Не удалось запустить сервер")
	}
	log.Info().Msg("Сервер остановлен")
}
