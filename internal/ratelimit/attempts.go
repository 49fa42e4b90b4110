// Package ratelimit ограничивает частоту попыток входа и регистрации.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skinscope/internal/common"

	"github.com/redis/go-redis/v9"
)

// Области, у каждой из которых свой счётчик попыток на IP.
const (
	ScopeLogin    = "login"
	ScopeRegister = "register"
)

const keyPrefix = "skinscope:attempts"

// Окно начинается с первой попытки: счётчик создаётся вместе со сроком жизни.
// Скрипт возвращает номер попытки и оставшееся время окна в миллисекундах.
var countAttempt = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// LimitedError - попытка отклонена, новое окно откроется через RetryAfter.
type LimitedError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("%s: %s, повтор через %s", common.ErrRateLimited, e.Scope, e.RetryAfter)
}

func (e *LimitedError) Unwrap() error {
	return common.ErrRateLimited
}

// AttemptLimiter пропускает не больше limit попыток с одного IP в области за окно window.
// Счётчики живут в Redis, поэтому лимит общий для всех экземпляров сервера.
type AttemptLimiter struct {
	limit  int
	window time.Duration
	client *redis.Client
}

// NewAttemptLimiter создаёт лимитер поверх Redis по адресу addr.
func NewAttemptLimiter(addr, password string, limit int, window time.Duration) (*AttemptLimiter, error) {
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("лимитеру нужны положительные limit и window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("не задан адрес redis для лимитера")
	}
	return &AttemptLimiter{
		limit:  limit,
		window: window,
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}, nil
}

// Check учитывает попытку с clientIP в области scope.
// Сверх лимита возвращает *LimitedError (errors.Is(err, common.ErrRateLimited)).
// Ошибка Redis возвращается как есть: вызывающий код должен отклонить попытку.
func (l *AttemptLimiter) Check(ctx context.Context, scope, clientIP string) error {
	key := attemptKey(scope, clientIP)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := countAttempt.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return fmt.Errorf("ошибка redis в лимитере: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("неожиданный ответ лимитера: %v", res)
	}

	if res[0] <= int64(l.limit) {
		return nil
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return &LimitedError{Scope: scope, RetryAfter: retry}
}

// Close закрывает соединение с Redis.
func (l *AttemptLimiter) Close() error {
	return l.client.Close()
}

func attemptKey(scope, clientIP string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		clientIP = "unknown"
	}
	return keyPrefix + ":" + scope + ":" + clientIP
}
