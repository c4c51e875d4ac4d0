// Пакет service — бизнес-логика точки обслуживания: доверие к устройству,
// наборы данных, фоновые проверки сроков и мониторинг сервиса лицензий.
//
// TokenCache — LRU-кэш хэш-токенов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	tokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cp_token_cache_hits_total",
		Help: "Общее количество попаданий в кэш хэш-токенов.",
	})
	tokenCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cp_token_cache_misses_total",
		Help: "Общее количество промахов кэша хэш-токенов.",
	})
)

// TokenCache хранит ответы хэш-эндпоинта по входной строке "<код>-<номер дня>".
// Токен для пары код/день неизменен, поэтому кэширование не меняет результат.
type TokenCache struct {
	cache *expirable.LRU[string, string]
}

// NewTokenCache создаёт кэш.
// maxSize — максимальное количество токенов (CP_TOKEN_CACHE_SIZE).
// ttl — время жизни записи (CP_TOKEN_CACHE_TTL).
func NewTokenCache(maxSize int, ttl time.Duration) *TokenCache {
	return &TokenCache{cache: expirable.NewLRU[string, string](maxSize, nil, ttl)}
}

// Get возвращает токен для входной строки.
func (c *TokenCache) Get(input string) (string, bool) {
	val, ok := c.cache.Get(input)
	if ok {
		tokenCacheHitsTotal.Inc()
		return val, true
	}
	tokenCacheMissesTotal.Inc()
	return "", false
}

// Set сохраняет токен.
func (c *TokenCache) Set(input, token string) {
	c.cache.Add(input, token)
}

// Purge очищает кэш. Вызывается при повторной регистрации.
func (c *TokenCache) Purge() {
	c.cache.Purge()
}

// Len возвращает количество записей.
func (c *TokenCache) Len() int {
	return c.cache.Len()
}
