package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SendRateLimiter limita cuántos mensajes puede emitir un usuario por
// ventana. Un limiter nil deshabilita el límite.
type SendRateLimiter interface {
	Allow(userID string) bool
}

const redisSendAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisSendRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

func NewRedisSendRateLimiter(client *redis.Client, window time.Duration, max int) SendRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	if max <= 0 {
		max = 1
	}
	return &redisSendRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "send:rl:",
	}
}

// Allow falla abierto: si redis no responde, el envío no se bloquea.
func (l *redisSendRateLimiter) Allow(userID string) bool {
	if l == nil || l.client == nil {
		return true
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 10
	}
	count, err := l.client.Eval(ctx, redisSendAllowScript, []string{l.prefix + userID}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
