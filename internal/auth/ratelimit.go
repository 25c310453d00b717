package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	attemptKeyPrefix      = "login_attempts:"
	registrationKeyPrefix = "registration_conflicts:"
)

// LoginLimiter throttles credential guessing in Redis. Login attempts are
// counted per client IP and account name; registrations that hit a taken name
// are counted per client IP. A nil limiter, or one without a client, allows
// everything. Redis errors fail open and are logged.
type LoginLimiter struct {
	client      redis.Cmdable
	maxAttempts int
	window      time.Duration
	logger      *zap.Logger
}

// NewLoginLimiter builds a limiter; client may be nil.
func NewLoginLimiter(client redis.Cmdable, maxAttempts int, window time.Duration, logger *zap.Logger) *LoginLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginLimiter{client: client, maxAttempts: maxAttempts, window: window, logger: logger}
}

func (l *LoginLimiter) enabled() bool {
	return l != nil && l.client != nil
}

// Reserve claims one login attempt for ip and name before the credential is
// checked. It reports whether the attempt may proceed and, if not, when to
// retry. The claim stays counted until RecordSuccess clears it or the window
// lapses.
func (l *LoginLimiter) Reserve(ctx context.Context, ip, name string) (bool, time.Duration) {
	return l.reserve(ctx, attemptKey(ip, name))
}

// RecordSuccess clears the attempt count for ip and name.
func (l *LoginLimiter) RecordSuccess(ctx context.Context, ip, name string) {
	if !l.enabled() {
		return
	}
	if err := l.client.Del(ctx, attemptKey(ip, name)).Err(); err != nil {
		l.logger.Warn("login limiter reset failed", zap.Error(err))
	}
}

// ReserveRegistration claims one registration slot for ip. Callers hand the
// slot back with ReleaseRegistration unless the name turned out to be taken.
func (l *LoginLimiter) ReserveRegistration(ctx context.Context, ip string) (bool, time.Duration) {
	return l.reserve(ctx, registrationKey(ip))
}

// ReleaseRegistration returns a slot taken by ReserveRegistration.
func (l *LoginLimiter) ReleaseRegistration(ctx context.Context, ip string) {
	if !l.enabled() {
		return
	}
	if err := l.client.Decr(ctx, registrationKey(ip)).Err(); err != nil {
		l.logger.Warn("registration limiter release failed", zap.Error(err))
	}
}

// reserve increments key and rejects once the count passes maxAttempts. INCR
// is atomic, so concurrent callers can never all observe a count under the
// limit. EXPIRE NX starts the window on the first claim and repairs a key
// that lost its TTL.
func (l *LoginLimiter) reserve(ctx context.Context, key string) (bool, time.Duration) {
	if !l.enabled() {
		return true, 0
	}
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("login limiter unavailable", zap.Error(err))
		return true, 0
	}
	if err := l.client.ExpireNX(ctx, key, l.window).Err(); err != nil {
		l.logger.Warn("login limiter expire failed", zap.Error(err))
	}
	if count <= int64(l.maxAttempts) {
		return true, 0
	}
	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return false, ttl
}

func attemptKey(ip, name string) string {
	return attemptKeyPrefix + ip + ":" + strings.ToLower(strings.TrimSpace(name))
}

func registrationKey(ip string) string {
	return registrationKeyPrefix + ip
}
