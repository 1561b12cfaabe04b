package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// SessionHeader carries the caller's participant id on every request
const SessionHeader = "X-Session-Id"

type sessionKey struct{}

// WithSession returns a context carrying the caller's participant id
func WithSession(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFromContext returns the participant id set by the interceptor
func SessionFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(sessionKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// RateLimitConfig bounds how many intents a single session may send
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
	// IdleTTL is how long an unused session limiter is kept
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerSecond: 10,
		Burst:     20,
		IdleTTL:   10 * time.Minute,
	}
}

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SessionInterceptor authenticates the session header and rate limits each
// session independently.
type SessionInterceptor struct {
	cfg   RateLimitConfig
	clock clockwork.Clock

	mu        sync.Mutex
	limiters  map[uuid.UUID]*sessionLimiter
	lastSweep time.Time
}

var _ connect.Interceptor = (*SessionInterceptor)(nil)

func NewSessionInterceptor(cfg RateLimitConfig, clock clockwork.Clock) *SessionInterceptor {
	return &SessionInterceptor{
		cfg:       cfg,
		clock:     clock,
		limiters:  make(map[uuid.UUID]*sessionLimiter),
		lastSweep: clock.Now(),
	}
}

func (i *SessionInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		raw := req.Header().Get(SessionHeader)
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("missing or malformed %s header", SessionHeader))
		}

		if !i.allow(id) {
			log.Debug().
				Str("participant_id", id.String()).
				Str("procedure", req.Spec().Procedure).
				Msg("rate limited")
			return nil, connect.NewError(connect.CodeResourceExhausted, errors.New("too many requests"))
		}

		return next(WithSession(ctx, id), req)
	}
}

func (i *SessionInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *SessionInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

func (i *SessionInterceptor) allow(id uuid.UUID) bool {
	now := i.clock.Now()

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cfg.IdleTTL > 0 && now.Sub(i.lastSweep) >= i.cfg.IdleTTL {
		for sid, l := range i.limiters {
			if now.Sub(l.lastSeen) >= i.cfg.IdleTTL {
				delete(i.limiters, sid)
			}
		}
		i.lastSweep = now
	}

	l, ok := i.limiters[id]
	if !ok {
		l = &sessionLimiter{limiter: rate.NewLimiter(rate.Limit(i.cfg.PerSecond), i.cfg.Burst)}
		i.limiters[id] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// Sessions returns the number of tracked session limiters
func (i *SessionInterceptor) Sessions() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.limiters)
}
