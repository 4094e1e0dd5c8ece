package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBusy is returned when every in-flight slot for a key is taken.
	ErrBusy = errors.New("too many concurrent requests")
	// ErrCoolingDown is returned while a key's breaker is open.
	ErrCoolingDown = errors.New("cooling down after repeated failures")
)

// Adaptive bounds in-flight work per key inside the process and keeps
// per-key failure cooldowns in Redis, so every replica backs off together.
type Adaptive struct {
	rdb         redis.Cmdable
	maxInflight int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	mu          sync.Mutex
	sem         map[string]chan struct{}
}

type Options struct {
	MaxInflight int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// New creates a limiter. A nil rdb disables cooldowns.
func New(rdb redis.Cmdable, opts Options) *Adaptive {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Minute
	}
	return &Adaptive{
		rdb:         rdb,
		maxInflight: opts.MaxInflight,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		sem:         map[string]chan struct{}{},
	}
}

func (a *Adaptive) key(name string) string {
	return fmt.Sprintf("cb:%s", strings.ToLower(name))
}

// IsOpen returns true if the breaker for name is open (cooldown active).
// Redis errors count as closed.
func (a *Adaptive) IsOpen(ctx context.Context, name string) bool {
	if a.rdb == nil {
		return false
	}
	ts, err := a.rdb.Get(ctx, a.key(name)).Int64()
	if err != nil {
		return false
	}
	return time.Now().Unix() < ts
}

// Open sets or extends the cooldown for name, doubling it per consecutive
// failure, and returns the cooldown applied.
func (a *Adaptive) Open(ctx context.Context, name string) time.Duration {
	if a.rdb == nil {
		return 0
	}
	k := a.key(name)
	attempts, _ := a.rdb.Incr(ctx, k+":attempts").Result()
	d := Backoff(a.baseBackoff, a.maxBackoff, attempts)
	_ = a.rdb.Expire(ctx, k+":attempts", a.maxBackoff*2).Err()
	_ = a.rdb.Set(ctx, k, time.Now().Add(d).Unix(), d).Err()

	log.Warn().
		Str("breaker", name).
		Int64("failures", attempts).
		Dur("cooldown", d).
		Msg("circuit breaker opened")
	return d
}

// Close resets the breaker for name.
func (a *Adaptive) Close(ctx context.Context, name string) {
	if a.rdb == nil {
		return
	}
	k := a.key(name)
	_ = a.rdb.Del(ctx, k, k+":attempts").Err()
}

// Allow tries to reserve an in-process slot for name. It returns a release
// function and true if allowed; otherwise a no-op release and false.
func (a *Adaptive) Allow(name string) (func(), bool) {
	key := strings.ToLower(name)
	a.mu.Lock()
	ch, ok := a.sem[key]
	if !ok {
		ch = make(chan struct{}, a.maxInflight)
		a.sem[key] = ch
	}
	a.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return func() {}, false
	}
}

// Backoff doubles base per attempt after the first, capped at limit.
func Backoff(base, limit time.Duration, attempts int64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := int64(1); i < attempts; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}
