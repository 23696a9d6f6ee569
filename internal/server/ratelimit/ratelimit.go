// Package ratelimit provides per-client request rate limiting.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	PerMinute       int // default limit; 0 disables the default
	Burst           int
	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	Whitelist       map[string]bool
	Rules           []Rule
}

// NewConfig returns the default configuration with perMinute as the
// default limit.
func NewConfig(perMinute int) *Config {
	return &Config{
		Enabled:         perMinute > 0,
		PerMinute:       perMinute,
		Burst:           max(perMinute/4, 1),
		CleanupInterval: 5 * time.Minute,
		IdleTimeout:     time.Hour,
		Whitelist:       map[string]bool{},
		Rules:           DefaultRules(),
	}
}

// Info describes the limit applied to one request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client and rule.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	config  *Config
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter creates a limiter. A nil config disables limiting.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{}
	}
	l := &Limiter{
		clients: make(map[string]*client),
		config:  config,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanup(config.CleanupInterval)
	}
	return l
}

// Allow reports whether a request from clientID may proceed.
func (l *Limiter) Allow(clientID, method, path string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}

	rule := MatchRule(method, path, l.config.Rules)
	key := clientID
	perMinute, burst := l.config.PerMinute, l.config.Burst
	if rule != nil {
		key = clientID + "|" + rule.Method + " " + rule.Path
		perMinute, burst = rule.PerMinute, rule.Burst
	}
	if perMinute <= 0 {
		return true, Info{Allowed: true}
	}
	if burst <= 0 {
		burst = perMinute
	}

	now := l.now()
	c := l.client(key, perMinute, burst, now)

	allowed := c.limiter.AllowN(now, 1)
	tokens := c.limiter.TokensAt(now)
	info := Info{
		Allowed:   allowed,
		Limit:     perMinute,
		Remaining: max(int(math.Floor(tokens)), 0),
	}
	if !allowed {
		perSecond := float64(c.limiter.Limit())
		info.RetryAfter = time.Duration(math.Ceil((1 - tokens) / perSecond * float64(time.Second)))
	}
	return allowed, info
}

func (l *Limiter) client(key string, perMinute, burst int, now time.Time) *client {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &client{
			limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst),
		}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets idle for longer than IdleTimeout.
func (l *Limiter) sweep() {
	idle := l.config.IdleTimeout
	if idle <= 0 {
		idle = time.Hour
	}
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
