package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(cfg *Config) (*Limiter, *clock) {
	cfg.CleanupInterval = 0
	l := NewLimiter(cfg)
	c := &clock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	l.now = c.now
	return l, c
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l, c := newTestLimiter(&Config{Enabled: true, PerMinute: 6, Burst: 2})
	defer l.Stop()

	ok, info := l.Allow("10.0.0.1", "GET", "/schedules")
	assert.True(t, ok)
	assert.Equal(t, 6, info.Limit)
	assert.Equal(t, 1, info.Remaining)

	ok, _ = l.Allow("10.0.0.1", "GET", "/schedules")
	assert.True(t, ok)

	ok, info = l.Allow("10.0.0.1", "GET", "/schedules")
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, 10*time.Second, info.RetryAfter)

	c.t = c.t.Add(10 * time.Second)
	ok, _ = l.Allow("10.0.0.1", "GET", "/schedules")
	assert.True(t, ok)
}

func TestAllow_ClientsAreIsolated(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, PerMinute: 1, Burst: 1})
	defer l.Stop()

	ok, _ := l.Allow("a", "GET", "/logs")
	assert.True(t, ok)
	ok, _ = l.Allow("a", "GET", "/logs")
	assert.False(t, ok)

	ok, _ = l.Allow("b", "GET", "/logs")
	assert.True(t, ok)
}

func TestAllow_RulesOverrideDefault(t *testing.T) {
	l, _ := newTestLimiter(NewConfig(600))
	defer l.Stop()

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("a", "POST", "/generate")
		require.True(t, ok, "request %d", i)
	}
	ok, info := l.Allow("a", "POST", "/generate")
	assert.False(t, ok)
	assert.Equal(t, 6, info.Limit)

	// the default bucket is separate
	ok, _ = l.Allow("a", "GET", "/schedules")
	assert.True(t, ok)
}

func TestAllow_Unlimited(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *Config
		client string
		method string
		path   string
	}{
		{"disabled", &Config{Enabled: false}, "a", "GET", "/logs"},
		{"whitelisted", &Config{Enabled: true, PerMinute: 1, Burst: 1, Whitelist: map[string]bool{"a": true}}, "a", "GET", "/logs"},
		{"health", &Config{Enabled: true, PerMinute: 1, Burst: 1}, "a", "GET", "/health"},
		{"metrics", &Config{Enabled: true, PerMinute: 1, Burst: 1}, "a", "GET", "/metrics"},
		{"zero default", &Config{Enabled: true}, "a", "GET", "/logs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(tt.cfg)
			defer l.Stop()
			for i := 0; i < 5; i++ {
				ok, _ := l.Allow(tt.client, tt.method, tt.path)
				assert.True(t, ok)
			}
		})
	}
}

func TestMatchRule(t *testing.T) {
	rules := DefaultRules()

	r := MatchRule("POST", "/generate", rules)
	require.NotNil(t, r)
	assert.Equal(t, "/generate", r.Path)

	r = MatchRule("POST", "/jobs/abc/cancel", rules)
	require.NotNil(t, r)
	assert.Equal(t, "/jobs/", r.Path)

	assert.Nil(t, MatchRule("GET", "/jobs/abc/progress", rules))
	assert.Nil(t, MatchRule("GET", "/generate", rules))
}

func TestSweep_DropsIdleBuckets(t *testing.T) {
	l, c := newTestLimiter(&Config{Enabled: true, PerMinute: 60, IdleTimeout: time.Minute})
	defer l.Stop()

	l.Allow("a", "GET", "/logs")
	l.Allow("b", "GET", "/logs")
	assert.Equal(t, 2, l.Len())

	c.t = c.t.Add(30 * time.Second)
	l.Allow("b", "GET", "/logs")

	c.t = c.t.Add(45 * time.Second)
	l.sweep()
	assert.Equal(t, 1, l.Len())
}

func TestStop_Idempotent(t *testing.T) {
	l := NewLimiter(NewConfig(60))
	l.Stop()
	l.Stop()
}
