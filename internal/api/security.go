package api

import (
	"sync"
	"time"
)

type SecurityConfig struct {
	StartRateLimit         int
	StartRateWindow        time.Duration
	AuthFailureAlertLimit  int
	AuthFailureAlertWindow time.Duration
}

func defaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		StartRateLimit:         12,
		StartRateWindow:        60 * time.Second,
		AuthFailureAlertLimit:  8,
		AuthFailureAlertWindow: 2 * time.Minute,
	}
}

func normalizeSecurityConfig(cfg SecurityConfig) SecurityConfig {
	def := defaultSecurityConfig()
	if cfg.StartRateLimit <= 0 {
		cfg.StartRateLimit = def.StartRateLimit
	}
	if cfg.StartRateWindow <= 0 {
		cfg.StartRateWindow = def.StartRateWindow
	}
	if cfg.AuthFailureAlertLimit <= 0 {
		cfg.AuthFailureAlertLimit = def.AuthFailureAlertLimit
	}
	if cfg.AuthFailureAlertWindow <= 0 {
		cfg.AuthFailureAlertWindow = def.AuthFailureAlertWindow
	}
	return cfg
}

type windowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*windowBucket
}

type windowCounter struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[string]*windowBucket
}

type windowBucket struct {
	start time.Time
	count int
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{
		limit:   limit,
		window:  window,
		buckets: map[string]*windowBucket{},
	}
}

func (l *windowLimiter) Allow(key string, now time.Time) (bool, int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil || now.Sub(b.start) >= l.window {
		b = &windowBucket{start: now, count: 0}
		l.buckets[key] = b
	}
	if b.count >= l.limit {
		retry := l.window - now.Sub(b.start)
		if retry < 0 {
			retry = 0
		}
		return false, b.count, retry
	}
	b.count++
	return true, b.count, 0
}

func newWindowCounter(window time.Duration) *windowCounter {
	return &windowCounter{
		window:  window,
		buckets: map[string]*windowBucket{},
	}
}

func (c *windowCounter) Inc(key string, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.buckets[key]
	if b == nil || now.Sub(b.start) >= c.window {
		b = &windowBucket{start: now, count: 0}
		c.buckets[key] = b
	}
	b.count++
	return b.count
}

func (c *windowCounter) Reset(key string) {
	c.mu.Lock()
	delete(c.buckets, key)
	c.mu.Unlock()
}
