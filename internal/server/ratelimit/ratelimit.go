// Package ratelimit provides per-client rate limiting using the token
// bucket algorithm.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// TokenBucket allows a number of requests per window, with tokens refilling
// at a steady rate.
type TokenBucket struct {
	capacity   int
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens = min(float64(tb.capacity), tb.tokens+now.Sub(tb.lastRefill).Seconds()*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Rule applies a limit to all paths under a prefix. An empty method matches
// every method.
type Rule struct {
	PathPrefix string
	Method     string
	Limit      int
	Window     time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled       bool
	DefaultLimit  int
	DefaultWindow time.Duration
	Rules         []Rule
}

// DefaultConfig rate-limits analysis starts hard (each one triggers a
// scrape, a transcription and an LLM run) and everything else loosely.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  120,
		DefaultWindow: time.Minute,
		Rules: []Rule{
			{PathPrefix: "/api/analyses", Method: "POST", Limit: 6, Window: time.Minute},
			{PathPrefix: "/api/videos", Method: "POST", Limit: 20, Window: time.Minute},
			{PathPrefix: "/auth/login", Method: "POST", Limit: 10, Window: time.Minute},
			{PathPrefix: "/health", Limit: 0}, // unlimited
		},
	}
}

// Info describes the outcome of a rate limit check.
type Info struct {
	Allowed    bool
	Limit      int
	RetryAfter time.Duration
}

// Limiter manages token buckets for multiple clients.
type Limiter struct {
	config  *Config
	mu      sync.Mutex
	buckets map[string]*TokenBucket
	touched map[string]time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewLimiter creates a rate limiter and starts its cleanup loop.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	l := &Limiter{
		config:  config,
		buckets: make(map[string]*TokenBucket),
		touched: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
	if config.Enabled {
		go l.cleanupLoop()
	}
	return l
}

// Allow checks whether a request from clientID for the given path and method
// is within limits.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled {
		return true, Info{Allowed: true}
	}

	limit, window := l.config.DefaultLimit, l.config.DefaultWindow
	for _, rule := range l.config.Rules {
		if strings.HasPrefix(path, rule.PathPrefix) && (rule.Method == "" || rule.Method == method) {
			limit, window = rule.Limit, rule.Window
			break
		}
	}
	if limit <= 0 {
		return true, Info{Allowed: true}
	}

	key := clientID + ":" + method + ":" + path
	bucket := l.getBucket(key, limit, window)

	if bucket.allow() {
		return true, Info{Allowed: true, Limit: limit}
	}
	return false, Info{Allowed: false, Limit: limit, RetryAfter: window / time.Duration(limit)}
}

func (l *Limiter) getBucket(key string, limit int, window time.Duration) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = newTokenBucket(limit, float64(limit)/window.Seconds())
		l.buckets[key] = bucket
	}
	l.touched[key] = time.Now()
	return bucket
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now().Add(-time.Hour))
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets idle since before the cutoff.
func (l *Limiter) cleanup(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, last := range l.touched {
		if last.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.touched, key)
		}
	}
}

// Stop terminates the cleanup loop.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
