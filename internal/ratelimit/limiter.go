package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"crev/internal/logging"
)

// ErrRateLimited is returned when a token could not be acquired within the
// configured wait ceiling. Callers must surface this; requests are never
// silently dropped.
var ErrRateLimited = errors.New("rate limit exceeded")

// Requests-per-minute limits per model for the free API tier. Model names are
// matched by longest prefix so versioned variants share their base limit.
var tier1Limits = map[string]int{
	"gemini-2.5-pro":        150,
	"gemini-2.5-flash":      1000,
	"gemini-2.0-flash":      2000,
	"gemini-2.0-flash-lite": 4000,
}

const (
	// DefaultRPM is the limit applied to models absent from the tier table.
	DefaultRPM = 100
	// defaultCategoryKey pools all unknown models into one bucket so an
	// unrecognized name cannot mint itself a fresh quota.
	defaultCategoryKey = "default_unknown_model"
)

// Config holds rate limiter configuration.
type Config struct {
	Enabled     bool
	Tier        string
	WaitCeiling time.Duration
	// Overrides maps a model name to a requests-per-minute limit,
	// taking precedence over the built-in tier table.
	Overrides map[string]int
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Tier:        "tier1",
		WaitCeiling: 30 * time.Second,
	}
}

// CategoryFor returns the bucket key and RPM limit for a model name.
// Distinct tier/model combinations draw from independent buckets.
func (c Config) CategoryFor(model string) (key string, rpm int) {
	lower := strings.ToLower(model)

	if c.Overrides != nil {
		if v, ok := c.Overrides[lower]; ok {
			return c.Tier + ":" + lower, v
		}
	}
	if v, ok := tier1Limits[lower]; ok {
		return c.Tier + ":" + lower, v
	}

	// Longest prefix first so "gemini-2.0-flash-lite-001" does not fall
	// through to "gemini-2.0-flash".
	prefixes := make([]string, 0, len(tier1Limits))
	for p := range tier1Limits {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return c.Tier + ":" + p, tier1Limits[p]
		}
	}
	return c.Tier + ":" + defaultCategoryKey, DefaultRPM
}

// category is one bucket plus its admission queue.
type category struct {
	bucket *TokenBucket
	// queue serializes waiters; sync.Mutex's starvation mode hands the lock
	// over in arrival order, so callers drain the bucket fairly.
	queue sync.Mutex
}

// Limiter gates calls to the external reasoning engine. One token is
// withdrawn per request from the bucket of the request's category.
type Limiter struct {
	cfg        Config
	categories map[string]*category
	mu         sync.Mutex

	totalRequests   int64
	blockedRequests int64
}

// NewLimiter creates a limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	if cfg.WaitCeiling <= 0 {
		cfg.WaitCeiling = 30 * time.Second
	}
	if cfg.Tier == "" {
		cfg.Tier = "tier1"
	}
	return &Limiter{
		cfg:        cfg,
		categories: make(map[string]*category),
	}
}

func (l *Limiter) categoryFor(model string) *category {
	key, rpm := l.cfg.CategoryFor(model)

	l.mu.Lock()
	defer l.mu.Unlock()

	cat, ok := l.categories[key]
	if !ok {
		burst := float64(rpm)
		refill := float64(rpm) / 60.0
		cat = &category{bucket: NewTokenBucket(burst, refill)}
		l.categories[key] = cat
		logging.Debug("created rate limit bucket", "category", key, "rpm", rpm)
	}
	return cat
}

// Acquire withdraws one token from the model's bucket, blocking up to the
// wait ceiling (or the context deadline, whichever is sooner). Returns
// ErrRateLimited when the ceiling is exceeded.
func (l *Limiter) Acquire(ctx context.Context, model string) error {
	if !l.cfg.Enabled {
		return nil
	}

	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()

	cat := l.categoryFor(model)

	timeout := l.cfg.WaitCeiling
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}

	done := make(chan bool, 1)
	go func() {
		cat.queue.Lock()
		defer cat.queue.Unlock()
		done <- cat.bucket.ConsumeWithTimeout(1, timeout)
	}()

	select {
	case ok := <-done:
		if !ok {
			l.mu.Lock()
			l.blockedRequests++
			l.mu.Unlock()
			return fmt.Errorf("model %s: waited %s: %w", model, timeout, ErrRateLimited)
		}
		return nil
	case <-ctx.Done():
		// The goroutine's eventual token, if any, is returned to the bucket.
		go func() {
			if ok := <-done; ok {
				cat.bucket.Return(1)
			}
		}()
		return ctx.Err()
	}
}

// TryAcquire attempts a non-blocking withdrawal.
func (l *Limiter) TryAcquire(model string) bool {
	if !l.cfg.Enabled {
		return true
	}

	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()

	if !l.categoryFor(model).bucket.TryConsume(1) {
		l.mu.Lock()
		l.blockedRequests++
		l.mu.Unlock()
		return false
	}
	return true
}

// Available returns the tokens currently available for a model's category.
func (l *Limiter) Available(model string) float64 {
	return l.categoryFor(model).bucket.Available()
}

// Stats holds limiter counters.
type Stats struct {
	TotalRequests   int64
	BlockedRequests int64
	Categories      int
}

// Stats returns a snapshot of limiter counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		TotalRequests:   l.totalRequests,
		BlockedRequests: l.blockedRequests,
		Categories:      len(l.categories),
	}
}
