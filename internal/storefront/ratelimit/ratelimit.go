/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package ratelimit provides fixed-window request limiting per client IP and
// endpoint class.
//
// Each class has its own window, maximum and counting mode:
//   - classes that count every request reject the (Max+1)th request in a window
//   - failed-only classes count a request only when it ends with status >= 400,
//     so successful logins never use up the allowance
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/audit"
	"github.com/marcus-qen/storefront/internal/storefront/metrics"
)

// Class names an endpoint class with its own limit.
type Class string

const (
	ClassGeneral       Class = "general"
	ClassAuth          Class = "auth"
	ClassOTP           Class = "otp"
	ClassPasswordReset Class = "password_reset"
	ClassRegistration  Class = "registration"
	ClassUpload        Class = "upload"
)

// ParseClass validates a class name read from configuration.
func ParseClass(s string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := DefaultRules()[c]; !ok {
		return "", fmt.Errorf("unknown rate limit class %q", s)
	}
	return c, nil
}

// Rule is the limit for one class.
type Rule struct {
	Window     time.Duration
	Max        int
	FailedOnly bool
}

// DefaultRules returns the production limits.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassGeneral:       {Window: 15 * time.Minute, Max: 100, FailedOnly: true},
		ClassAuth:          {Window: 15 * time.Minute, Max: 5, FailedOnly: true},
		ClassOTP:           {Window: 10 * time.Minute, Max: 3},
		ClassPasswordReset: {Window: time.Hour, Max: 3},
		ClassRegistration:  {Window: time.Hour, Max: 5, FailedOnly: true},
		ClassUpload:        {Window: 15 * time.Minute, Max: 20},
	}
}

// Config configures a Limiter.
type Config struct {
	Rules map[Class]Rule
	// TrustProxy takes the client address from the first X-Forwarded-For hop.
	TrustProxy bool
}

// Limiter enforces Rules against a CounterStore.
type Limiter struct {
	rules      map[Class]Rule
	store      CounterStore
	trustProxy bool
	logger     *zap.Logger
	recorder   audit.Recorder
	now        func() time.Time

	// logEvery keeps a flood of rejections from flooding the log.
	logEvery rate.Sometimes
}

// NewLimiter creates a limiter. A nil store uses a MemoryStore.
func NewLimiter(cfg Config, store CounterStore, logger *zap.Logger, recorder audit.Recorder) *Limiter {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Limiter{
		rules:      cfg.Rules,
		store:      store,
		trustProxy: cfg.TrustProxy,
		logger:     logger,
		recorder:   recorder,
		now:        time.Now,
		logEvery:   rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

// Rule returns the rule for class.
func (l *Limiter) Rule(class Class) (Rule, bool) {
	rule, ok := l.rules[class]
	return rule, ok
}

// Middleware limits requests in class. It panics on an unconfigured class,
// which is a routing bug.
func (l *Limiter) Middleware(class Class) func(http.Handler) http.Handler {
	rule, ok := l.rules[class]
	if !ok {
		panic(fmt.Sprintf("ratelimit: no rule for class %q", class))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := l.now()
			ip := ClientIP(r, l.trustProxy)
			key := string(class) + "|" + ip

			count, resetAt := l.store.Incr(key, rule.Window, now)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(rule.Max-count, 0)))

			if count > rule.Max {
				l.reject(w, r, class, ip, resetAt.Sub(now))
				return
			}

			if !rule.FailedOnly {
				next.ServeHTTP(w, r)
				return
			}

			// Counted up front so concurrent requests cannot all slip
			// through; refunded once the response turns out to succeed.
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.Status() < http.StatusBadRequest {
				l.store.Decr(key, resetAt)
			}
		})
	}
}

func (l *Limiter) reject(w http.ResponseWriter, r *http.Request, class Class, ip string, wait time.Duration) {
	retryAfter := int(math.Ceil(wait.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	metrics.RateLimitRejectionsTotal.WithLabelValues(string(class)).Inc()
	l.recorder.Record(audit.Event{
		Type:     audit.EventRateLimited,
		Actor:    ip,
		Resource: r.Method + " " + r.URL.Path,
		Summary:  "rate limit exceeded for class " + string(class),
		Detail:   map[string]any{"class": string(class), "retry_after": retryAfter},
	})
	l.logEvery.Do(func() {
		l.logger.Warn("rate limit exceeded",
			zap.String("class", string(class)),
			zap.String("client_ip", ip),
			zap.String("path", r.URL.Path),
			zap.Int("retry_after_seconds", retryAfter),
		)
	})

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	apierror.WriteWithBody(w, apierror.TooManyRequests("too many requests"), map[string]any{
		"retryAfter": retryAfter,
	})
}

// Sweep drops expired windows and returns how many were removed.
func (l *Limiter) Sweep() int {
	return l.store.Sweep(l.now())
}

// ClientIP returns the address rate limits are keyed on.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Status is the response status, 200 when the handler wrote nothing.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
