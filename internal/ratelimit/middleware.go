package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	platformmw "attestor/internal/platform/middleware"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/httputil"
	"attestor/pkg/requestcontext"
)

// Middleware enforces a per-client request budget. Store failures fail open:
// availability of issuance outranks throttling.
type Middleware struct {
	store    Store
	limit    int
	window   time.Duration
	class    string
	logger   *slog.Logger
	clientIP *platformmw.ClientIPResolver
	rejected prometheus.Counter
	failures prometheus.Counter
}

type Option func(*Middleware)

// WithRegisterer exposes rejection and store-failure counters.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Middleware) {
		factory := promauto.With(reg)
		m.rejected = factory.NewCounter(prometheus.CounterOpts{
			Name:        "attestor_rate_limited_total",
			Help:        "Requests rejected by the rate limiter",
			ConstLabels: prometheus.Labels{"class": m.class},
		})
		m.failures = factory.NewCounter(prometheus.CounterOpts{
			Name:        "attestor_rate_limit_store_errors_total",
			Help:        "Rate limit checks that failed open because the store errored",
			ConstLabels: prometheus.Labels{"class": m.class},
		})
	}
}

// WithClientIPResolver keys budgets on the address the resolver vouches for.
// Without it every budget is keyed on the socket peer.
func WithClientIPResolver(res *platformmw.ClientIPResolver) Option {
	return func(m *Middleware) {
		m.clientIP = res
	}
}

// New builds a limiter allowing limit requests per window for each client
// IP under class.
func New(store Store, class string, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limit:  limit,
		window: window,
		class:  class,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler is the chi-compatible middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := m.clientIP.ClientIP(r)
		key := m.class + ":" + SanitizeKeySegment(ip)

		result, err := m.store.Allow(ctx, key, m.limit, m.window)
		if err != nil {
			if m.failures != nil {
				m.failures.Inc()
			}
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"class", m.class,
				"ip_prefix", platformmw.AnonymizeIP(ip),
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addHeaders(w, result)
		if !result.Allowed {
			if m.rejected != nil {
				m.rejected.Inc()
			}
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"class", m.class,
				"ip_prefix", platformmw.AnonymizeIP(ip),
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "Too many requests. Please try again later."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func addHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
