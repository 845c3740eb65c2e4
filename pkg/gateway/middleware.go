package gateway

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/auth"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/correlation"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/metrics"
)

// slowRequestThreshold marks requests worth calling out in the log
const slowRequestThreshold = time.Second

type contextKey string

const claimsKey contextKey = "claims"

// claimsFrom returns the authenticated claims installed by the auth
// middleware, or nil on public paths.
func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

// publicPaths skip authentication
var publicPaths = map[string]bool{
	"/health":       true,
	"/metrics":      true,
	"/auth/login":   true,
	"/auth/refresh": true,
}

// statusRecorder captures the response status for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// correlationMiddleware reads the correlation headers off the request, or
// mints fresh identifiers, and echoes them on the response.
func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := correlation.New()
		if v := r.Header.Get(correlation.HeaderCorrelationID); v != "" {
			corr.CorrelationID = v
		}
		if v := r.Header.Get(correlation.HeaderRequestID); v != "" {
			corr.RequestID = v
		}
		if v := r.Header.Get(correlation.HeaderTraceID); v != "" {
			corr.TraceID = v
		}

		w.Header().Set(correlation.HeaderCorrelationID, corr.CorrelationID)
		w.Header().Set(correlation.HeaderRequestID, corr.RequestID)
		w.Header().Set(correlation.HeaderTraceID, corr.TraceID)

		next.ServeHTTP(w, r.WithContext(correlation.Install(r.Context(), corr)))
	})
}

// authMiddleware verifies the bearer token and installs its claims
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeError(w, r, errdefs.New(errdefs.KindUnauthenticated, "missing bearer token"))
			return
		}
		claims, err := s.auth.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// metricsMiddleware records request counts, latency, and slow requests
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routeTemplate(r)
		tenant := r.Header.Get("X-Tenant-ID")

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status), tenant).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		logger := log.WithComponent("gateway")
		evt := logger.Debug()
		if elapsed > slowRequestThreshold {
			metrics.SlowRequestsTotal.WithLabelValues(route, tenant).Inc()
			evt = logger.Warn()
		}
		evt.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Str("correlation_id", correlation.FromContext(r.Context()).CorrelationID).
			Msg("request")
	})
}

// rateLimitMiddleware applies a per-client token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			s.writeError(w, r, errdefs.New(errdefs.KindOverloaded, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipLimiter keeps one token bucket per client address. Stale buckets are
// dropped after an hour of silence.
type ipLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	l := &ipLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientBucket),
	}
	go l.sweep()
	return l
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

func (l *ipLimiter) sweep() {
	for range time.Tick(10 * time.Minute) {
		cutoff := time.Now().Add(-time.Hour)
		l.mu.Lock()
		for ip, b := range l.clients {
			if b.lastSeen.Before(cutoff) {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}
