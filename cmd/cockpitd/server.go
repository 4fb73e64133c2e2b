package main

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/cockpit/pkg/audit"
	"github.com/Mindburn-Labs/cockpit/pkg/config"
	"github.com/Mindburn-Labs/cockpit/pkg/observability"
	"github.com/Mindburn-Labs/cockpit/pkg/oracle"
	"github.com/Mindburn-Labs/cockpit/pkg/writer"
)

// Per-IP budget for /api/change. The pipeline serializes anyway; the
// limiter just keeps one client from monopolizing the queue.
const (
	changeRateLimit = rate.Limit(5)
	changeBurst     = 10
)

type server struct {
	cfg     *config.Config
	writer  *writer.Writer
	oracle  *oracle.Oracle
	store   *audit.Store
	metrics *observability.Metrics
	logger  *slog.Logger

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

func newServer(cfg *config.Config, w *writer.Writer, orc *oracle.Oracle, store *audit.Store, metrics *observability.Metrics, logger *slog.Logger) *server {
	return &server{
		cfg:      cfg,
		writer:   w,
		oracle:   orc,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/change", s.rateLimited(s.handleChange))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("POST /api/kill", s.handleKillTrip)
	mux.HandleFunc("DELETE /api/kill", s.handleKillReset)
	return s.withRequestID(mux)
}

// withRequestID tags every request with a UUID, echoed in the
// X-Request-ID response header and every log line.
func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		rw.Header().Set("X-Request-ID", id)
		next.ServeHTTP(rw, r.WithContext(withReqID(r.Context(), id)))
	})
}

func (s *server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.limiterFor(clientIP(r)).Allow() {
			writeJSON(rw, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
			return
		}
		next(rw, r)
	}
}

func (s *server) limiterFor(ip string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	lim, ok := s.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(changeRateLimit, changeBurst)
		s.limiters[ip] = lim
	}
	return lim
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
