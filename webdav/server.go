package webdav

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
)

// ServerConfig configures the HTTP server in front of a Handler.
type ServerConfig struct {
	Endpoint       string  // listen address, e.g. ":8080"
	MetricsPath    string  // path of the prometheus endpoint, empty disables it
	RateLimit      float64 // requests per second, 0 disables the limiter
	RateBurst      int     // burst size of the limiter (default: 1 + RateLimit)
	MaxConnections int     // concurrent connections, 0 means unlimited
	LogLevel       string  // "debug" enables request logging
}

// Server serves a WebDAV handler with request logging, rate limiting, a
// connection cap and a metrics endpoint.
type Server struct {
	cfg     ServerConfig
	handler http.Handler
	srv     *http.Server
}

// NewServer wraps handler according to cfg.
func NewServer(handler http.Handler, cfg ServerConfig) *Server {
	s := &Server{cfg: cfg}

	var h http.Handler = handler
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1 + int(cfg.RateLimit)
		}
		h = rateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst), h)
	}
	if cfg.LogLevel == "debug" {
		h = loggerMiddleware(h)
	}

	mux := http.NewServeMux()
	if cfg.MetricsPath != "" {
		mux.HandleFunc(cfg.MetricsPath, func(w http.ResponseWriter, _ *http.Request) {
			metrics.WritePrometheus(w, true)
		})
	}
	mux.Handle("/", h)
	s.handler = mux

	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the complete handler chain of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured endpoint and serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Endpoint)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve serves on l, limited to MaxConnections concurrent connections.
func (s *Server) Serve(l net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.cfg.MaxConnections)
	}
	log.Infof("Starting WebDAV server on %s", l.Addr())
	err := s.srv.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Middleware
// --------------------------------------------------------------------------

// rateLimitMiddleware answers 429 when the limiter has no token left
func rateLimitMiddleware(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(rw, r)

		log.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
