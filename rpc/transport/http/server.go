package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ValentinKolb/davlock/rpc/common"
	"github.com/ValentinKolb/davlock/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("transport/rpc")

// maxRequestBody limits the size of a single rpc request.
const maxRequestBody = 4 << 20

// NewHttpServerTransport creates a transport that accepts requests as POST /{shardId}.
// The returned value also implements http.Handler.
func NewHttpServerTransport() transport.IRPCServerTransport {
	t := &httpServerTransport{}
	t.mux = http.NewServeMux()
	t.mux.HandleFunc("POST /{shardId}", t.handleRequest)
	return t
}

type httpServerTransport struct {
	handler transport.ServerHandleFunc
	mux     *http.ServeMux
	srv     *http.Server
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	var h http.Handler = t.mux
	if config.LogLevel == "debug" {
		h = loggerMiddleware(h)
	}

	t.srv = &http.Server{
		Addr:              config.RPCEndpoint,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infof("Starting RPC server on %s", config.RPCEndpoint)
	if err := t.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *httpServerTransport) Shutdown(ctx context.Context) error {
	if t.srv == nil {
		return nil
	}
	return t.srv.Shutdown(ctx)
}

// ServeHTTP serves the rpc endpoint without a listener of its own (used for embedding and tests).
func (t *httpServerTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mux.ServeHTTP(w, r)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleRequest handles incoming HTTP requests and writes the response to the writer
func (t *httpServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	shardId, err := strconv.ParseUint(r.PathValue("shardId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid shardId", http.StatusBadRequest)
		return
	}

	if t.handler == nil {
		http.Error(w, "no handler registered", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}

	resp := t.handler(shardId, body)

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		log.Warningf("failed to write response for shard %d: %v", shardId, err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

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
