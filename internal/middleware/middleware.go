// Package middleware holds the HTTP wrappers applied around every route.
package middleware

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/freeeve/vendetta/api/internal/logger"
)

// RequestIDHeader is honoured on the way in and always set on the way out.
const RequestIDHeader = "X-Request-ID"

// bodyLogLimit caps how much of a payload reaches debug logs.
const bodyLogLimit = 1024

// Logger tags the request with an ID and logs its outcome. Bodies are logged
// only at debug level.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = logger.NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(logger.WithRequestID(r.Context(), id))

		l := logger.ForRequest(r.Context()).With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		if r.Body != nil && r.ContentLength != 0 {
			body, err := io.ReadAll(r.Body)
			if err == nil {
				logger.Body(l, "request", body, bodyLogLimit)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		rw := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		logger.Body(l, "response", rw.head.Bytes(), bodyLogLimit)
		ev := l.Info()
		if rw.status >= http.StatusInternalServerError {
			ev = l.Error()
		}
		ev.Int("status", rw.status).
			Int("bytes", rw.size).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			l := logger.ForRequest(r.Context())
			l.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Str("path", r.URL.Path).Msg("Handler panicked")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal error"}`))
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS answers preflights and decorates every response for allowedOrigins.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigins)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
			h.Set("Access-Control-Expose-Headers", "Retry-After, "+RequestIDHeader)
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// JSON marks every response as JSON.
func JSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Chain wraps h so that mws[0] runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// recorder keeps the status, the size and the first bodyLogLimit bytes.
type recorder struct {
	http.ResponseWriter
	status int
	size   int
	head   bytes.Buffer
}

func (w *recorder) Write(b []byte) (int, error) {
	if room := bodyLogLimit - w.head.Len(); room > 0 {
		w.head.Write(b[:min(room, len(b))])
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *recorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through Logger.
func (w *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	return hj.Hijack()
}
