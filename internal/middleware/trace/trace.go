// Package trace tags each request with an ID and a request-scoped logger.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"budgetlens/internal/log"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID is echoed on every response and honored on requests.
	HeaderRequestID = "X-Request-ID"
	maxRequestIDLen = 64
)

// Tracer assigns request IDs and counts requests.
type Tracer struct {
	logger *log.Logger
	total  atomic.Int64
}

func New(logger *log.Logger) *Tracer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Tracer{logger: logger}
}

// Middleware stores the request ID in the context and wraps next with
// log.Middleware using a logger that carries the ID.
func (t *Tracer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.total.Add(1)

		id := r.Header.Get(HeaderRequestID)
		if !validRequestID(id) {
			id = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		logger := t.logger.With(log.FieldRequestID, id)
		log.Middleware(logger)(next).ServeHTTP(w, r.WithContext(ctx))
	})
}

// Requests returns how many requests went through the middleware.
func (t *Tracer) Requests() int64 {
	return t.total.Load()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
