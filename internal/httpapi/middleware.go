package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/protocol"
	"github.com/google/uuid"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the request id stored by the logging middleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder captures the status code and keeps streaming working
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		elapsed := time.Since(start)
		s.metrics.RecordRequest(rec.status, elapsed)

		level := s.logger.Debug
		if rec.status >= http.StatusInternalServerError {
			level = s.logger.Warn
		}
		level("HTTP request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"latency_ms", elapsed.Milliseconds(),
		)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if s.cfg.IsLocalBind() && !isLoopbackOrigin(origin) {
				http.Error(w, "origin is not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+HeaderSessionID+", "+HeaderRequestID)
		w.Header().Set("Access-Control-Expose-Headers", HeaderSessionID+", "+HeaderRequestID)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopbackOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimSpace(u.Hostname())
	if host == "" {
		return false
	}
	return config.IsLoopbackHost(host)
}

func (s *Server) withShutdownGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathHealth && s.state.Rejecting() {
			retry := s.cfg.Shutdown.RetryAfter
			if retry <= 0 {
				retry = config.DefaultRetryAfter
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			writeRPCError(w, http.StatusServiceUnavailable, nil,
				protocol.NewError(protocol.CodeServerShuttingDown, config.MsgShuttingDown))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathHealth || !s.cfg.Auth.Required {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			if q := r.URL.Query().Get(queryToken); q != "" {
				if !s.queryTokenAllowed(r) {
					s.logger.Warn("Rejected query-parameter token",
						"path", r.URL.Path, "remote", r.RemoteAddr, "token", config.MaskToken(q))
					writeRPCError(w, http.StatusUnauthorized, nil,
						protocol.NewError(protocol.CodeUnauthorized, config.MsgQueryTokenRejected))
					return
				}
				s.logger.Warn("Query-parameter token used; prefer the Authorization header", "path", r.URL.Path)
				token = q
			}
		}

		if !tokensEqual(token, s.cfg.Auth.Token) {
			s.logger.Warn("Unauthorized request",
				"path", r.URL.Path, "remote", r.RemoteAddr, "token", config.MaskToken(token))
			w.Header().Set("WWW-Authenticate", `Bearer realm="scenebridge"`)
			writeRPCError(w, http.StatusUnauthorized, nil,
				protocol.NewError(protocol.CodeUnauthorized, config.MsgUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// queryTokenAllowed permits ?token= only for opening a stream on a loopback bind
func (s *Server) queryTokenAllowed(r *http.Request) bool {
	return s.cfg.IsLocalBind() && r.Method == http.MethodGet && r.URL.Path == PathSSE
}

func tokensEqual(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathHealth {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.allow(clientID(r, bearerToken(r)), time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeRPCError(w, http.StatusTooManyRequests, nil,
				protocol.NewError(protocol.CodeRateLimited, config.MsgRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}
