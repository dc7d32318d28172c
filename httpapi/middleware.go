package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-banklink/core"
	"github.com/google/uuid"
)

type contextKey int

const (
	userContextKey contextKey = iota
	sessionContextKey
)

const RequestIDHeader = "X-Request-ID"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs method, path, status and duration. Query strings
// and bodies are never logged.
func loggingMiddleware(logger core.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.WithContext(r.Context()).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", w.Header().Get(RequestIDHeader),
		)
	})
}

func recoveryMiddleware(logger core.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
					TextCode: core.ServiceErrorInternal,
					Message:  "internal server error",
				}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireUser resolves the session cookie to a user and stores both in the
// request context.
func (h *Handler) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := h.sessionFromRequest(r)
		if !ok {
			writeUnauthenticated(w)
			return
		}
		user, err := h.currentUser(r.Context(), session)
		if err != nil {
			if isUnauthenticated(err) {
				h.clearSessionCookie(w)
				writeUnauthenticated(w)
				return
			}
			h.fail(w, r, "resolve session", err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, sessionContextKey, session)
		next(w, r.WithContext(ctx))
	}
}

func userFromContext(ctx context.Context) core.UserIdentity {
	user, _ := ctx.Value(userContextKey).(core.UserIdentity)
	return user
}

func sessionFromContext(ctx context.Context) core.Session {
	session, _ := ctx.Value(sessionContextKey).(core.Session)
	return session
}
