package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/httpx"
)

type ctxKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(domain.Actor)
	return actor, ok
}

type Middleware struct {
	tokens    *Tokens
	responder *httpx.Responder
	logger    *zap.Logger
}

func NewMiddleware(tokens *Tokens, logger *zap.Logger) *Middleware {
	return &Middleware{
		tokens:    tokens,
		responder: httpx.NewResponder(logger),
		logger:    logger,
	}
}

// Authenticate requires a valid bearer token and stores the actor in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := httpx.TraceID(r)

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			m.unauthorized(w, traceID, "invalid_request", "missing bearer token")
			return
		}

		actor, err := m.tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			m.logger.Debug("rejected bearer token", zap.String("traceId", traceID), zap.Error(err))
			m.unauthorized(w, traceID, "invalid_token", "invalid jwt")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireRole lets the request through when the actor holds any of the roles.
func (m *Middleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				m.unauthorized(w, httpx.TraceID(r), "invalid_request", "missing bearer token")
				return
			}
			for _, role := range roles {
				if actor.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
			m.responder.WriteErrorResponse(w, httpx.TraceID(r), http.StatusForbidden, "FORBIDDEN", "missing required role")
		})
	}
}

func (m *Middleware) unauthorized(w http.ResponseWriter, traceID, code, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	m.responder.WriteErrorResponse(w, traceID, http.StatusUnauthorized, "UNAUTHORIZED", desc)
}
