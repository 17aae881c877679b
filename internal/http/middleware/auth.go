package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhsenso/erp/internal/auth"
)

type contextKey string

const (
	ContextKeySubject contextKey = "subject"
	ContextKeyGrupos  contextKey = "grupos"
)

// Auth valida JWT de acesso e injeta claims no contexto.
func Auth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				writeError(w, http.StatusUnauthorized, "token ausente")
				return
			}

			claims, err := jwtManager.ParseAndValidate(strings.TrimSpace(parts[1]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "token inválido")
				return
			}

			if strings.TrimSpace(claims.Subject) == "" {
				writeError(w, http.StatusUnauthorized, "subject inválido")
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("enduser.id", claims.Subject))

			ctx := context.WithValue(r.Context(), ContextKeySubject, claims.Subject)
			ctx = context.WithValue(ctx, ContextKeyGrupos, claims.Grupos)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSubject injeta o usuário no contexto (testes e chamadas internas).
func WithSubject(ctx context.Context, cdUsuario string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, cdUsuario)
}

// GetSubject recupera o cdusuario autenticado.
func GetSubject(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeySubject).(string)
	return val
}

// GetGrupos recupera os grupos no formato SISTEMA:GRUPO.
func GetGrupos(ctx context.Context) []string {
	val, _ := ctx.Value(ContextKeyGrupos).([]string)
	return val
}
