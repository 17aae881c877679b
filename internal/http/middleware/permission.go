package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// PermissionChecker responde as verificações de habilitação do usuário.
type PermissionChecker interface {
	CheckHabilitacao(ctx context.Context, cdUsuario, sistema, funcao string) (bool, error)
	CheckBotao(ctx context.Context, cdUsuario, sistema, funcao string, acao byte) (bool, error)
}

// RequireHabilitacao exige acesso à função do sistema.
func RequireHabilitacao(checker PermissionChecker, sistema, funcao string) func(http.Handler) http.Handler {
	return guard(func(ctx context.Context, subject string) (bool, error) {
		return checker.CheckHabilitacao(ctx, subject, sistema, funcao)
	}, sistema, funcao)
}

// RequireBotao exige a ação (I, A, E, C) na função do sistema.
func RequireBotao(checker PermissionChecker, sistema, funcao string, acao byte) func(http.Handler) http.Handler {
	return guard(func(ctx context.Context, subject string) (bool, error) {
		return checker.CheckBotao(ctx, subject, sistema, funcao, acao)
	}, sistema, funcao)
}

func guard(check func(ctx context.Context, subject string) (bool, error), sistema, funcao string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := GetSubject(r.Context())
			if subject == "" {
				writeError(w, http.StatusUnauthorized, "token ausente")
				return
			}

			ok, err := check(r.Context(), subject)
			if err != nil {
				log.Error().Err(err).Str("usuario", subject).Str("sistema", sistema).Str("funcao", funcao).Msg("falha ao verificar permissão")
				writeError(w, http.StatusInternalServerError, "erro interno")
				return
			}
			if !ok {
				log.Info().Str("usuario", subject).Strs("grupos", GetGrupos(r.Context())).Str("sistema", sistema).Str("funcao", funcao).Msg("acesso negado")
				writeError(w, http.StatusForbidden, "acesso negado")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
