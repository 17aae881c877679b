package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/rhsenso/erp/internal/auth"
	"github.com/rhsenso/erp/internal/config"
	httpmiddleware "github.com/rhsenso/erp/internal/http/middleware"
	"github.com/rhsenso/erp/internal/permission"
	"github.com/rhsenso/erp/internal/repo"
	"github.com/rhsenso/erp/internal/service"
	"github.com/rhsenso/erp/internal/util"
)

// AuthAPI cobre login, sessão e passkeys.
type AuthAPI interface {
	Login(ctx context.Context, cdUsuario, senha string, meta service.RequestMeta) (*service.LoginResult, error)
	Refresh(ctx context.Context, rawToken string, meta service.RequestMeta) (*service.LoginResult, error)
	Logout(ctx context.Context, rawToken string, meta service.RequestMeta) error
	Me(ctx context.Context, cdUsuario string) (*service.UsuarioProfile, error)
	ChangePassword(ctx context.Context, cdUsuario, atual, nova string, meta service.RequestMeta) error
	GetUsuario(ctx context.Context, cdUsuario string) (repo.Usuario, error)
	ListPasskeys(ctx context.Context, cdUsuario string) ([]repo.Passkey, error)
	CreatePasskey(ctx context.Context, cdUsuario string, p service.NewPasskey) (repo.Passkey, error)
	GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (repo.Passkey, error)
	UpdatePasskeyCounter(ctx context.Context, id uuid.UUID, signCount uint32, cloned bool) error
	LoginWithUser(ctx context.Context, user repo.Usuario, meta service.RequestMeta) (*service.LoginResult, error)
}

// PermissionAPI responde as verificações de habilitação.
type PermissionAPI interface {
	httpmiddleware.PermissionChecker
	List(ctx context.Context, cdUsuario, sistema string) ([]permission.Grant, error)
	Check(ctx context.Context, cdUsuario string, req service.CheckRequest) (service.CheckResult, error)
}

// UserAdminAPI atende /security/users.
type UserAdminAPI interface {
	List(ctx context.Context, f service.UserFilter) (service.UserPage, error)
	Get(ctx context.Context, cdUsuario string) (service.UserDetail, error)
	Permissions(ctx context.Context, cdUsuario, sistema string) ([]permission.Grant, error)
	SetActive(ctx context.Context, cdUsuario string, ativo bool, meta service.RequestMeta) (service.UserSummary, error)
	RevokeSessions(ctx context.Context, cdUsuario string, meta service.RequestMeta) (int, error)
}

// CatalogAPI lista sistemas e funções.
type CatalogAPI interface {
	Sistemas(ctx context.Context) ([]repo.Sistema, error)
	Funcoes(ctx context.Context, cdSistema string) ([]repo.Funcao, error)
}

// SessionStore guarda as sessões de cerimônia WebAuthn.
type SessionStore interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// Deps reúne as dependências do roteador.
type Deps struct {
	Config      *config.Config
	JWT         *auth.JWTManager
	Auth        AuthAPI
	Permissions PermissionAPI
	Users       UserAdminAPI
	Catalog     CatalogAPI
	Sessions    SessionStore
	// Checks são executados em /ready (ex.: "db", "redis").
	Checks map[string]func(context.Context) error
}

type Handler struct {
	cfg           *config.Config
	auth          AuthAPI
	perms         PermissionAPI
	users         UserAdminAPI
	catalog       CatalogAPI
	sessions      SessionStore
	checks        map[string]func(context.Context) error
	webauthn      *webauthn.WebAuthn
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	secureCookies bool
}

// NewRouter devolve roteador configurado.
func NewRouter(d Deps) (http.Handler, error) {
	cfg := d.Config
	if cfg == nil || d.JWT == nil || d.Auth == nil || d.Permissions == nil {
		return nil, errors.New("router: dependências obrigatórias ausentes")
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.WebAuthn.RPName,
		RPID:          cfg.WebAuthn.RPID,
		RPOrigins:     cfg.WebAuthn.RPOrigin,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	h := &Handler{
		cfg:           cfg,
		auth:          d.Auth,
		perms:         d.Permissions,
		users:         d.Users,
		catalog:       d.Catalog,
		sessions:      d.Sessions,
		checks:        d.Checks,
		webauthn:      wa,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		secureCookies: !cfg.IsDevelopment(),
	}

	sistema := cfg.Permission.SecuritySystem
	usersFn := cfg.Permission.UsersFunction
	catalogFn := cfg.Permission.CatalogFunc

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Tracing)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "rota não encontrada")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "método não permitido")
	})

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/api/v1/auth", func(a chi.Router) {
		a.Group(func(public chi.Router) {
			public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))
			public.Post("/login", h.Login)
			public.Post("/refresh", h.Refresh)
			public.Post("/logout", h.Logout)
			public.Post("/passkey/login/start", h.PasskeyLoginStart)
			public.Post("/passkey/login/finish", h.PasskeyLoginFinish)
		})

		a.Group(func(private chi.Router) {
			private.Use(httpmiddleware.Auth(d.JWT))
			private.Use(httpmiddleware.UserRateLimit(h.authLimiter))
			private.Get("/me", h.Me)
			private.Post("/change-password", h.ChangePassword)
			private.Get("/permissions", h.MyPermissions)
			private.Post("/check", h.Check)
			private.Post("/passkey/register/start", h.PasskeyRegisterStart)
			private.Post("/passkey/register/finish", h.PasskeyRegisterFinish)
		})
	})

	r.Route("/api/v1/security", func(sec chi.Router) {
		sec.Use(httpmiddleware.Auth(d.JWT))
		sec.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		if h.users != nil {
			sec.Route("/users", func(u chi.Router) {
				u.Use(httpmiddleware.RequireHabilitacao(h.perms, sistema, usersFn))
				u.Get("/", h.ListUsers)
				u.Get("/{cdUsuario}", h.GetUser)
				u.Get("/{cdUsuario}/permissions", h.UserPermissions)
				u.With(httpmiddleware.RequireBotao(h.perms, sistema, usersFn, permission.AcaoAlterar)).
					Patch("/{cdUsuario}/status", h.SetUserStatus)
				u.With(httpmiddleware.RequireBotao(h.perms, sistema, usersFn, permission.AcaoAlterar)).
					Post("/{cdUsuario}/sessions/revoke", h.RevokeUserSessions)
			})
		}

		if h.catalog != nil {
			sec.Route("/sistemas", func(s chi.Router) {
				s.Use(httpmiddleware.RequireHabilitacao(h.perms, sistema, catalogFn))
				s.Get("/", h.ListSistemas)
				s.Get("/{cdSistema}/funcoes", h.ListFuncoes)
			})
		}
	})

	return r, nil
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

// Ready valida as dependências registradas (Postgres e Redis).
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	failed := false
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			failed = true
			continue
		}
		status[name] = "ok"
	}

	if failed {
		writeEnvelope(w, http.StatusServiceUnavailable, Envelope{Success: false, Message: "dependências indisponíveis", Data: status})
		return
	}
	WriteJSON(w, http.StatusOK, "pronto", status)
}

// writeServiceError traduz erros de domínio para status HTTP.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrRefreshInvalid):
		WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAccountDisabled):
		WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAccountLocked):
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrWeakPassword):
		WriteValidation(w, map[string][]string{"novaSenha": {err.Error()}})
	case errors.Is(err, repo.ErrNotFound):
		WriteError(w, http.StatusNotFound, "registro não encontrado")
	default:
		log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg(fallback)
		WriteError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeAndValidate lê o corpo JSON e aplica as tags validate.
// Devolve false quando já respondeu 400.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "JSON inválido")
		return false
	}
	if errs := util.Validate(dst); errs != nil {
		WriteValidation(w, errs)
		return false
	}
	return true
}

// decodeOptional aceita corpo vazio.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func requestMeta(r *http.Request) service.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.RequestMeta{IP: ip, UserAgent: r.UserAgent()}
}

func subject(r *http.Request) string {
	return strings.TrimSpace(httpmiddleware.GetSubject(r.Context()))
}
