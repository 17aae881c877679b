package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/rhsenso/erp/internal/service"
)

const (
	refreshCookieName = "rhsenso_refresh"
	refreshCookiePath = "/api/v1/auth"
)

type loginRequest struct {
	CdUsuario string `json:"cdUsuario" validate:"required,max=30"`
	Senha     string `json:"senha" validate:"required,max=128"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	SenhaAtual string `json:"senhaAtual" validate:"required"`
	NovaSenha  string `json:"novaSenha" validate:"required,min=8,max=128,nefield=SenhaAtual"`
}

type loginResponse struct {
	AccessToken      string                  `json:"accessToken"`
	RefreshToken     string                  `json:"refreshToken"`
	ExpiresAt        time.Time               `json:"expiresAt"`
	RefreshExpiresAt time.Time               `json:"refreshExpiresAt"`
	TokenType        string                  `json:"tokenType"`
	User             *service.UsuarioProfile `json:"user"`
}

// Login autentica usuário legado por cdusuario e senha.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	result, err := h.auth.Login(r.Context(), payload.CdUsuario, payload.Senha, requestMeta(r))
	if err != nil {
		h.writeServiceError(w, r, err, "erro ao autenticar")
		return
	}

	h.writeLoginSuccess(w, "login efetuado", result)
}

// Refresh rotaciona o refresh token (corpo ou cookie).
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshFromRequest(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "refresh token ausente")
		return
	}

	result, err := h.auth.Refresh(r.Context(), token, requestMeta(r))
	if err != nil {
		h.clearRefreshCookie(w)
		h.writeServiceError(w, r, err, "erro ao renovar sessão")
		return
	}

	h.writeLoginSuccess(w, "sessão renovada", result)
}

// Logout revoga refresh token atual.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := h.refreshFromRequest(r); ok {
		if err := h.auth.Logout(r.Context(), token, requestMeta(r)); err != nil {
			h.writeServiceError(w, r, err, "erro ao encerrar sessão")
			return
		}
	}

	h.clearRefreshCookie(w)
	WriteJSON(w, http.StatusOK, "sessão encerrada", nil)
}

// Me retorna informações do usuário autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.auth.Me(r.Context(), subject(r))
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível carregar perfil")
		return
	}
	WriteJSON(w, http.StatusOK, "", profile)
}

// ChangePassword troca a senha e encerra todas as sessões.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var payload changePasswordRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), subject(r), payload.SenhaAtual, payload.NovaSenha, requestMeta(r)); err != nil {
		h.writeServiceError(w, r, err, "não foi possível alterar a senha")
		return
	}

	h.clearRefreshCookie(w)
	WriteJSON(w, http.StatusOK, "senha alterada", nil)
}

// MyPermissions lista as habilitações do usuário autenticado.
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	grants, err := h.perms.List(r.Context(), subject(r), r.URL.Query().Get("sistema"))
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível carregar permissões")
		return
	}
	WriteJSON(w, http.StatusOK, "", grants)
}

// Check responde habilitação, botão e restrição para o usuário autenticado.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var payload service.CheckRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	result, err := h.perms.Check(r.Context(), subject(r), payload)
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível verificar permissão")
		return
	}
	WriteJSON(w, http.StatusOK, "", result)
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, message string, result *service.LoginResult) {
	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiresAt)

	WriteJSON(w, http.StatusOK, message, loginResponse{
		AccessToken:      result.AccessToken,
		RefreshToken:     result.RefreshToken,
		ExpiresAt:        result.AccessExpiresAt,
		RefreshExpiresAt: result.RefreshExpiresAt,
		TokenType:        "Bearer",
		User:             result.User,
	})
}

// refreshFromRequest prefere o corpo e cai para o cookie HttpOnly.
func (h *Handler) refreshFromRequest(r *http.Request) (string, bool) {
	var payload refreshRequest
	if err := decodeOptional(r, &payload); err == nil {
		if token := strings.TrimSpace(payload.RefreshToken); token != "" {
			return token, true
		}
	}
	if c, err := r.Cookie(refreshCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), true
	}
	return "", false
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: h.sameSite(),
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: h.sameSite(),
	})
}

func (h *Handler) sameSite() http.SameSite {
	if h.secureCookies {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}
