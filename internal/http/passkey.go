package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rhsenso/erp/internal/repo"
	"github.com/rhsenso/erp/internal/service"
)

const (
	passkeyRegisterSessionPrefix = "webauthn:register:"
	passkeyLoginSessionPrefix    = "webauthn:login:"
)

type passkeyLoginRequest struct {
	CdUsuario string `json:"cdUsuario" validate:"required,max=30"`
}

func (h *Handler) PasskeyRegisterStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	waUser, err := h.loadWebAuthnUser(ctx, subject(r))
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível carregar biometria")
		return
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(waUser.WebAuthnCredentials()))
	for _, cred := range waUser.WebAuthnCredentials() {
		exclusions = append(exclusions, cred.Descriptor())
	}

	selection := protocol.AuthenticatorSelection{UserVerification: protocol.VerificationRequired}

	opts, sessionData, err := h.webauthn.BeginRegistration(
		waUser,
		webauthn.WithExclusions(exclusions),
		webauthn.WithAuthenticatorSelection(selection),
	)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := uuid.NewString()
	if err := h.storeWebauthnSession(ctx, passkeyRegisterSessionPrefix, sessionID, sessionData, waUser.cdUsuario); err != nil {
		h.writeServiceError(w, r, err, "não foi possível preparar registro")
		return
	}

	WriteJSON(w, http.StatusOK, "", map[string]any{
		"session": sessionID,
		"options": map[string]any{"publicKey": opts.Response},
	})
}

func (h *Handler) PasskeyRegisterFinish(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		WriteValidation(w, map[string][]string{"session": {"session é obrigatório"}})
		return
	}

	ctx := r.Context()
	sessionData, cdUsuario, err := h.consumeWebauthnSession(ctx, passkeyRegisterSessionPrefix, sessionID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "sessão inválida ou expirada")
		return
	}
	if !strings.EqualFold(cdUsuario, subject(r)) {
		WriteError(w, http.StatusForbidden, "sessão pertence a outro usuário")
		return
	}

	waUser, err := h.loadWebAuthnUser(ctx, cdUsuario)
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível carregar biometria")
		return
	}

	creationResponse, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "resposta inválida")
		return
	}

	credential, err := h.webauthn.CreateCredential(waUser, *sessionData, creationResponse)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, transport := range credential.Transport {
		transports = append(transports, string(transport))
	}

	if _, err := h.auth.CreatePasskey(ctx, cdUsuario, service.NewPasskey{
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		Transports:   transports,
		AAGUID:       credential.Authenticator.AAGUID,
		Cloned:       credential.Authenticator.CloneWarning,
	}); err != nil {
		h.writeServiceError(w, r, err, "não foi possível salvar a biometria")
		return
	}

	WriteJSON(w, http.StatusCreated, "biometria cadastrada", nil)
}

func (h *Handler) PasskeyLoginStart(w http.ResponseWriter, r *http.Request) {
	var payload passkeyLoginRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	ctx := r.Context()
	waUser, err := h.loadWebAuthnUser(ctx, payload.CdUsuario)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusUnauthorized, "biometria não configurada")
			return
		}
		h.writeServiceError(w, r, err, "não foi possível preparar biometria")
		return
	}
	if len(waUser.credentials) == 0 {
		WriteError(w, http.StatusUnauthorized, "biometria não configurada")
		return
	}

	opts, sessionData, err := h.webauthn.BeginLogin(waUser)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := uuid.NewString()
	if err := h.storeWebauthnSession(ctx, passkeyLoginSessionPrefix, sessionID, sessionData, waUser.cdUsuario); err != nil {
		h.writeServiceError(w, r, err, "não foi possível preparar biometria")
		return
	}

	WriteJSON(w, http.StatusOK, "", map[string]any{
		"session": sessionID,
		"options": map[string]any{"publicKey": opts.Response},
	})
}

func (h *Handler) PasskeyLoginFinish(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		WriteValidation(w, map[string][]string{"session": {"session é obrigatório"}})
		return
	}

	ctx := r.Context()
	sessionData, cdUsuario, err := h.consumeWebauthnSession(ctx, passkeyLoginSessionPrefix, sessionID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "sessão inválida ou expirada")
		return
	}

	waUser, err := h.loadWebAuthnUser(ctx, cdUsuario)
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível validar biometria")
		return
	}

	assertionResponse, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "resposta inválida")
		return
	}

	credential, err := h.webauthn.ValidateLogin(waUser, *sessionData, assertionResponse)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}

	stored, err := h.auth.GetPasskeyByCredentialID(ctx, credential.ID)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "credencial desconhecida")
		return
	}
	if stored.CdUsuario != waUser.cdUsuario {
		WriteError(w, http.StatusUnauthorized, "credencial inválida")
		return
	}

	if err := h.auth.UpdatePasskeyCounter(ctx, stored.ID, credential.Authenticator.SignCount, credential.Authenticator.CloneWarning); err != nil {
		h.writeServiceError(w, r, err, "não foi possível atualizar biometria")
		return
	}

	result, err := h.auth.LoginWithUser(ctx, waUser.user, requestMeta(r))
	if err != nil {
		h.writeServiceError(w, r, err, "erro ao autenticar")
		return
	}

	h.writeLoginSuccess(w, "login efetuado", result)
}

type webauthnSessionEnvelope struct {
	Session   *webauthn.SessionData `json:"session"`
	CdUsuario string                `json:"cd_usuario"`
}

func (h *Handler) storeWebauthnSession(ctx context.Context, prefix, sessionID string, data *webauthn.SessionData, cdUsuario string) error {
	if h.sessions == nil {
		return errors.New("armazenamento de sessões indisponível")
	}
	payload, err := json.Marshal(webauthnSessionEnvelope{Session: data, CdUsuario: cdUsuario})
	if err != nil {
		return err
	}
	return h.sessions.Set(ctx, prefix+sessionID, payload, service.PasskeySessionTTL).Err()
}

func (h *Handler) consumeWebauthnSession(ctx context.Context, prefix, sessionID string) (*webauthn.SessionData, string, error) {
	if h.sessions == nil {
		return nil, "", errors.New("armazenamento de sessões indisponível")
	}
	// GETDEL: a sessão vale para uma única tentativa.
	raw, err := h.sessions.GetDel(ctx, prefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", errors.New("sessão não encontrada")
		}
		return nil, "", err
	}

	var envelope webauthnSessionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, "", err
	}
	if envelope.Session == nil || envelope.CdUsuario == "" {
		return nil, "", errors.New("sessão incompleta")
	}
	return envelope.Session, envelope.CdUsuario, nil
}

func (h *Handler) loadWebAuthnUser(ctx context.Context, cdUsuario string) (*webAuthnUser, error) {
	user, err := h.auth.GetUsuario(ctx, cdUsuario)
	if err != nil {
		return nil, err
	}
	if !user.Ativo() {
		return nil, service.ErrAccountDisabled
	}
	passkeys, err := h.auth.ListPasskeys(ctx, user.CdUsuario)
	if err != nil {
		return nil, err
	}
	return newWebAuthnUser(user, passkeys), nil
}

// webAuthnUser usa o cdusuario normalizado como user handle.
type webAuthnUser struct {
	user        repo.Usuario
	cdUsuario   string
	credentials []webauthn.Credential
}

func newWebAuthnUser(user repo.Usuario, passkeys []repo.Passkey) *webAuthnUser {
	return &webAuthnUser{
		user:        user,
		cdUsuario:   repo.NormalizeCode(user.CdUsuario),
		credentials: toWebauthnCredentials(passkeys),
	}
}

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(u.cdUsuario)
}

func (u *webAuthnUser) WebAuthnName() string {
	if u.user.Email != "" {
		return u.user.Email
	}
	return u.cdUsuario
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	if u.user.Nome != "" {
		return u.user.Nome
	}
	return u.cdUsuario
}

func (u *webAuthnUser) WebAuthnIcon() string {
	return ""
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func toWebauthnCredentials(passkeys []repo.Passkey) []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(passkeys))
	for _, pk := range passkeys {
		cred := webauthn.Credential{
			ID:        append([]byte(nil), pk.CredentialID...),
			PublicKey: append([]byte(nil), pk.PublicKey...),
			Transport: toAuthenticatorTransports(pk.Transports),
		}
		cred.Authenticator.SignCount = pk.SignCount
		cred.Authenticator.CloneWarning = pk.Cloned
		if len(pk.AAGUID) > 0 {
			cred.Authenticator.AAGUID = append([]byte(nil), pk.AAGUID...)
		}
		creds = append(creds, cred)
	}
	return creds
}

func toAuthenticatorTransports(values []string) []protocol.AuthenticatorTransport {
	if len(values) == 0 {
		return nil
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(values))
	for _, value := range values {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "usb":
			transports = append(transports, protocol.USB)
		case "nfc":
			transports = append(transports, protocol.NFC)
		case "ble":
			transports = append(transports, protocol.BLE)
		case "internal":
			transports = append(transports, protocol.Internal)
		case "hybrid", "cable":
			transports = append(transports, protocol.Hybrid)
		default:
			transports = append(transports, protocol.AuthenticatorTransport(value))
		}
	}
	return transports
}
