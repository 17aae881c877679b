package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rhsenso/erp/internal/repo"
)

// NewPasskey reúne os dados de uma credencial WebAuthn recém-registrada.
type NewPasskey struct {
	CredentialID []byte
	PublicKey    []byte
	SignCount    uint32
	Transports   []string
	AAGUID       []byte
	Nickname     *string
	Cloned       bool
}

// ListPasskeys lista as credenciais do usuário.
func (s *AuthService) ListPasskeys(ctx context.Context, cdUsuario string) ([]repo.Passkey, error) {
	return s.repo.ListPasskeys(ctx, repo.NormalizeCode(cdUsuario))
}

// CreatePasskey grava nova credencial.
func (s *AuthService) CreatePasskey(ctx context.Context, cdUsuario string, p NewPasskey) (repo.Passkey, error) {
	return s.repo.CreatePasskey(ctx, repo.Passkey{
		ID:           uuid.New(),
		CdUsuario:    repo.NormalizeCode(cdUsuario),
		CredentialID: p.CredentialID,
		PublicKey:    p.PublicKey,
		SignCount:    p.SignCount,
		Transports:   p.Transports,
		AAGUID:       p.AAGUID,
		Nickname:     p.Nickname,
		Cloned:       p.Cloned,
		CreatedAt:    s.now().UTC(),
	})
}

// GetPasskeyByCredentialID busca credencial pelo id WebAuthn.
func (s *AuthService) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (repo.Passkey, error) {
	return s.repo.GetPasskeyByCredentialID(ctx, credentialID)
}

// UpdatePasskeyCounter atualiza o contador após uma asserção válida.
func (s *AuthService) UpdatePasskeyCounter(ctx context.Context, id uuid.UUID, signCount uint32, cloned bool) error {
	return s.repo.UpdatePasskeyCounter(ctx, id, signCount, cloned)
}

// PasskeySessionTTL é a validade das sessões de cerimônia WebAuthn no Redis.
const PasskeySessionTTL = 5 * time.Minute
