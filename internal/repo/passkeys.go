package repo

import (
	"context"

	"github.com/google/uuid"
)

const passkeyColumns = `
    id, cdusuario, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned, created_at, updated_at
`

func scanPasskey(row rowScanner) (Passkey, error) {
	var (
		p    Passkey
		sign int64
	)
	err := row.Scan(&p.ID, &p.CdUsuario, &p.CredentialID, &p.PublicKey, &sign, &p.Transports, &p.AAGUID, &p.Nickname, &p.Cloned, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Passkey{}, err
	}
	if sign < 0 {
		sign = 0
	}
	p.SignCount = uint32(sign)
	return p, nil
}

// ListPasskeys devolve as credenciais WebAuthn do usuário.
func (q *Queries) ListPasskeys(ctx context.Context, cdUsuario string) ([]Passkey, error) {
	query := `SELECT ` + passkeyColumns + ` FROM seg_passkeys WHERE cdusuario = $1 ORDER BY created_at DESC`

	rows, err := q.db.Query(ctx, query, NormalizeCode(cdUsuario))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Passkey
	for rows.Next() {
		p, err := scanPasskey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPasskeyByCredentialID busca credencial pelo ID emitido pelo autenticador.
func (q *Queries) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (Passkey, error) {
	query := `SELECT ` + passkeyColumns + ` FROM seg_passkeys WHERE credential_id = $1`

	p, err := scanPasskey(q.db.QueryRow(ctx, query, credentialID))
	if err != nil {
		return Passkey{}, notFound(err)
	}
	return p, nil
}

// CreatePasskey grava nova credencial.
func (q *Queries) CreatePasskey(ctx context.Context, p Passkey) (Passkey, error) {
	query := `
        INSERT INTO seg_passkeys (id, cdusuario, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING ` + passkeyColumns

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return scanPasskey(q.db.QueryRow(ctx, query,
		p.ID, NormalizeCode(p.CdUsuario), p.CredentialID, p.PublicKey, int64(p.SignCount), p.Transports, p.AAGUID, p.Nickname, p.Cloned,
	))
}

// UpdatePasskeyCounter atualiza o contador de assinaturas.
func (q *Queries) UpdatePasskeyCounter(ctx context.Context, id uuid.UUID, signCount uint32, cloned bool) error {
	cmd, err := q.db.Exec(ctx, `
        UPDATE seg_passkeys
        SET sign_count = $2, cloned = $3, updated_at = now()
        WHERE id = $1
    `, id, int64(signCount), cloned)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
