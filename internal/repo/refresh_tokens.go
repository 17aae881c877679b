package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rhsenso/erp/internal/db"
)

const refreshColumns = `
    id, cdusuario, token_hash, expires_at, created_at, COALESCE(created_by_ip, ''),
    revoked_at, revoked_by_ip, replaced_by_hash, reason_revoked
`

func scanRefreshToken(row rowScanner) (RefreshToken, error) {
	var t RefreshToken
	err := row.Scan(
		&t.ID, &t.CdUsuario, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.CreatedByIP,
		&t.RevokedAt, &t.RevokedByIP, &t.ReplacedByHash, &t.ReasonRevoked,
	)
	return t, err
}

// InsertRefreshToken persiste o hash de um refresh token recém emitido.
func (q *Queries) InsertRefreshToken(ctx context.Context, arg InsertRefreshTokenParams) (RefreshToken, error) {
	query := `
        INSERT INTO seg_refresh_tokens (id, cdusuario, token_hash, expires_at, created_at, created_by_ip)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
        RETURNING ` + refreshColumns

	t, err := scanRefreshToken(q.db.QueryRow(ctx, query,
		arg.ID, NormalizeCode(arg.CdUsuario), arg.TokenHash, arg.ExpiresAt, arg.CreatedAt, arg.CreatedByIP,
	))
	if err != nil {
		return RefreshToken{}, err
	}
	return t, nil
}

// GetRefreshTokenByHash busca token pelo hash.
func (q *Queries) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error) {
	query := `SELECT ` + refreshColumns + ` FROM seg_refresh_tokens WHERE token_hash = $1`

	t, err := scanRefreshToken(q.db.QueryRow(ctx, query, tokenHash))
	if err != nil {
		return RefreshToken{}, notFound(err)
	}
	return t, nil
}

// RevokeRefreshToken marca um token ativo como revogado.
// Token já revogado ou inexistente resulta em ErrNotFound.
func (q *Queries) RevokeRefreshToken(ctx context.Context, arg RevokeRefreshTokenParams) error {
	const query = `
        UPDATE seg_refresh_tokens
        SET revoked_at = $2,
            revoked_by_ip = NULLIF($3, ''),
            replaced_by_hash = NULLIF($4, ''),
            reason_revoked = NULLIF($5, '')
        WHERE token_hash = $1 AND revoked_at IS NULL
    `

	cmd, err := q.db.Exec(ctx, query, arg.TokenHash, arg.RevokedAt, arg.RevokedByIP, arg.ReplacedByHash, arg.Reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken grava o sucessor e revoga o token atual numa única transação.
// Se o atual já estiver revogado nada é gravado e o erro é ErrNotFound.
func (q *Queries) RotateRefreshToken(ctx context.Context, next InsertRefreshTokenParams, current RevokeRefreshTokenParams) (RefreshToken, error) {
	var created RefreshToken
	rotate := func(ctx context.Context, tx pgx.Tx) error {
		qtx := &Queries{db: tx}
		var err error
		if created, err = qtx.InsertRefreshToken(ctx, next); err != nil {
			return err
		}
		return qtx.RevokeRefreshToken(ctx, current)
	}

	var err error
	switch conn := q.db.(type) {
	case db.TxBeginner:
		err = db.WithTx(ctx, conn, rotate)
	case pgx.Tx:
		err = rotate(ctx, conn)
	default:
		err = errors.New("rotate refresh token: conexão sem suporte a transação")
	}
	if err != nil {
		return RefreshToken{}, err
	}
	return created, nil
}

// RevokeAllRefreshTokens revoga todos os tokens ativos do usuário e devolve os hashes afetados.
func (q *Queries) RevokeAllRefreshTokens(ctx context.Context, cdUsuario string, at time.Time, ip, reason string) ([]string, error) {
	const query = `
        UPDATE seg_refresh_tokens
        SET revoked_at = $2, revoked_by_ip = NULLIF($3, ''), reason_revoked = NULLIF($4, '')
        WHERE cdusuario = $1 AND revoked_at IS NULL
        RETURNING token_hash
    `

	rows, err := q.db.Query(ctx, query, NormalizeCode(cdUsuario), at, ip, reason)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteStaleRefreshTokens remove tokens vencidos ou revogados antes do corte.
func (q *Queries) DeleteStaleRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
        DELETE FROM seg_refresh_tokens
        WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
    `

	cmd, err := q.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
