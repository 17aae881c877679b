package repo

import "context"

// InsertLoginAudit registra uma tentativa de login.
func (q *Queries) InsertLoginAudit(ctx context.Context, a LoginAudit) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO seg_login_audit (cdusuario, success, reason, ip, user_agent, created_at)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
    `, NormalizeCode(a.CdUsuario), a.Success, a.Reason, a.IP, a.UserAgent, a.CreatedAt)
	return err
}
