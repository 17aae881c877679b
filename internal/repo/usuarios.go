package repo

import (
	"context"
	"strconv"
	"strings"
)

const usuarioColumns = `
    TRIM(cdusuario), COALESCE(nouser, 0), TRIM(COALESCE(dcusuario, '')), TRIM(COALESCE(email_usuario, '')),
    senhauser, senha_hash, TRIM(COALESCE(tpusuario, '')), TRIM(COALESCE(nomatric, '')),
    TRIM(COALESCE(cdempresa, '')), TRIM(COALESCE(cdfilial, '')), TRIM(COALESCE(flativo, 'N'))
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUsuario(row rowScanner) (Usuario, error) {
	var u Usuario
	err := row.Scan(
		&u.CdUsuario, &u.NoUser, &u.Nome, &u.Email,
		&u.SenhaUser, &u.SenhaHash, &u.Tipo, &u.Matricula,
		&u.Empresa, &u.Filial, &u.FlAtivo,
	)
	if err != nil {
		return Usuario{}, err
	}
	u.SenhaUser = trimPtr(u.SenhaUser)
	return u, nil
}

// GetUsuario busca usuário em tuse1 pelo código de login.
func (q *Queries) GetUsuario(ctx context.Context, cdUsuario string) (Usuario, error) {
	query := `SELECT ` + usuarioColumns + ` FROM tuse1 WHERE UPPER(TRIM(cdusuario)) = $1`

	u, err := scanUsuario(q.db.QueryRow(ctx, query, NormalizeCode(cdUsuario)))
	if err != nil {
		return Usuario{}, notFound(err)
	}
	return u, nil
}

// ListUsuarios pagina tuse1 com filtros opcionais e devolve o total.
func (q *Queries) ListUsuarios(ctx context.Context, f UsuarioFilter) ([]Usuario, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+strings.ToUpper(s)+"%")
		where = append(where, `(UPPER(cdusuario) LIKE $1 OR UPPER(dcusuario) LIKE $1 OR UPPER(COALESCE(email_usuario, '')) LIKE $1)`)
	}
	if f.Ativo != nil {
		flag := "N"
		if *f.Ativo {
			flag = "S"
		}
		args = append(args, flag)
		where = append(where, `UPPER(TRIM(COALESCE(flativo, 'N'))) = $`+strconv.Itoa(len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM tuse1`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := `SELECT ` + usuarioColumns + ` FROM tuse1` + clause +
		` ORDER BY cdusuario LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateSenhaHash grava o hash argon2id do usuário.
func (q *Queries) UpdateSenhaHash(ctx context.Context, cdUsuario, hash string) error {
	cmd, err := q.db.Exec(ctx, `UPDATE tuse1 SET senha_hash = $2 WHERE UPPER(TRIM(cdusuario)) = $1`, NormalizeCode(cdUsuario), hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUsuarioAtivo altera tuse1.flativo.
func (q *Queries) SetUsuarioAtivo(ctx context.Context, cdUsuario string, ativo bool) error {
	flag := "N"
	if ativo {
		flag = "S"
	}
	cmd, err := q.db.Exec(ctx, `UPDATE tuse1 SET flativo = $2 WHERE UPPER(TRIM(cdusuario)) = $1`, NormalizeCode(cdUsuario), flag)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
