package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX é satisfeito por *pgxpool.Pool e pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries concentra o acesso às tabelas legadas e às tabelas da ponte.
type Queries struct {
	db DBTX
}

// New cria Queries sobre um pool ou transação.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// NormalizeCode remove o preenchimento CHAR e padroniza em maiúsculas.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimRight(*s, " ")
	return &v
}
