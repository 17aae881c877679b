package repo

import (
	"context"
	"time"
)

// ListSistemas devolve tsistema ordenado por código.
func (q *Queries) ListSistemas(ctx context.Context) ([]Sistema, error) {
	const query = `
        SELECT TRIM(cdsistema), TRIM(COALESCE(dcsistema, '')), COALESCE(ativo, true)
        FROM tsistema
        ORDER BY cdsistema
    `

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sistemas []Sistema
	for rows.Next() {
		var s Sistema
		if err := rows.Scan(&s.CdSistema, &s.DcSistema, &s.Ativo); err != nil {
			return nil, err
		}
		sistemas = append(sistemas, s)
	}
	return sistemas, rows.Err()
}

// ListFuncoes devolve as funções de um sistema já com os botões de cada uma.
func (q *Queries) ListFuncoes(ctx context.Context, cdSistema string) ([]Funcao, error) {
	const funcoesQuery = `
        SELECT TRIM(cdsistema), TRIM(cdfuncao), TRIM(COALESCE(dcfuncao, '')),
               TRIM(COALESCE(dcmodulo, '')), TRIM(COALESCE(descricaomodulo, ''))
        FROM fucn1
        WHERE UPPER(TRIM(cdsistema)) = $1
        ORDER BY cdfuncao
    `
	const botoesQuery = `
        SELECT TRIM(cdsistema), TRIM(cdfuncao), TRIM(nmbotao), TRIM(COALESCE(dcbotao, '')), TRIM(COALESCE(cdacao, ''))
        FROM btfuncao
        WHERE UPPER(TRIM(cdsistema)) = $1
        ORDER BY cdfuncao, nmbotao
    `

	sistema := NormalizeCode(cdSistema)

	rows, err := q.db.Query(ctx, funcoesQuery, sistema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funcoes []Funcao
	index := make(map[string]int)
	for rows.Next() {
		var f Funcao
		if err := rows.Scan(&f.CdSistema, &f.CdFuncao, &f.DcFuncao, &f.DcModulo, &f.DescricaoModulo); err != nil {
			return nil, err
		}
		f.Botoes = []BotaoFuncao{}
		index[NormalizeCode(f.CdFuncao)] = len(funcoes)
		funcoes = append(funcoes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	btRows, err := q.db.Query(ctx, botoesQuery, sistema)
	if err != nil {
		return nil, err
	}
	defer btRows.Close()

	for btRows.Next() {
		var b BotaoFuncao
		if err := btRows.Scan(&b.CdSistema, &b.CdFuncao, &b.NmBotao, &b.DcBotao, &b.CdAcao); err != nil {
			return nil, err
		}
		if i, ok := index[NormalizeCode(b.CdFuncao)]; ok {
			funcoes[i].Botoes = append(funcoes[i].Botoes, b)
		}
	}
	return funcoes, btRows.Err()
}

// ListGruposByUsuario devolve os vínculos usrh1 do usuário com a descrição do grupo.
func (q *Queries) ListGruposByUsuario(ctx context.Context, cdUsuario string) ([]UsuarioGrupo, error) {
	const query = `
        SELECT TRIM(u.cdusuario), TRIM(u.cdsistema), TRIM(u.cdgruser), TRIM(COALESCE(g.dcgruser, '')),
               u.dtinival, u.dtfimval
        FROM usrh1 u
        LEFT JOIN gurh1 g
               ON UPPER(TRIM(g.cdsistema)) = UPPER(TRIM(u.cdsistema))
              AND UPPER(TRIM(g.cdgruser)) = UPPER(TRIM(u.cdgruser))
        WHERE UPPER(TRIM(u.cdusuario)) = $1
        ORDER BY u.cdsistema, u.cdgruser
    `

	rows, err := q.db.Query(ctx, query, NormalizeCode(cdUsuario))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grupos []UsuarioGrupo
	for rows.Next() {
		var g UsuarioGrupo
		if err := rows.Scan(&g.CdUsuario, &g.CdSistema, &g.CdGrUser, &g.DcGrUser, &g.DtIniVal, &g.DtFimVal); err != nil {
			return nil, err
		}
		grupos = append(grupos, g)
	}
	return grupos, rows.Err()
}

// ListHabilitacoes devolve as linhas hbrh1 alcançadas pelos grupos vigentes do usuário.
// Sistema vazio traz todos os sistemas.
func (q *Queries) ListHabilitacoes(ctx context.Context, cdUsuario, cdSistema string, at time.Time) ([]Habilitacao, error) {
	const query = `
        SELECT TRIM(h.cdsistema), TRIM(h.cdgruser), TRIM(h.cdfuncao),
               TRIM(COALESCE(h.cdacoes, '')), TRIM(COALESCE(h.cdrestric, ''))
        FROM hbrh1 h
        JOIN usrh1 u
          ON UPPER(TRIM(u.cdsistema)) = UPPER(TRIM(h.cdsistema))
         AND UPPER(TRIM(u.cdgruser)) = UPPER(TRIM(h.cdgruser))
        WHERE UPPER(TRIM(u.cdusuario)) = $1
          AND ($2 = '' OR UPPER(TRIM(h.cdsistema)) = $2)
          AND (u.dtinival IS NULL OR u.dtinival <= $3)
          AND (u.dtfimval IS NULL OR u.dtfimval >= $3)
        ORDER BY h.cdsistema, h.cdfuncao, h.cdgruser
    `

	rows, err := q.db.Query(ctx, query, NormalizeCode(cdUsuario), NormalizeCode(cdSistema), at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habs []Habilitacao
	for rows.Next() {
		var h Habilitacao
		if err := rows.Scan(&h.CdSistema, &h.CdGrUser, &h.CdFuncao, &h.CdAcoes, &h.CdRestric); err != nil {
			return nil, err
		}
		habs = append(habs, h)
	}
	return habs, rows.Err()
}
