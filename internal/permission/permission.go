// Package permission avalia as habilitações legadas (hbrh1) de um usuário.
//
// Cada linha liga um grupo a uma função de um sistema e carrega duas strings
// de códigos: cdacoes (um caractere por ação permitida) e cdrestric (um único
// caractere de restrição). As colunas são CHAR no legado, por isso todo código
// é comparado depois de TrimSpace + ToUpper.
package permission

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rhsenso/erp/internal/repo"
)

// Códigos de ação usados nos botões (btfuncao.cdacao) e em hbrh1.cdacoes.
const (
	AcaoIncluir   byte = 'I'
	AcaoAlterar   byte = 'A'
	AcaoExcluir   byte = 'E'
	AcaoConsultar byte = 'C'
)

// Códigos de restrição, do mais permissivo para o mais restrito.
const (
	RestricaoLivre    byte = 'L'
	RestricaoParcial  byte = 'P'
	RestricaoCompleta byte = 'C'
)

const (
	actionOrder      = "IAEC"
	restrictionOrder = "LPC"
)

// Grant é a visão consolidada de uma função para o usuário.
type Grant struct {
	CdSistema string   `json:"cdSistema"`
	CdFuncao  string   `json:"cdFuncao"`
	Acoes     string   `json:"acoes"`
	Restricao string   `json:"restricao,omitempty"`
	Grupos    []string `json:"grupos"`
}

func norm(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// upper devolve 0 para bytes fora do ASCII; códigos legados são uma letra.
func upper(b byte) byte {
	if b >= utf8.RuneSelf {
		return 0
	}
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func matches(h repo.Habilitacao, sistema, funcao string) bool {
	return norm(h.CdSistema) == sistema && norm(h.CdFuncao) == funcao
}

// CheckHabilitacao indica se algum grupo do usuário habilita a função.
func CheckHabilitacao(rows []repo.Habilitacao, sistema, funcao string) bool {
	sistema, funcao = norm(sistema), norm(funcao)
	if sistema == "" || funcao == "" {
		return false
	}
	for _, h := range rows {
		if matches(h, sistema, funcao) {
			return true
		}
	}
	return false
}

// CheckBotao indica se a ação está presente em cdacoes de alguma linha da função.
func CheckBotao(rows []repo.Habilitacao, sistema, funcao string, acao byte) bool {
	acao = upper(acao)
	if acao == 0 || acao == ' ' {
		return false
	}
	sistema, funcao = norm(sistema), norm(funcao)
	for _, h := range rows {
		if !matches(h, sistema, funcao) {
			continue
		}
		if strings.IndexByte(norm(h.CdAcoes), acao) >= 0 {
			return true
		}
	}
	return false
}

// CheckRestricao indica se alguma linha da função carrega exatamente a restrição informada.
func CheckRestricao(rows []repo.Habilitacao, sistema, funcao string, restricao byte) bool {
	restricao = upper(restricao)
	if restricao == 0 || restricao == ' ' {
		return false
	}
	sistema, funcao = norm(sistema), norm(funcao)
	for _, h := range rows {
		if !matches(h, sistema, funcao) {
			continue
		}
		r := norm(h.CdRestric)
		if r != "" && r[0] == restricao {
			return true
		}
	}
	return false
}

// EffectiveRestricao devolve a restrição mais permissiva entre os grupos (L < P < C).
// Códigos fora dessa ordem perdem para qualquer código conhecido.
func EffectiveRestricao(rows []repo.Habilitacao, sistema, funcao string) (byte, bool) {
	sistema, funcao = norm(sistema), norm(funcao)
	var (
		best     byte
		bestRank = -1
	)
	for _, h := range rows {
		if !matches(h, sistema, funcao) {
			continue
		}
		r := norm(h.CdRestric)
		if r == "" {
			continue
		}
		rank := restrictionRank(r[0])
		if bestRank == -1 || rank < bestRank {
			best, bestRank = r[0], rank
		}
	}
	return best, bestRank != -1
}

func restrictionRank(code byte) int {
	if i := strings.IndexByte(restrictionOrder, code); i >= 0 {
		return i
	}
	return len(restrictionOrder) + int(code)
}

// Merge consolida as linhas de uma função: união das ações e restrição efetiva.
func Merge(rows []repo.Habilitacao, sistema, funcao string) (Grant, bool) {
	sistema, funcao = norm(sistema), norm(funcao)
	g := Grant{CdSistema: sistema, CdFuncao: funcao, Grupos: []string{}}
	seen := make(map[byte]struct{})
	found := false
	for _, h := range rows {
		if !matches(h, sistema, funcao) {
			continue
		}
		found = true
		g.Grupos = appendUnique(g.Grupos, norm(h.CdGrUser))
		for _, c := range []byte(norm(h.CdAcoes)) {
			if c != ' ' {
				seen[c] = struct{}{}
			}
		}
	}
	if !found {
		return Grant{}, false
	}
	g.Acoes = orderActions(seen)
	if r, ok := EffectiveRestricao(rows, sistema, funcao); ok {
		g.Restricao = string(r)
	}
	return g, true
}

// MergeAll consolida todas as funções presentes nas linhas, ordenadas por sistema e função.
func MergeAll(rows []repo.Habilitacao) []Grant {
	type key struct{ sistema, funcao string }
	var keys []key
	seen := make(map[key]struct{})
	for _, h := range rows {
		k := key{norm(h.CdSistema), norm(h.CdFuncao)}
		if k.sistema == "" || k.funcao == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sistema != keys[j].sistema {
			return keys[i].sistema < keys[j].sistema
		}
		return keys[i].funcao < keys[j].funcao
	})

	grants := make([]Grant, 0, len(keys))
	for _, k := range keys {
		if g, ok := Merge(rows, k.sistema, k.funcao); ok {
			grants = append(grants, g)
		}
	}
	return grants
}

func orderActions(set map[byte]struct{}) string {
	var b strings.Builder
	for i := 0; i < len(actionOrder); i++ {
		if _, ok := set[actionOrder[i]]; ok {
			b.WriteByte(actionOrder[i])
			delete(set, actionOrder[i])
		}
	}
	rest := make([]byte, 0, len(set))
	for c := range set {
		rest = append(rest, c)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	b.Write(rest)
	return b.String()
}

func appendUnique(values []string, v string) []string {
	if v == "" {
		return values
	}
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
