package repo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Usuario representa uma linha de tuse1.
type Usuario struct {
	CdUsuario string
	NoUser    int64
	Nome      string
	Email     string
	SenhaUser *string
	SenhaHash *string
	Tipo      string
	Matricula string
	Empresa   string
	Filial    string
	FlAtivo   string
}

// Ativo indica se tuse1.flativo está marcado como 'S'.
func (u Usuario) Ativo() bool {
	return strings.EqualFold(strings.TrimSpace(u.FlAtivo), "S")
}

// Sistema representa tsistema.
type Sistema struct {
	CdSistema string `json:"cdSistema"`
	DcSistema string `json:"dcSistema"`
	Ativo     bool   `json:"ativo"`
}

// Funcao representa fucn1.
type Funcao struct {
	CdSistema       string        `json:"cdSistema"`
	CdFuncao        string        `json:"cdFuncao"`
	DcFuncao        string        `json:"dcFuncao"`
	DcModulo        string        `json:"dcModulo,omitempty"`
	DescricaoModulo string        `json:"descricaoModulo,omitempty"`
	Botoes          []BotaoFuncao `json:"botoes"`
}

// BotaoFuncao representa btfuncao.
type BotaoFuncao struct {
	CdSistema string `json:"cdSistema"`
	CdFuncao  string `json:"cdFuncao"`
	NmBotao   string `json:"nmBotao"`
	DcBotao   string `json:"dcBotao"`
	CdAcao    string `json:"cdAcao"`
}

// UsuarioGrupo vincula usuário a um grupo (usrh1 + gurh1).
type UsuarioGrupo struct {
	CdUsuario string     `json:"-"`
	CdSistema string     `json:"cdSistema"`
	CdGrUser  string     `json:"cdGrUser"`
	DcGrUser  string     `json:"dcGrUser"`
	DtIniVal  *time.Time `json:"dtIniVal,omitempty"`
	DtFimVal  *time.Time `json:"dtFimVal,omitempty"`
}

// Vigente indica se o vínculo vale no instante informado.
func (g UsuarioGrupo) Vigente(at time.Time) bool {
	if g.DtIniVal != nil && at.Before(*g.DtIniVal) {
		return false
	}
	if g.DtFimVal != nil && at.After(*g.DtFimVal) {
		return false
	}
	return true
}

// Habilitacao representa hbrh1: ações e restrição de um grupo numa função.
type Habilitacao struct {
	CdSistema string `json:"cdSistema"`
	CdGrUser  string `json:"cdGrUser"`
	CdFuncao  string `json:"cdFuncao"`
	CdAcoes   string `json:"cdAcoes"`
	CdRestric string `json:"cdRestric"`
}

// RefreshToken modela seg_refresh_tokens.
type RefreshToken struct {
	ID             uuid.UUID
	CdUsuario      string
	TokenHash      string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	CreatedByIP    string
	RevokedAt      *time.Time
	RevokedByIP    *string
	ReplacedByHash *string
	ReasonRevoked  *string
}

// IsRevoked indica token já revogado.
func (rt RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

// IsExpired indica token vencido no instante informado.
func (rt RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(rt.ExpiresAt)
}

// InsertRefreshTokenParams agrupa os campos de inserção.
type InsertRefreshTokenParams struct {
	ID          uuid.UUID
	CdUsuario   string
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	CreatedByIP string
}

// RevokeRefreshTokenParams descreve a revogação de um token.
type RevokeRefreshTokenParams struct {
	TokenHash      string
	RevokedAt      time.Time
	RevokedByIP    string
	ReplacedByHash string
	Reason         string
}

// Passkey modela seg_passkeys.
type Passkey struct {
	ID           uuid.UUID
	CdUsuario    string
	CredentialID []byte
	PublicKey    []byte
	SignCount    uint32
	Transports   []string
	AAGUID       []byte
	Nickname     *string
	Cloned       bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// LoginAudit modela seg_login_audit.
type LoginAudit struct {
	CdUsuario string
	Success   bool
	Reason    string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// UsuarioFilter filtra a listagem de usuários.
type UsuarioFilter struct {
	Search string
	Ativo  *bool
	Limit  int
	Offset int
}
