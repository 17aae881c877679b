package service

import (
	"context"
	"strings"

	"github.com/rhsenso/erp/internal/permission"
	"github.com/rhsenso/erp/internal/repo"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type userAdminRepository interface {
	GetUsuario(ctx context.Context, cdUsuario string) (repo.Usuario, error)
	ListUsuarios(ctx context.Context, f repo.UsuarioFilter) ([]repo.Usuario, int, error)
	ListGruposByUsuario(ctx context.Context, cdUsuario string) ([]repo.UsuarioGrupo, error)
	SetUsuarioAtivo(ctx context.Context, cdUsuario string, ativo bool) error
}

type sessionRevoker interface {
	RevokeAll(ctx context.Context, cdUsuario string, meta RequestMeta, reason string) (int, error)
}

type permissionLister interface {
	List(ctx context.Context, cdUsuario, sistema string) ([]permission.Grant, error)
	Invalidate(ctx context.Context, cdUsuario string) error
}

// UserAdminService atende a área de segurança (cadastro de usuários).
type UserAdminService struct {
	repo        userAdminRepository
	sessions    sessionRevoker
	permissions permissionLister
}

func NewUserAdminService(r userAdminRepository, sessions sessionRevoker, permissions permissionLister) *UserAdminService {
	return &UserAdminService{repo: r, sessions: sessions, permissions: permissions}
}

// UserFilter vem da query string da listagem.
type UserFilter struct {
	Search   string
	Ativo    *bool
	Page     int
	PageSize int
}

// UserSummary é a linha resumida da listagem.
type UserSummary struct {
	CdUsuario string `json:"cdUsuario"`
	Nome      string `json:"nome"`
	Email     string `json:"email,omitempty"`
	Matricula string `json:"matricula,omitempty"`
	Empresa   string `json:"empresa,omitempty"`
	Filial    string `json:"filial,omitempty"`
	Tipo      string `json:"tipo,omitempty"`
	Ativo     bool   `json:"ativo"`
}

// UserPage é uma página da listagem.
type UserPage struct {
	Items    []UserSummary `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// UserDetail inclui os grupos do usuário.
type UserDetail struct {
	UserSummary
	Grupos []repo.UsuarioGrupo `json:"grupos"`
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	return page, size
}

func summarize(u repo.Usuario) UserSummary {
	return UserSummary{
		CdUsuario: repo.NormalizeCode(u.CdUsuario),
		Nome:      u.Nome,
		Email:     u.Email,
		Matricula: u.Matricula,
		Empresa:   u.Empresa,
		Filial:    u.Filial,
		Tipo:      u.Tipo,
		Ativo:     u.Ativo(),
	}
}

// List pagina os usuários de tuse1.
func (s *UserAdminService) List(ctx context.Context, f UserFilter) (UserPage, error) {
	page, size := normalizePage(f.Page, f.PageSize)
	users, total, err := s.repo.ListUsuarios(ctx, repo.UsuarioFilter{
		Search: strings.TrimSpace(f.Search),
		Ativo:  f.Ativo,
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return UserPage{}, err
	}

	items := make([]UserSummary, 0, len(users))
	for _, u := range users {
		items = append(items, summarize(u))
	}
	return UserPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Get devolve o usuário com todos os vínculos de grupo.
func (s *UserAdminService) Get(ctx context.Context, cdUsuario string) (UserDetail, error) {
	u, err := s.repo.GetUsuario(ctx, cdUsuario)
	if err != nil {
		return UserDetail{}, err
	}
	grupos, err := s.repo.ListGruposByUsuario(ctx, u.CdUsuario)
	if err != nil {
		return UserDetail{}, err
	}
	if grupos == nil {
		grupos = []repo.UsuarioGrupo{}
	}
	return UserDetail{UserSummary: summarize(u), Grupos: grupos}, nil
}

// Permissions lista as habilitações consolidadas de outro usuário.
func (s *UserAdminService) Permissions(ctx context.Context, cdUsuario, sistema string) ([]permission.Grant, error) {
	if _, err := s.repo.GetUsuario(ctx, cdUsuario); err != nil {
		return nil, err
	}
	return s.permissions.List(ctx, cdUsuario, sistema)
}

// SetActive altera tuse1.flativo. Desativar encerra as sessões do usuário.
func (s *UserAdminService) SetActive(ctx context.Context, cdUsuario string, ativo bool, meta RequestMeta) (UserSummary, error) {
	u, err := s.repo.GetUsuario(ctx, cdUsuario)
	if err != nil {
		return UserSummary{}, err
	}
	if err := s.repo.SetUsuarioAtivo(ctx, u.CdUsuario, ativo); err != nil {
		return UserSummary{}, err
	}
	if ativo {
		u.FlAtivo = "S"
	} else {
		u.FlAtivo = "N"
		if _, err := s.sessions.RevokeAll(ctx, u.CdUsuario, meta, "disabled"); err != nil {
			return UserSummary{}, err
		}
	}
	if err := s.permissions.Invalidate(ctx, u.CdUsuario); err != nil {
		return UserSummary{}, err
	}
	return summarize(u), nil
}

// RevokeSessions encerra todas as sessões e devolve a quantidade revogada.
func (s *UserAdminService) RevokeSessions(ctx context.Context, cdUsuario string, meta RequestMeta) (int, error) {
	u, err := s.repo.GetUsuario(ctx, cdUsuario)
	if err != nil {
		return 0, err
	}
	return s.sessions.RevokeAll(ctx, u.CdUsuario, meta, "admin")
}
