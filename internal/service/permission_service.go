package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rhsenso/erp/internal/permission"
	"github.com/rhsenso/erp/internal/repo"
)

const allSystems = "*"

type permissionRepository interface {
	ListHabilitacoes(ctx context.Context, cdUsuario, cdSistema string, at time.Time) ([]repo.Habilitacao, error)
}

type hashCache interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// PermissionService resolve habilitações com cache por usuário no Redis.
type PermissionService struct {
	repo   permissionRepository
	cache  hashCache
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewPermissionService cria o serviço. ttl <= 0 desliga o cache.
func NewPermissionService(r permissionRepository, cache hashCache, ttl time.Duration) *PermissionService {
	return &PermissionService{
		repo:   r,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: log.With().Str("component", "permission").Logger(),
	}
}

// CheckRequest descreve uma verificação pontual.
type CheckRequest struct {
	CdSistema string `json:"cdSistema" validate:"required,max=10"`
	CdFuncao  string `json:"cdFuncao" validate:"required,max=30"`
	Acao      string `json:"acao,omitempty" validate:"omitempty,len=1,alpha"`
	Restricao string `json:"restricao,omitempty" validate:"omitempty,len=1,alpha"`
}

// CheckResult traz as três respostas e a visão consolidada da função.
type CheckResult struct {
	Habilitado  bool              `json:"habilitado"`
	Botao       *bool             `json:"botao,omitempty"`
	Restricao   *bool             `json:"restricao,omitempty"`
	Consolidado *permission.Grant `json:"consolidado,omitempty"`
}

func permKey(cd string) string {
	return "perm:" + repo.NormalizeCode(cd)
}

// Rows devolve as habilitações vigentes do usuário. sistema vazio traz todas.
func (s *PermissionService) Rows(ctx context.Context, cdUsuario, sistema string) ([]repo.Habilitacao, error) {
	cd := repo.NormalizeCode(cdUsuario)
	field := repo.NormalizeCode(sistema)
	if field == "" {
		field = allSystems
	}

	if rows, ok := s.fromCache(ctx, cd, field); ok {
		return rows, nil
	}

	rows, err := s.repo.ListHabilitacoes(ctx, cd, repo.NormalizeCode(sistema), s.now())
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []repo.Habilitacao{}
	}
	s.store(ctx, cd, field, rows)
	return rows, nil
}

// CheckHabilitacao verifica acesso à função.
func (s *PermissionService) CheckHabilitacao(ctx context.Context, cdUsuario, sistema, funcao string) (bool, error) {
	rows, err := s.Rows(ctx, cdUsuario, sistema)
	if err != nil {
		return false, err
	}
	return permission.CheckHabilitacao(rows, sistema, funcao), nil
}

// CheckBotao verifica se a ação é permitida na função.
func (s *PermissionService) CheckBotao(ctx context.Context, cdUsuario, sistema, funcao string, acao byte) (bool, error) {
	rows, err := s.Rows(ctx, cdUsuario, sistema)
	if err != nil {
		return false, err
	}
	return permission.CheckBotao(rows, sistema, funcao, acao), nil
}

// CheckRestricao verifica se o nível de restrição é alcançado.
func (s *PermissionService) CheckRestricao(ctx context.Context, cdUsuario, sistema, funcao string, restricao byte) (bool, error) {
	rows, err := s.Rows(ctx, cdUsuario, sistema)
	if err != nil {
		return false, err
	}
	return permission.CheckRestricao(rows, sistema, funcao, restricao), nil
}

// Check responde uma CheckRequest completa com uma única leitura.
func (s *PermissionService) Check(ctx context.Context, cdUsuario string, req CheckRequest) (CheckResult, error) {
	rows, err := s.Rows(ctx, cdUsuario, req.CdSistema)
	if err != nil {
		return CheckResult{}, err
	}

	res := CheckResult{Habilitado: permission.CheckHabilitacao(rows, req.CdSistema, req.CdFuncao)}
	if req.Acao != "" {
		ok := permission.CheckBotao(rows, req.CdSistema, req.CdFuncao, singleCode(req.Acao))
		res.Botao = &ok
	}
	if req.Restricao != "" {
		ok := permission.CheckRestricao(rows, req.CdSistema, req.CdFuncao, singleCode(req.Restricao))
		res.Restricao = &ok
	}
	if g, ok := permission.Merge(rows, req.CdSistema, req.CdFuncao); ok {
		res.Consolidado = &g
	}
	return res, nil
}

// singleCode devolve o código de um byte; qualquer outra coisa vira 0 e não casa.
func singleCode(v string) byte {
	v = strings.TrimSpace(v)
	if len(v) != 1 {
		return 0
	}
	return v[0]
}

// List devolve as habilitações consolidadas por função.
func (s *PermissionService) List(ctx context.Context, cdUsuario, sistema string) ([]permission.Grant, error) {
	rows, err := s.Rows(ctx, cdUsuario, sistema)
	if err != nil {
		return nil, err
	}
	grants := permission.MergeAll(rows)
	if grants == nil {
		grants = []permission.Grant{}
	}
	return grants, nil
}

// Invalidate descarta o cache do usuário.
func (s *PermissionService) Invalidate(ctx context.Context, cdUsuario string) error {
	if s.cache == nil {
		return nil
	}
	err := s.cache.Del(ctx, permKey(cdUsuario)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (s *PermissionService) fromCache(ctx context.Context, cd, field string) ([]repo.Habilitacao, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	raw, err := s.cache.HGet(ctx, permKey(cd), field).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("usuario", cd).Msg("cache de permissões indisponível")
		}
		return nil, false
	}
	var rows []repo.Habilitacao
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (s *PermissionService) store(ctx context.Context, cd, field string, rows []repo.Habilitacao) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return
	}
	key := permKey(cd)
	if err := s.cache.HSet(ctx, key, field, payload).Err(); err != nil {
		s.logger.Warn().Err(err).Str("usuario", cd).Msg("falha ao gravar cache de permissões")
		return
	}
	// O TTL vale para o hash inteiro e só é definido na criação da chave.
	if err := s.cache.ExpireNX(ctx, key, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("usuario", cd).Msg("falha ao definir expiração do cache")
	}
}
