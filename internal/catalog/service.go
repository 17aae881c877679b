// Package catalog expõe o cadastro legado de sistemas, funções e botões.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rhsenso/erp/internal/repo"
)

const sistemasKey = "\x00sistemas"

type catalogRepository interface {
	ListSistemas(ctx context.Context) ([]repo.Sistema, error)
	ListFuncoes(ctx context.Context, cdSistema string) ([]repo.Funcao, error)
}

// Service mantém o catálogo em memória por um curto período.
type Service struct {
	repo     catalogRepository
	cache    sync.Map
	cacheTTL time.Duration
	now      func() time.Time
}

type cachedEntry struct {
	value    any
	expireAt time.Time
}

// NewService cria uma nova instância de Service.
func NewService(r catalogRepository) *Service {
	return &Service{repo: r, cacheTTL: 2 * time.Minute, now: time.Now}
}

// Sistemas lista tsistema.
func (s *Service) Sistemas(ctx context.Context) ([]repo.Sistema, error) {
	if v, ok := s.load(sistemasKey); ok {
		return append([]repo.Sistema(nil), v.([]repo.Sistema)...), nil
	}

	sistemas, err := s.repo.ListSistemas(ctx)
	if err != nil {
		return nil, err
	}
	if sistemas == nil {
		sistemas = []repo.Sistema{}
	}
	s.store(sistemasKey, sistemas)
	return append([]repo.Sistema(nil), sistemas...), nil
}

// Funcoes lista as funções do sistema com seus botões. Sistema desconhecido
// devolve repo.ErrNotFound.
func (s *Service) Funcoes(ctx context.Context, cdSistema string) ([]repo.Funcao, error) {
	key := repo.NormalizeCode(cdSistema)
	if key == "" {
		return nil, repo.ErrNotFound
	}
	if v, ok := s.load(key); ok {
		return append([]repo.Funcao(nil), v.([]repo.Funcao)...), nil
	}

	sistemas, err := s.Sistemas(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, sis := range sistemas {
		if repo.NormalizeCode(sis.CdSistema) == key {
			found = true
			break
		}
	}
	if !found {
		return nil, repo.ErrNotFound
	}

	funcoes, err := s.repo.ListFuncoes(ctx, key)
	if err != nil {
		return nil, err
	}
	if funcoes == nil {
		funcoes = []repo.Funcao{}
	}
	s.store(key, funcoes)
	return append([]repo.Funcao(nil), funcoes...), nil
}

func (s *Service) load(key string) (any, bool) {
	v, ok := s.cache.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(cachedEntry)
	if s.now().Before(entry.expireAt) {
		return entry.value, true
	}
	s.cache.Delete(key)
	return nil, false
}

func (s *Service) store(key string, value any) {
	s.cache.Store(key, cachedEntry{value: value, expireAt: s.now().Add(s.cacheTTL)})
}
