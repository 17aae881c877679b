package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rhsenso/erp/internal/auth"
	"github.com/rhsenso/erp/internal/notify"
	"github.com/rhsenso/erp/internal/repo"
)

type stubAuthRepo struct {
	mu          sync.Mutex
	users       map[string]repo.Usuario
	grupos      map[string][]repo.UsuarioGrupo
	habs        map[string][]repo.Habilitacao
	tokens      map[string]repo.RefreshToken
	passkeys    []repo.Passkey
	audits      []repo.LoginAudit
	hashUpdates int
	habCalls    int

	// erros injetados, consumidos na primeira chamada
	gruposErr error
	rotateErr error
}

func newStubAuthRepo(users ...repo.Usuario) *stubAuthRepo {
	s := &stubAuthRepo{
		users:  make(map[string]repo.Usuario),
		grupos: make(map[string][]repo.UsuarioGrupo),
		habs:   make(map[string][]repo.Habilitacao),
		tokens: make(map[string]repo.RefreshToken),
	}
	for _, u := range users {
		s.users[repo.NormalizeCode(u.CdUsuario)] = u
	}
	return s
}

func (s *stubAuthRepo) GetUsuario(ctx context.Context, cdUsuario string) (repo.Usuario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[repo.NormalizeCode(cdUsuario)]
	if !ok {
		return repo.Usuario{}, repo.ErrNotFound
	}
	return u, nil
}

func (s *stubAuthRepo) ListUsuarios(ctx context.Context, f repo.UsuarioFilter) ([]repo.Usuario, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]repo.Usuario, 0, len(s.users))
	for _, u := range s.users {
		if f.Search != "" && !strings.Contains(strings.ToUpper(u.Nome+u.CdUsuario), strings.ToUpper(f.Search)) {
			continue
		}
		if f.Ativo != nil && u.Ativo() != *f.Ativo {
			continue
		}
		all = append(all, u)
	}
	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (s *stubAuthRepo) SetUsuarioAtivo(ctx context.Context, cdUsuario string, ativo bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cd := repo.NormalizeCode(cdUsuario)
	u, ok := s.users[cd]
	if !ok {
		return repo.ErrNotFound
	}
	u.FlAtivo = "N"
	if ativo {
		u.FlAtivo = "S"
	}
	s.users[cd] = u
	return nil
}

func (s *stubAuthRepo) ListGruposByUsuario(ctx context.Context, cdUsuario string) ([]repo.UsuarioGrupo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gruposErr; err != nil {
		s.gruposErr = nil
		return nil, err
	}
	return s.grupos[repo.NormalizeCode(cdUsuario)], nil
}

func (s *stubAuthRepo) ListHabilitacoes(ctx context.Context, cdUsuario, cdSistema string, at time.Time) ([]repo.Habilitacao, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.habCalls++
	var out []repo.Habilitacao
	for _, h := range s.habs[repo.NormalizeCode(cdUsuario)] {
		if cdSistema == "" || repo.NormalizeCode(h.CdSistema) == cdSistema {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *stubAuthRepo) UpdateSenhaHash(ctx context.Context, cdUsuario, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cd := repo.NormalizeCode(cdUsuario)
	u, ok := s.users[cd]
	if !ok {
		return repo.ErrNotFound
	}
	u.SenhaHash = &hash
	s.users[cd] = u
	s.hashUpdates++
	return nil
}

func (s *stubAuthRepo) InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := repo.RefreshToken{
		ID:          arg.ID,
		CdUsuario:   arg.CdUsuario,
		TokenHash:   arg.TokenHash,
		ExpiresAt:   arg.ExpiresAt,
		CreatedAt:   arg.CreatedAt,
		CreatedByIP: arg.CreatedByIP,
	}
	s.tokens[arg.TokenHash] = rt
	return rt, nil
}

func (s *stubAuthRepo) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.tokens[tokenHash]
	if !ok {
		return repo.RefreshToken{}, repo.ErrNotFound
	}
	return rt, nil
}

func (s *stubAuthRepo) RevokeRefreshToken(ctx context.Context, arg repo.RevokeRefreshTokenParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.tokens[arg.TokenHash]
	if !ok || rt.RevokedAt != nil {
		return repo.ErrNotFound
	}
	at := arg.RevokedAt
	reason := arg.Reason
	rt.RevokedAt = &at
	rt.ReasonRevoked = &reason
	if arg.ReplacedByHash != "" {
		replaced := arg.ReplacedByHash
		rt.ReplacedByHash = &replaced
	}
	s.tokens[arg.TokenHash] = rt
	return nil
}

func (s *stubAuthRepo) RotateRefreshToken(ctx context.Context, next repo.InsertRefreshTokenParams, current repo.RevokeRefreshTokenParams) (repo.RefreshToken, error) {
	s.mu.Lock()
	if err := s.rotateErr; err != nil {
		s.rotateErr = nil
		s.mu.Unlock()
		return repo.RefreshToken{}, err
	}
	rt, ok := s.tokens[current.TokenHash]
	s.mu.Unlock()
	if !ok || rt.RevokedAt != nil {
		return repo.RefreshToken{}, repo.ErrNotFound
	}

	created, err := s.InsertRefreshToken(ctx, next)
	if err != nil {
		return repo.RefreshToken{}, err
	}
	if err := s.RevokeRefreshToken(ctx, current); err != nil {
		s.mu.Lock()
		delete(s.tokens, next.TokenHash)
		s.mu.Unlock()
		return repo.RefreshToken{}, err
	}
	return created, nil
}

func (s *stubAuthRepo) RevokeAllRefreshTokens(ctx context.Context, cdUsuario string, at time.Time, ip, reason string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hashes []string
	for hash, rt := range s.tokens {
		if rt.CdUsuario != cdUsuario || rt.RevokedAt != nil {
			continue
		}
		revokedAt := at
		r := reason
		rt.RevokedAt = &revokedAt
		rt.ReasonRevoked = &r
		s.tokens[hash] = rt
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func (s *stubAuthRepo) DeleteStaleRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, rt := range s.tokens {
		if rt.ExpiresAt.Before(cutoff) || (rt.RevokedAt != nil && rt.RevokedAt.Before(cutoff)) {
			delete(s.tokens, hash)
			n++
		}
	}
	return n, nil
}

func (s *stubAuthRepo) InsertLoginAudit(ctx context.Context, a repo.LoginAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, a)
	return nil
}

func (s *stubAuthRepo) ListPasskeys(ctx context.Context, cdUsuario string) ([]repo.Passkey, error) {
	var out []repo.Passkey
	for _, p := range s.passkeys {
		if p.CdUsuario == cdUsuario {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubAuthRepo) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (repo.Passkey, error) {
	for _, p := range s.passkeys {
		if string(p.CredentialID) == string(credentialID) {
			return p, nil
		}
	}
	return repo.Passkey{}, repo.ErrNotFound
}

func (s *stubAuthRepo) CreatePasskey(ctx context.Context, p repo.Passkey) (repo.Passkey, error) {
	s.passkeys = append(s.passkeys, p)
	return p, nil
}

func (s *stubAuthRepo) UpdatePasskeyCounter(ctx context.Context, id uuid.UUID, signCount uint32, cloned bool) error {
	for i := range s.passkeys {
		if s.passkeys[i].ID == id {
			s.passkeys[i].SignCount = signCount
			s.passkeys[i].Cloned = cloned
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *stubAuthRepo) activeTokens(cd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rt := range s.tokens {
		if rt.CdUsuario == cd && rt.RevokedAt == nil {
			n++
		}
	}
	return n
}

// stubRedis cobre strings, contadores e hashes usados pelos serviços.
type stubRedis struct {
	mu     sync.Mutex
	store  map[string]string
	hashes map[string]map[string]string
	ttl    map[string]time.Duration
}

func newStubRedis() *stubRedis {
	return &stubRedis{
		store:  make(map[string]string),
		hashes: make(map[string]map[string]string),
		ttl:    make(map[string]time.Duration),
	}
}

func (s *stubRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = toString(value)
	s.ttl[key] = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (s *stubRedis) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := s.store[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	s.store[key] = toString(value)
	s.ttl[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	val, ok := s.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (s *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if _, ok := s.store[key]; ok {
			delete(s.store, key)
			removed++
		}
		if _, ok := s.hashes[key]; ok {
			delete(s.hashes, key)
			removed++
		}
		delete(s.ttl, key)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func (s *stubRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := strconv.ParseInt(s.store[key], 10, 64)
	n++
	s.store[key] = strconv.FormatInt(n, 10)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (s *stubRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl[key] = expiration
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func (s *stubRedis) ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := s.ttl[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	s.ttl[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func (s *stubRedis) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	val, ok := s.hashes[key][field]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (s *stubRedis) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashes[key] == nil {
		s.hashes[key] = make(map[string]string)
	}
	var added int64
	for i := 0; i+1 < len(values); i += 2 {
		s.hashes[key][toString(values[i])] = toString(values[i+1])
		added++
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(added)
	return cmd
}

func (s *stubRedis) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.store[key]
	return ok
}

func toString(value any) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

type stubNotifier struct {
	messages []notify.AlertMessage
}

func (n *stubNotifier) Notify(ctx context.Context, msg notify.AlertMessage) error {
	n.messages = append(n.messages, msg)
	return nil
}

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time { return c.t }

func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func strPtr(s string) *string { return &s }

func legacyUser(cd, senha, flativo string) repo.Usuario {
	return repo.Usuario{
		CdUsuario: cd,
		Nome:      "Usuário " + cd,
		Email:     strings.ToLower(cd) + "@rhsenso.com.br",
		SenhaUser: strPtr(senha),
		Empresa:   "01",
		Filial:    "001",
		FlAtivo:   flativo,
	}
}

func newTestAuthService(t *testing.T, r *stubAuthRepo, rdb *stubRedis, guard *LoginGuard, clock *fixedClock) *AuthService {
	t.Helper()
	jwtMgr := auth.NewJWTManager(strings.Repeat("k", 32), "rhsenso-test", time.Minute)
	return &AuthService{
		repo:       r,
		redis:      rdb,
		jwt:        jwtMgr,
		guard:      guard,
		refreshTTL: time.Hour,
		now:        clock.Now,
		logger:     zerolog.Nop(),
	}
}
