package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rhsenso/erp/internal/auth"
	"github.com/rhsenso/erp/internal/repo"
)

const refreshActive = "active"

type authRepository interface {
	GetUsuario(ctx context.Context, cdUsuario string) (repo.Usuario, error)
	ListGruposByUsuario(ctx context.Context, cdUsuario string) ([]repo.UsuarioGrupo, error)
	UpdateSenhaHash(ctx context.Context, cdUsuario, hash string) error
	InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.RefreshToken, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, arg repo.RevokeRefreshTokenParams) error
	RotateRefreshToken(ctx context.Context, next repo.InsertRefreshTokenParams, current repo.RevokeRefreshTokenParams) (repo.RefreshToken, error)
	RevokeAllRefreshTokens(ctx context.Context, cdUsuario string, at time.Time, ip, reason string) ([]string, error)
	InsertLoginAudit(ctx context.Context, a repo.LoginAudit) error
	ListPasskeys(ctx context.Context, cdUsuario string) ([]repo.Passkey, error)
	GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (repo.Passkey, error)
	CreatePasskey(ctx context.Context, p repo.Passkey) (repo.Passkey, error)
	UpdatePasskeyCounter(ctx context.Context, id uuid.UUID, signCount uint32, cloned bool) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type permissionInvalidator interface {
	Invalidate(ctx context.Context, cdUsuario string) error
}

// RequestMeta carrega dados da requisição gravados na auditoria e nos tokens.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuthService concentra a autenticação legada e o ciclo de vida dos refresh tokens.
type AuthService struct {
	repo        authRepository
	redis       redisCommander
	jwt         *auth.JWTManager
	guard       *LoginGuard
	permissions permissionInvalidator
	refreshTTL  time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// NewAuthService cria novo serviço. guard e permissions podem ser nil.
func NewAuthService(r *repo.Queries, redisClient *redis.Client, jwtMgr *auth.JWTManager, guard *LoginGuard, permissions *PermissionService, refreshTTL time.Duration) *AuthService {
	s := &AuthService{
		repo:       r,
		redis:      redisClient,
		jwt:        jwtMgr,
		guard:      guard,
		refreshTTL: refreshTTL,
		now:        time.Now,
		logger:     log.With().Str("component", "auth").Logger(),
	}
	if permissions != nil {
		s.permissions = permissions
	}
	return s
}

// JWT expõe gerenciador de JWT (útil em middlewares).
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// LoginResult representa o par de tokens emitido.
type LoginResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *UsuarioProfile
}

// UsuarioProfile descreve o usuário legado autenticado.
type UsuarioProfile struct {
	CdUsuario string              `json:"cdUsuario"`
	Nome      string              `json:"nome"`
	Email     string              `json:"email,omitempty"`
	Matricula string              `json:"matricula,omitempty"`
	Empresa   string              `json:"empresa,omitempty"`
	Filial    string              `json:"filial,omitempty"`
	Tipo      string              `json:"tipo,omitempty"`
	Ativo     bool                `json:"ativo"`
	Grupos    []repo.UsuarioGrupo `json:"grupos"`
}

// Login autentica contra tuse1 e emite tokens.
func (s *AuthService) Login(ctx context.Context, cdUsuario, senha string, meta RequestMeta) (*LoginResult, error) {
	cd := repo.NormalizeCode(cdUsuario)
	if cd == "" || senha == "" {
		return nil, ErrInvalidCredentials
	}

	if s.locked(ctx, cd, meta) {
		return nil, ErrAccountLocked
	}

	user, err := s.repo.GetUsuario(ctx, cd)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn().Str("usuario", cd).Msg("login: usuário não encontrado")
			return nil, s.fail(ctx, cd, "usuario_inexistente", meta)
		}
		return nil, err
	}

	if !s.checkPassword(ctx, user, senha) {
		s.logger.Warn().Str("usuario", cd).Msg("login: senha inválida")
		return nil, s.fail(ctx, cd, "senha_invalida", meta)
	}

	if !user.Ativo() {
		s.audit(ctx, cd, false, "inativo", meta)
		return nil, ErrAccountDisabled
	}

	if s.guard != nil {
		if err := s.guard.Reset(ctx, cd); err != nil {
			s.logger.Warn().Err(err).Msg("login: falha ao limpar contador")
		}
	}
	s.audit(ctx, cd, true, "", meta)

	return s.startSession(ctx, user, meta)
}

// LoginWithUser emite sessão para usuário já autenticado por outro fator (passkey).
func (s *AuthService) LoginWithUser(ctx context.Context, user repo.Usuario, meta RequestMeta) (*LoginResult, error) {
	if s.locked(ctx, user.CdUsuario, meta) {
		return nil, ErrAccountLocked
	}
	if !user.Ativo() {
		return nil, ErrAccountDisabled
	}
	s.audit(ctx, user.CdUsuario, true, "passkey", meta)
	return s.startSession(ctx, user, meta)
}

// locked consulta o LoginGuard; falha no Redis não bloqueia o acesso.
func (s *AuthService) locked(ctx context.Context, cd string, meta RequestMeta) bool {
	if s.guard == nil {
		return false
	}
	locked, err := s.guard.Locked(ctx, cd)
	if err != nil {
		s.logger.Warn().Err(err).Msg("login: falha ao consultar bloqueio")
		return false
	}
	if locked {
		s.audit(ctx, cd, false, "bloqueado", meta)
	}
	return locked
}

func (s *AuthService) startSession(ctx context.Context, user repo.Usuario, meta RequestMeta) (*LoginResult, error) {
	sess, err := s.prepareSession(ctx, user)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.InsertRefreshToken(ctx, s.refreshParams(sess, meta)); err != nil {
		return nil, err
	}
	if err := s.markActive(ctx, sess); err != nil {
		return nil, err
	}
	return sess.result(), nil
}

// pendingSession é o par de tokens montado antes de qualquer gravação.
type pendingSession struct {
	profile        *UsuarioProfile
	access         auth.AccessToken
	rawRefresh     string
	refreshHash    string
	refreshExpires time.Time
}

func (p *pendingSession) result() *LoginResult {
	return &LoginResult{
		AccessToken:      p.access.Token,
		AccessExpiresAt:  p.access.ExpiresAt,
		RefreshToken:     p.rawRefresh,
		RefreshExpiresAt: p.refreshExpires,
		User:             p.profile,
	}
}

func (s *AuthService) prepareSession(ctx context.Context, user repo.Usuario) (*pendingSession, error) {
	profile, err := s.buildProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	access, err := s.jwt.GenerateAccessToken(auth.Identity{
		CdUsuario: profile.CdUsuario,
		Nome:      profile.Nome,
		Email:     profile.Email,
		Empresa:   profile.Empresa,
		Filial:    profile.Filial,
		Grupos:    groupClaims(profile.Grupos),
	})
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	return &pendingSession{
		profile:        profile,
		access:         access,
		rawRefresh:     rawRefresh,
		refreshHash:    refreshHash,
		refreshExpires: s.now().UTC().Add(s.refreshTTL),
	}, nil
}

// Refresh troca refresh token por um novo par. O token usado é revogado e
// aponta para o sucessor; reapresentar um token já substituído revoga todas
// as sessões do usuário.
//
// Perfil, JWT e marcador do sucessor ficam prontos antes da troca no banco.
// Uma falha até a troca deixa o token atual válido para nova tentativa.
func (s *AuthService) Refresh(ctx context.Context, rawToken string, meta RequestMeta) (*LoginResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	hash := auth.HashRefreshToken(rawToken)
	record, err := s.repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	now := s.now().UTC()
	if record.IsRevoked() {
		if record.ReplacedByHash != nil {
			s.logger.Warn().Str("usuario", record.CdUsuario).Str("ip", meta.IP).Msg("refresh: reutilização detectada, revogando sessões")
			if _, err := s.RevokeAll(ctx, record.CdUsuario, meta, "reuse"); err != nil {
				return nil, err
			}
		}
		return nil, ErrRefreshInvalid
	}
	if record.IsExpired(now) {
		return nil, ErrRefreshInvalid
	}

	redisKey := auth.RefreshRedisKey(record.CdUsuario, hash)
	status, err := s.redis.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	if status != refreshActive {
		return nil, ErrRefreshInvalid
	}

	user, err := s.repo.GetUsuario(ctx, record.CdUsuario)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err != nil || !user.Ativo() {
		reason := "inativo"
		if err != nil {
			reason = "inexistente"
		}
		if _, err := s.RevokeAll(ctx, record.CdUsuario, meta, reason); err != nil {
			s.logger.Warn().Err(err).Str("usuario", record.CdUsuario).Msg("refresh: falha ao revogar sessões de usuário sem acesso")
		}
		return nil, ErrAccountDisabled
	}

	next, err := s.prepareSession(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.markActive(ctx, next); err != nil {
		return nil, err
	}

	// revoked_at IS NULL na troca garante que só uma rotação concorrente vence.
	_, err = s.repo.RotateRefreshToken(ctx, s.refreshParams(next, meta), repo.RevokeRefreshTokenParams{
		TokenHash:      hash,
		RevokedAt:      now,
		RevokedByIP:    meta.IP,
		ReplacedByHash: next.refreshHash,
		Reason:         "rotated",
	})
	if err != nil {
		s.dropMarker(ctx, next.profile.CdUsuario, next.refreshHash)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("usuario", record.CdUsuario).Msg("refresh: falha ao remover marcador antigo")
	}
	return next.result(), nil
}

// Logout revoga refresh token atual. Token vazio ou desconhecido é ignorado.
func (s *AuthService) Logout(ctx context.Context, rawToken string, meta RequestMeta) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil
	}

	hash := auth.HashRefreshToken(rawToken)
	record, err := s.repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}

	err = s.repo.RevokeRefreshToken(ctx, repo.RevokeRefreshTokenParams{
		TokenHash:   hash,
		RevokedAt:   s.now().UTC(),
		RevokedByIP: meta.IP,
		Reason:      "logout",
	})
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	if err := s.redis.Del(ctx, auth.RefreshRedisKey(record.CdUsuario, hash)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// RevokeAll revoga todas as sessões ativas do usuário e devolve quantas foram afetadas.
func (s *AuthService) RevokeAll(ctx context.Context, cdUsuario string, meta RequestMeta, reason string) (int, error) {
	cd := repo.NormalizeCode(cdUsuario)
	hashes, err := s.repo.RevokeAllRefreshTokens(ctx, cd, s.now().UTC(), meta.IP, reason)
	if err != nil {
		return 0, err
	}
	if len(hashes) > 0 {
		keys := make([]string, 0, len(hashes))
		for _, h := range hashes {
			keys = append(keys, auth.RefreshRedisKey(cd, h))
		}
		if err := s.redis.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return len(hashes), err
		}
	}
	if s.permissions != nil {
		if err := s.permissions.Invalidate(ctx, cd); err != nil {
			s.logger.Warn().Err(err).Msg("revoke: falha ao invalidar cache de permissões")
		}
	}
	return len(hashes), nil
}

// Me retorna o perfil do usuário autenticado.
func (s *AuthService) Me(ctx context.Context, cdUsuario string) (*UsuarioProfile, error) {
	user, err := s.repo.GetUsuario(ctx, cdUsuario)
	if err != nil {
		return nil, err
	}
	if !user.Ativo() {
		return nil, ErrAccountDisabled
	}
	return s.buildProfile(ctx, user)
}

// ChangePassword troca a senha (gravada em argon2id) e encerra todas as sessões.
func (s *AuthService) ChangePassword(ctx context.Context, cdUsuario, atual, nova string, meta RequestMeta) error {
	if len(nova) < 8 || nova == atual {
		return ErrWeakPassword
	}

	user, err := s.repo.GetUsuario(ctx, cdUsuario)
	if err != nil {
		return err
	}
	if !user.Ativo() {
		return ErrAccountDisabled
	}
	if !s.checkPassword(ctx, user, atual) {
		return ErrInvalidCredentials
	}

	hash, err := auth.Hash(nova)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateSenhaHash(ctx, user.CdUsuario, hash); err != nil {
		return err
	}

	_, err = s.RevokeAll(ctx, user.CdUsuario, meta, "password_change")
	return err
}

// GetUsuario expõe o usuário legado (fluxo de passkeys).
func (s *AuthService) GetUsuario(ctx context.Context, cdUsuario string) (repo.Usuario, error) {
	return s.repo.GetUsuario(ctx, cdUsuario)
}

// checkPassword usa o hash argon2id quando existe; senão compara com a senha
// legada e, se conferir, grava o hash para os próximos logins.
func (s *AuthService) checkPassword(ctx context.Context, user repo.Usuario, senha string) bool {
	if user.SenhaHash != nil && strings.TrimSpace(*user.SenhaHash) != "" {
		ok, err := auth.Verify(senha, strings.TrimSpace(*user.SenhaHash))
		if err != nil {
			s.logger.Warn().Err(err).Str("usuario", user.CdUsuario).Msg("login: hash inválido")
			return false
		}
		return ok
	}

	if user.SenhaUser == nil || !auth.VerifyLegacy(senha, *user.SenhaUser) {
		return false
	}

	hash, err := auth.Hash(senha)
	if err != nil {
		s.logger.Warn().Err(err).Msg("login: falha ao gerar hash")
		return true
	}
	if err := s.repo.UpdateSenhaHash(ctx, user.CdUsuario, hash); err != nil {
		s.logger.Warn().Err(err).Str("usuario", user.CdUsuario).Msg("login: falha ao migrar senha legada")
	}
	return true
}

func (s *AuthService) fail(ctx context.Context, cd, reason string, meta RequestMeta) error {
	s.audit(ctx, cd, false, reason, meta)
	if s.guard == nil {
		return ErrInvalidCredentials
	}
	locked, err := s.guard.RegisterFailure(ctx, cd, meta)
	if err != nil {
		s.logger.Warn().Err(err).Msg("login: falha ao registrar tentativa")
		return ErrInvalidCredentials
	}
	if locked {
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

func (s *AuthService) audit(ctx context.Context, cd string, success bool, reason string, meta RequestMeta) {
	err := s.repo.InsertLoginAudit(ctx, repo.LoginAudit{
		CdUsuario: cd,
		Success:   success,
		Reason:    reason,
		IP:        meta.IP,
		UserAgent: truncate(meta.UserAgent, 300),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("usuario", cd).Msg("auditoria de login falhou")
	}
}

func (s *AuthService) refreshParams(p *pendingSession, meta RequestMeta) repo.InsertRefreshTokenParams {
	return repo.InsertRefreshTokenParams{
		ID:          uuid.New(),
		CdUsuario:   p.profile.CdUsuario,
		TokenHash:   p.refreshHash,
		ExpiresAt:   p.refreshExpires,
		CreatedAt:   s.now().UTC(),
		CreatedByIP: meta.IP,
	}
}

func (s *AuthService) markActive(ctx context.Context, p *pendingSession) error {
	key := auth.RefreshRedisKey(p.profile.CdUsuario, p.refreshHash)
	return s.redis.Set(ctx, key, refreshActive, p.refreshExpires.Sub(s.now().UTC())).Err()
}

func (s *AuthService) dropMarker(ctx context.Context, cdUsuario, hash string) {
	if err := s.redis.Del(ctx, auth.RefreshRedisKey(cdUsuario, hash)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("usuario", cdUsuario).Msg("refresh: falha ao descartar marcador")
	}
}

func (s *AuthService) buildProfile(ctx context.Context, user repo.Usuario) (*UsuarioProfile, error) {
	grupos, err := s.repo.ListGruposByUsuario(ctx, user.CdUsuario)
	if err != nil {
		return nil, err
	}

	now := s.now()
	vigentes := make([]repo.UsuarioGrupo, 0, len(grupos))
	for _, g := range grupos {
		if g.Vigente(now) {
			vigentes = append(vigentes, g)
		}
	}

	return &UsuarioProfile{
		CdUsuario: repo.NormalizeCode(user.CdUsuario),
		Nome:      user.Nome,
		Email:     user.Email,
		Matricula: user.Matricula,
		Empresa:   user.Empresa,
		Filial:    user.Filial,
		Tipo:      user.Tipo,
		Ativo:     user.Ativo(),
		Grupos:    vigentes,
	}, nil
}

func groupClaims(grupos []repo.UsuarioGrupo) []string {
	claims := make([]string, 0, len(grupos))
	seen := make(map[string]struct{}, len(grupos))
	for _, g := range grupos {
		c := repo.NormalizeCode(g.CdSistema) + ":" + repo.NormalizeCode(g.CdGrUser)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		claims = append(claims, c)
	}
	return claims
}

// truncate corta em até max bytes sem partir um caractere UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
