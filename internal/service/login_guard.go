package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rhsenso/erp/internal/notify"
	"github.com/rhsenso/erp/internal/repo"
)

type guardRedis interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// LoginGuard conta falhas de login por usuário e bloqueia após o limite.
type LoginGuard struct {
	redis       guardRedis
	notifier    notify.Notifier
	maxAttempts int
	window      time.Duration
	logger      zerolog.Logger
}

// NewLoginGuard cria o guarda. maxAttempts <= 0 desativa o bloqueio.
func NewLoginGuard(redisClient guardRedis, notifier notify.Notifier, maxAttempts int, window time.Duration) *LoginGuard {
	return &LoginGuard{
		redis:       redisClient,
		notifier:    notifier,
		maxAttempts: maxAttempts,
		window:      window,
		logger:      log.With().Str("component", "login_guard").Logger(),
	}
}

func failKey(cd string) string  { return "login:fail:" + repo.NormalizeCode(cd) }
func alertKey(cd string) string { return "login:alert:" + repo.NormalizeCode(cd) }

// Locked indica se o usuário atingiu o limite dentro da janela.
func (g *LoginGuard) Locked(ctx context.Context, cdUsuario string) (bool, error) {
	if g == nil || g.maxAttempts <= 0 {
		return false, nil
	}
	val, err := g.redis.Get(ctx, failKey(cdUsuario)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return false, nil
	}
	return n >= g.maxAttempts, nil
}

// RegisterFailure incrementa o contador e informa se o usuário ficou bloqueado.
// O alerta é enviado uma única vez por janela.
func (g *LoginGuard) RegisterFailure(ctx context.Context, cdUsuario string, meta RequestMeta) (bool, error) {
	if g == nil || g.maxAttempts <= 0 {
		return false, nil
	}
	key := failKey(cdUsuario)
	n, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := g.redis.Expire(ctx, key, g.window).Err(); err != nil {
			return false, err
		}
	}
	if n < int64(g.maxAttempts) {
		return false, nil
	}

	first, err := g.redis.SetNX(ctx, alertKey(cdUsuario), "1", g.window).Result()
	if err != nil {
		g.logger.Warn().Err(err).Msg("falha ao registrar alerta de bloqueio")
	}
	if first && g.notifier != nil {
		msg := notify.AlertMessage{
			Title:    "Usuário bloqueado",
			Text:     fmt.Sprintf("usuário %s bloqueado após %d tentativas (ip %s)", repo.NormalizeCode(cdUsuario), n, meta.IP),
			Severity: "warning",
		}
		if err := g.notifier.Notify(ctx, msg); err != nil {
			g.logger.Warn().Err(err).Msg("falha ao enviar alerta de bloqueio")
		}
	}
	return true, nil
}

// Reset limpa contador e alerta após login bem-sucedido.
func (g *LoginGuard) Reset(ctx context.Context, cdUsuario string) error {
	if g == nil || g.maxAttempts <= 0 {
		return nil
	}
	err := g.redis.Del(ctx, failKey(cdUsuario), alertKey(cdUsuario)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
