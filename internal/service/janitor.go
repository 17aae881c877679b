package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type staleTokenDeleter interface {
	DeleteStaleRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// RefreshJanitor remove periodicamente refresh tokens vencidos ou revogados há
// mais tempo que a retenção.
type RefreshJanitor struct {
	repo      staleTokenDeleter
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRefreshJanitor(r staleTokenDeleter, interval, retention time.Duration, logger zerolog.Logger) *RefreshJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RefreshJanitor{
		repo:      r,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logger.With().Str("component", "janitor").Logger(),
		done:      make(chan struct{}),
	}
}

// Start inicia loop periódico. Safe para chamar múltiplas vezes.
func (j *RefreshJanitor) Start(parent context.Context) {
	j.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		j.cancel = cancel
		go j.runLoop(ctx)
	})
}

// Stop encerra o loop e aguarda a execução corrente.
func (j *RefreshJanitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
}

func (j *RefreshJanitor) runLoop(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("janitor: loop iniciado")

	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error().Err(err).Msg("janitor: primeira execução falhou")
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("janitor: loop encerrado")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error().Err(err).Msg("janitor: execução periódica falhou")
			}
		}
	}
}

// RunOnce apaga os tokens anteriores ao corte e devolve quantos saíram.
func (j *RefreshJanitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	n, err := j.repo.DeleteStaleRefreshTokens(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("limpar refresh tokens: %w", err)
	}
	if n > 0 {
		j.logger.Info().Int64("removidos", n).Time("corte", cutoff).Msg("janitor: refresh tokens removidos")
	}
	return n, nil
}
