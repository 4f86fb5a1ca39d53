// Package worker はバックグラウンドの定期処理。
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"salon/internal/logging"
	"salon/internal/observability"
	"salon/internal/security"
)

type revocationCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type expiredPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeperは期限切れのrevoked_tokensとone_time_tokensを消す。
// 消さなくても読むときに期限を見ているので、消えるのが遅れても動作は変わらない
type Sweeper struct {
	revocation revocationCleaner
	tokens     expiredPurger
	interval   time.Duration
	clock      security.Clock
	metrics    *observability.Metrics
	log        *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(
	revocation revocationCleaner,
	tokens expiredPurger,
	interval time.Duration,
	clock security.Clock,
	metrics *observability.Metrics,
	log *slog.Logger,
) *Sweeper {
	if clock == nil {
		clock = security.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		revocation: revocation,
		tokens:     tokens,
		interval:   interval,
		clock:      clock,
		metrics:    metrics,
		log:        log,
	}
}

// RunOnceは両方のテーブルを掃除する。片方が失敗してももう片方はやる
func (s *Sweeper) RunOnce(ctx context.Context) error {
	var errs []error

	n, err := s.revocation.CleanupExpired(ctx)
	if err != nil {
		logging.LogError(s.log, "sweep revoked tokens failed", err)
		errs = append(errs, err)
	} else {
		s.metrics.SweeperPurged("revoked_tokens", n)
	}

	m, err := s.tokens.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		logging.LogError(s.log, "sweep one-time tokens failed", err)
		errs = append(errs, err)
	} else {
		s.metrics.SweeperPurged("one_time_tokens", m)
	}

	if n > 0 || m > 0 {
		s.log.Info("expired tokens purged", "revoked_tokens", n, "one_time_tokens", m)
	}
	return errors.Join(errs...)
}

// Startはすぐ1回走らせてから、intervalごとに繰り返す
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stopは実行中の掃除が終わるまで待つ
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	interval := s.interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}
