package security

import (
	"context"
	"errors"
	"time"

	repo "salon/internal/repository"

	"github.com/samber/oops"
)

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// ロック状態
type LockStatus struct {
	Locked bool
	Until  *time.Time
}

// 残り時間（分、切り上げ）
func (s LockStatus) RemainingMinutes(now time.Time) int {
	if !s.Locked || s.Until == nil {
		return 0
	}
	d := s.Until.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

// LockoutGuardはemail単位の連続ログイン失敗を数えてロックする
type LockoutGuard struct {
	users       repo.UserRepository
	clock       Clock
	maxAttempts int
	duration    time.Duration
}

func NewLockoutGuard(users repo.UserRepository, clock Clock, maxAttempts int, duration time.Duration) *LockoutGuard {
	if clock == nil {
		clock = RealClock{}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLoginAttempts
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &LockoutGuard{users: users, clock: clock, maxAttempts: maxAttempts, duration: duration}
}

// RecordFailureは失敗回数を+1し、上限に達したらロックする。
// 存在しないemailは何もしない（存在有無を漏らさない）
func (g *LockoutGuard) RecordFailure(ctx context.Context, email string) (LockStatus, error) {
	u, err := g.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return LockStatus{}, nil
		}
		return LockStatus{}, oops.Code("LOCKOUT_UPDATE_FAILED").Wrap(err)
	}

	now := g.clock.Now()
	st := repo.LockoutState{
		FailedLoginAttempts: u.FailedLoginAttempts + 1,
		LockedUntil:         u.LockedUntil,
		LastFailedLoginAt:   &now,
	}

	status := LockStatus{}
	if st.FailedLoginAttempts >= g.maxAttempts {
		until := now.Add(g.duration)
		st.LockedUntil = &until
		status = LockStatus{Locked: true, Until: &until}
	}

	if err := g.users.UpdateLockout(ctx, u.ID, st); err != nil {
		return LockStatus{}, oops.Code("LOCKOUT_UPDATE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return status, nil
}

// IsLockedはロック中ならLocked=true。
// 期限が過ぎていればカウンタとロックをクリアしてLocked=false
func (g *LockoutGuard) IsLocked(ctx context.Context, email string) (LockStatus, error) {
	u, err := g.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return LockStatus{}, nil
		}
		return LockStatus{}, oops.Code("LOCKOUT_LOOKUP_FAILED").Wrap(err)
	}

	if u.LockedUntil == nil {
		return LockStatus{}, nil
	}

	if u.LockedUntil.After(g.clock.Now()) {
		until := *u.LockedUntil
		return LockStatus{Locked: true, Until: &until}, nil
	}

	// 期限切れ → リセット
	err = g.users.UpdateLockout(ctx, u.ID, repo.LockoutState{
		FailedLoginAttempts: 0,
		LockedUntil:         nil,
		LastFailedLoginAt:   u.LastFailedLoginAt,
	})
	if err != nil {
		return LockStatus{}, oops.Code("LOCKOUT_UPDATE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return LockStatus{}, nil
}

// ResetOnSuccessはカウンタとロックを消す。何度呼んでも同じ
func (g *LockoutGuard) ResetOnSuccess(ctx context.Context, email string) error {
	u, err := g.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil
		}
		return oops.Code("LOCKOUT_RESET_FAILED").Wrap(err)
	}

	if u.FailedLoginAttempts == 0 && u.LockedUntil == nil {
		return nil
	}

	err = g.users.UpdateLockout(ctx, u.ID, repo.LockoutState{
		FailedLoginAttempts: 0,
		LockedUntil:         nil,
		LastFailedLoginAt:   u.LastFailedLoginAt,
	})
	if err != nil {
		return oops.Code("LOCKOUT_RESET_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return nil
}
