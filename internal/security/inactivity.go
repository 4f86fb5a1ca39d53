package security

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"salon/internal/domain/model"
	repo "salon/internal/repository"

	"github.com/samber/oops"
)

// 非同期更新1回あたりの上限
const touchTimeout = 5 * time.Second

// InactivityMonitorは最終操作時刻で無操作タイムアウトを判定する
type InactivityMonitor struct {
	users repo.UserRepository
	clock Clock
	log   *slog.Logger

	wg sync.WaitGroup
}

func NewInactivityMonitor(users repo.UserRepository, clock Clock, log *slog.Logger) *InactivityMonitor {
	if clock == nil {
		clock = RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &InactivityMonitor{users: users, clock: clock, log: log}
}

// Touchはlast_activity_atを現在時刻にする
func (m *InactivityMonitor) Touch(ctx context.Context, userID int64) error {
	if err := m.users.TouchActivity(ctx, userID, m.clock.Now()); err != nil {
		return oops.Code("ACTIVITY_TOUCH_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// TouchAsyncはレスポンスを待たせずに更新する。失敗はログだけ
func (m *InactivityMonitor) TouchAsync(userID int64) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()

		if err := m.Touch(ctx, userID); err != nil {
			m.log.Warn("activity update failed", "user_id", userID, "error", err)
		}
	}()
}

// Waitは実行中のTouchAsyncを待つ（シャットダウン・テスト用）
func (m *InactivityMonitor) Wait() {
	m.wg.Wait()
}

// IsInactiveはtimeoutを超えて操作がなければtrue。
// ユーザーがいなければtrue、DBエラーならfalse（利用者を締め出さない）
func (m *InactivityMonitor) IsInactive(ctx context.Context, userID int64, timeout time.Duration) bool {
	u, err := m.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return true
		}
		m.log.Warn("inactivity check failed, allowing request", "user_id", userID, "error", err)
		return false
	}
	return m.IsUserInactive(ctx, u, timeout)
}

// IsUserInactiveは読み込み済みのユーザーで判定する。
// last_activity_atが未設定ならいまを記録してアクティブ扱い
func (m *InactivityMonitor) IsUserInactive(ctx context.Context, u *model.User, timeout time.Duration) bool {
	now := m.clock.Now()

	if u.LastActivityAt == nil {
		if err := m.users.TouchActivity(ctx, u.ID, now); err != nil {
			m.log.Warn("activity init failed", "user_id", u.ID, "error", err)
		}
		return false
	}

	return now.Sub(*u.LastActivityAt) > timeout
}
