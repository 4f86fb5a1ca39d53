package model

import "time"

// 使い捨てトークンの用途
type TokenPurpose string

const (
	PurposeRecoveryQuestion TokenPurpose = "recovery_question"
	PurposeRecoveryEmail    TokenPurpose = "recovery_email"
	PurposeOAuthExchange    TokenPurpose = "oauth_exchange"
)

// パスワード再設定で受け付ける用途
var RecoveryPurposes = []TokenPurpose{PurposeRecoveryQuestion, PurposeRecoveryEmail}

// 使い捨て・期限付きのトークン。平文は保存せずsha256のhexだけ持つ。
type OneTimeToken struct {
	ID        int64        `gorm:"primaryKey;autoIncrement"`
	TokenHash string       `gorm:"not null;uniqueIndex;type:varchar(64)"`
	Purpose   TokenPurpose `gorm:"type:varchar(32);not null;index"`
	UserID    int64        `gorm:"not null;index"`
	Email     string       `gorm:"not null;index"`
	// oauth_exchangeのときだけセッショントークンを入れる
	Payload   string     `gorm:"type:text"`
	ExpiresAt time.Time  `gorm:"not null;index"`
	UsedAt    *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"`
}

// 未使用かつ期限内か
func (t *OneTimeToken) IsUsable(now time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(now)
}
