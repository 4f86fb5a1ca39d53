package model

import "time"

// 個別に失効させたJWT（jti単位）。ExpiresAtを過ぎた行は存在しない扱い。
type RevokedToken struct {
	JTI       string    `gorm:"column:jti;primaryKey;type:varchar(64)"`
	UserID    int64     `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}
