package model

import (
	"time"

	"gorm.io/gorm"
)

// 価格は最小通貨単位（センターボ）で持つ
type Product struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string         `gorm:"type:varchar(255);not null" json:"name"`
	Brand           string         `gorm:"type:varchar(100)" json:"brand"`
	Description     string         `gorm:"type:text" json:"description"`
	LongDescription string         `gorm:"type:text" json:"long_description"`
	Price           int64          `gorm:"not null" json:"price"`
	OriginalPrice   *int64         `json:"original_price,omitempty"`
	DiscountPercent int            `gorm:"not null;default:0" json:"discount_percent"`
	Category        string         `gorm:"type:varchar(100);index" json:"category"`
	Stock           int64          `gorm:"not null" json:"stock"`
	IsActive        bool           `gorm:"not null;default:false" json:"is_active"`
	IsNew           bool           `gorm:"not null;default:false" json:"is_new"`
	CrueltyFree     bool           `gorm:"not null;default:false" json:"cruelty_free"`
	Features        []string       `gorm:"serializer:json;type:jsonb" json:"features"`
	Ingredients     string         `gorm:"type:text" json:"ingredients"`
	Presentations   []Presentation `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"presentations"`
	CreatedAt       time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// 容量ごとの価格・在庫（250ml / 1L など）
type Presentation struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID     int64  `gorm:"not null;index" json:"product_id"`
	Size          string `gorm:"type:varchar(50);not null" json:"size"`
	Price         int64  `gorm:"not null" json:"price"`
	OriginalPrice *int64 `json:"original_price,omitempty"`
	Stock         int64  `gorm:"not null;default:0" json:"stock"`
	IsAvailable   bool   `gorm:"not null;default:true" json:"is_available"`
}
