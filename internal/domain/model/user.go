package model

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// OTPの送信先
type OTPChannel string

const (
	OTPChannelEmail OTPChannel = "email"
	OTPChannelSMS   OTPChannel = "sms"
)

type HairType string

const (
	HairStraight HairType = "liso"
	HairWavy     HairType = "ondulado"
	HairCurly    HairType = "rizado"
)

// 住所（usersに埋め込み）
type Address struct {
	Street       string `gorm:"column:street;type:varchar(100)" json:"street"`
	Number       string `gorm:"column:street_number;type:varchar(20)" json:"number"`
	Neighborhood string `gorm:"column:neighborhood;type:varchar(100)" json:"neighborhood"`
	City         string `gorm:"column:city;type:varchar(100)" json:"city"`
	State        string `gorm:"column:state;type:varchar(100)" json:"state"`
	PostalCode   string `gorm:"column:postal_code;type:varchar(10)" json:"postal_code"`
}

// 髪のプロフィール（usersに埋め込み）
type HairProfile struct {
	HairType     HairType `gorm:"column:hair_type;type:varchar(20)" json:"hair_type"`
	NaturalColor string   `gorm:"column:natural_color;type:varchar(50)" json:"natural_color"`
	CurrentColor string   `gorm:"column:current_color;type:varchar(50)" json:"current_color"`
	ProductsUsed string   `gorm:"column:products_used;type:text" json:"products_used"`
	Allergies    string   `gorm:"column:allergies;type:text" json:"allergies"`
}

// Userは認証の主体。物理削除はしない（IsActive=falseで論理削除）。
// GoogleIDがあるユーザーはPasswordHashがnilでも良く、作成時点で確認済み。
type User struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	Email string `gorm:"uniqueIndex;not null"` // 小文字・trim済み

	PasswordHash       *string `gorm:"column:password_hash"`
	SecurityQuestion   *string `gorm:"type:varchar(255)"`
	SecurityAnswerHash *string

	Role     Role `gorm:"type:varchar(20);not null;default:'USER'"`
	IsActive bool `gorm:"not null;default:true"`

	GoogleID    *string `gorm:"uniqueIndex"`
	IsConfirmed bool    `gorm:"not null;default:false"`

	OTPHash      *string
	OTPExpiresAt *time.Time
	OTPChannel   OTPChannel `gorm:"type:varchar(10)"`

	FailedLoginAttempts int `gorm:"not null;default:0"`
	LockedUntil         *time.Time
	LastFailedLoginAt   *time.Time

	LastActivityAt *time.Time
	// これ以前に発行されたトークンは全部無効（全端末ログアウト）
	TokensRevokedBefore *time.Time

	Name      string `gorm:"type:varchar(100)"`
	LastName  string `gorm:"type:varchar(100)"`
	Phone     string `gorm:"type:varchar(20)"`
	BirthDate *time.Time
	PhotoURL  string `gorm:"type:text"`

	Address     Address     `gorm:"embedded"`
	HairProfile HairProfile `gorm:"embedded"`

	AcceptedPrivacyNotice bool `gorm:"not null;default:false"`
	AcceptsPromotions     bool `gorm:"not null;default:false"`

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OAuthのみのユーザー（パスワード未設定）
func (u *User) IsOAuthOnly() bool {
	return u.PasswordHash == nil || *u.PasswordHash == ""
}

func (u *User) IsGoogleLinked() bool {
	return u.GoogleID != nil && *u.GoogleID != ""
}

// 秘密の質問が登録済みか
func (u *User) HasSecurityQuestion() bool {
	return u.SecurityQuestion != nil && *u.SecurityQuestion != "" &&
		u.SecurityAnswerHash != nil && *u.SecurityAnswerHash != ""
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.Name
	}
	return u.Name + " " + u.LastName
}
