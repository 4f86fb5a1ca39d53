package security

import (
	"sync"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// パスワード・秘密の質問の答えのハッシュ化
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hashed string, plain string) bool
	// ユーザーが存在しないときも同じ時間をかけるためのダミー照合
	CompareDummy(plain string)
}

type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", oops.Code("HASH_FAILED").Wrap(err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Compare(hashed string, plain string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

func (h *BcryptHasher) CompareDummy(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
