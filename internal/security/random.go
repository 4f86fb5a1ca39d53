package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/samber/oops"
)

// 使い捨てトークンの長さ（バイト）。hexにすると64文字
const opaqueTokenBytes = 32

const otpDigits = 6

// ランダムな不透明トークンを作る
type TokenGenerator interface {
	NewToken() (string, error)
	NewOTP() (string, error)
}

type RandomGenerator struct{}

func (RandomGenerator) NewToken() (string, error) {
	return RandomHex(opaqueTokenBytes)
}

func (RandomGenerator) NewOTP() (string, error) {
	return GenerateOTP()
}

// n バイトの乱数をhexで返す
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("RANDOM_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// 6桁の数字（先頭0あり）
func GenerateOTP() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", oops.Code("RANDOM_FAILED").Wrap(err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// DBに保存するのはsha256のhexだけ
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// 平文とハッシュを定数時間で比べる
func TokenMatches(plain string, hashed string) bool {
	got := HashToken(plain)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hashed)) == 1
}
