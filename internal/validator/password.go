package validator

import (
	"strings"
	"time"
	"unicode"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcryptの上限
)

// よく使われるパスワード。小文字にしたパスワードの一部に含まれていたら拒否
var commonPasswords = []string{
	"password", "passw0rd", "qwerty", "abc123", "111111", "123123", "12345", "654321",
	"admin", "letmein", "welcome", "monkey", "dragon", "master", "sunshine",
	"iloveyou", "princess", "football", "baseball", "trustno1", "superman", "batman",
	"jesus", "michael", "jordan", "shadow", "mustang", "harley", "freedom",
	"whatever", "hello", "charlie", "donald", "contraseña", "contrasena",
}

// キーボードの列と降順の数字は4文字から拒否
var keyboardRows = []string{
	"qwertyuiop", "asdfghjkl", "zxcvbnm",
	"9876543210",
}

// アルファベット順・数字順は3文字（abc, 123, 890）から拒否
var orderedRuns = []string{
	"abcdefghijklmnopqrstuvwxyz",
	"01234567890",
}

// パスワードに入れてはいけない個人情報
type PersonalData struct {
	Email     string
	Name      string
	LastName  string
	Phone     string
	BirthDate *time.Time
}

// ValidatePasswordは強度ポリシーを満たすか見る
func ValidatePassword(password string, pd PersonalData) error {
	if len(password) < minPasswordLen {
		return invalid("password", "password must be at least 8 characters")
	}
	if len(password) > maxPasswordLen {
		return invalid("password", "password too long")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return invalid("password", "password must contain upper case, lower case, a number and a special character")
	}

	lowered := strings.ToLower(password)
	if isCommonPassword(lowered) {
		return invalid("password", "password is too common")
	}
	if hasSequence(lowered, keyboardRows, 4) || hasSequence(lowered, orderedRuns, 3) {
		return invalid("password", "password must not contain keyboard or numeric sequences")
	}
	if hasRepeat(lowered, 3) {
		return invalid("password", "password must not repeat the same character 3 times")
	}
	if containsPersonalData(lowered, pd) {
		return invalid("password", "password must not contain personal data")
	}
	return nil
}

func isCommonPassword(lowered string) bool {
	for _, c := range commonPasswords {
		if strings.Contains(lowered, c) {
			return true
		}
	}
	return false
}

// seqsのどれかのn文字の並びを含むか
func hasSequence(s string, seqs []string, n int) bool {
	for _, seq := range seqs {
		for i := 0; i+n <= len(seq); i++ {
			if strings.Contains(s, seq[i:i+n]) {
				return true
			}
		}
	}
	return false
}

// 同じ文字がn回以上続くか
func hasRepeat(s string, n int) bool {
	run := 1
	rs := []rune(s)
	for i := 1; i < len(rs); i++ {
		if rs[i] == rs[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func containsPersonalData(lowered string, pd PersonalData) bool {
	var parts []string
	if at := strings.Index(pd.Email, "@"); at > 0 {
		parts = append(parts, strings.ToLower(pd.Email[:at]))
	}
	parts = append(parts, strings.ToLower(strings.TrimSpace(pd.Name)), strings.ToLower(strings.TrimSpace(pd.LastName)))
	if phone := SanitizePhone(pd.Phone); len(phone) >= 4 {
		parts = append(parts, phone[len(phone)-4:])
	}
	if pd.BirthDate != nil {
		parts = append(parts, pd.BirthDate.Format("2006"), pd.BirthDate.Format("0102"), pd.BirthDate.Format("0201"))
	}

	for _, p := range parts {
		// 3文字以下は偶然の一致が多いので見ない
		if len(p) > 3 && strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
