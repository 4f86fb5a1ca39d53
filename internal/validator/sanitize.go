package validator

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

// SanitizeEmailはtrimして小文字にする
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeInputは前後の空白を落としてHTMLエスケープする（保存する自由入力用）
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// SanitizePhoneは数字と先頭の+だけ残す
func SanitizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizePostalCodeは数字だけにして5桁までに切る
func SanitizePostalCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
		if b.Len() == 5 {
			break
		}
	}
	return b.String()
}

var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|create|alter|exec|execute|union)\b\s`),
	regexp.MustCompile(`(?i)\bunion\b.+\bselect\b`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*|\*/`),
	regexp.MustCompile(`;\s*\w`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\d*'?\s*=\s*'?\d*`),
	regexp.MustCompile(`(?i)\bxp_\w+`),
}

// ContainsSQLInjectionは典型的なSQLインジェクションの形を含むか
func ContainsSQLInjection(s string) bool {
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// よくある答え（推測されやすい）
var commonAnswers = map[string]struct{}{
	"123": {}, "1234": {}, "12345": {}, "abc": {}, "test": {},
	"password": {}, "si": {}, "no": {}, "yes": {}, "nada": {},
	"ninguno": {}, "ninguna": {}, "none": {}, "asdf": {}, "qwerty": {},
	"hola": {}, "xxx": {}, "aaa": {},
}

// IsCommonAnswerは推測されやすい答えか
func IsCommonAnswer(answer string) bool {
	_, ok := commonAnswers[NormalizeAnswer(answer)]
	return ok
}

// NormalizeAnswerは答えの比較用にtrim・小文字化する
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
