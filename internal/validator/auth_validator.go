package validator

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// 入力が不正（400にする）
var ErrInvalidInput = errors.New("invalid input")

// Errorはどの項目がなぜダメかを持つ
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field string, msg string) error {
	return &Error{Field: field, Message: msg}
}

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	maxEmailLen    = 254
	maxNameLen     = 100
	minAnswerLen   = 3
	maxQuestionLen = 255
)

// 会員登録の入力
type RegisterInput struct {
	Email            string
	Password         string
	Name             string
	LastName         string
	Phone            string
	BirthDate        *time.Time
	SecurityQuestion string
	SecurityAnswer   string
	AcceptedPrivacy  bool
	OTPChannel       string
}

// ValidateEmailは必須・長さ・形式を見る。emailはSanitizeEmail済みを想定
func ValidateEmail(email string) error {
	if email == "" {
		return invalid("email", "email is required")
	}
	if len(email) > maxEmailLen || !emailRe.MatchString(email) {
		return invalid("email", "invalid email format")
	}
	return nil
}

// サインアップの入力を検証
func ValidateRegister(in RegisterInput) error {
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return invalid("name", "name is required")
	}
	if len(name) > maxNameLen || len(in.LastName) > maxNameLen {
		return invalid("name", "name too long")
	}
	if ContainsSQLInjection(in.Name) || ContainsSQLInjection(in.LastName) {
		return invalid("name", "name contains invalid characters")
	}

	if err := ValidatePassword(in.Password, PersonalData{Email: in.Email, Name: in.Name, LastName: in.LastName, Phone: in.Phone, BirthDate: in.BirthDate}); err != nil {
		return err
	}

	if in.Phone != "" && len(SanitizePhone(in.Phone)) < 10 {
		return invalid("phone", "invalid phone number")
	}

	if err := ValidateSecurityQuestion(in.SecurityQuestion, in.SecurityAnswer); err != nil {
		return err
	}

	if !in.AcceptedPrivacy {
		return invalid("accepted_privacy_notice", "privacy notice must be accepted")
	}

	switch in.OTPChannel {
	case "", "email":
	case "sms":
		if in.Phone == "" {
			return invalid("phone", "phone is required for sms verification")
		}
	default:
		return invalid("otp_channel", "otp_channel must be email or sms")
	}
	return nil
}

// ログインの入力を検証
func ValidateLogin(email string, password string) error {
	if email == "" || password == "" {
		return invalid("email", "email and password are required")
	}
	return ValidateEmail(email)
}

// 秘密の質問と答え。質問を出すなら答えも必須
func ValidateSecurityQuestion(question string, answer string) error {
	q := strings.TrimSpace(question)
	a := strings.TrimSpace(answer)
	if q == "" && a == "" {
		return invalid("security_question", "security question is required")
	}
	if q == "" || a == "" {
		return invalid("security_question", "security question and answer are both required")
	}
	if len(q) > maxQuestionLen {
		return invalid("security_question", "security question too long")
	}
	if len(a) < minAnswerLen {
		return invalid("security_answer", "security answer too short")
	}
	if IsCommonAnswer(a) {
		return invalid("security_answer", "security answer is too easy to guess")
	}
	return nil
}

// 6桁の数字
func ValidateOTP(code string) error {
	if len(code) != 6 {
		return invalid("code", "code must be 6 digits")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return invalid("code", "code must be 6 digits")
		}
	}
	return nil
}
