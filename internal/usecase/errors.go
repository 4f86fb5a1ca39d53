package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"salon/internal/logging"
	"salon/internal/validator"
)

// 境界で返すエラーの形。Codeはクライアントが分岐に使う固定文字列
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    defaultCode(status),
		Message: message,
	}
}

// Code付き
func NewCodedError(status int, code string, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func defaultCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	default:
		return "INTERNAL_ERROR"
	}
}

// 外に出すメッセージ。401は理由を区別しない
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidResetToken  = "invalid or expired token"
	msgInvalidCode        = "invalid or expired code"
	msgInternal           = "internal error"
)

var (
	errInvalidCredentials = NewCodedError(http.StatusUnauthorized, "INVALID_CREDENTIALS", msgInvalidCredentials)
	errInvalidResetToken  = NewCodedError(http.StatusUnauthorized, "INVALID_RESET_TOKEN", msgInvalidResetToken)
	errInvalidCode        = NewCodedError(http.StatusUnauthorized, "INVALID_CODE", msgInvalidCode)
	errAccountUnconfirmed = NewCodedError(http.StatusForbidden, "ACCOUNT_UNCONFIRMED", "account not confirmed, verify the code we sent you")
	errAccountDisabled    = NewCodedError(http.StatusForbidden, "ACCOUNT_DISABLED", "account is disabled")
	errEmailTaken         = NewCodedError(http.StatusConflict, "EMAIL_TAKEN", "email already registered")
)

func errAccountLocked(minutes int) error {
	return NewCodedError(http.StatusForbidden, "ACCOUNT_LOCKED",
		fmt.Sprintf("account locked due to too many failed attempts, try again in %d minutes", minutes))
}

// validatorのエラーは400に、それ以外はそのまま
func validationError(err error) error {
	var ve *validator.Error
	if errors.As(err, &ve) {
		return NewCodedError(http.StatusBadRequest, "VALIDATION_ERROR", ve.Message)
	}
	return err
}

// 想定外のエラーはログに残して500だけ返す（詳細は外に出さない）
func internalError(log *slog.Logger, msg string, err error) error {
	if log != nil {
		logging.LogError(log, msg, err)
	}
	return NewHTTPError(http.StatusInternalServerError, msgInternal)
}
