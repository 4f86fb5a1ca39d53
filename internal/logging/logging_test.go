package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestSetup_AddsServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("salon", "1.2.3", "json", &buf)

	logger.Info("hello")

	m := decodeLine(t, &buf)
	assert.Equal(t, "salon", m["service"])
	assert.Equal(t, "1.2.3", m["version"])
	assert.Equal(t, "hello", m["msg"])
}

func TestSetup_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("salon", "dev", "json", &buf)

	logger.Info("login",
		"email", "ana@example.com",
		"password", "Secr3t!pass",
		"reset_token", "abc",
		"Authorization", "Bearer x",
		"otp", "123456",
		"security_answer", "fido",
	)

	m := decodeLine(t, &buf)
	assert.Equal(t, "ana@example.com", m["email"])
	for _, k := range []string{"password", "reset_token", "Authorization", "otp", "security_answer"} {
		assert.Equal(t, redacted, m[k], k)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, IsSensitiveKey("PASSWORD"))
	assert.True(t, IsSensitiveKey("oauth_code"))
	assert.False(t, IsSensitiveKey("code"))
	assert.False(t, IsSensitiveKey("error_code"))
	assert.False(t, IsSensitiveKey("user_id"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "an***@example.com", MaskEmail("ana@example.com"))
	assert.Equal(t, "a***@x.io", MaskEmail("a@x.io"))
	assert.Equal(t, redacted, MaskEmail("not-an-email"))
}

func TestLogError_OopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("salon", "dev", "json", &buf)

	err := oops.Code("DB_FAILED").With("operation", "find user", "token", "leak").Wrap(errors.New("boom"))
	LogError(logger, "lookup failed", err)

	m := decodeLine(t, &buf)
	assert.Equal(t, "DB_FAILED", m["error_code"])
	ctx, ok := m["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "find user", ctx["operation"])
	assert.Equal(t, redacted, ctx["token"])
}

func TestLogError_PlainError(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("salon", "dev", "json", &buf)

	LogError(logger, "failed", errors.New("plain"))

	m := decodeLine(t, &buf)
	assert.Equal(t, "plain", m["error"])
	assert.Nil(t, m["error_code"])
}
