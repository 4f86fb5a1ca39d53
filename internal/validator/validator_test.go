package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegister() RegisterInput {
	return RegisterInput{
		Email:            "ana@example.com",
		Password:         "Cabello#Rizo9",
		Name:             "Ana",
		LastName:         "Lopez",
		Phone:            "+52 55 1234 5678",
		SecurityQuestion: "Nombre de mi primera mascota",
		SecurityAnswer:   "Firulais",
		AcceptedPrivacy:  true,
	}
}

func TestValidateRegister_OK(t *testing.T) {
	assert.NoError(t, ValidateRegister(validRegister()))
}

func TestValidateRegister_Errors(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(in *RegisterInput)
		field string
	}{
		{"missing email", func(in *RegisterInput) { in.Email = "" }, "email"},
		{"bad email", func(in *RegisterInput) { in.Email = "ana@" }, "email"},
		{"missing name", func(in *RegisterInput) { in.Name = "  " }, "name"},
		{"sql in name", func(in *RegisterInput) { in.Name = "x'; DROP TABLE users; --" }, "name"},
		{"weak password", func(in *RegisterInput) { in.Password = "short" }, "password"},
		{"no question", func(in *RegisterInput) { in.SecurityQuestion = ""; in.SecurityAnswer = "" }, "security_question"},
		{"answer only", func(in *RegisterInput) { in.SecurityQuestion = "" }, "security_question"},
		{"common answer", func(in *RegisterInput) { in.SecurityAnswer = "  Nada " }, "security_answer"},
		{"privacy", func(in *RegisterInput) { in.AcceptedPrivacy = false }, "accepted_privacy_notice"},
		{"sms without phone", func(in *RegisterInput) { in.Phone = ""; in.OTPChannel = "sms" }, "phone"},
		{"bad channel", func(in *RegisterInput) { in.OTPChannel = "fax" }, "otp_channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegister()
			tt.mut(&in)

			err := ValidateRegister(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var ve *Error
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	birth := time.Date(1994, 7, 21, 0, 0, 0, 0, time.UTC)
	pd := PersonalData{Email: "mariana@example.com", Name: "Mariana", LastName: "Gomez", Phone: "5512349876", BirthDate: &birth}

	tests := []struct {
		name     string
		password string
		ok       bool
	}{
		{"strong", "Cabello#Rizo9", true},
		{"too short", "Ab1!", false},
		{"no upper", "cabello#rizo9", false},
		{"no lower", "CABELLO#RIZO9", false},
		{"no digit", "Cabello#Rizo", false},
		{"no special", "CabelloRizo9", false},
		{"common", "Passw0rd", false},
		{"keyboard sequence", "Qwer#Tinte7", false},
		{"numeric sequence", "Tinte#1234x", false},
		{"three letter run", "Rizo#Abc7Q", false},
		{"three digit run wrapping", "Rizo#890Tq", false},
		{"descending digits", "Rizo#9876Tq", false},
		{"common word inside", "Xx#Dragon77", false},
		{"repeated chars", "Tiiinte#Rojo7", false},
		{"contains name", "Mariana#Rojo7", false},
		{"contains email local part", "xMariana!7Q", false},
		{"contains birth year", "Tinte#1994Q", false},
		{"contains phone tail", "Tinte#9876Q", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, pd)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateOTP(t *testing.T) {
	assert.NoError(t, ValidateOTP("012345"))
	assert.Error(t, ValidateOTP("12345"))
	assert.Error(t, ValidateOTP("12a456"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "ana@example.com", SanitizeEmail("  Ana@Example.COM "))
	assert.Equal(t, "&lt;b&gt;hola&lt;/b&gt;", SanitizeInput(" <b>hola</b> "))
	assert.Equal(t, "+525512345678", SanitizePhone("+52 (55) 1234-5678"))
	assert.Equal(t, "06600", SanitizePostalCode("C.P. 06600-123"))
}

func TestContainsSQLInjection(t *testing.T) {
	bad := []string{
		"' OR '1'='1",
		"x; DROP TABLE users",
		"1 UNION SELECT password FROM users",
		"admin'--",
		"/* comment */",
	}
	for _, s := range bad {
		assert.True(t, ContainsSQLInjection(s), s)
	}

	good := []string{"Ana María", "Calle Reforma 123", "O'Brien", "Tinte rojo cobrizo"}
	for _, s := range good {
		assert.False(t, ContainsSQLInjection(s), s)
	}
}
