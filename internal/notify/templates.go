package notify

import (
	"fmt"
	"html"
	"net/url"
	"time"
)

// OTPの本文。SMSは短く
func OTPMessage(channel Channel, to string, name string, code string, ttl time.Duration) Message {
	minutes := int(ttl.Minutes())
	if channel == ChannelSMS {
		return Message{
			Channel: ChannelSMS,
			To:      to,
			Body:    fmt.Sprintf("Tu código de verificación es %s. Expira en %d minutos.", code, minutes),
		}
	}
	return Message{
		Channel: ChannelEmail,
		To:      to,
		Subject: "Código de verificación",
		Body: fmt.Sprintf(
			"<p>Hola %s,</p><p>Tu código de verificación es <strong>%s</strong>.</p><p>Expira en %d minutos.</p>",
			html.EscapeString(name), code, minutes,
		),
	}
}

// ResetLinkはFRONTEND_URL/reset-password?token=...&email=...
func ResetLink(frontendURL string, token string, email string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return frontendURL + "/reset-password?" + q.Encode()
}

func PasswordResetMessage(to string, name string, link string, ttl time.Duration) Message {
	return Message{
		Channel: ChannelEmail,
		To:      to,
		Subject: "Recuperación de contraseña",
		Body: fmt.Sprintf(
			"<p>Hola %s,</p><p>Para restablecer tu contraseña entra a <a href=\"%s\">este enlace</a>.</p><p>El enlace expira en %d minutos. Si no lo solicitaste, ignora este correo.</p>",
			html.EscapeString(name), html.EscapeString(link), int(ttl.Minutes()),
		),
	}
}

func PasswordChangedMessage(to string, name string) Message {
	return Message{
		Channel: ChannelEmail,
		To:      to,
		Subject: "Tu contraseña fue cambiada",
		Body: fmt.Sprintf(
			"<p>Hola %s,</p><p>Tu contraseña se cambió correctamente y se cerraron todas tus sesiones.</p>",
			html.EscapeString(name),
		),
	}
}
