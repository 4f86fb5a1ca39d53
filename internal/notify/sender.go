// Package notify はメール・SMSの送信。送信失敗で呼び出し元の処理は巻き戻さない。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"

	"salon/internal/logging"

	"github.com/samber/oops"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Message struct {
	Channel Channel
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSenderは送らずにログに出す（開発用）。本文は出さない
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	to := msg.To
	if msg.Channel == ChannelEmail {
		to = logging.MaskEmail(to)
	}
	s.log.InfoContext(ctx, "notification queued", "channel", msg.Channel, "to", to, "subject", msg.Subject)
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSenderはメールだけ送る。SMSはfallbackに回す
type SMTPSender struct {
	cfg      SMTPConfig
	fallback Sender
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig, fallback Sender) *SMTPSender {
	return &SMTPSender{cfg: cfg, fallback: fallback, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.Channel != ChannelEmail {
		if s.fallback == nil {
			return oops.Code("NOTIFY_UNSUPPORTED_CHANNEL").With("channel", msg.Channel).Errorf("no sender for channel")
		}
		return s.fallback.Send(ctx, msg)
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To}, buildMIME(s.cfg.From, msg)); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("channel", msg.Channel).Wrap(err)
	}
	return nil
}

func buildMIME(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

// RecorderSenderは送った内容を覚えておく（テスト用）
type RecorderSender struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (r *RecorderSender) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *RecorderSender) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *RecorderSender) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Message{}, false
	}
	return r.sent[len(r.sent)-1], true
}
