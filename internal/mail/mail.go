package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Skotchmaster/car_rental/internal/logging"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the request logger instead of delivering them.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	l := s.Log
	if l == nil {
		l = logging.FromContext(ctx)
	}
	l.Info("email_logged", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

const (
	VerifyPath = "/email-verify"
	ResetPath  = "/password-reset"
)

func siteURL(scheme, domain string) string {
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + strings.TrimRight(domain, "/")
}

// ActivationLink builds <scheme>://<domain><path>?token=<token>.
func ActivationLink(scheme, domain, path, token string) string {
	return siteURL(scheme, domain) + path + "?token=" + url.QueryEscape(token)
}

func ResetLink(scheme, domain, uidb64, token string) string {
	return siteURL(scheme, domain) + ResetPath + "/" + url.PathEscape(uidb64) + "/" + url.PathEscape(token)
}

func VerificationEmail(to, username, link string) Message {
	return Message{
		To:      to,
		Subject: "Verify your email",
		Body:    fmt.Sprintf("Hi %s,\nUse the link below to verify your email:\n%s\n", username, link),
	}
}

func PasswordResetEmail(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Hello,\nUse the link below to reset your password:\n%s\n", link),
	}
}
