// Package notify sends transactional email. Delivery failures never fail the caller's write.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Message is one plain-text/HTML email.
type Message struct {
	ToName      string
	ToAddress   string
	Subject     string
	TextContent string
	HTMLContent string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridConfig configures the SendGrid mailer.
type SendGridConfig struct {
	APIKey      string
	FromName    string
	FromAddress string
	Host        string
}

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridMailer posts to the SendGrid v3 mail API.
type SendGridMailer struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

func NewSendGridMailer(cfg SendGridConfig) (*SendGridMailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, errors.New("sender address is required")
	}
	host := cfg.Host
	if host == "" {
		host = sendGridHost
	}
	name := cfg.FromName
	if name == "" {
		name = "EduPay"
	}
	return &SendGridMailer{
		key:        cfg.APIKey,
		host:       host,
		from:       sgmail.NewEmail(name, cfg.FromAddress),
		subjPrefix: "[" + name + "] ",
	}, nil
}

func (m *SendGridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return v3
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if msg.ToAddress == "" {
		return errors.New("recipient address is required")
	}
	req := sendgrid.GetRequest(m.key, sendGridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used when no API key is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email not sent (log mailer)",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject))
	return nil
}

// BestEffort sends msg and logs, rather than returns, any failure.
func BestEffort(ctx context.Context, logger *zap.Logger, mailer Mailer, msg Message) {
	if mailer == nil {
		return
	}
	if err := mailer.Send(ctx, msg); err != nil && logger != nil {
		logger.Error("send email", zap.String("to", msg.ToAddress), zap.String("subject", msg.Subject), zap.Error(err))
	}
}
