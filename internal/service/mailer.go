package service

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/config"
)

// Notifier delivers operator notifications.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMTPNotifier struct {
	cfg config.MailConfig
}

func NewSMTPNotifier(cfg config.MailConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (n *SMTPNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	msg, err := n.message(to, subject, body)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}

	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the process log when no SMTP server
// is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendEmail(_ context.Context, to, subject, body string) error {
	n.logger.Info("Notification",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
