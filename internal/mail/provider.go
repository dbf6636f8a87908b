package mail

import (
	"context"
	"log/slog"
	"strings"
)

type Message struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
}

// Provider delivers a rendered message. A nil error means the relay accepted it.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// LogProvider writes messages to the log instead of delivering them. It is
// used when no SMTP relay is configured.
type LogProvider struct {
	logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Send(ctx context.Context, msg Message) error {
	p.logger.Info("mail delivery disabled, logging message",
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
	)
	p.logger.Debug("mail body", "text", msg.TextBody)
	return nil
}
