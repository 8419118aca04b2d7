// Package notify delivers owner notifications by email. Delivery
// problems are reported as an [Outcome] value and never as an error, so
// a failed email cannot interrupt a conversation.
package notify

import (
	"context"
	"log/slog"
)

// Message is a notification to the owner.
type Message struct {
	Subject     string
	Body        string
	ReplyTo     string
	Attachments []Attachment
}

// Outcome reports what happened to a notification. It is handed back
// to the model as a tool result, so relay errors and the recipient
// address stay in the logs.
type Outcome struct {
	Sent      bool   `json:"sent"`
	Reason    string `json:"reason,omitempty"`
	Recipient string `json:"-"`
}

// Outcome reasons.
const (
	ReasonNotConfigured = "smtp not configured"
	ReasonSendFailed    = "send failed"
)

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, m Message) Outcome
}

// Notifier sends notifications through the configured SMTP relay, or
// only logs them when the relay is not configured.
type Notifier struct {
	cfg    Config
	logger *slog.Logger
	send   sendFunc
}

// New creates a Notifier.
func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		logger: logger.With("component", "notify"),
		send:   SendMail,
	}
}

// Send composes and delivers m. When host or credentials are missing
// no connection is attempted and the message is only logged.
func (n *Notifier) Send(ctx context.Context, m Message) Outcome {
	to := n.cfg.Recipient()

	if !n.cfg.Configured() {
		n.logger.Info("notification not sent, smtp not configured",
			"to", to,
			"subject", m.Subject,
			"body", m.Body,
		)
		return Outcome{Sent: false, Reason: ReasonNotConfigured, Recipient: to}
	}

	from := n.cfg.Sender()
	msg, err := compose(from, to, m)
	if err != nil {
		n.logger.Error("notification compose failed", "to", to, "error", err)
		return Outcome{Sent: false, Reason: ReasonSendFailed, Recipient: to}
	}

	if err := n.send(ctx, n.cfg, bareAddress(from), []string{bareAddress(to)}, msg); err != nil {
		n.logger.Error("notification send failed",
			"to", to,
			"host", n.cfg.Host,
			"port", n.cfg.Port,
			"error", err,
		)
		return Outcome{Sent: false, Reason: ReasonSendFailed, Recipient: to}
	}

	n.logger.Info("notification sent", "to", to, "subject", m.Subject, "size", len(msg))
	return Outcome{Sent: true, Recipient: to}
}
