package email

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Message is one outgoing plain-text email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Transport delivers a message. Implementations return the provider's failure as an error.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// Deliver adapts a Transport to the ledger's mail contract: it never returns an error,
// only whether the message went out and, if not, why.
func Deliver(ctx context.Context, t Transport, msg *Message) (bool, string) {
	if err := t.Send(ctx, msg); err != nil {
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = "unknown transport error"
		}
		return false, reason
	}
	return true, ""
}

// LogTransport writes messages to the log instead of sending them. Used in development.
type LogTransport struct{}

func (LogTransport) Send(ctx context.Context, msg *Message) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("Email (log transport)")
	return nil
}
