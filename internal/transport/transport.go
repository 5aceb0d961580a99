package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/notifyhub/scribe-dispatch/internal/config"
	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// Message is a single delivery: one sender, every recipient of a job,
// one rendered subject and body.
type Message struct {
	From     string
	FromName string
	To       []string
	Subject  string
	Body     string
}

// Transport abstracts delivery to a mail relay.
// Faking this interface in tests gives full control over delivery outcomes
// without opening real connections.
type Transport interface {
	// Send delivers msg to all of msg.To in a single call.
	Send(ctx context.Context, msg Message) error
	// Configured reports whether the transport can deliver at all.
	// The dispatcher drops jobs at enqueue time when it returns false.
	Configured() bool
}

// Nop is the transport used when delivery is disabled.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return domain.ErrTransportUnconfigured }
func (Nop) Configured() bool                    { return false }

var _ Transport = Nop{}

// New builds the transport selected by cfg.Driver.
func New(cfg config.TransportConfig) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "smtp":
		return NewSMTP(cfg.SMTP), nil
	case "http":
		return NewRelay(cfg.Relay.URL, cfg.Relay.Timeout), nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Driver)
	}
}
