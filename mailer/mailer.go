package mailer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrInvalidMessage = errors.New("mail message requires from, to and subject")

// Message is one outgoing email. HTML is optional.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if m.From == "" || m.To == "" || m.Subject == "" {
		return ErrInvalidMessage
	}
	return nil
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Log records messages instead of delivering them. Bodies are not logged
// because they carry verification codes; Sent keeps them for tests.
type Log struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()

	l.logger.Info("mail accepted",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("text_bytes", len(msg.Text)))
	return nil
}

// Sent returns a copy of every accepted message.
func (l *Log) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.sent))
	copy(out, l.sent)
	return out
}
