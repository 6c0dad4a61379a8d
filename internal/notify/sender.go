package notify

import (
	"bytes"
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Attachment is a file sent with a Message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is an e-mail ready to send.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	client *mail.Client
	from   string
}

// NewSMTPSender creates an SMTPSender. Authentication is enabled when a
// username is set; TLS is used when the server offers it.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(s.from, msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrapf(err, "send %q to %s", msg.Subject, msg.To)
	}
	return nil
}

func buildMsg(from string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, errors.Wrap(err, "from address")
	}
	if err := m.To(msg.To); err != nil {
		return nil, errors.Wrap(err, "to address")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	for _, a := range msg.Attachments {
		var opts []mail.FileOption
		if a.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(a.ContentType)))
		}
		if err := m.AttachReader(a.Name, bytes.NewReader(a.Data), opts...); err != nil {
			return nil, errors.Wrapf(err, "attach %s", a.Name)
		}
	}
	return m, nil
}

// LogSender logs messages instead of sending them. It is used when SMTP
// is disabled.
type LogSender struct{}

// Send logs msg.
func (LogSender) Send(ctx context.Context, msg Message) error {
	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = a.Name
	}
	zctx.From(ctx).Info("Mail not sent, SMTP disabled",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names),
	)
	return nil
}
