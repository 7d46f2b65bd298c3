package blog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"
)

// ContactMessage is what a visitor submits through the contact form.
type ContactMessage struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

func (m ContactMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return errors.Wrap(ErrValidation, "name is required")
	case strings.TrimSpace(m.Email) == "":
		return errors.Wrap(ErrValidation, "email is required")
	case strings.TrimSpace(m.Message) == "":
		return errors.Wrap(ErrValidation, "message is required")
	}
	return nil
}

func (m ContactMessage) Subject() string {
	return "Blog Mail from " + m.Name
}

func (m ContactMessage) Body() string {
	return fmt.Sprintf("Name: %s\nEmail: %s\nPhone: %s\nMessage: %s", m.Name, m.Email, m.Phone, m.Message)
}

// Mailer delivers contact messages. Failures wrap ErrMailDelivery.
type Mailer interface {
	Send(ctx context.Context, m ContactMessage) error
}

type MailConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Recipient string        `yaml:"recipient"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SMTPMailer sends through an authenticated STARTTLS relay, one connection
// per message.
type SMTPMailer struct {
	host string
	opts []mail.Option
	from string
	to   string
}

const (
	defaultMailPort    = 587
	defaultMailTimeout = 15 * time.Second
)

func NewSMTPMailer(cfg MailConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = defaultMailPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMailTimeout
	}
	to := cfg.Recipient
	if to == "" {
		to = cfg.Username
	}
	return &SMTPMailer{
		host: cfg.Host,
		opts: []mail.Option{
			mail.WithPort(cfg.Port),
			mail.WithTLSPolicy(mail.TLSMandatory),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
			mail.WithTimeout(cfg.Timeout),
		},
		from: cfg.Username,
		to:   to,
	}
}

func (s *SMTPMailer) message(m ContactMessage) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, errors.Wrap(err, "sender address")
	}
	if err := msg.To(s.to); err != nil {
		return nil, errors.Wrap(err, "recipient address")
	}
	// An unparsable visitor address only costs us the Reply-To header.
	_ = msg.ReplyTo(m.Email)
	msg.Subject(m.Subject())
	msg.SetBodyString(mail.TypeTextPlain, m.Body())
	return msg, nil
}

func (s *SMTPMailer) Send(ctx context.Context, m ContactMessage) error {
	msg, err := s.message(m)
	if err != nil {
		return errors.Wrapf(ErrMailDelivery, "%v", err)
	}
	client, err := mail.NewClient(s.host, s.opts...)
	if err != nil {
		return errors.Wrapf(ErrMailDelivery, "smtp client: %v", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrapf(ErrMailDelivery, "send via %s: %v", s.host, err)
	}
	return nil
}

// BreakerMailer stops calling a failing relay for a cooldown period after
// maxFailures consecutive failures.
type BreakerMailer struct {
	next Mailer
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerMailer(next Mailer, maxFailures uint32, cooldown time.Duration, log logrus.FieldLogger) *BreakerMailer {
	st := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("mail circuit breaker changed state")
		},
	}
	return &BreakerMailer{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerMailer) Send(ctx context.Context, m ContactMessage) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, m)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrapf(ErrMailDelivery, "%v", err)
	}
	return err
}

// disabledMailer is used when no outbound account is configured.
type disabledMailer struct{}

func (disabledMailer) Send(context.Context, ContactMessage) error {
	return errors.Wrap(ErrMailDelivery, "no mail account configured")
}
