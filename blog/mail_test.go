package blog

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

func TestContactMessageFormat(t *testing.T) {
	m := ContactMessage{Name: "Visitor", Email: "v@example.com", Phone: "555", Message: "hi"}
	if got := m.Subject(); got != "Blog Mail from Visitor" {
		t.Errorf("subject = %q", got)
	}
	want := "Name: Visitor\nEmail: v@example.com\nPhone: 555\nMessage: hi"
	if got := m.Body(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}
	if err := (ContactMessage{Name: "x"}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("incomplete message: got %v", err)
	}
}

func TestSMTPMailerMessage(t *testing.T) {
	s := NewSMTPMailer(MailConfig{Host: "smtp.example.com", Username: "blog@example.com", Password: "pw"})
	msg, err := s.message(ContactMessage{Name: "Visitor", Email: "v@example.com", Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	rcpts, err := msg.GetRecipients()
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(rcpts, []string{"blog@example.com"}); diff != nil {
		t.Errorf("recipient defaults to the account: %v", diff)
	}
	if diff := deep.Equal(msg.GetGenHeader(mail.HeaderSubject), []string{"Blog Mail from Visitor"}); diff != nil {
		t.Error(diff)
	}
}

// countingMailer fails every call and counts how many reached it.
type countingMailer struct{ calls int }

func (c *countingMailer) Send(context.Context, ContactMessage) error {
	c.calls++
	return errors.Wrap(ErrMailDelivery, "connection refused")
}

func TestBreakerMailerOpens(t *testing.T) {
	log := logrus.New()
	log.Out = io.Discard
	next := &countingMailer{}
	b := NewBreakerMailer(next, 2, time.Hour, log)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := b.Send(ctx, ContactMessage{}); !errors.Is(err, ErrMailDelivery) {
			t.Fatalf("send %d: got %v, want ErrMailDelivery", i, err)
		}
	}
	if next.calls != 2 {
		t.Fatalf("relay called %d times, want 2 before the breaker opened", next.calls)
	}
}

func TestDisabledMailer(t *testing.T) {
	if err := (disabledMailer{}).Send(context.Background(), ContactMessage{}); !errors.Is(err, ErrMailDelivery) {
		t.Fatalf("got %v", err)
	}
}
