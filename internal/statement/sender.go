package statement

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"
)

// Message is one statement email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers statement emails. The dispatch loop and tests depend on
// this interface rather than a concrete SMTP client.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers messages through an SMTP relay using gomail. Each Send
// retries transient failures with exponential backoff, bounded by Timeout,
// before reporting the error to the caller.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	// Timeout bounds one Send including its internal retries.
	Timeout time.Duration
}

// Send delivers msg, retrying transient failures until Timeout elapses.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)
	if s.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: s.Host}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	operation := func() error {
		err := s.dialAndSend(ctx, d, m)
		if err != nil && !Transient(err) {
			// Permanent failures (rejected address, auth) skip the backoff.
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = timeout

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// dialAndSend runs one SMTP session under the context deadline. gomail has
// no session timeout of its own, so a relay that accepts the connection and
// then goes silent would otherwise hold the dispatch loop indefinitely.
func (s *SMTPSender) dialAndSend(ctx context.Context, d *gomail.Dialer, m *gomail.Message) error {
	errc := make(chan error, 1)
	go func() { errc <- d.DialAndSend(m) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transient reports whether err looks like a failure worth retrying:
// timeouts, refused or dropped connections, DNS hiccups, and SMTP 4xx soft
// replies (421 service closing, 450/451 mailbox or server busy). Protocol
// rejections in the 5xx range (bad recipient, authentication) are permanent.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code/100 == 4
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	// smtp replies surface as "code text"; 4xx codes are soft failures.
	for _, code := range []string{"421", "450", "451", "452"} {
		if strings.HasPrefix(msg, code+" ") || strings.Contains(msg, " "+code+" ") {
			return true
		}
	}
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"temporarily unavailable",
		"unexpected eof",
		"no such host",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
