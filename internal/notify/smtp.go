package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
)

// sendFunc delivers a composed message. Replaced in tests.
type sendFunc func(ctx context.Context, cfg Config, from string, recipients []string, msg []byte) error

// SendMail delivers msg through the configured relay on a fresh
// connection. cfg.Timeout, when set, bounds the whole exchange.
func SendMail(ctx context.Context, cfg Config, from string, recipients []string, msg []byte) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	conn, err := dialRelay(ctx, cfg)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting from %s: %w", cfg.Host, err)
	}
	defer c.Close()

	if err := negotiate(c, cfg); err != nil {
		return err
	}
	if err := transfer(c, from, recipients, msg); err != nil {
		return err
	}
	return c.Quit()
}

// dialRelay opens the TCP connection. Unless StartTLS or Plaintext is
// set the relay is assumed to speak implicit TLS (port 465).
func dialRelay(ctx context.Context, cfg Config) (net.Conn, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	nd := &net.Dialer{}

	if cfg.StartTLS || cfg.Plaintext {
		conn, err := nd.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial smtp %s: %w", addr, err)
		}
		return conn, nil
	}

	td := &tls.Dialer{NetDialer: nd, Config: &tls.Config{ServerName: cfg.Host}}
	conn, err := td.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial smtps %s: %w", addr, err)
	}
	return conn, nil
}

// negotiate runs EHLO, the optional STARTTLS upgrade and AUTH PLAIN.
func negotiate(c *smtp.Client, cfg Config) error {
	if err := c.Hello("localhost"); err != nil {
		return fmt.Errorf("smtp EHLO: %w", err)
	}
	if cfg.StartTLS {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("smtp STARTTLS: %w", err)
		}
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil
	}
	if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
		return fmt.Errorf("smtp AUTH: %w", err)
	}
	return nil
}

// transfer sends the envelope and the message body.
func transfer(c *smtp.Client, from string, recipients []string, msg []byte) error {
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM %s: %w", from, err)
	}
	for _, to := range recipients {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", to, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end DATA: %w", err)
	}
	return nil
}

// bareAddress returns the addr-spec of "Name <addr>", or s unchanged
// when it does not parse as an address.
func bareAddress(s string) string {
	if a, err := mail.ParseAddress(s); err == nil {
		return a.Address
	}
	return strings.TrimSpace(s)
}
