package notify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSend_NotConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"no password", Config{Host: "smtp.example.com", Username: "u"}},
		{"no host", Config{Username: "u", Password: "p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n := New(tt.cfg, slog.New(slog.NewTextHandler(&buf, nil)))
			calls := 0
			n.send = func(context.Context, Config, string, []string, []byte) error {
				calls++
				return nil
			}

			out := n.Send(context.Background(), Message{Subject: "hi", Body: "contact a@b.com"})

			if out.Sent {
				t.Error("Sent = true, want false")
			}
			if out.Reason != ReasonNotConfigured {
				t.Errorf("Reason = %q, want %q", out.Reason, ReasonNotConfigured)
			}
			if out.Recipient != DefaultRecipient {
				t.Errorf("Recipient = %q, want %q", out.Recipient, DefaultRecipient)
			}
			if calls != 0 {
				t.Errorf("send called %d times, want 0", calls)
			}
			if !strings.Contains(buf.String(), "a@b.com") {
				t.Errorf("log output should carry the message body, got %q", buf.String())
			}
		})
	}
}

func TestSend_Failure(t *testing.T) {
	cfg := Config{Host: "smtp.example.com", Port: 587, Username: "u@example.com", Password: "p", To: "owner@example.com"}
	n := New(cfg, quietLogger())
	n.send = func(context.Context, Config, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	out := n.Send(context.Background(), Message{Subject: "s", Body: "b"})

	if out.Sent {
		t.Error("Sent = true, want false")
	}
	if out.Reason != ReasonSendFailed {
		t.Errorf("Reason = %q, want %q", out.Reason, ReasonSendFailed)
	}
	if out.Recipient != "owner@example.com" {
		t.Errorf("Recipient = %q, want override", out.Recipient)
	}
}

func TestOutcome_JSONOmitsRelayDetails(t *testing.T) {
	cfg := Config{Host: "smtp.example.com", Port: 587, Username: "u@example.com", Password: "p", To: "owner@example.com"}
	n := New(cfg, quietLogger())
	n.send = func(context.Context, Config, string, []string, []byte) error {
		return errors.New("535 auth failed for u@example.com")
	}

	data, err := json.Marshal(n.Send(context.Background(), Message{Subject: "s", Body: "b"}))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"sent":false,"reason":"send failed"}`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}
}

func TestSend_ComposeFailure(t *testing.T) {
	cfg := Config{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "not an address"}
	n := New(cfg, quietLogger())
	n.send = func(context.Context, Config, string, []string, []byte) error {
		t.Fatal("send should not be reached when compose fails")
		return nil
	}

	out := n.Send(context.Background(), Message{Subject: "s", Body: "b"})
	if out.Sent || out.Reason != ReasonSendFailed {
		t.Errorf("Outcome = %+v, want compose failure", out)
	}
}

func TestSend_Envelope(t *testing.T) {
	cfg := Config{
		Host: "smtp.example.com", Port: 587,
		Username: "bot@example.com", Password: "p",
		From: "Envoy <bot@example.com>",
	}
	n := New(cfg, quietLogger())

	var gotFrom string
	var gotRcpts []string
	var gotMsg []byte
	n.send = func(_ context.Context, _ Config, from string, rcpts []string, msg []byte) error {
		gotFrom, gotRcpts, gotMsg = from, rcpts, msg
		return nil
	}

	out := n.Send(context.Background(), Message{Subject: "New contact", Body: "Name: Jane", ReplyTo: "jane@x.com"})
	if !out.Sent {
		t.Fatalf("Sent = false, reason %q", out.Reason)
	}
	if gotFrom != "bot@example.com" {
		t.Errorf("envelope from = %q", gotFrom)
	}
	if len(gotRcpts) != 1 || gotRcpts[0] != DefaultRecipient {
		t.Errorf("recipients = %v", gotRcpts)
	}

	mr, err := mail.CreateReader(bytes.NewReader(gotMsg))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	if subj, _ := mr.Header.Subject(); subj != "New contact" {
		t.Errorf("Subject = %q", subj)
	}
	if rt, _ := mr.Header.AddressList("Reply-To"); len(rt) != 1 || rt[0].Address != "jane@x.com" {
		t.Errorf("Reply-To = %v", rt)
	}
	if id, _ := mr.Header.MessageID(); id == "" {
		t.Error("Message-Id missing")
	}
}

func TestCompose_WithAttachment(t *testing.T) {
	card, err := ContactCard(Contact{Name: "Jane", Email: "jane@x.com", Company: "Acme"})
	if err != nil {
		t.Fatalf("ContactCard: %v", err)
	}

	raw, err := compose("bot@example.com", "owner@example.com", Message{
		Subject:     "s",
		Body:        "hello body",
		Attachments: []Attachment{card},
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}

	var text string
	var attachName string
	var attachBody []byte
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			b, _ := io.ReadAll(p.Body)
			text = string(b)
		case *mail.AttachmentHeader:
			attachName, _ = h.Filename()
			attachBody, _ = io.ReadAll(p.Body)
		}
	}

	if text != "hello body" {
		t.Errorf("text part = %q", text)
	}
	if attachName != "contact.vcf" {
		t.Errorf("attachment filename = %q", attachName)
	}
	for _, want := range []string{"BEGIN:VCARD", "VERSION:4.0", "FN:Jane", "EMAIL:jane@x.com", "ORG:Acme"} {
		if !bytes.Contains(attachBody, []byte(want)) {
			t.Errorf("vcard missing %q:\n%s", want, attachBody)
		}
	}
}

func TestContactCard_NameFallsBackToEmail(t *testing.T) {
	card, err := ContactCard(Contact{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("ContactCard: %v", err)
	}
	if !bytes.Contains(card.Data, []byte("FN:a@b.com")) {
		t.Errorf("vcard = %s, want FN from email", card.Data)
	}
}

func TestConfig_Defaults(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantPort     int
		wantStartTLS bool
	}{
		{"empty", Config{}, 587, true},
		{"implicit tls", Config{Port: 465}, 465, false},
		{"plaintext relay", Config{Port: 25, Plaintext: true}, 25, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cfg
			c.ApplyDefaults()
			if c.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", c.Port, tt.wantPort)
			}
			if c.StartTLS != tt.wantStartTLS {
				t.Errorf("StartTLS = %v, want %v", c.StartTLS, tt.wantStartTLS)
			}
			if c.Timeout != 30*time.Second {
				t.Errorf("Timeout = %v, want 30s", c.Timeout)
			}
		})
	}
}

func TestBareAddress(t *testing.T) {
	tests := []struct{ in, want string }{
		{"user@example.com", "user@example.com"},
		{"Alice <alice@example.com>", "alice@example.com"},
		{"", ""},
		{"Alice <user@test.com", "Alice <user@test.com"},
	}
	for _, tt := range tests {
		if got := bareAddress(tt.in); got != tt.want {
			t.Errorf("bareAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeSMTP accepts one session on a loopback listener and records the
// DATA payload.
type fakeSMTP struct {
	ln   net.Listener
	data chan string
	auth chan string
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeSMTP{ln: ln, data: make(chan string, 1), auth: make(chan string, 1)}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(s string) { io.WriteString(conn, s+"\r\n") }
	reply("220 localhost ESMTP fake")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			reply("250-localhost")
			reply("250 AUTH PLAIN")
		case strings.HasPrefix(cmd, "AUTH"):
			f.auth <- strings.TrimSpace(line)
			reply("235 2.7.0 Authentication successful")
		case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
			reply("250 OK")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			f.data <- body.String()
			reply("250 OK queued")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("502 unknown")
		}
	}
}

func TestSendMail_FakeServer(t *testing.T) {
	srv := newFakeSMTP(t)
	cfg := Config{
		Host:      "127.0.0.1",
		Port:      srv.port(),
		Username:  "bot@example.com",
		Password:  "secret",
		Plaintext: true,
		Timeout:   5 * time.Second,
	}

	n := New(cfg, quietLogger())
	out := n.Send(context.Background(), Message{Subject: "Ping " + strconv.Itoa(cfg.Port), Body: "delivered body"})
	if !out.Sent {
		t.Fatalf("Sent = false, reason %q", out.Reason)
	}

	select {
	case a := <-srv.auth:
		if !strings.HasPrefix(a, "AUTH PLAIN") {
			t.Errorf("auth line = %q", a)
		}
	case <-time.After(time.Second):
		t.Fatal("no AUTH received")
	}

	select {
	case data := <-srv.data:
		if !strings.Contains(data, "delivered body") {
			t.Errorf("DATA missing body:\n%s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no DATA received")
	}
}

func TestSendMail_Timeout(t *testing.T) {
	// A listener that accepts but never greets.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	cfg := Config{
		Host:      "127.0.0.1",
		Port:      ln.Addr().(*net.TCPAddr).Port,
		Plaintext: true,
		Timeout:   200 * time.Millisecond,
	}

	start := time.Now()
	err = SendMail(context.Background(), cfg, "a@b.com", []string{"c@d.com"}, []byte("x"))
	if err == nil {
		t.Fatal("SendMail should fail when the server never greets")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("SendMail took %v, want bounded by timeout", elapsed)
	}
}
