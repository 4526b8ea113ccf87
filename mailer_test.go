package quill

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/synqronlabs/quill/dkim"
	"github.com/synqronlabs/quill/dns"
	"github.com/synqronlabs/quill/smtp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// smtpSession drives the server side of a scripted SMTP conversation.
type smtpSession struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func (s *smtpSession) reply(lines ...string) {
	for _, line := range lines {
		if _, err := fmt.Fprintf(s.conn, "%s\r\n", line); err != nil {
			s.t.Errorf("server write: %v", err)
			return
		}
	}
}

func (s *smtpSession) expect(want string) string {
	line, err := s.br.ReadString('\n')
	if err != nil {
		s.t.Errorf("server read (want %q): %v", want, err)
		return ""
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, want) {
		s.t.Errorf("server got %q, want prefix %q", line, want)
	}
	return line
}

// body reads DATA content up to the terminating dot line.
func (s *smtpSession) body() []string {
	var lines []string
	for {
		line, err := s.br.ReadString('\n')
		if err != nil {
			s.t.Errorf("server read body: %v", err)
			return lines
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "." {
			return lines
		}
		lines = append(lines, line)
	}
}

// startSMTP runs one script per expected connection, in arrival order,
// on a loopback listener. It returns the listener host and port.
func startSMTP(t *testing.T, scripts ...func(s *smtpSession)) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, script := range scripts {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			script(&smtpSession{t: t, conn: conn, br: bufio.NewReader(conn)})
			conn.Close()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		<-done
	})

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split listener address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse listener port: %v", err)
	}
	return host, port
}

// scriptDeliver returns a script that accepts one plain transaction
// for the given envelope.
func scriptDeliver(from string, rcpts ...string) func(s *smtpSession) {
	return func(s *smtpSession) {
		s.reply("220 mx.example.net ESMTP")
		s.expect("EHLO ")
		s.reply("250-mx.example.net", "250-8BITMIME", "250 SIZE 35882577")
		s.expect("MAIL FROM:<" + from + ">")
		s.reply("250 2.1.0 Ok")
		for _, rcpt := range rcpts {
			s.expect("RCPT TO:<" + rcpt + ">")
			s.reply("250 2.1.5 Ok")
		}
		s.expect("DATA")
		s.reply("354 End data with <CR><LF>.<CR><LF>")
		s.body()
		s.reply("250 2.0.0 queued as AB12CD")
		s.expect("QUIT")
		s.reply("221 2.0.0 Bye")
	}
}

func deliveryMessage(t *testing.T, rcpts ...string) *Message {
	t.Helper()
	msg, err := NewMessageBuilder().
		From("sender@example.com").
		To(rcpts...).
		Subject("Hello").
		TextBody("Hi there").
		Date(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)).
		MessageID("delivery@example.com").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return msg
}

func TestMailer_Smarthost(t *testing.T) {
	authB64 := base64.StdEncoding.EncodeToString([]byte("\x00alice\x00swordfish"))

	host, port := startSMTP(t, func(s *smtpSession) {
		s.reply("220 relay.example.org ESMTP")
		s.expect("EHLO mailer.example.org")
		s.reply("250-relay.example.org", "250-8BITMIME", "250-SIZE 35882577", "250 AUTH PLAIN LOGIN")
		s.expect("AUTH PLAIN " + authB64)
		s.reply("235 2.7.0 Authentication successful")
		s.expect("MAIL FROM:<sender@example.com>")
		s.reply("250 2.1.0 Ok")
		s.expect("RCPT TO:<ana@example.net>")
		s.reply("250 2.1.5 Ok")
		s.expect("RCPT TO:<bo@example.org>")
		s.reply("250 2.1.5 Ok")
		s.expect("DATA")
		s.reply("354 Go ahead")
		s.body()
		s.reply("250 2.0.0 queued as AB12CD")
		s.expect("QUIT")
		s.reply("221 2.0.0 Bye")
	})

	m := NewMailer(MailerConfig{
		Smarthost: &Smarthost{
			Host: host,
			Port: port,
			Auth: &smtp.Credentials{Username: "alice", Password: "swordfish"},
		},
		LocalName: "mailer.example.org",
		Logger:    discardLogger(),
	})

	// Recipients on different domains still travel in one transaction
	// when a smarthost is configured.
	msg, err := NewMessageBuilder().
		From("sender@example.com").
		To("ana@example.net").
		Cc("bo@example.org").
		Subject("Hello").
		TextBody("Hi there").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	results, err := m.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Accepted {
			t.Errorf("Expected %s accepted, got error %v", r.Address, r.Err)
		}
		if r.Host != host {
			t.Errorf("Expected host %q for %s, got %q", host, r.Address, r.Host)
		}
	}
}

func TestMailer_SendsSigned(t *testing.T) {
	signer, err := dkim.NewSigner(dkim.Config{
		KeyPEM:   testKeyPEM(t),
		Domain:   "example.com",
		Selector: "mail",
	})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	bodyc := make(chan []string, 1)
	host, port := startSMTP(t, func(s *smtpSession) {
		s.reply("220 relay.example.org ESMTP")
		s.expect("EHLO ")
		s.reply("250-relay.example.org", "250 8BITMIME")
		s.expect("MAIL FROM:")
		s.reply("250 2.1.0 Ok")
		s.expect("RCPT TO:")
		s.reply("250 2.1.5 Ok")
		s.expect("DATA")
		s.reply("354 Go ahead")
		bodyc <- s.body()
		s.reply("250 2.0.0 queued as AB12CD")
		s.expect("QUIT")
		s.reply("221 2.0.0 Bye")
	})

	m := NewMailer(MailerConfig{
		Smarthost: &Smarthost{Host: host, Port: port},
		Signer:    signer,
		Logger:    discardLogger(),
	})

	if _, err := m.Send(context.Background(), deliveryMessage(t, "ana@example.net")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	body := <-bodyc
	if len(body) == 0 {
		t.Fatal("Expected message content on the wire")
	}
	if !strings.HasPrefix(body[0], "DKIM-Signature: v=1;") {
		t.Errorf("Expected DKIM-Signature as first transmitted header, got %q", body[0])
	}
}

func TestMailer_SigningAborted(t *testing.T) {
	signer, err := dkim.NewSigner(dkim.Config{
		KeyPEM:   testKeyPEM(t),
		Domain:   "example.com",
		Selector: "mail",
		Headers:  []string{"x-never-present"},
	})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	// The smarthost port is never dialed: a failed signature stops the
	// delivery before any connection.
	m := NewMailer(MailerConfig{
		Smarthost: &Smarthost{Host: "127.0.0.1", Port: 1},
		Signer:    signer,
		Logger:    discardLogger(),
	})

	results, err := m.Send(context.Background(), deliveryMessage(t, "ana@example.net"))
	if !errors.Is(err, ErrSigningAborted) {
		t.Errorf("Expected ErrSigningAborted, got %v", err)
	}
	if results != nil {
		t.Errorf("Expected no delivery attempts, got %d results", len(results))
	}
}

func TestMailer_DirectMX(t *testing.T) {
	host, port := startSMTP(t, scriptDeliver("sender@example.com", "ana@example.net"))

	m := NewMailer(MailerConfig{
		Resolver: dns.Mock{
			MX: map[string][]*net.MX{
				"example.net.": {{Host: "127.0.0.1.", Pref: 10}},
			},
		},
		Logger: discardLogger(),
	})
	m.mxPort = port

	results, err := m.Send(context.Background(), deliveryMessage(t, "ana@example.net"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(results) != 1 || !results[0].Accepted {
		t.Fatalf("Expected 1 accepted recipient, got %+v", results)
	}
	if results[0].Host != host {
		t.Errorf("Expected MX host %q, got %q", host, results[0].Host)
	}
}

func TestMailer_MXFallback(t *testing.T) {
	// The preferred host greets with a transient failure; delivery
	// moves on to the alternate.
	_, port := startSMTP(t,
		func(s *smtpSession) {
			s.reply("421 4.3.2 Service shutting down")
		},
		scriptDeliver("sender@example.com", "ana@example.net"),
	)

	m := NewMailer(MailerConfig{
		Resolver: dns.Mock{
			MX: map[string][]*net.MX{
				"example.net.": {
					{Host: "127.0.0.1.", Pref: 5},
					{Host: "127.0.0.1.", Pref: 10},
				},
			},
		},
		Logger: discardLogger(),
	})
	m.mxPort = port

	results, err := m.Send(context.Background(), deliveryMessage(t, "ana@example.net"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(results) != 1 || !results[0].Accepted {
		t.Fatalf("Expected delivery via the alternate host, got %+v", results)
	}
}

func TestMailer_ImplicitMX(t *testing.T) {
	host, port := startSMTP(t, scriptDeliver("sender@example.com", "bo@127.0.0.1"))

	// No MX records, but the domain has an address record: deliver to
	// the domain itself.
	m := NewMailer(MailerConfig{
		Resolver: dns.Mock{
			A: map[string][]string{"127.0.0.1.": {"127.0.0.1"}},
		},
		Logger: discardLogger(),
	})
	m.mxPort = port

	results, err := m.Send(context.Background(), deliveryMessage(t, "bo@127.0.0.1"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(results) != 1 || !results[0].Accepted {
		t.Fatalf("Expected 1 accepted recipient, got %+v", results)
	}
	if results[0].Host != host {
		t.Errorf("Expected implicit MX host %q, got %q", host, results[0].Host)
	}
}

func TestMailer_NullMX(t *testing.T) {
	m := NewMailer(MailerConfig{
		Resolver: dns.Mock{
			MX: map[string][]*net.MX{
				"example.net.": {{Host: ".", Pref: 0}},
			},
		},
		Logger: discardLogger(),
	})

	results, err := m.Send(context.Background(), deliveryMessage(t, "ana@example.net"))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed, got %v", err)
	}
	if len(results) != 1 || results[0].Accepted {
		t.Fatalf("Expected 1 failed recipient, got %+v", results)
	}
	if results[0].Err == nil || !strings.Contains(results[0].Err.Error(), "null MX") {
		t.Errorf("Expected null MX error, got %v", results[0].Err)
	}
}

func TestMailer_MXLookupFailed(t *testing.T) {
	m := NewMailer(MailerConfig{
		Resolver: dns.Mock{Fail: []string{"mx example.net."}},
		Logger:   discardLogger(),
	})

	results, err := m.Send(context.Background(), deliveryMessage(t, "ana@example.net"))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed, got %v", err)
	}
	if len(results) != 1 || results[0].Accepted {
		t.Fatalf("Expected 1 failed recipient, got %+v", results)
	}
	if !errors.Is(results[0].Err, dns.ErrLookupFailed) {
		t.Errorf("Expected wrapped lookup failure, got %v", results[0].Err)
	}
	if results[0].Host != "" {
		t.Errorf("Expected empty host when no server was reached, got %q", results[0].Host)
	}
}

func TestMailer_AllRejected(t *testing.T) {
	host, port := startSMTP(t, func(s *smtpSession) {
		s.reply("220 relay.example.org ESMTP")
		s.expect("EHLO ")
		s.reply("250-relay.example.org", "250 8BITMIME")
		s.expect("MAIL FROM:<sender@example.com>")
		s.reply("250 2.1.0 Ok")
		s.expect("RCPT TO:<ana@example.net>")
		s.reply("550 5.1.1 No such user")
		s.expect("RSET")
		s.reply("250 2.0.0 Ok")
		s.expect("QUIT")
		s.reply("221 2.0.0 Bye")
	})

	m := NewMailer(MailerConfig{
		Smarthost: &Smarthost{Host: host, Port: port},
		Logger:    discardLogger(),
	})

	results, err := m.Send(context.Background(), deliveryMessage(t, "ana@example.net"))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed, got %v", err)
	}
	if len(results) != 1 || results[0].Accepted {
		t.Fatalf("Expected 1 rejected recipient, got %+v", results)
	}

	var perr *smtp.ProtocolError
	if !errors.As(results[0].Err, &perr) || perr.Code != 550 {
		t.Errorf("Expected 550 protocol error, got %v", results[0].Err)
	}
	if results[0].Host != host {
		t.Errorf("Expected host %q, got %q", host, results[0].Host)
	}
}

func TestMailer_ContentRejected(t *testing.T) {
	host, port := startSMTP(t, func(s *smtpSession) {
		s.reply("220 relay.example.org ESMTP")
		s.expect("EHLO ")
		s.reply("250-relay.example.org", "250 8BITMIME")
		s.expect("MAIL FROM:")
		s.reply("250 2.1.0 Ok")
		s.expect("RCPT TO:<ana@example.net>")
		s.reply("250 2.1.5 Ok")
		s.expect("DATA")
		s.reply("354 Go ahead")
		s.body()
		s.reply("554 5.7.1 Message content rejected")
		s.expect("QUIT")
		s.reply("221 2.0.0 Bye")
	})

	m := NewMailer(MailerConfig{
		Smarthost: &Smarthost{Host: host, Port: port},
		Logger:    discardLogger(),
	})

	// The recipient was accepted at RCPT time but the content was
	// refused, so nothing was delivered to it.
	results, err := m.Send(context.Background(), deliveryMessage(t, "ana@example.net"))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("Expected ErrDeliveryFailed, got %v", err)
	}
	if len(results) != 1 || results[0].Accepted {
		t.Fatalf("Expected 1 failed recipient, got %+v", results)
	}

	var perr *smtp.ProtocolError
	if !errors.As(results[0].Err, &perr) || perr.Code != 554 {
		t.Errorf("Expected 554 protocol error, got %v", results[0].Err)
	}
}

func TestMailer_SMTPUTF8(t *testing.T) {
	host, port := startSMTP(t, func(s *smtpSession) {
		s.reply("220 relay.example.org ESMTP")
		s.expect("EHLO ")
		s.reply("250-relay.example.org", "250-8BITMIME", "250 SMTPUTF8")
		line := s.expect("MAIL FROM:<sender@example.com>")
		if !strings.Contains(line, " SMTPUTF8") {
			s.t.Errorf("MAIL missing SMTPUTF8 parameter: %q", line)
		}
		s.reply("250 2.1.0 Ok")
		s.expect("RCPT TO:<żaneta@example.net>")
		s.reply("250 2.1.5 Ok")
		s.expect("DATA")
		s.reply("354 Go ahead")
		s.body()
		s.reply("250 2.0.0 queued as AB12CD")
		s.expect("QUIT")
		s.reply("221 2.0.0 Bye")
	})

	m := NewMailer(MailerConfig{
		Smarthost: &Smarthost{Host: host, Port: port},
		Logger:    discardLogger(),
	})

	results, err := m.Send(context.Background(), deliveryMessage(t, "żaneta@example.net"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(results) != 1 || !results[0].Accepted {
		t.Fatalf("Expected 1 accepted recipient, got %+v", results)
	}
}

func TestMailer_Routes(t *testing.T) {
	msg, err := NewMessageBuilder().
		From("sender@example.com").
		To("ana@example.net", "bo@example.org").
		Cc("chris@Example.NET").
		Bcc("dana@bücher.example").
		Subject("Hello").
		TextBody("Hi there").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	m := NewMailer(MailerConfig{Resolver: dns.Mock{}, Logger: discardLogger()})

	routes, err := m.routes(msg, false)
	if err != nil {
		t.Fatalf("routes failed: %v", err)
	}

	// Domains group case-insensitively in first-appearance order, and
	// internationalized domains route by their A-label form.
	want := []route{
		{domain: "example.net", rcpts: []string{"ana@example.net", "chris@example.net"}},
		{domain: "example.org", rcpts: []string{"bo@example.org"}},
		{domain: "xn--bcher-kva.example", rcpts: []string{"dana@xn--bcher-kva.example"}},
	}
	if !reflect.DeepEqual(routes, want) {
		t.Errorf("routes mismatch:\n got %+v\nwant %+v", routes, want)
	}
}
