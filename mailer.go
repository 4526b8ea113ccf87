package quill

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/synqronlabs/quill/dkim"
	"github.com/synqronlabs/quill/dns"
	"github.com/synqronlabs/quill/smtp"
)

// Smarthost routes all outbound mail through a single relay.
type Smarthost struct {
	Host        string
	Port        int
	ImplicitTLS bool // TLS from the first byte (port 465)
	StartTLS    bool // Upgrade after EHLO
	Auth        *smtp.Credentials
}

// MailerConfig configures a Mailer.
type MailerConfig struct {
	// Smarthost relays everything through one server. When nil,
	// recipients are routed directly via their domain's MX records.
	Smarthost *Smarthost

	// Signer adds a DKIM-Signature to every message. A signing
	// failure aborts the send; mail never goes out unsigned by
	// accident.
	Signer *dkim.Signer

	// Resolver performs the MX routing lookups. Defaults to a
	// resolver on the system nameservers.
	Resolver dns.Resolver

	// LocalName is the EHLO name presented to servers.
	LocalName string

	// TLSConfig applies to STARTTLS upgrades and implicit TLS.
	TLSConfig *tls.Config

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Mailer renders, signs, and delivers messages. Safe for concurrent
// Send calls; every transaction runs on its own connection.
type Mailer struct {
	config   MailerConfig
	resolver dns.Resolver
	logger   *slog.Logger
	mxPort   int
}

// NewMailer creates a Mailer.
func NewMailer(config MailerConfig) *Mailer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := config.Resolver
	if resolver == nil {
		resolver = dns.NewResolver(dns.ResolverConfig{})
	}

	return &Mailer{
		config:   config,
		resolver: resolver,
		logger:   logger,
		mxPort:   25,
	}
}

// DeliveryResult reports the delivery outcome for one envelope
// recipient.
type DeliveryResult struct {
	// Address is the envelope recipient.
	Address string

	// Host is the server that gave the verdict, empty when no server
	// was reached.
	Host string

	Accepted bool
	Err      error
}

// route groups envelope recipients sharing a mail domain.
type route struct {
	domain string // A-label form, the MX lookup key
	rcpts  []string
}

// Send renders the message, signs it when a Signer is configured, and
// delivers it, returning one result per envelope recipient. The
// returned error is non-nil only when nothing was delivered: rendering
// or signing failed, or no recipient was accepted.
func (m *Mailer) Send(ctx context.Context, msg *Message) ([]DeliveryResult, error) {
	var raw []byte
	var err error
	if m.config.Signer != nil {
		raw, err = msg.RawSigned(m.config.Signer)
	} else {
		raw, err = msg.Raw()
	}
	if err != nil {
		return nil, err
	}

	utf8 := msg.RequiresSMTPUTF8()
	from, err := envelopeAddr(msg.From, utf8)
	if err != nil {
		return nil, err
	}

	var results []DeliveryResult
	if m.config.Smarthost != nil {
		rcpts, err := envelopeAddrs(msg.Recipients(), utf8)
		if err != nil {
			return nil, err
		}
		env := smtp.Envelope{From: from, Recipients: rcpts, SMTPUTF8: utf8}
		results = m.viaSmarthost(ctx, env, raw)
	} else {
		routes, err := m.routes(msg, utf8)
		if err != nil {
			return nil, err
		}
		for _, rt := range routes {
			env := smtp.Envelope{From: from, Recipients: rt.rcpts, SMTPUTF8: utf8}
			results = append(results, m.viaMX(ctx, rt.domain, env, raw)...)
		}
	}

	accepted := 0
	for _, r := range results {
		if r.Accepted {
			accepted++
		}
	}

	m.logger.Info("delivery finished",
		slog.String("message_id", msg.MessageID),
		slog.Int("accepted", accepted),
		slog.Int("recipients", len(results)),
	)

	if accepted == 0 {
		return results, ErrDeliveryFailed
	}
	return results, nil
}

// viaSmarthost delivers the whole envelope through the configured
// relay.
func (m *Mailer) viaSmarthost(ctx context.Context, env smtp.Envelope, raw []byte) []DeliveryResult {
	sh := m.config.Smarthost

	d := m.dialer(sh.Host, sh.Port)
	d.SSL = sh.ImplicitTLS
	d.StartTLS = sh.StartTLS
	d.Auth = sh.Auth

	m.logger.Debug("delivering via smarthost", slog.String("host", sh.Host))

	client, err := d.DialContext(ctx)
	if err != nil {
		m.logger.Warn("smarthost unreachable",
			slog.String("host", sh.Host),
			slog.Any("error", err),
		)
		return failAll(env.Recipients, sh.Host, err)
	}
	defer client.Quit()

	return m.transact(client, sh.Host, env, raw)
}

// viaMX delivers one domain's recipients to the most preferred
// reachable mail host.
func (m *Mailer) viaMX(ctx context.Context, domain string, env smtp.Envelope, raw []byte) []DeliveryResult {
	hosts, err := m.mxHosts(ctx, domain)
	if err != nil {
		m.logger.Warn("mx resolution failed",
			slog.String("domain", domain),
			slog.Any("error", err),
		)
		return failAll(env.Recipients, "", fmt.Errorf("resolve %s: %w", domain, err))
	}

	var lastErr error
	for _, host := range hosts {
		m.logger.Debug("attempting mail host",
			slog.String("domain", domain),
			slog.String("host", host),
		)

		d := m.dialer(host, m.mxPort)
		d.StartTLS = true // opportunistic

		client, err := d.DialContext(ctx)
		if err != nil {
			m.logger.Warn("mail host unreachable",
				slog.String("host", host),
				slog.Any("error", err),
			)
			lastErr = err
			continue
		}

		// A host that accepts the connection gives the final verdict;
		// alternates are only for unreachable hosts.
		results := m.transact(client, host, env, raw)
		client.Quit()
		return results
	}

	return failAll(env.Recipients, "", fmt.Errorf("no mail host reachable for %s: %w", domain, lastErr))
}

// transact runs one mail transaction and flattens the verdicts.
func (m *Mailer) transact(client *smtp.Client, host string, env smtp.Envelope, raw []byte) []DeliveryResult {
	result, err := client.Send(env, raw)
	if result == nil {
		m.logger.Warn("transaction failed",
			slog.String("host", host),
			slog.Any("error", err),
		)
		return failAll(env.Recipients, host, err)
	}

	dataFailed := err != nil && !errors.Is(err, smtp.ErrAllRecipientsRejected)

	out := make([]DeliveryResult, 0, len(result.Recipients))
	for _, rr := range result.Recipients {
		dr := DeliveryResult{
			Address:  rr.Address,
			Host:     host,
			Accepted: rr.Accepted,
			Err:      rr.Err,
		}
		if rr.Accepted && dataFailed {
			// The server took the recipient but refused the content,
			// so nothing was delivered to it.
			dr.Accepted = false
			dr.Err = err
		}
		if !dr.Accepted {
			m.logger.Warn("recipient failed",
				slog.String("host", host),
				slog.String("rcpt", dr.Address),
				slog.Any("error", dr.Err),
			)
		}
		out = append(out, dr)
	}
	return out
}

// mxHosts returns the delivery hosts for a domain: MX targets by
// preference, or the domain itself under the implicit MX rule
// (RFC 5321 section 5.1) when it has an address record but no MX.
func (m *Mailer) mxHosts(ctx context.Context, domain string) ([]string, error) {
	mxs, err := m.resolver.LookupMX(ctx, domain)
	if errors.Is(err, dns.ErrNoRecords) {
		if _, ipErr := m.resolver.LookupIP(ctx, domain); ipErr != nil {
			return nil, fmt.Errorf("no MX or address records: %w", ipErr)
		}
		return []string{domain}, nil
	}
	if err != nil {
		return nil, err
	}

	hosts := make([]string, 0, len(mxs))
	for _, mx := range mxs {
		host := strings.TrimSuffix(mx.Host, ".")
		if host == "" {
			// Null MX (RFC 7505)
			continue
		}
		hosts = append(hosts, host)
	}
	if len(hosts) == 0 {
		return nil, errors.New("domain does not accept mail (null MX)")
	}
	return hosts, nil
}

// routes groups the envelope recipients by mail domain, preserving
// first-appearance order.
func (m *Mailer) routes(msg *Message, utf8 bool) ([]route, error) {
	var order []string
	groups := make(map[string]*route)

	for _, rcpt := range msg.Recipients() {
		addr, err := envelopeAddr(rcpt, utf8)
		if err != nil {
			return nil, err
		}

		domain, err := idna.Lookup.ToASCII(rcpt.Domain)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, rcpt.Addr(), err)
		}
		domain = strings.ToLower(domain)

		rt, ok := groups[domain]
		if !ok {
			rt = &route{domain: domain}
			groups[domain] = rt
			order = append(order, domain)
		}
		rt.rcpts = append(rt.rcpts, addr)
	}

	out := make([]route, 0, len(order))
	for _, domain := range order {
		out = append(out, *groups[domain])
	}
	return out, nil
}

func (m *Mailer) dialer(host string, port int) *smtp.Dialer {
	d := smtp.NewDialer(host, port)
	d.LocalName = m.config.LocalName
	d.TLSConfig = m.config.TLSConfig
	d.Logger = m.logger
	if m.config.ConnectTimeout > 0 {
		d.ConnectTimeout = m.config.ConnectTimeout
	}
	return d
}

// envelopeAddr returns the SMTP form of an address: UTF-8 when the
// transaction uses SMTPUTF8, the A-label form otherwise.
func envelopeAddr(addr MailboxAddress, utf8 bool) (string, error) {
	if utf8 {
		return addr.Addr(), nil
	}
	return addr.ASCII()
}

func envelopeAddrs(addrs []MailboxAddress, utf8 bool) ([]string, error) {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		s, err := envelopeAddr(addr, utf8)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func failAll(rcpts []string, host string, err error) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(rcpts))
	for _, addr := range rcpts {
		results = append(results, DeliveryResult{Address: addr, Host: host, Err: err})
	}
	return results
}
