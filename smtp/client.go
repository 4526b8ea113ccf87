package smtp

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/synqronlabs/quill/sasl"
)

// Client is an SMTP client. A Client holds one server connection;
// methods serialize on an internal mutex, one command exchange at a
// time.
type Client struct {
	config     *Config
	logger     *slog.Logger
	mu         sync.Mutex
	conn       net.Conn
	reader     *bufio.Reader
	writer     *bufio.Writer
	serverName string
	greeting   string
	extensions map[Extension]string
	isTLS      bool
	closed     bool
}

// NewClient creates a new SMTP client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.LocalName == "" {
		config.LocalName = "localhost"
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:     config,
		logger:     logger,
		extensions: make(map[Extension]string),
	}
}

// Dial connects to the SMTP server (e.g., "smtp.example.com:25").
func (c *Client) Dial(address string) error {
	return c.DialContext(context.Background(), address)
}

// DialContext connects to the SMTP server with a context.
func (c *Client) DialContext(ctx context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	// Keep the host for the TLS server name
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	c.serverName = host

	connectTimeout := c.config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 30 * time.Second
	}

	dialer := &net.Dialer{
		Timeout: connectTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	return c.start(conn, address)
}

// DialTLS connects using implicit TLS (typically port 465).
func (c *Client) DialTLS(address string) error {
	return c.DialTLSContext(context.Background(), address)
}

// DialTLSContext connects to the SMTP server using implicit TLS with a
// context.
func (c *Client) DialTLSContext(ctx context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	c.serverName = host

	tlsConfig := c.config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = host
	}

	connectTimeout := c.config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 30 * time.Second
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: connectTimeout},
		Config:    tlsConfig,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial TLS failed: %w", err)
	}

	c.isTLS = true
	return c.start(conn, address)
}

// start installs the connection and reads the server greeting.
func (c *Client) start(conn net.Conn, address string) error {
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.writer = bufio.NewWriter(conn)

	resp, err := c.readResponse()
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("failed to read greeting: %w", err)
	}

	if !resp.Success() {
		c.conn.Close()
		c.conn = nil
		return resp.Err()
	}

	c.greeting = resp.Message()
	c.logger.Debug("connected",
		slog.String("server", address),
		slog.Bool("tls", c.isTLS),
	)

	return nil
}

// Hello identifies the client to the server. EHLO is tried first and
// its extension list parsed; a permanent rejection falls back to HELO
// for servers without ESMTP support.
func (c *Client) Hello() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNoConnection
	}

	if err := c.writeCommand("EHLO %s", c.config.LocalName); err != nil {
		return err
	}

	resp, err := c.readResponse()
	if err != nil {
		return err
	}

	if resp.Success() {
		c.parseExtensions(resp.Lines)
		return nil
	}
	if !resp.Permanent() {
		return resp.Err()
	}

	// Fall back to HELO for non-ESMTP servers
	if err := c.writeCommand("HELO %s", c.config.LocalName); err != nil {
		return err
	}

	resp, err = c.readResponse()
	if err != nil {
		return err
	}

	if !resp.Success() {
		return resp.Err()
	}

	c.extensions = make(map[Extension]string)
	return nil
}

// StartTLS upgrades the connection to TLS. The server forgets its
// EHLO state across the upgrade, so Hello must be re-issued.
func (c *Client) StartTLS() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNoConnection
	}

	if c.isTLS {
		return ErrTLSAlreadyActive
	}

	if _, ok := c.extensions[ExtSTARTTLS]; !ok {
		return ErrTLSNotSupported
	}

	if err := c.writeCommand("STARTTLS"); err != nil {
		return err
	}

	resp, err := c.readResponse()
	if err != nil {
		return err
	}

	if !resp.Success() {
		return resp.Err()
	}

	tlsConfig := c.config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = c.serverName
	}

	tlsConn := tls.Client(c.conn, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}

	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.writer = bufio.NewWriter(tlsConn)
	c.isTLS = true

	// Extension state is stale until the next EHLO
	c.extensions = make(map[Extension]string)

	c.logger.Debug("tls established", slog.String("server", c.serverName))
	return nil
}

// Auth authenticates using the configured credentials. PLAIN is
// preferred when the server advertises it, LOGIN otherwise.
func (c *Client) Auth() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNoConnection
	}

	if c.config.Auth == nil {
		return errors.New("smtp: no credentials configured")
	}

	authExt, ok := c.extensions[ExtAuth]
	if !ok {
		return fmt.Errorf("%w: server does not advertise AUTH", ErrAuthNotSupported)
	}

	mech := selectMechanism(c.config.Auth, strings.Fields(authExt))
	if mech == nil {
		return fmt.Errorf("%w: server offers %q", ErrAuthNotSupported, authExt)
	}

	return c.auth(mech)
}

// AuthMechanism authenticates with a caller-supplied SASL mechanism.
func (c *Client) AuthMechanism(mech sasl.Mechanism) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNoConnection
	}

	return c.auth(mech)
}

// selectMechanism picks the preferred mutually supported mechanism.
func selectMechanism(creds *Credentials, advertised []string) sasl.Mechanism {
	for _, pref := range []string{"PLAIN", "LOGIN"} {
		for _, srv := range advertised {
			if !strings.EqualFold(pref, srv) {
				continue
			}
			switch pref {
			case "PLAIN":
				return sasl.NewPlain(creds.Username, creds.Password)
			case "LOGIN":
				return sasl.NewLogin(creds.Username, creds.Password)
			}
		}
	}
	return nil
}

// auth drives the AUTH exchange (RFC 4954): the initial response rides
// on the AUTH command, further 334 challenges are answered until the
// server accepts or rejects.
func (c *Client) auth(mech sasl.Mechanism) error {
	initial, err := mech.Start()
	if err != nil {
		return err
	}

	cmd := "AUTH " + mech.Name()
	if len(initial) > 0 {
		cmd += " " + base64.StdEncoding.EncodeToString(initial)
	}
	if err := c.writeCommand("%s", cmd); err != nil {
		return err
	}

	for {
		resp, err := c.readResponse()
		if err != nil {
			return err
		}

		switch {
		case resp.Success():
			c.logger.Debug("authenticated", slog.String("mechanism", mech.Name()))
			return nil
		case resp.Code == 334:
			challenge, err := base64.StdEncoding.DecodeString(strings.TrimSpace(resp.Message()))
			if err != nil {
				return fmt.Errorf("%w: undecodable challenge", ErrAuthFailed)
			}
			answer, err := mech.Next(challenge)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrAuthFailed, err)
			}
			if err := c.writeCommand("%s", base64.StdEncoding.EncodeToString(answer)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Message())
		}
	}
}

// Reset sends the RSET command, aborting any open mail transaction.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNoConnection
	}

	if err := c.writeCommand("RSET"); err != nil {
		return err
	}

	resp, err := c.readResponse()
	if err != nil {
		return err
	}

	if !resp.Success() {
		return resp.Err()
	}

	return nil
}

// Noop sends the NOOP command.
func (c *Client) Noop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNoConnection
	}

	if err := c.writeCommand("NOOP"); err != nil {
		return err
	}

	resp, err := c.readResponse()
	if err != nil {
		return err
	}

	if !resp.Success() {
		return resp.Err()
	}

	return nil
}

// Quit sends the QUIT command and closes the connection.
func (c *Client) Quit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNoConnection
	}

	if err := c.writeCommand("QUIT"); err != nil {
		c.close()
		return err
	}

	// Try to read the goodbye, but don't fail if it doesn't come
	c.readResponse()

	return c.close()
}

// Close closes the connection without the QUIT exchange.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.close()
}

func (c *Client) close() error {
	if c.conn == nil {
		return nil
	}

	c.closed = true

	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.writer = nil

	return err
}

// Greeting returns the server's connect banner.
func (c *Client) Greeting() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.greeting
}

// Extensions returns a copy of the extensions discovered via EHLO.
func (c *Client) Extensions() map[Extension]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[Extension]string, len(c.extensions))
	maps.Copy(result, c.extensions)
	return result
}

// HasExtension checks if the server supports a specific extension.
func (c *Client) HasExtension(ext Extension) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.extensions[ext]
	return ok
}

// MaxSize returns the server's maximum message size in bytes
// (0 = unlimited or not advertised).
func (c *Client) MaxSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if param, ok := c.extensions[ExtSize]; ok && param != "" {
		size, err := strconv.ParseInt(param, 10, 64)
		if err == nil {
			return size
		}
	}
	return 0
}

// parseExtensions parses the EHLO response lines for extensions.
func (c *Client) parseExtensions(lines []string) {
	c.extensions = make(map[Extension]string)

	for _, line := range lines[1:] { // Skip first line (greeting)
		// Extension lines are space-separated: "EXT params"
		parts := strings.SplitN(line, " ", 2)
		ext := Extension(strings.ToUpper(parts[0]))
		params := ""
		if len(parts) > 1 {
			params = parts[1]
		}
		c.extensions[ext] = params
	}
}

// writeCommand sends a command line to the server.
func (c *Client) writeCommand(format string, args ...any) error {
	cmd := fmt.Sprintf(format, args...)

	if c.config.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	_, err := c.writer.WriteString(cmd + "\r\n")
	if err != nil {
		return err
	}

	return c.writer.Flush()
}

// readResponse reads and parses a server reply.
func (c *Client) readResponse() (*Response, error) {
	if c.config.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}

	var lines []string
	var code int

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")

		if len(line) < 4 {
			return nil, fmt.Errorf("%w: line too short: %q", ErrUnexpectedResponse, line)
		}

		lineCode, err := strconv.Atoi(line[:3])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid code: %q", ErrUnexpectedResponse, line)
		}

		if code == 0 {
			code = lineCode
		} else if lineCode != code {
			return nil, fmt.Errorf("%w: inconsistent codes", ErrUnexpectedResponse)
		}

		message := ""
		if len(line) > 4 {
			message = line[4:]
		}
		lines = append(lines, message)

		// Space after the code marks the last line, dash a continuation
		if line[3] == ' ' {
			break
		}
	}

	resp := &Response{
		Code:  code,
		Lines: lines,
	}

	if len(lines) > 0 {
		resp.EnhancedCode = parseEnhancedCode(lines[0])
	}

	return resp, nil
}
