package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dialer bundles connection establishment: dial (plain or implicit
// TLS), EHLO, optional STARTTLS upgrade, and authentication.
type Dialer struct {
	Host           string
	Port           int
	TLSConfig      *tls.Config
	Auth           *Credentials
	LocalName      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SSL            bool // Implicit TLS from the first byte (port 465)
	StartTLS       bool // Upgrade via STARTTLS when advertised
	RequireTLS     bool // Fail instead of continuing without TLS
	Logger         *slog.Logger
}

// NewDialer creates a new Dialer with sensible defaults.
func NewDialer(host string, port int) *Dialer {
	return &Dialer{
		Host:           host,
		Port:           port,
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    5 * time.Minute,
		WriteTimeout:   5 * time.Minute,
	}
}

// Dial establishes a ready-to-send connection.
func (d *Dialer) Dial() (*Client, error) {
	return d.DialContext(context.Background())
}

// DialContext establishes a ready-to-send connection with context
// support.
func (d *Dialer) DialContext(ctx context.Context) (*Client, error) {
	config := &Config{
		LocalName:      d.LocalName,
		TLSConfig:      d.TLSConfig,
		Auth:           d.Auth,
		ConnectTimeout: d.ConnectTimeout,
		ReadTimeout:    d.ReadTimeout,
		WriteTimeout:   d.WriteTimeout,
		Logger:         d.Logger,
	}

	client := NewClient(config)
	address := fmt.Sprintf("%s:%d", d.Host, d.Port)

	var err error
	if d.SSL {
		err = client.DialTLSContext(ctx, address)
	} else {
		err = client.DialContext(ctx, address)
	}
	if err != nil {
		return nil, err
	}

	if err := client.Hello(); err != nil {
		client.Close()
		return nil, err
	}

	if d.StartTLS && !d.SSL {
		if client.HasExtension(ExtSTARTTLS) {
			if err := client.StartTLS(); err != nil {
				client.Close()
				return nil, err
			}
			// Extension state resets across the upgrade
			if err := client.Hello(); err != nil {
				client.Close()
				return nil, err
			}
		} else if d.RequireTLS {
			client.Close()
			return nil, ErrTLSNotSupported
		}
	}

	if d.Auth != nil {
		if err := client.Auth(); err != nil {
			client.Close()
			return nil, err
		}
	}

	return client, nil
}

// Pool keeps reusable ready-to-send connections.
type Pool struct {
	dialer *Dialer
	mu     sync.Mutex
	conns  chan *Client
	closed bool
}

// NewPool creates a pool holding up to size idle connections.
func NewPool(dialer *Dialer, size int) *Pool {
	if size <= 0 {
		size = 5
	}
	return &Pool{
		dialer: dialer,
		conns:  make(chan *Client, size),
	}
}

// Get returns a live connection, reusing an idle one when its NOOP
// probe still succeeds and dialing a fresh one otherwise.
func (p *Pool) Get() (*Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClientClosed
	}
	p.mu.Unlock()

	select {
	case client := <-p.conns:
		if err := client.Noop(); err == nil {
			return client, nil
		}
		// Connection went stale, replace it
		client.Close()
	default:
	}

	return p.dialer.Dial()
}

// Put returns a connection to the pool, closing it when the pool is
// full or already closed.
func (p *Pool) Put(client *Client) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		client.Close()
		return
	}
	p.mu.Unlock()

	select {
	case p.conns <- client:
	default:
		client.Quit()
	}
}

// Send transmits a message over a pooled connection.
func (p *Pool) Send(env Envelope, raw []byte) (*Result, error) {
	client, err := p.Get()
	if err != nil {
		return nil, err
	}

	result, err := client.Send(env, raw)
	if err != nil {
		client.Close()
		return result, err
	}

	p.Put(client)
	return result, nil
}

// Close closes the pool and its idle connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.conns)
	for client := range p.conns {
		client.Quit()
	}

	return nil
}
