package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/synqronlabs/quill"
	"github.com/synqronlabs/quill/dkim"
	"github.com/synqronlabs/quill/smtp"
)

// Config is the quillsend YAML configuration.
type Config struct {
	// From is the default sender when --from is not given.
	From string `yaml:"from"`

	Smarthost SmarthostConfig `yaml:"smarthost"`
	DKIM      DKIMConfig      `yaml:"dkim"`

	// SpoolDir enables spooling: a message that fails delivery with a
	// transient error is serialized there and retried by flush.
	SpoolDir string `yaml:"spool-dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log-level"`

	// Address split during validation.
	smarthostHost string
	smarthostPort int
}

// SmarthostConfig names the relay all mail goes through. An empty
// address routes each message directly to its recipient domains' MX
// hosts instead.
type SmarthostConfig struct {
	// Address is the relay in host:port form.
	Address string `yaml:"address"`

	// ImplicitTLS makes the connection TLS from the first byte, as on
	// port 465. StartTLS upgrades after the greeting instead; the two
	// are mutually exclusive.
	ImplicitTLS bool `yaml:"implicit-tls"`
	StartTLS    bool `yaml:"starttls"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DKIMConfig configures signing. Domain, selector and key-file come as
// a set; leaving them all empty sends unsigned mail.
type DKIMConfig struct {
	Domain     string   `yaml:"domain"`
	Selector   string   `yaml:"selector"`
	KeyFile    string   `yaml:"key-file"`
	Passphrase string   `yaml:"passphrase"`
	Headers    []string `yaml:"headers"`
}

// logLevels maps configuration names to slog levels.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// loadConfig loads and validates the given YAML configuration file.
func loadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := &Config{LogLevel: "info"}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if _, ok := logLevels[config.LogLevel]; !ok {
		return nil, fmt.Errorf("unknown log-level %q", config.LogLevel)
	}

	if sh := config.Smarthost; sh.Address != "" {
		host, portStr, err := net.SplitHostPort(sh.Address)
		if err != nil {
			return nil, fmt.Errorf("smarthost address must be host:port: %v", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("smarthost port %q is not a valid port number", portStr)
		}
		config.smarthostHost = host
		config.smarthostPort = port
	}
	if config.Smarthost.ImplicitTLS && config.Smarthost.StartTLS {
		return nil, errors.New("smarthost: implicit-tls and starttls are mutually exclusive")
	}

	d := config.DKIM
	if (d.Domain != "" || d.Selector != "" || d.KeyFile != "") &&
		(d.Domain == "" || d.Selector == "" || d.KeyFile == "") {
		return nil, errors.New("dkim: domain, selector and key-file must be set together")
	}

	return config, nil
}

// signer builds the DKIM signer, or returns nil when signing is not
// configured.
func (c *Config) signer() (*dkim.Signer, error) {
	if c.DKIM.Domain == "" {
		return nil, nil
	}
	keyPEM, err := os.ReadFile(c.DKIM.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read dkim key: %w", err)
	}
	return dkim.NewSigner(dkim.Config{
		KeyPEM:     keyPEM,
		Passphrase: c.DKIM.Passphrase,
		Domain:     c.DKIM.Domain,
		Selector:   c.DKIM.Selector,
		Headers:    c.DKIM.Headers,
	})
}

// requireSigner is signer for the dkim subcommands, which make no
// sense without one.
func (c *Config) requireSigner() (*dkim.Signer, error) {
	signer, err := c.signer()
	if err == nil && signer == nil {
		return nil, errors.New("dkim is not configured (set dkim.domain, dkim.selector and dkim.key-file)")
	}
	return signer, err
}

// mailer builds the delivery Mailer for this configuration.
func (c *Config) mailer() (*quill.Mailer, error) {
	signer, err := c.signer()
	if err != nil {
		return nil, err
	}

	mc := quill.MailerConfig{Signer: signer}
	if c.Smarthost.Address != "" {
		sh := &quill.Smarthost{
			Host:        c.smarthostHost,
			Port:        c.smarthostPort,
			ImplicitTLS: c.Smarthost.ImplicitTLS,
			StartTLS:    c.Smarthost.StartTLS,
		}
		if c.Smarthost.Username != "" {
			sh.Auth = &smtp.Credentials{
				Username: c.Smarthost.Username,
				Password: c.Smarthost.Password,
			}
		}
		mc.Smarthost = sh
	}
	return quill.NewMailer(mc), nil
}
