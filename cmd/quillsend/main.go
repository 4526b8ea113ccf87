// Command quillsend builds, signs, and delivers mail from the command
// line, driven by a YAML configuration file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/synqronlabs/quill"
	"github.com/synqronlabs/quill/dkim"
	"github.com/synqronlabs/quill/dns"
)

func main() {
	usage := `quillsend.
Usage:
	quillsend send [--config=<path>] [--from=<addr>] [--to=<addr>]...
	               [--subject=<text>] [--body=<file>] [--html] [--attach=<file>]...
	quillsend flush [--config=<path>]
	quillsend dkim record [--config=<path>]
	quillsend dkim check [--config=<path>]
	quillsend -h | --help
	quillsend --version

Options:
	--config=<path>    Configuration file to use [default: quill.yaml].
	--from=<addr>      Sender address, overriding the configured default.
	--to=<addr>        Recipient address; repeatable.
	--subject=<text>   Subject line.
	--body=<file>      Read the message body from a file instead of stdin.
	--html             Treat the body as HTML.
	--attach=<file>    Attach a file; repeatable.
	-h --help          Show this screen.
	--version          Show version.`

	arguments, _ := docopt.ParseArgs(usage, nil, "quillsend "+quill.Version)

	config, err := loadConfig(arguments["--config"].(string))
	if err != nil {
		log.Fatal("Config file did not load successfully: ", err.Error())
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevels[config.LogLevel],
	})))

	switch {
	case arguments["send"].(bool):
		err = doSend(config, arguments)
	case arguments["flush"].(bool):
		err = doFlush(config)
	case arguments["dkim"].(bool) && arguments["record"].(bool):
		err = doDKIMRecord(config)
	case arguments["dkim"].(bool) && arguments["check"].(bool):
		err = doDKIMCheck(config)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// optString reads an optional string value, empty when the option was
// not given.
func optString(arguments docopt.Opts, key string) string {
	v, _ := arguments[key].(string)
	return v
}

// optList reads a repeatable option's values.
func optList(arguments docopt.Opts, key string) []string {
	v, _ := arguments[key].([]string)
	return v
}

func doSend(config *Config, arguments docopt.Opts) error {
	from := optString(arguments, "--from")
	if from == "" {
		from = config.From
	}
	if from == "" {
		return errors.New("no sender: pass --from or set from in the configuration")
	}
	rcpts := optList(arguments, "--to")
	if len(rcpts) == 0 {
		return errors.New("no recipients: pass --to at least once")
	}

	body, err := readBody(optString(arguments, "--body"))
	if err != nil {
		return err
	}

	builder := quill.NewMessageBuilder().
		From(from).
		To(rcpts...).
		Subject(optString(arguments, "--subject"))
	if arguments["--html"].(bool) {
		builder.HTMLBody(body)
	} else {
		builder.TextBody(body)
	}
	for _, path := range optList(arguments, "--attach") {
		builder.AttachFile(path)
	}

	msg, err := builder.Build()
	if err != nil {
		return err
	}

	mailer, err := config.mailer()
	if err != nil {
		return err
	}

	results, err := mailer.Send(context.Background(), msg)
	for _, r := range results {
		if r.Accepted {
			slog.Info("recipient accepted", "rcpt", r.Address, "host", r.Host)
		} else {
			slog.Warn("recipient failed", "rcpt", r.Address, "error", r.Err)
		}
	}

	if errors.Is(err, quill.ErrDeliveryFailed) && config.SpoolDir != "" && retryable(results) {
		path, serr := spoolMessage(config.SpoolDir, msg)
		if serr != nil {
			return fmt.Errorf("delivery failed and spooling failed too: %v (delivery: %w)", serr, err)
		}
		slog.Info("message spooled for retry", "path", path)
		return nil
	}
	return err
}

// readBody reads the message body from the given file, or from stdin
// when the path is empty.
func readBody(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func doDKIMRecord(config *Config) error {
	signer, err := config.requireSigner()
	if err != nil {
		return err
	}
	record, err := signer.Record()
	if err != nil {
		return err
	}
	txt, err := record.TXT()
	if err != nil {
		return err
	}
	fmt.Println(zoneTXT(signer.RecordName(), txt))
	return nil
}

// zoneTXT formats a TXT value in zone file syntax, split into the
// 255-octet character strings DNS requires.
func zoneTXT(name, txt string) string {
	var chunks []string
	for len(txt) > 255 {
		chunks = append(chunks, strconv.Quote(txt[:255]))
		txt = txt[255:]
	}
	chunks = append(chunks, strconv.Quote(txt))
	if len(chunks) == 1 {
		return fmt.Sprintf("%s.\tIN\tTXT\t%s", name, chunks[0])
	}
	return fmt.Sprintf("%s.\tIN\tTXT\t( %s )", name, strings.Join(chunks, " "))
}

func doDKIMCheck(config *Config) error {
	signer, err := config.requireSigner()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	name := signer.RecordName()
	resolver := dns.NewResolver(dns.ResolverConfig{})
	txts, err := resolver.LookupTXT(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", name, err)
	}

	for _, txt := range txts {
		record, isDKIM, err := dkim.ParseRecord(txt)
		if !isDKIM {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s holds a broken DKIM record: %w", name, err)
		}
		if !record.MatchesKey(signer.PublicKey()) {
			return fmt.Errorf("%s holds a DKIM record for a different key", name)
		}
		fmt.Printf("ok: %s matches %s\n", name, config.DKIM.KeyFile)
		return nil
	}
	return fmt.Errorf("no DKIM record at %s", name)
}
