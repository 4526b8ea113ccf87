package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/synqronlabs/quill"
	"github.com/synqronlabs/quill/smtp"
)

// spoolMessage serializes a message into the spool directory. Filenames
// are ULIDs, so directory order is creation order.
func spoolMessage(dir string, msg *quill.Message) (string, error) {
	data, err := msg.ToMessagePack()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ulid.Make().String()+".msgpack")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// retryable reports whether any failed recipient might succeed on a
// later attempt. Permanent rejections are not worth spooling.
func retryable(results []quill.DeliveryResult) bool {
	for _, r := range results {
		if r.Accepted {
			continue
		}
		var perr *smtp.ProtocolError
		if errors.As(r.Err, &perr) && perr.Code >= 500 {
			continue
		}
		return true
	}
	return false
}

func doFlush(config *Config) error {
	if config.SpoolDir == "" {
		return errors.New("no spool-dir configured")
	}

	entries, err := os.ReadDir(config.SpoolDir)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("spool is empty")
		return nil
	}
	if err != nil {
		return err
	}

	mailer, err := config.mailer()
	if err != nil {
		return err
	}

	var delivered, remaining int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".msgpack") {
			continue
		}
		path := filepath.Join(config.SpoolDir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("unreadable spool entry", "path", path, "error", err)
			remaining++
			continue
		}
		msg, err := quill.FromMessagePack(data)
		if err != nil {
			slog.Warn("corrupt spool entry", "path", path, "error", err)
			remaining++
			continue
		}

		results, err := mailer.Send(context.Background(), msg)
		switch {
		case err == nil:
			os.Remove(path)
			delivered++
		case errors.Is(err, quill.ErrDeliveryFailed) && !retryable(results):
			slog.Warn("dropping permanently rejected message", "path", path, "error", err)
			os.Remove(path)
		case errors.Is(err, quill.ErrDeliveryFailed):
			slog.Warn("delivery failed, keeping for next flush", "path", path, "error", err)
			remaining++
		default:
			// A rendering or signing failure is a configuration
			// problem that will repeat for every entry; stop instead
			// of grinding through the whole spool.
			return fmt.Errorf("flush %s: %w", path, err)
		}
	}

	slog.Info("flush complete", "delivered", delivered, "remaining", remaining)
	return nil
}
