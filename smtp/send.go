package smtp

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Envelope describes a mail transaction: reverse-path, recipients, and
// whether the message needs the SMTPUTF8 extension.
type Envelope struct {
	// From is the envelope sender (reverse-path). Empty selects the
	// null sender used for bounces.
	From string

	// Recipients are the envelope recipient addresses.
	Recipients []string

	// SMTPUTF8 requests internationalized address handling (RFC 6531).
	// Sending fails when set and the server lacks the extension.
	SMTPUTF8 bool
}

// RecipientResult reports the server's verdict for one recipient.
type RecipientResult struct {
	Address  string
	Accepted bool
	Response *Response
	Err      error
}

// Result reports the outcome of a Send.
type Result struct {
	// Accepted counts recipients the server accepted.
	Accepted int

	// Recipients holds the per-recipient verdicts, in envelope order.
	Recipients []RecipientResult

	// Response is the final reply to the message content, when the
	// transaction got that far.
	Response *Response
}

// Send transmits raw message bytes in one mail transaction. Recipients
// are attempted individually: the transaction proceeds when at least
// one is accepted and is reset otherwise. The returned Result carries
// the per-recipient verdicts even when Send fails.
func (c *Client) Send(env Envelope, raw []byte) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNoConnection
	}
	if len(env.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	result := &Result{
		Recipients: make([]RecipientResult, 0, len(env.Recipients)),
	}

	if err := c.sendMailFrom(env, int64(len(raw))); err != nil {
		metricDeliver.WithLabelValues(deliverLabel(err)).Inc()
		return nil, err
	}

	for _, rcpt := range env.Recipients {
		rr := c.sendRcptTo(rcpt)
		result.Recipients = append(result.Recipients, rr)
		if rr.Accepted {
			result.Accepted++
		}
	}

	if result.Accepted == 0 {
		c.writeCommand("RSET")
		c.readResponse()
		metricDeliver.WithLabelValues("rejected").Inc()
		return result, ErrAllRecipientsRejected
	}

	resp, err := c.sendData(raw)
	result.Response = resp
	if err != nil {
		metricDeliver.WithLabelValues(deliverLabel(err)).Inc()
		return result, err
	}

	metricDeliver.WithLabelValues("ok").Inc()
	c.logger.Debug("message accepted",
		slog.Int("recipients", result.Accepted),
		slog.String("reply", resp.Message()),
	)

	return result, nil
}

// sendMailFrom sends MAIL FROM with the extension parameters the
// server supports.
func (c *Client) sendMailFrom(env Envelope, size int64) error {
	var params []string

	if _, ok := c.extensions[ExtSize]; ok && size > 0 {
		params = append(params, fmt.Sprintf("SIZE=%d", size))
	}

	if _, ok := c.extensions[Ext8BitMIME]; ok {
		params = append(params, "BODY=8BITMIME")
	}

	if env.SMTPUTF8 {
		if _, ok := c.extensions[ExtSMTPUTF8]; !ok {
			return &ProtocolError{
				Code:         550,
				EnhancedCode: "5.6.7",
				Message:      "SMTPUTF8 support required",
			}
		}
		params = append(params, "SMTPUTF8")
	}

	cmd := fmt.Sprintf("MAIL FROM:<%s>", env.From)
	if len(params) > 0 {
		cmd += " " + strings.Join(params, " ")
	}

	if err := c.writeCommand("%s", cmd); err != nil {
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

// sendRcptTo sends a RCPT TO command for a single recipient.
func (c *Client) sendRcptTo(addr string) RecipientResult {
	result := RecipientResult{Address: addr}

	if err := c.writeCommand("RCPT TO:<%s>", addr); err != nil {
		result.Err = err
		return result
	}

	resp, err := c.readResponse()
	if err != nil {
		result.Err = err
		return result
	}

	result.Response = resp
	if resp.Success() {
		result.Accepted = true
	} else {
		result.Err = resp.Err()
	}

	return result
}

// sendData transmits the message via DATA with dot-stuffing and the
// terminating dot line (RFC 5321 section 4.5.2).
func (c *Client) sendData(raw []byte) (*Response, error) {
	if err := c.writeCommand("DATA"); err != nil {
		return nil, err
	}

	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}

	if !resp.Intermediate() {
		if err := resp.Err(); err != nil {
			return resp, err
		}
		return resp, fmt.Errorf("%w: expected 354, got %d", ErrUnexpectedResponse, resp.Code)
	}

	stuffed := dotStuff(raw)

	if c.config.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	if _, err := c.writer.Write(stuffed); err != nil {
		return nil, err
	}

	// The terminating dot must start its own line
	if len(stuffed) < 2 || stuffed[len(stuffed)-2] != '\r' || stuffed[len(stuffed)-1] != '\n' {
		if _, err := c.writer.WriteString("\r\n"); err != nil {
			return nil, err
		}
	}

	if _, err := c.writer.WriteString(".\r\n"); err != nil {
		return nil, err
	}

	if err := c.writer.Flush(); err != nil {
		return nil, err
	}

	resp, err = c.readResponse()
	if err != nil {
		return nil, err
	}

	if !resp.Success() {
		return resp, resp.Err()
	}

	return resp, nil
}

// dotStuff prepends a period to every line beginning with one.
func dotStuff(data []byte) []byte {
	count := 0
	atLineStart := true
	for _, b := range data {
		if atLineStart && b == '.' {
			count++
		}
		atLineStart = b == '\n'
	}

	if count == 0 {
		return data
	}

	result := make([]byte, 0, len(data)+count)
	atLineStart = true

	for _, b := range data {
		if atLineStart && b == '.' {
			result = append(result, '.')
		}
		result = append(result, b)
		atLineStart = b == '\n'
	}

	return result
}

// deliverLabel maps a send failure onto the metric result label:
// server rejections count as "rejected", everything else as "error".
func deliverLabel(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return "rejected"
	}
	return "error"
}
