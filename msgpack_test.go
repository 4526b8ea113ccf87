package quill

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/tinylib/msgp/msgp"
)

func fullTestMessage() *Message {
	return &Message{
		From:    MailboxAddress{LocalPart: "sender", Domain: "example.com", DisplayName: "Sender"},
		ReplyTo: MailboxAddress{LocalPart: "replies", Domain: "example.com"},
		To: []MailboxAddress{
			{LocalPart: "one", Domain: "example.com"},
			{LocalPart: "two", Domain: "example.com", DisplayName: "Two"},
		},
		Cc:        []MailboxAddress{{LocalPart: "three", Domain: "example.com"}},
		Bcc:       []MailboxAddress{{LocalPart: "four", Domain: "example.com"}},
		Subject:   "Quarterly report",
		Date:      time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
		MessageID: "<01HX0000000000000000000000@example.com>",
		Extra: Headers{
			{Name: "X-Mailer", Value: "quill"},
			{Name: "In-Reply-To", Value: "<parent@example.com>"},
		},
		Text: "plain body",
		HTML: "<p>html body</p>",
		Attachments: []Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
			{ContentType: "image/png", Data: []byte{1, 2, 3}, Inline: true, ContentID: "logo"},
		},
	}
}

func TestMessagePack_RoundTrip(t *testing.T) {
	msg := fullTestMessage()
	data, err := msg.ToMessagePack()
	if err != nil {
		t.Fatalf("ToMessagePack failed: %v", err)
	}

	got, err := FromMessagePack(data)
	if err != nil {
		t.Fatalf("FromMessagePack failed: %v", err)
	}

	// The wire format stores times in UTC; the instant survives even
	// though the zone does not.
	if !got.Date.Equal(msg.Date) {
		t.Errorf("Expected date %v, got %v", msg.Date, got.Date)
	}
	got.Date = msg.Date
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("Round trip mismatch:\n got: %+v\nwant: %+v", got, msg)
	}
}

func TestMessagePack_RoundTripMinimal(t *testing.T) {
	msg := &Message{
		From: MailboxAddress{LocalPart: "sender", Domain: "example.com"},
		To:   []MailboxAddress{{LocalPart: "recipient", Domain: "example.com"}},
		Date: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := msg.ToMessagePack()
	if err != nil {
		t.Fatalf("ToMessagePack failed: %v", err)
	}

	got, err := FromMessagePack(data)
	if err != nil {
		t.Fatalf("FromMessagePack failed: %v", err)
	}
	if got.Cc != nil || got.Bcc != nil || got.Extra != nil || got.Attachments != nil {
		t.Errorf("Expected empty collections to stay nil, got %+v", got)
	}
	got.Date = msg.Date
	if !reflect.DeepEqual(got, msg) {
		t.Errorf("Round trip mismatch:\n got: %+v\nwant: %+v", got, msg)
	}
}

func TestMessagePack_StreamRoundTrip(t *testing.T) {
	msg := fullTestMessage()

	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := msg.EncodeMsg(w); err != nil {
		t.Fatalf("EncodeMsg failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	var got Message
	if err := got.DecodeMsg(msgp.NewReader(&buf)); err != nil {
		t.Fatalf("DecodeMsg failed: %v", err)
	}
	if !got.Date.Equal(msg.Date) {
		t.Errorf("Expected date %v, got %v", msg.Date, got.Date)
	}
	got.Date = msg.Date
	if !reflect.DeepEqual(&got, msg) {
		t.Errorf("Stream round trip mismatch:\n got: %+v\nwant: %+v", &got, msg)
	}
}

func TestMessagePack_Truncated(t *testing.T) {
	data, err := fullTestMessage().ToMessagePack()
	if err != nil {
		t.Fatalf("ToMessagePack failed: %v", err)
	}

	if _, err := FromMessagePack(data[:len(data)/2]); err == nil {
		t.Error("Expected error for truncated input")
	}
	if _, err := FromMessagePack(nil); err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestMessagePack_WrongShape(t *testing.T) {
	// A MailboxAddress encodes as a three element array, not a
	// Message.
	data, err := MailboxAddress{LocalPart: "a", Domain: "b"}.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("MarshalMsg failed: %v", err)
	}
	if _, err := FromMessagePack(data); err == nil {
		t.Error("Expected error for wrong array size")
	}
}

func TestMessagePack_Msgsize(t *testing.T) {
	msg := fullTestMessage()
	data, err := msg.ToMessagePack()
	if err != nil {
		t.Fatalf("ToMessagePack failed: %v", err)
	}
	if len(data) > msg.Msgsize() {
		t.Errorf("Encoded size %d exceeds Msgsize estimate %d", len(data), msg.Msgsize())
	}
}
