package mimebuild

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

// headerMap adapts a plain map to the HeaderGetter interface.
type headerMap map[string]string

func (h headerMap) Get(name string) string { return h[name] }

func TestText(t *testing.T) {
	part := Text("Hello world")
	if part.ContentType != "text/plain" || part.Charset != "utf-8" {
		t.Errorf("Text part = %q charset %q", part.ContentType, part.Charset)
	}
	if part.ContentTransferEncoding != Encoding7Bit {
		t.Errorf("ASCII text encoding = %q, want 7bit", part.ContentTransferEncoding)
	}
	if string(part.Body) != "Hello world" {
		t.Errorf("ASCII body = %q", part.Body)
	}
}

func TestTextNonASCII(t *testing.T) {
	part := Text("Grüße an alle")
	if part.ContentTransferEncoding != EncodingQuotedPrintable {
		t.Errorf("non-ASCII text encoding = %q, want quoted-printable", part.ContentTransferEncoding)
	}
	if string(part.Body) != "Gr=C3=BC=C3=9Fe an alle" {
		t.Errorf("quoted-printable body = %q", part.Body)
	}
}

func TestTextNormalizesLineEndings(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a\nb", "a\r\nb"},
		{"a\rb", "a\r\nb"},
		{"a\r\nb", "a\r\nb"},
		{"a\n\nb", "a\r\n\r\nb"},
	}
	for _, tt := range tests {
		if got := string(Text(tt.in).Body); got != tt.want {
			t.Errorf("Text(%q).Body = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHTML(t *testing.T) {
	part := HTML("<p>Hi</p>")
	if part.ContentType != "text/html" {
		t.Errorf("HTML content type = %q", part.ContentType)
	}
	if string(part.Body) != "<p>Hi</p>" {
		t.Errorf("HTML body = %q", part.Body)
	}
}

func TestAttachment(t *testing.T) {
	data := bytes.Repeat([]byte{0xab}, 100)
	part := Attachment("blob.bin", "", data)

	if part.ContentType != "application/octet-stream" {
		t.Errorf("default content type = %q", part.ContentType)
	}
	if part.ContentTransferEncoding != EncodingBase64 {
		t.Errorf("attachment encoding = %q, want base64", part.ContentTransferEncoding)
	}

	lines := strings.Split(string(part.Body), "\r\n")
	if len(lines) != 2 || len(lines[0]) != 76 {
		t.Errorf("base64 body not wrapped at 76 chars: %v line lengths", len(lines))
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(part.Body), "\r\n", ""))
	if err != nil {
		t.Fatalf("base64 decode failed: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("decoded attachment does not match the original data")
	}
}

func TestInline(t *testing.T) {
	part := Inline("logo", "image/png", []byte{1, 2, 3})
	if part.ContentID != "logo" {
		t.Errorf("content ID = %q", part.ContentID)
	}

	headers := part.HeaderLines()
	if !strings.Contains(headers, "Content-Disposition: inline\r\n") {
		t.Errorf("expected inline disposition in %q", headers)
	}
	if !strings.Contains(headers, "Content-ID: <logo>\r\n") {
		t.Errorf("expected bracketed Content-ID in %q", headers)
	}
}

func TestHeaderLinesAttachment(t *testing.T) {
	part := Attachment("report.pdf", "application/pdf", []byte("%PDF"))
	want := "Content-Type: application/pdf; name=\"report.pdf\"\r\n" +
		"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n"
	if got := part.HeaderLines(); got != want {
		t.Errorf("HeaderLines() = %q, want %q", got, want)
	}
}

func TestMultipartBoundaries(t *testing.T) {
	part := Multipart("mixed", Text("a"), Text("b"))
	if !part.IsMultipart() {
		t.Fatal("expected a multipart container")
	}
	if len(part.Boundary) != 32 {
		t.Errorf("random boundary length = %d, want 32", len(part.Boundary))
	}

	other := Multipart("mixed", Text("a"))
	if part.Boundary == other.Boundary {
		t.Error("expected boundaries to differ between containers")
	}
}

func TestToBytesGolden(t *testing.T) {
	part := MultipartWithBoundary("alternative", "BOUNDARY",
		Text("Hello"),
		HTML("<p>Hello</p>"),
	)
	got, err := part.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes failed: %v", err)
	}

	want := "--BOUNDARY\r\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
		"Content-Transfer-Encoding: 7bit\r\n" +
		"\r\n" +
		"Hello\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/html; charset=\"utf-8\"\r\n" +
		"Content-Transfer-Encoding: 7bit\r\n" +
		"\r\n" +
		"<p>Hello</p>\r\n" +
		"--BOUNDARY--\r\n"
	if string(got) != want {
		t.Errorf("serialized multipart:\n%q\nwant:\n%q", got, want)
	}
}

func TestToBytesMissingBoundary(t *testing.T) {
	part := &Part{ContentType: "multipart/mixed", Parts: []*Part{Text("a")}}
	if _, err := part.ToBytes(); err == nil {
		t.Error("expected error for multipart without boundary")
	}
}

func TestValidateCompositeEncoding(t *testing.T) {
	tests := []struct {
		mediaType string
		encoding  ContentTransferEncoding
		wantErr   bool
	}{
		{"multipart/mixed", Encoding7Bit, false},
		{"multipart/mixed", Encoding8Bit, false},
		{"multipart/mixed", "", false},
		{"multipart/mixed", EncodingBase64, true},
		{"message/rfc822", EncodingQuotedPrintable, true},
		{"text/plain", EncodingBase64, false},
	}
	for _, tt := range tests {
		err := ValidateCompositeEncoding(tt.mediaType, tt.encoding)
		if gotErr := err != nil; gotErr != tt.wantErr {
			t.Errorf("ValidateCompositeEncoding(%q, %q) error = %v, wantErr %v",
				tt.mediaType, tt.encoding, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidCompositeEncoding) {
			t.Errorf("expected ErrInvalidCompositeEncoding, got %v", err)
		}
	}
}

func TestParseDefaults(t *testing.T) {
	part, err := Parse(headerMap{}, []byte("plain body"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if part.ContentType != "text/plain" || part.Charset != "us-ascii" {
		t.Errorf("missing Content-Type parsed as %q charset %q", part.ContentType, part.Charset)
	}

	part, err = Parse(headerMap{"Content-Type": ";;;garbage"}, []byte("body"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if part.ContentType != "text/plain" {
		t.Errorf("invalid Content-Type parsed as %q, want text/plain fallback", part.ContentType)
	}
}

func TestParseSinglePart(t *testing.T) {
	headers := headerMap{
		"Content-Type":              `text/plain; charset=iso-8859-1`,
		"Content-Transfer-Encoding": "Quoted-Printable",
		"Content-ID":                "<cid123>",
		"Content-Disposition":       `attachment; filename="notes.txt"`,
	}
	part, err := Parse(headers, []byte("body =E4"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if part.Charset != "iso-8859-1" {
		t.Errorf("charset = %q", part.Charset)
	}
	if part.ContentTransferEncoding != EncodingQuotedPrintable {
		t.Errorf("encoding = %q, want quoted-printable (lowercased)", part.ContentTransferEncoding)
	}
	if part.ContentID != "cid123" {
		t.Errorf("Content-ID = %q, want brackets stripped", part.ContentID)
	}
	if part.Filename != "notes.txt" {
		t.Errorf("filename = %q", part.Filename)
	}
	// Single part bodies stay as transmitted; decoding is the
	// caller's concern.
	if string(part.Body) != "body =E4" {
		t.Errorf("body = %q", part.Body)
	}
}

func TestParseMultipartMissingBoundary(t *testing.T) {
	_, err := Parse(headerMap{"Content-Type": "multipart/mixed"}, []byte("body"))
	if err == nil {
		t.Error("expected error for multipart without boundary parameter")
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := MultipartWithBoundary("mixed", "outer1",
		MultipartWithBoundary("alternative", "inner1",
			Text("plain"),
			HTML("<p>plain</p>"),
		),
		Attachment("a.bin", "", []byte{1, 2, 3}),
	)
	serialized, err := original.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes failed: %v", err)
	}

	parsed, err := Parse(headerMap{"Content-Type": original.ContentTypeValue()}, serialized)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if parsed.Boundary != "outer1" || len(parsed.Parts) != 2 {
		t.Fatalf("parsed root = %q boundary %q with %d parts", parsed.ContentType, parsed.Boundary, len(parsed.Parts))
	}
	inner := parsed.Parts[0]
	if inner.ContentType != "multipart/alternative" || inner.Boundary != "inner1" || len(inner.Parts) != 2 {
		t.Fatalf("nested part = %q boundary %q with %d parts", inner.ContentType, inner.Boundary, len(inner.Parts))
	}
	if got := string(inner.Parts[0].Body); got != "plain" {
		t.Errorf("text alternative body = %q", got)
	}
	attach := parsed.Parts[1]
	if attach.Filename != "a.bin" || attach.ContentTransferEncoding != EncodingBase64 {
		t.Errorf("attachment part = %+v", attach)
	}
	if got := string(attach.Body); got != "AQID" {
		t.Errorf("attachment body = %q, want base64 text kept", got)
	}

	// For an ASCII-only tree, reserializing the parsed form restores
	// the exact original bytes since boundaries survive parsing.
	rebuilt, err := parsed.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes on parsed tree failed: %v", err)
	}
	if !bytes.Equal(rebuilt, serialized) {
		t.Errorf("rebuilt tree differs:\n%q\nwant:\n%q", rebuilt, serialized)
	}
}

func TestParseDecodesQuotedPrintableParts(t *testing.T) {
	original := MultipartWithBoundary("mixed", "qp1", Text("Grüße"))
	serialized, err := original.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes failed: %v", err)
	}

	parsed, err := Parse(headerMap{"Content-Type": original.ContentTypeValue()}, serialized)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// The multipart reader transparently decodes quoted-printable
	// sections and drops their Content-Transfer-Encoding header, so
	// the parsed part carries the decoded body with the 7bit default.
	part := parsed.Parts[0]
	if got := string(part.Body); got != "Grüße" {
		t.Errorf("decoded body = %q, want %q", got, "Grüße")
	}
	if part.ContentTransferEncoding != Encoding7Bit {
		t.Errorf("encoding after transparent decode = %q, want 7bit", part.ContentTransferEncoding)
	}
}
