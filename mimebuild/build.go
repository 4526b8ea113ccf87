package mimebuild

import (
	"bytes"
	"encoding/base64"
	"mime/quotedprintable"
	"strings"

	"github.com/synqronlabs/quill/utils"
)

// Text builds a text/plain part. Line endings are normalized to CRLF.
// Non-ASCII content is quoted-printable encoded so the part survives
// transports without 8BITMIME; pure ASCII stays 7bit.
func Text(body string) *Part {
	return textPart("text/plain", body)
}

// HTML builds a text/html part. Line endings are normalized to CRLF.
func HTML(body string) *Part {
	return textPart("text/html", body)
}

func textPart(contentType, body string) *Part {
	normalized := normalizeCRLF(body)
	part := &Part{
		ContentType: contentType,
		Charset:     "utf-8",
	}
	if utils.ContainsNonASCII(normalized) {
		part.ContentTransferEncoding = EncodingQuotedPrintable
		part.Body = encodeQuotedPrintable([]byte(normalized))
	} else {
		part.ContentTransferEncoding = Encoding7Bit
		part.Body = []byte(normalized)
	}
	return part
}

// Attachment builds an attachment part with base64 encoded content.
// An empty contentType defaults to application/octet-stream.
func Attachment(filename, contentType string, data []byte) *Part {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Part{
		ContentType:             contentType,
		ContentTransferEncoding: EncodingBase64,
		Filename:                filename,
		Body:                    encodeBase64MIME(data),
	}
}

// Inline builds an inline part referenced by Content-ID, for embedding
// images in HTML bodies via cid: URLs.
func Inline(contentID, contentType string, data []byte) *Part {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Part{
		ContentType:             contentType,
		ContentTransferEncoding: EncodingBase64,
		ContentID:               contentID,
		Body:                    encodeBase64MIME(data),
	}
}

// Multipart builds a multipart container with a random boundary.
// Subtype is "alternative", "mixed" or "related".
func Multipart(subtype string, parts ...*Part) *Part {
	return MultipartWithBoundary(subtype, utils.RandomHex(16), parts...)
}

// MultipartWithBoundary builds a multipart container with an explicit
// boundary, for callers that need reproducible serialization.
func MultipartWithBoundary(subtype, boundary string, parts ...*Part) *Part {
	return &Part{
		ContentType: "multipart/" + subtype,
		Boundary:    boundary,
		Parts:       parts,
	}
}

// Alternative wraps parts in multipart/alternative; order them least
// preferred first (text before HTML).
func Alternative(parts ...*Part) *Part {
	return Multipart("alternative", parts...)
}

// Mixed wraps parts in multipart/mixed, the container for messages
// with attachments.
func Mixed(parts ...*Part) *Part {
	return Multipart("mixed", parts...)
}

// encodeQuotedPrintable encodes data per RFC 2045 Section 6.7, with
// soft line breaks keeping encoded lines at or under 76 characters.
func encodeQuotedPrintable(data []byte) []byte {
	var buf bytes.Buffer
	w := quotedprintable.NewWriter(&buf)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}

// encodeBase64MIME encodes data as base64 split into 76-character
// lines per RFC 2045 Section 6.8.
func encodeBase64MIME(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	var buf bytes.Buffer
	buf.Grow(len(encoded) + 2*(len(encoded)/76+1))
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	return buf.Bytes()
}

// normalizeCRLF converts all line endings to CRLF.
// Handles LF, CR, and CRLF inputs.
func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
