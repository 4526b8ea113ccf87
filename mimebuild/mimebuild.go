// Package mimebuild constructs and serializes MIME part trees
// (RFC 2045, RFC 2046) for outgoing messages.
//
// Construction helpers build the common shapes: a single text or HTML
// part, multipart/alternative for text+HTML, and multipart/mixed for
// attachments. Serialization is deterministic for a fixed boundary, so
// a DKIM signature computed over the serialized body stays valid for
// the transmitted bytes.
package mimebuild

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// ContentTransferEncoding represents the encoding used for the MIME part's body.
type ContentTransferEncoding string

const (
	// Encoding7Bit is for 7-bit ASCII data (RFC 2045 default).
	Encoding7Bit ContentTransferEncoding = "7bit"
	// Encoding8Bit is for 8-bit data (requires 8BITMIME).
	Encoding8Bit ContentTransferEncoding = "8bit"
	// EncodingQuotedPrintable is for quoted-printable encoding.
	EncodingQuotedPrintable ContentTransferEncoding = "quoted-printable"
	// EncodingBase64 is for base64 encoding.
	EncodingBase64 ContentTransferEncoding = "base64"
)

// ValidCompositeEncodings lists valid encodings for composite types (RFC 2045).
var ValidCompositeEncodings = map[ContentTransferEncoding]bool{
	Encoding7Bit: true,
	Encoding8Bit: true,
}

// ErrInvalidCompositeEncoding is returned for invalid composite type encodings (RFC 2045).
var ErrInvalidCompositeEncoding = errors.New("composite types (multipart, message) can only use 7bit or 8bit encoding")

// IsCompositeType returns true if the media type is a composite type (multipart or message).
func IsCompositeType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "multipart/") || strings.HasPrefix(mediaType, "message/")
}

// ValidateCompositeEncoding validates composite type encodings (RFC 2045).
func ValidateCompositeEncoding(mediaType string, encoding ContentTransferEncoding) error {
	if !IsCompositeType(mediaType) {
		return nil
	}
	if encoding == "" {
		return nil // Will default to 7bit
	}
	if !ValidCompositeEncodings[encoding] {
		return ErrInvalidCompositeEncoding
	}
	return nil
}

// Part represents a MIME body part (RFC 2045, RFC 2046).
//
// For leaf parts, Body holds the already-encoded content and
// ContentTransferEncoding names its encoding. For multipart parts,
// Boundary separates the nested Parts and Body is unused.
type Part struct {
	// ContentType is the media type (e.g. "text/plain", "image/png",
	// "multipart/mixed"), without parameters.
	ContentType string `json:"content_type,omitempty"`

	// ContentTransferEncoding specifies how Body is encoded.
	ContentTransferEncoding ContentTransferEncoding `json:"content_transfer_encoding,omitempty"`

	// Charset is the character set for text parts (e.g. "utf-8").
	Charset string `json:"charset,omitempty"`

	// Filename is the suggested filename for attachment parts.
	Filename string `json:"filename,omitempty"`

	// ContentID is the Content-ID for inline parts (used with
	// multipart/related and cid: references), without angle brackets.
	ContentID string `json:"content_id,omitempty"`

	// Boundary is the multipart boundary for composite parts.
	Boundary string `json:"boundary,omitempty"`

	// Body is the encoded content of this part.
	Body []byte `json:"body,omitempty"`

	// Parts contains nested parts for multipart content types.
	Parts []*Part `json:"parts,omitempty"`
}

// IsMultipart returns true if this part is a multipart container.
func (p *Part) IsMultipart() bool {
	return strings.HasPrefix(p.ContentType, "multipart/") && len(p.Parts) > 0
}

// ContentTypeValue returns the full Content-Type header value for the
// part, including charset, boundary and name parameters.
func (p *Part) ContentTypeValue() string {
	var b strings.Builder
	b.WriteString(p.ContentType)
	if p.Charset != "" && strings.HasPrefix(p.ContentType, "text/") {
		b.WriteString("; charset=\"")
		b.WriteString(p.Charset)
		b.WriteString("\"")
	}
	if strings.HasPrefix(p.ContentType, "multipart/") && p.Boundary != "" {
		b.WriteString("; boundary=\"")
		b.WriteString(p.Boundary)
		b.WriteString("\"")
	}
	if p.Filename != "" {
		b.WriteString("; name=\"")
		b.WriteString(p.Filename)
		b.WriteString("\"")
	}
	return b.String()
}

// HeaderLines renders the part's MIME headers, one "Name: value\r\n"
// line each. For the top-level part of a message these lines join the
// message header section.
func (p *Part) HeaderLines() string {
	var b strings.Builder

	if p.ContentType != "" {
		b.WriteString("Content-Type: ")
		b.WriteString(p.ContentTypeValue())
		b.WriteString("\r\n")
	}

	if p.Filename != "" {
		b.WriteString("Content-Disposition: attachment; filename=\"")
		b.WriteString(p.Filename)
		b.WriteString("\"\r\n")
	} else if p.ContentID != "" {
		b.WriteString("Content-Disposition: inline\r\n")
	}

	if p.ContentTransferEncoding != "" {
		b.WriteString("Content-Transfer-Encoding: ")
		b.WriteString(string(p.ContentTransferEncoding))
		b.WriteString("\r\n")
	}

	if p.ContentID != "" {
		b.WriteString("Content-ID: <")
		b.WriteString(p.ContentID)
		b.WriteString(">\r\n")
	}

	return b.String()
}

// ToBytes serializes the MIME part body back to raw bytes. For
// multipart containers, it recursively serializes all nested parts
// between boundary delimiters.
func (p *Part) ToBytes() ([]byte, error) {
	if !p.IsMultipart() {
		return p.Body, nil
	}

	if p.Boundary == "" {
		return nil, errors.New("multipart part missing boundary")
	}

	estimatedSize := 0
	for _, part := range p.Parts {
		estimatedSize += len(part.Body) + 256
	}
	buf := bytes.NewBuffer(make([]byte, 0, estimatedSize))

	for _, part := range p.Parts {
		buf.WriteString("--")
		buf.WriteString(p.Boundary)
		buf.WriteString("\r\n")
		buf.WriteString(part.HeaderLines())
		buf.WriteString("\r\n")

		partBody, err := part.ToBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(partBody)
		buf.WriteString("\r\n")
	}

	buf.WriteString("--")
	buf.WriteString(p.Boundary)
	buf.WriteString("--\r\n")

	return buf.Bytes(), nil
}

// HeaderGetter is an interface for types that can retrieve header values.
type HeaderGetter interface {
	Get(name string) string
}

// Parse parses MIME content from headers and body, detecting whether
// the content is single-part or multipart. Per RFC 2045 Section 5.2 it
// defaults to text/plain; charset=us-ascii when Content-Type is missing
// or invalid.
func Parse(headers HeaderGetter, body []byte) (*Part, error) {
	contentType := headers.Get("Content-Type")
	if contentType == "" {
		return &Part{
			ContentType:             "text/plain",
			Charset:                 "us-ascii",
			ContentTransferEncoding: Encoding7Bit,
			Body:                    body,
		}, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return &Part{
			ContentType:             "text/plain",
			Charset:                 "us-ascii",
			ContentTransferEncoding: Encoding7Bit,
			Body:                    body,
		}, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return parseMultipart(body, mediaType, params)
	}

	return parseSinglePart(headers, body, mediaType, params)
}

// parseSinglePart handles non-multipart MIME content.
func parseSinglePart(headers HeaderGetter, body []byte, mediaType string, params map[string]string) (*Part, error) {
	part := &Part{
		ContentType:             mediaType,
		ContentTransferEncoding: Encoding7Bit,
		Body:                    body,
	}

	if charset, ok := params["charset"]; ok {
		part.Charset = charset
	}

	if cte := headers.Get("Content-Transfer-Encoding"); cte != "" {
		part.ContentTransferEncoding = ContentTransferEncoding(strings.ToLower(cte))
	}

	if contentID := headers.Get("Content-ID"); contentID != "" {
		part.ContentID = strings.Trim(contentID, "<>")
	}

	if contentDisp := headers.Get("Content-Disposition"); contentDisp != "" {
		_, dispParams, err := mime.ParseMediaType(contentDisp)
		if err == nil {
			if filename, ok := dispParams["filename"]; ok {
				part.Filename = filename
			}
		}
	}

	return part, nil
}

// parseMultipart handles multipart MIME content.
func parseMultipart(body []byte, mediaType string, params map[string]string) (*Part, error) {
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return nil, errors.New("multipart Content-Type missing boundary parameter")
	}

	rootPart := &Part{
		ContentType: mediaType,
		Boundary:    boundary,
		Parts:       make([]*Part, 0, 4),
	}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)

	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("error reading multipart section: %w", err)
		}

		mimePart, err := parseMultipartSection(part)
		if err != nil {
			return nil, fmt.Errorf("error parsing multipart section: %w", err)
		}

		rootPart.Parts = append(rootPart.Parts, mimePart)
	}

	if len(rootPart.Parts) == 0 {
		return nil, errors.New("multipart message contains no parts")
	}

	return rootPart, nil
}

// parseMultipartSection parses a single part of a multipart message.
func parseMultipartSection(part *multipart.Part) (*Part, error) {
	mimePart := &Part{
		ContentTransferEncoding: Encoding7Bit,
	}

	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		// Default to text/plain per RFC 2045.
		mimePart.ContentType = "text/plain"
		mimePart.Charset = "us-ascii"
	} else {
		mediaType, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("invalid Content-Type in part: %w", err)
		}
		mimePart.ContentType = mediaType

		if charset, ok := params["charset"]; ok {
			mimePart.Charset = charset
		}

		// Nested multipart parses recursively from the raw part body.
		if strings.HasPrefix(mediaType, "multipart/") {
			body := bytes.NewBuffer(make([]byte, 0, 4096))
			if _, err := body.ReadFrom(part); err != nil {
				return nil, fmt.Errorf("error reading nested multipart body: %w", err)
			}
			return parseMultipart(body.Bytes(), mediaType, params)
		}
	}

	if cte := part.Header.Get("Content-Transfer-Encoding"); cte != "" {
		mimePart.ContentTransferEncoding = ContentTransferEncoding(strings.ToLower(cte))
	}

	if contentID := part.Header.Get("Content-ID"); contentID != "" {
		mimePart.ContentID = strings.Trim(contentID, "<>")
	}

	if contentDisp := part.Header.Get("Content-Disposition"); contentDisp != "" {
		_, dispParams, err := mime.ParseMediaType(contentDisp)
		if err == nil {
			if filename, ok := dispParams["filename"]; ok {
				mimePart.Filename = filename
			}
		}
	}

	body := bytes.NewBuffer(make([]byte, 0, 4096))
	if _, err := body.ReadFrom(part); err != nil {
		return nil, fmt.Errorf("error reading part body: %w", err)
	}
	mimePart.Body = body.Bytes()

	return mimePart, nil
}
