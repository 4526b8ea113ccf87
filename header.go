package quill

import (
	"strings"
)

// Header represents a message header field as per RFC 5322.
type Header struct {
	// Name is the header field name (e.g., "From", "Subject").
	Name string `json:"name"`
	// Value is the header field value.
	Value string `json:"value"`
}

// Headers is an ordered collection of message headers with helper
// methods. Name matching is case-insensitive everywhere.
type Headers []Header

// Get returns the first header value with the given name.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// GetAll returns all header values with the given name.
func (h Headers) GetAll(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Add appends a header, keeping any existing fields with the same name.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Set replaces the first header with the given name and drops the rest.
// When the name is absent the header is appended.
func (h *Headers) Set(name, value string) {
	out := make(Headers, 0, len(*h)+1)
	replaced := false
	for _, hdr := range *h {
		if strings.EqualFold(hdr.Name, name) {
			if !replaced {
				out = append(out, Header{Name: hdr.Name, Value: value})
				replaced = true
			}
			continue
		}
		out = append(out, hdr)
	}
	if !replaced {
		out = append(out, Header{Name: name, Value: value})
	}
	*h = out
}

// Del removes all headers with the given name.
func (h *Headers) Del(name string) {
	out := make(Headers, 0, len(*h))
	for _, hdr := range *h {
		if !strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr)
		}
	}
	*h = out
}

// foldWidth is the target line length for folded header fields
// (RFC 5322 recommends 78 octets; the traditional wrap point is 76).
const foldWidth = 76

// renderHeader writes "Name: value\r\n", folding long values onto
// tab-indented continuation lines at whitespace boundaries. Folding
// never lands on the separator space after the name, and a value with
// no foldable whitespace is left on one line.
func renderHeader(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")

	avail := foldWidth - len(name) - 2
	rest := value
	for len(rest) > avail && avail > 0 {
		// Fold at the last space within the width, else at the first
		// space beyond it.
		fold := strings.LastIndexByte(rest[:avail+1], ' ')
		if fold <= 0 {
			if fold = strings.IndexByte(rest[avail:], ' '); fold < 0 {
				break
			}
			fold += avail
		}
		b.WriteString(rest[:fold])
		b.WriteString("\r\n\t")
		rest = rest[fold+1:]
		avail = foldWidth - 1
	}
	b.WriteString(rest)
	b.WriteString("\r\n")
}
