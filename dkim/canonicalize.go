package dkim

import "strings"

// headerList is an ordered mapping from lower-cased header name to its
// canonical "name:value" line. A later occurrence of a name replaces
// the stored line but keeps the position of the first occurrence, so
// iteration order always reflects first appearance in the message.
type headerList struct {
	names []string
	lines map[string]string
}

func newHeaderList() *headerList {
	return &headerList{lines: make(map[string]string)}
}

func (l *headerList) set(name, line string) {
	if _, ok := l.lines[name]; !ok {
		l.names = append(l.names, name)
	}
	l.lines[name] = line
}

func (l *headerList) get(name string) (string, bool) {
	line, ok := l.lines[name]
	return line, ok
}

// joined returns every canonical line in order, CRLF-separated, with no
// trailing CRLF.
func (l *headerList) joined() string {
	var b strings.Builder
	for i, name := range l.names {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(l.lines[name])
	}
	return b.String()
}

// canonicalizeHeaders applies relaxed header canonicalization (RFC 6376
// Section 3.4.2) to a raw header block and filters it down to the
// signable set. Folded continuation lines are joined, whitespace runs
// collapse to a single space, names are lower-cased and values trimmed.
// Only headers whose name is in keep, or the dkim-signature header
// itself, are retained.
func canonicalizeHeaders(block string, keep map[string]bool) *headerList {
	list := newHeaderList()
	for _, line := range strings.Split(unfoldHeaders(block), "\r\n") {
		if line == "" {
			continue
		}
		line = compressWSP(line)
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if !keep[name] && name != "dkim-signature" {
			continue
		}
		list.set(name, name+":"+value)
	}
	return list
}

// canonicalizeBody applies relaxed body canonicalization (RFC 6376
// Section 3.4.4): whitespace runs within each line collapse to a single
// space, trailing whitespace is stripped from every line, and any run
// of trailing empty lines reduces to exactly one terminating CRLF. An
// empty body canonicalizes to a single CRLF.
func canonicalizeBody(body string) string {
	if body == "" {
		return "\r\n"
	}
	lines := strings.Split(body, "\r\n")
	for i, line := range lines {
		lines[i] = compressWSP(line)
	}
	out := strings.Join(lines, "\r\n")
	for strings.HasSuffix(out, "\r\n\r\n") {
		out = out[:len(out)-2]
	}
	if !strings.HasSuffix(out, "\r\n") {
		out += "\r\n"
	}
	return out
}

// unfoldHeaders joins folded header continuations in a single pass: a
// CRLF followed by a run of spaces or tabs becomes one space.
func unfoldHeaders(block string) string {
	var b strings.Builder
	b.Grow(len(block))
	for i := 0; i < len(block); {
		if block[i] == '\r' && i+2 < len(block) && block[i+1] == '\n' &&
			(block[i+2] == ' ' || block[i+2] == '\t') {
			j := i + 2
			for j < len(block) && (block[j] == ' ' || block[j] == '\t') {
				j++
			}
			b.WriteByte(' ')
			i = j
			continue
		}
		b.WriteByte(block[i])
		i++
	}
	return b.String()
}

// compressWSP reduces every run of spaces and tabs to a single space.
// A run at the end of the string is dropped entirely.
func compressWSP(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			inRun = true
			continue
		}
		if inRun {
			b.WriteByte(' ')
			inRun = false
		}
		b.WriteByte(c)
	}
	return b.String()
}
