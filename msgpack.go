package quill

import (
	"github.com/tinylib/msgp/msgp"
)

// MessagePack codec methods for Message and its component types,
// written against the msgp runtime. Each type encodes as a fixed-size
// array of its fields in declaration order, which is compact and keeps
// the format stable as long as fields are only appended.

const (
	mailboxFields    = 3
	headerFields     = 2
	attachmentFields = 5
	messageFields    = 12
)

// ToMessagePack serializes the Message to MessagePack bytes.
func (m *Message) ToMessagePack() ([]byte, error) {
	return m.MarshalMsg(nil)
}

// FromMessagePack deserializes a Message from MessagePack bytes.
func FromMessagePack(data []byte) (*Message, error) {
	var m Message
	if _, err := m.UnmarshalMsg(data); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarshalMsg implements msgp.Marshaler.
func (m MailboxAddress) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, m.Msgsize())
	o = msgp.AppendArrayHeader(o, mailboxFields)
	o = msgp.AppendString(o, m.LocalPart)
	o = msgp.AppendString(o, m.Domain)
	o = msgp.AppendString(o, m.DisplayName)
	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (m *MailboxAddress) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, msgp.WrapError(err, "MailboxAddress")
	}
	if sz != mailboxFields {
		return b, msgp.ArrayError{Wanted: mailboxFields, Got: sz}
	}
	if m.LocalPart, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "LocalPart")
	}
	if m.Domain, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "Domain")
	}
	if m.DisplayName, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "DisplayName")
	}
	return o, nil
}

// EncodeMsg implements msgp.Encodable.
func (m MailboxAddress) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(mailboxFields); err != nil {
		return err
	}
	if err := en.WriteString(m.LocalPart); err != nil {
		return err
	}
	if err := en.WriteString(m.Domain); err != nil {
		return err
	}
	return en.WriteString(m.DisplayName)
}

// DecodeMsg implements msgp.Decodable.
func (m *MailboxAddress) DecodeMsg(dc *msgp.Reader) error {
	sz, err := dc.ReadArrayHeader()
	if err != nil {
		return msgp.WrapError(err, "MailboxAddress")
	}
	if sz != mailboxFields {
		return msgp.ArrayError{Wanted: mailboxFields, Got: sz}
	}
	if m.LocalPart, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "LocalPart")
	}
	if m.Domain, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "Domain")
	}
	if m.DisplayName, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "DisplayName")
	}
	return nil
}

// Msgsize implements msgp.Sizer.
func (m MailboxAddress) Msgsize() int {
	return msgp.ArrayHeaderSize + 3*msgp.StringPrefixSize +
		len(m.LocalPart) + len(m.Domain) + len(m.DisplayName)
}

// MarshalMsg implements msgp.Marshaler.
func (h Header) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, h.Msgsize())
	o = msgp.AppendArrayHeader(o, headerFields)
	o = msgp.AppendString(o, h.Name)
	o = msgp.AppendString(o, h.Value)
	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (h *Header) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, msgp.WrapError(err, "Header")
	}
	if sz != headerFields {
		return b, msgp.ArrayError{Wanted: headerFields, Got: sz}
	}
	if h.Name, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "Name")
	}
	if h.Value, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "Value")
	}
	return o, nil
}

// EncodeMsg implements msgp.Encodable.
func (h Header) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(headerFields); err != nil {
		return err
	}
	if err := en.WriteString(h.Name); err != nil {
		return err
	}
	return en.WriteString(h.Value)
}

// DecodeMsg implements msgp.Decodable.
func (h *Header) DecodeMsg(dc *msgp.Reader) error {
	sz, err := dc.ReadArrayHeader()
	if err != nil {
		return msgp.WrapError(err, "Header")
	}
	if sz != headerFields {
		return msgp.ArrayError{Wanted: headerFields, Got: sz}
	}
	if h.Name, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "Name")
	}
	if h.Value, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "Value")
	}
	return nil
}

// Msgsize implements msgp.Sizer.
func (h Header) Msgsize() int {
	return msgp.ArrayHeaderSize + 2*msgp.StringPrefixSize + len(h.Name) + len(h.Value)
}

// MarshalMsg implements msgp.Marshaler.
func (a Attachment) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, a.Msgsize())
	o = msgp.AppendArrayHeader(o, attachmentFields)
	o = msgp.AppendString(o, a.Filename)
	o = msgp.AppendString(o, a.ContentType)
	o = msgp.AppendBytes(o, a.Data)
	o = msgp.AppendBool(o, a.Inline)
	o = msgp.AppendString(o, a.ContentID)
	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (a *Attachment) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, msgp.WrapError(err, "Attachment")
	}
	if sz != attachmentFields {
		return b, msgp.ArrayError{Wanted: attachmentFields, Got: sz}
	}
	if a.Filename, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "Filename")
	}
	if a.ContentType, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "ContentType")
	}
	if a.Data, o, err = msgp.ReadBytesBytes(o, a.Data[:0]); err != nil {
		return b, msgp.WrapError(err, "Data")
	}
	if a.Inline, o, err = msgp.ReadBoolBytes(o); err != nil {
		return b, msgp.WrapError(err, "Inline")
	}
	if a.ContentID, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "ContentID")
	}
	return o, nil
}

// EncodeMsg implements msgp.Encodable.
func (a Attachment) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(attachmentFields); err != nil {
		return err
	}
	if err := en.WriteString(a.Filename); err != nil {
		return err
	}
	if err := en.WriteString(a.ContentType); err != nil {
		return err
	}
	if err := en.WriteBytes(a.Data); err != nil {
		return err
	}
	if err := en.WriteBool(a.Inline); err != nil {
		return err
	}
	return en.WriteString(a.ContentID)
}

// DecodeMsg implements msgp.Decodable.
func (a *Attachment) DecodeMsg(dc *msgp.Reader) error {
	sz, err := dc.ReadArrayHeader()
	if err != nil {
		return msgp.WrapError(err, "Attachment")
	}
	if sz != attachmentFields {
		return msgp.ArrayError{Wanted: attachmentFields, Got: sz}
	}
	if a.Filename, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "Filename")
	}
	if a.ContentType, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "ContentType")
	}
	if a.Data, err = dc.ReadBytes(a.Data[:0]); err != nil {
		return msgp.WrapError(err, "Data")
	}
	if a.Inline, err = dc.ReadBool(); err != nil {
		return msgp.WrapError(err, "Inline")
	}
	if a.ContentID, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "ContentID")
	}
	return nil
}

// Msgsize implements msgp.Sizer.
func (a Attachment) Msgsize() int {
	return msgp.ArrayHeaderSize + 3*msgp.StringPrefixSize +
		len(a.Filename) + len(a.ContentType) + len(a.ContentID) +
		msgp.BytesPrefixSize + len(a.Data) + msgp.BoolSize
}

// MarshalMsg implements msgp.Marshaler.
func (m *Message) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, m.Msgsize())
	o = msgp.AppendArrayHeader(o, messageFields)
	var err error
	if o, err = m.From.MarshalMsg(o); err != nil {
		return o, msgp.WrapError(err, "From")
	}
	if o, err = m.ReplyTo.MarshalMsg(o); err != nil {
		return o, msgp.WrapError(err, "ReplyTo")
	}
	for _, list := range [][]MailboxAddress{m.To, m.Cc, m.Bcc} {
		o = msgp.AppendArrayHeader(o, uint32(len(list)))
		for _, addr := range list {
			if o, err = addr.MarshalMsg(o); err != nil {
				return o, msgp.WrapError(err, "Recipients")
			}
		}
	}
	o = msgp.AppendString(o, m.Subject)
	o = msgp.AppendTime(o, m.Date)
	o = msgp.AppendString(o, m.MessageID)
	o = msgp.AppendArrayHeader(o, uint32(len(m.Extra)))
	for _, h := range m.Extra {
		if o, err = h.MarshalMsg(o); err != nil {
			return o, msgp.WrapError(err, "Extra")
		}
	}
	o = msgp.AppendString(o, m.Text)
	o = msgp.AppendString(o, m.HTML)
	o = msgp.AppendArrayHeader(o, uint32(len(m.Attachments)))
	for _, a := range m.Attachments {
		if o, err = a.MarshalMsg(o); err != nil {
			return o, msgp.WrapError(err, "Attachments")
		}
	}
	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (m *Message) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, msgp.WrapError(err, "Message")
	}
	if sz != messageFields {
		return b, msgp.ArrayError{Wanted: messageFields, Got: sz}
	}
	if o, err = m.From.UnmarshalMsg(o); err != nil {
		return b, msgp.WrapError(err, "From")
	}
	if o, err = m.ReplyTo.UnmarshalMsg(o); err != nil {
		return b, msgp.WrapError(err, "ReplyTo")
	}
	for _, list := range []*[]MailboxAddress{&m.To, &m.Cc, &m.Bcc} {
		var n uint32
		if n, o, err = msgp.ReadArrayHeaderBytes(o); err != nil {
			return b, msgp.WrapError(err, "Recipients")
		}
		*list = nil
		if n > 0 {
			*list = make([]MailboxAddress, n)
		}
		for i := range *list {
			if o, err = (*list)[i].UnmarshalMsg(o); err != nil {
				return b, msgp.WrapError(err, "Recipients")
			}
		}
	}
	if m.Subject, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "Subject")
	}
	if m.Date, o, err = msgp.ReadTimeBytes(o); err != nil {
		return b, msgp.WrapError(err, "Date")
	}
	if m.MessageID, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "MessageID")
	}
	var n uint32
	if n, o, err = msgp.ReadArrayHeaderBytes(o); err != nil {
		return b, msgp.WrapError(err, "Extra")
	}
	m.Extra = nil
	if n > 0 {
		m.Extra = make(Headers, n)
	}
	for i := range m.Extra {
		if o, err = m.Extra[i].UnmarshalMsg(o); err != nil {
			return b, msgp.WrapError(err, "Extra")
		}
	}
	if m.Text, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "Text")
	}
	if m.HTML, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "HTML")
	}
	if n, o, err = msgp.ReadArrayHeaderBytes(o); err != nil {
		return b, msgp.WrapError(err, "Attachments")
	}
	m.Attachments = nil
	if n > 0 {
		m.Attachments = make([]Attachment, n)
	}
	for i := range m.Attachments {
		if o, err = m.Attachments[i].UnmarshalMsg(o); err != nil {
			return b, msgp.WrapError(err, "Attachments")
		}
	}
	return o, nil
}

// EncodeMsg implements msgp.Encodable.
func (m *Message) EncodeMsg(en *msgp.Writer) error {
	if err := en.WriteArrayHeader(messageFields); err != nil {
		return err
	}
	if err := m.From.EncodeMsg(en); err != nil {
		return msgp.WrapError(err, "From")
	}
	if err := m.ReplyTo.EncodeMsg(en); err != nil {
		return msgp.WrapError(err, "ReplyTo")
	}
	for _, list := range [][]MailboxAddress{m.To, m.Cc, m.Bcc} {
		if err := en.WriteArrayHeader(uint32(len(list))); err != nil {
			return err
		}
		for _, addr := range list {
			if err := addr.EncodeMsg(en); err != nil {
				return msgp.WrapError(err, "Recipients")
			}
		}
	}
	if err := en.WriteString(m.Subject); err != nil {
		return err
	}
	if err := en.WriteTime(m.Date); err != nil {
		return err
	}
	if err := en.WriteString(m.MessageID); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(m.Extra))); err != nil {
		return err
	}
	for _, h := range m.Extra {
		if err := h.EncodeMsg(en); err != nil {
			return msgp.WrapError(err, "Extra")
		}
	}
	if err := en.WriteString(m.Text); err != nil {
		return err
	}
	if err := en.WriteString(m.HTML); err != nil {
		return err
	}
	if err := en.WriteArrayHeader(uint32(len(m.Attachments))); err != nil {
		return err
	}
	for _, a := range m.Attachments {
		if err := a.EncodeMsg(en); err != nil {
			return msgp.WrapError(err, "Attachments")
		}
	}
	return nil
}

// DecodeMsg implements msgp.Decodable.
func (m *Message) DecodeMsg(dc *msgp.Reader) error {
	sz, err := dc.ReadArrayHeader()
	if err != nil {
		return msgp.WrapError(err, "Message")
	}
	if sz != messageFields {
		return msgp.ArrayError{Wanted: messageFields, Got: sz}
	}
	if err := m.From.DecodeMsg(dc); err != nil {
		return msgp.WrapError(err, "From")
	}
	if err := m.ReplyTo.DecodeMsg(dc); err != nil {
		return msgp.WrapError(err, "ReplyTo")
	}
	for _, list := range []*[]MailboxAddress{&m.To, &m.Cc, &m.Bcc} {
		n, err := dc.ReadArrayHeader()
		if err != nil {
			return msgp.WrapError(err, "Recipients")
		}
		*list = nil
		if n > 0 {
			*list = make([]MailboxAddress, n)
		}
		for i := range *list {
			if err := (*list)[i].DecodeMsg(dc); err != nil {
				return msgp.WrapError(err, "Recipients")
			}
		}
	}
	if m.Subject, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "Subject")
	}
	if m.Date, err = dc.ReadTime(); err != nil {
		return msgp.WrapError(err, "Date")
	}
	if m.MessageID, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "MessageID")
	}
	n, err := dc.ReadArrayHeader()
	if err != nil {
		return msgp.WrapError(err, "Extra")
	}
	m.Extra = nil
	if n > 0 {
		m.Extra = make(Headers, n)
	}
	for i := range m.Extra {
		if err := m.Extra[i].DecodeMsg(dc); err != nil {
			return msgp.WrapError(err, "Extra")
		}
	}
	if m.Text, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "Text")
	}
	if m.HTML, err = dc.ReadString(); err != nil {
		return msgp.WrapError(err, "HTML")
	}
	if n, err = dc.ReadArrayHeader(); err != nil {
		return msgp.WrapError(err, "Attachments")
	}
	m.Attachments = nil
	if n > 0 {
		m.Attachments = make([]Attachment, n)
	}
	for i := range m.Attachments {
		if err := m.Attachments[i].DecodeMsg(dc); err != nil {
			return msgp.WrapError(err, "Attachments")
		}
	}
	return nil
}

// Msgsize implements msgp.Sizer.
func (m *Message) Msgsize() int {
	sz := msgp.ArrayHeaderSize +
		m.From.Msgsize() + m.ReplyTo.Msgsize() +
		3*msgp.ArrayHeaderSize +
		4*msgp.StringPrefixSize + len(m.Subject) + len(m.MessageID) + len(m.Text) + len(m.HTML) +
		msgp.TimeSize +
		2*msgp.ArrayHeaderSize
	for _, list := range [][]MailboxAddress{m.To, m.Cc, m.Bcc} {
		for _, addr := range list {
			sz += addr.Msgsize()
		}
	}
	for _, h := range m.Extra {
		sz += h.Msgsize()
	}
	for _, a := range m.Attachments {
		sz += a.Msgsize()
	}
	return sz
}
