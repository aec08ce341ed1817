// Copyright (C) 2024 The REPE Authors.

package repe

import "fmt"

// Message is a fully framed REPE request, response, or notification: a
// Header plus its query and body sections.
type Message struct {
	Header Header
	Query  []byte
	Body   []byte
}

// MessageOption configures NewMessage.
type MessageOption func(*messageOpts)

type messageOpts struct {
	notify bool
	ec     ErrorCode
}

// WithNotify marks the constructed message as a notification (no response
// expected).
func WithNotify() MessageOption { return func(o *messageOpts) { o.notify = true } }

// WithErrorCode sets the message's error code (used for responses).
func WithErrorCode(ec ErrorCode) MessageOption { return func(o *messageOpts) { o.ec = ec } }

// NewMessage constructs a Message with consistent header lengths. query is
// encoded as UTF-8 bytes; body is used as-is (already encoded by the
// caller, typically via a Codec). queryFormat and bodyFormat tag the two
// sections for the receiver.
func NewMessage(id uint64, query string, queryFormat QueryFormat, body []byte, bodyFormat BodyFormat, opts ...MessageOption) Message {
	var o messageOpts
	for _, opt := range opts {
		opt(&o)
	}
	qb := []byte(query)
	h := Header{
		Spec:        Spec,
		Version:     Version,
		Notify:      o.notify,
		ID:          id,
		QueryLength: uint64(len(qb)),
		BodyLength:  uint64(len(body)),
		QueryFormat: queryFormat,
		BodyFormat:  bodyFormat,
		EC:          o.ec,
	}
	h.Length = HeaderLength + h.QueryLength + h.BodyLength
	return Message{Header: h, Query: qb, Body: body}
}

// Encode serializes m to its wire form: header, query, then body.
func (m Message) Encode() []byte {
	buf := make([]byte, 0, HeaderLength+len(m.Query)+len(m.Body))
	buf = append(buf, m.Header.Encode()...)
	buf = append(buf, m.Query...)
	buf = append(buf, m.Body...)
	return buf
}

// DecodeMessage parses a complete wire buffer into a Message. It fails if
// buf is shorter than the header declares.
func DecodeMessage(buf []byte) (Message, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Message{}, err
	}
	want := HeaderLength + h.QueryLength + h.BodyLength
	if uint64(len(buf)) < want {
		return Message{}, wireErrorf(InvalidHeader, "truncated message (%d < %d bytes)", len(buf), want)
	}
	q := buf[HeaderLength : HeaderLength+h.QueryLength]
	b := buf[HeaderLength+h.QueryLength : want]
	return Message{Header: h, Query: q, Body: b}, nil
}

// ParseQuery decodes m's query section as UTF-8. The REPE query format tag
// (RawBinary vs JSONPointer) governs how a caller subsequently interprets
// the string; ParseQuery always just returns the raw text.
func (m Message) ParseQuery() string { return string(m.Query) }

// ParseBody decodes m's body section using the codec registered for its
// BodyFormat in codecs, returning a generic Go value (map/slice/etc. for
// JSON and CBOR).
func (m Message) ParseBody(codecs CodecSet) (any, error) {
	c, err := codecs.lookup(m.Header.BodyFormat)
	if err != nil {
		return nil, err
	}
	return c.Decode(m.Body)
}

// ParseBodyAs decodes m's body section into the shape of out (a pointer),
// using the codec registered for its BodyFormat. Only JSON and CBOR
// ("BEVE") support structured decode targets; any other format fails with
// InvalidBody.
func (m Message) ParseBodyAs(codecs CodecSet, out any) error {
	c, err := codecs.lookup(m.Header.BodyFormat)
	if err != nil {
		return err
	}
	td, ok := c.(TypedCodec)
	if !ok {
		return wireErrorf(InvalidBody, "format %d does not support typed decode", m.Header.BodyFormat)
	}
	return td.DecodeAs(m.Body, out)
}

// String returns a human-readable rendering of m for logs and tests.
func (m Message) String() string {
	kind := "request"
	if m.Header.Notify {
		kind = "notify"
	}
	return fmt.Sprintf("Message(%s id=%d query=%q ec=%v body=%d bytes)", kind, m.Header.ID, m.ParseQuery(), m.Header.EC, len(m.Body))
}
