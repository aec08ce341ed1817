// Copyright (C) 2024 The REPE Authors.

package repe

import (
	"bytes"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	m := NewMessage(7, "/add", QueryJSONPointer, []byte(`{"a":5,"b":3}`), BodyJSON)
	got, err := DecodeMessage(m.Encode())
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Header != m.Header {
		t.Fatalf("Header = %+v, want %+v", got.Header, m.Header)
	}
	if !bytes.Equal(got.Query, m.Query) || !bytes.Equal(got.Body, m.Body) {
		t.Fatalf("DecodeMessage query/body mismatch: got %q/%q, want %q/%q", got.Query, got.Body, m.Query, m.Body)
	}
}

func TestMessageTruncatedBuffer(t *testing.T) {
	m := NewMessage(1, "/x", QueryJSONPointer, []byte("0123456789"), BodyRawBinary)
	buf := m.Encode()
	if _, err := DecodeMessage(buf[:len(buf)-1]); err == nil {
		t.Fatal("DecodeMessage on truncated buffer: got nil error")
	}
}

func TestMessageParseQuery(t *testing.T) {
	m := NewMessage(1, "/status", QueryJSONPointer, nil, BodyJSON)
	if got := m.ParseQuery(); got != "/status" {
		t.Fatalf("ParseQuery() = %q, want /status", got)
	}
}

func TestMessageParseBody(t *testing.T) {
	codecs := DefaultCodecs()
	m := NewMessage(1, "/echo", QueryJSONPointer, []byte(`{"message":"hi"}`), BodyJSON)
	v, err := m.ParseBody(codecs)
	if err != nil {
		t.Fatalf("ParseBody: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok || obj["message"] != "hi" {
		t.Fatalf("ParseBody = %#v, want map with message=hi", v)
	}
}

func TestMessageParseBodyAs(t *testing.T) {
	type params struct {
		Message string `json:"message"`
	}
	codecs := DefaultCodecs()
	m := NewMessage(1, "/echo", QueryJSONPointer, []byte(`{"message":"hi"}`), BodyJSON)
	var p params
	if err := m.ParseBodyAs(codecs, &p); err != nil {
		t.Fatalf("ParseBodyAs: %v", err)
	}
	if p.Message != "hi" {
		t.Fatalf("ParseBodyAs Message = %q, want hi", p.Message)
	}
}

func TestMessageParseBodyAsRejectsUntyped(t *testing.T) {
	codecs := DefaultCodecs()
	m := NewMessage(1, "/x", QueryJSONPointer, []byte("hello"), BodyUTF8)
	var out string
	if err := m.ParseBodyAs(codecs, &out); err == nil {
		t.Fatal("ParseBodyAs on BodyUTF8: got nil error, want InvalidBody")
	}
}

func TestNotifyMessageHasNotifyFlag(t *testing.T) {
	m := NewMessage(3, "/log", QueryJSONPointer, nil, BodyJSON, WithNotify())
	if !m.Header.Notify {
		t.Fatal("WithNotify: Header.Notify = false")
	}
}
