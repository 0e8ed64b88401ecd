package http

import (
	"strconv"
	"strings"
)

type headerField struct {
	name  string
	value string
}

// Header is an insertion-ordered, case-insensitive collection of HTTP
// header fields, the Go analogue of the source's HttpHeader (http.hpp),
// which preserves field order for faithful re-serialization instead of
// collapsing into a map.
type Header struct {
	fields []headerField
}

// NewHeader constructs an empty Header.
func NewHeader() *Header { return &Header{} }

// Set replaces all existing values for name with a single value.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Add appends a value for name without removing existing ones, for headers
// like Set-Cookie that may repeat.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, headerField{name: name, value: value})
}

// Get returns the first value for name, or "" if absent.
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return f.value
		}
	}
	return ""
}

// Values returns every value set for name, in insertion order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			out = append(out, f.value)
		}
	}
	return out
}

// Has reports whether name has at least one value.
func (h *Header) Has(name string) bool { return h.Get(name) != "" }

// Del removes every value for name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Fields returns the header fields in insertion order, for serialization.
func (h *Header) Fields() []struct{ Name, Value string } {
	out := make([]struct{ Name, Value string }, len(h.fields))
	for i, f := range h.fields {
		out[i] = struct{ Name, Value string }{f.name, f.value}
	}
	return out
}

// ContentLength parses the Content-Length header, returning ok=false when
// absent or malformed.
func (h *Header) ContentLength() (n int64, ok bool) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetContentLength sets Content-Length to n.
func (h *Header) SetContentLength(n int64) {
	h.Set("Content-Length", strconv.FormatInt(n, 10))
}

// IsChunked reports whether Transfer-Encoding names "chunked" as its final
// (innermost-listed-last, per RFC 7230 §3.3.1) coding.
func (h *Header) IsChunked() bool {
	v := h.Get("Transfer-Encoding")
	if v == "" {
		return false
	}
	codings := strings.Split(v, ",")
	last := strings.TrimSpace(codings[len(codings)-1])
	return strings.EqualFold(last, "chunked")
}

// WriteTo serializes the header fields as "Name: Value\r\n" lines, without
// the terminating blank line (callers append that themselves after any
// other header sections).
func (h *Header) WriteTo(b *strings.Builder) {
	for _, f := range h.fields {
		b.WriteString(f.name)
		b.WriteString(": ")
		b.WriteString(f.value)
		b.WriteString("\r\n")
	}
}
