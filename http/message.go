package http

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Request is an HTTP/1.1 request message, the Go analogue of the source's
// HttpRequest (http.hpp).
type Request struct {
	Method  string
	Target  string
	Version string
	Header  *Header
	Body    []byte
}

// NewRequest builds a Request with an empty Header.
func NewRequest(method, target string) *Request {
	return &Request{Method: method, Target: target, Version: "HTTP/1.1", Header: NewHeader()}
}

// Serialize renders the request line, headers, and body to wire format,
// setting Content-Length automatically when Body is non-empty and the
// caller hasn't already set a framing header.
func (r *Request) Serialize() []byte {
	if len(r.Body) > 0 && !r.Header.Has("Content-Length") && !r.Header.Has("Transfer-Encoding") {
		r.Header.SetContentLength(int64(len(r.Body)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\r\n", r.Method, r.Target, r.Version)
	r.Header.WriteTo(&b)
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(r.Body))
	out = append(out, b.String()...)
	out = append(out, r.Body...)
	return out
}

// Response is an HTTP/1.1 response message, the Go analogue of the source's
// HttpResponse (http.hpp).
type Response struct {
	Version    string
	StatusCode int
	StatusText string
	Header     *Header
	Body       []byte
}

// NewResponse builds a Response with an empty Header.
func NewResponse(statusCode int, statusText string) *Response {
	return &Response{Version: "HTTP/1.1", StatusCode: statusCode, StatusText: statusText, Header: NewHeader()}
}

// Serialize renders the status line, headers, and body to wire format. When
// resp carries neither Content-Length nor Transfer-Encoding, Content-Length
// is set from the body; a response with an empty body and a 1xx, 204 or 304
// status is left without one.
func (resp *Response) Serialize() []byte {
	framed := resp.Header.Has("Content-Length") || resp.Header.Has("Transfer-Encoding")
	bodyless := resp.StatusCode < 200 || resp.StatusCode == 204 || resp.StatusCode == 304
	if !framed && (len(resp.Body) > 0 || !bodyless) {
		resp.Header.SetContentLength(int64(len(resp.Body)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s\r\n", resp.Version, resp.StatusCode, resp.StatusText)
	resp.Header.WriteTo(&b)
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(resp.Body))
	out = append(out, b.String()...)
	out = append(out, resp.Body...)
	return out
}

// IsSuccess reports whether StatusCode is in the 2xx range.
func (resp *Response) IsSuccess() bool { return resp.StatusCode >= 200 && resp.StatusCode < 300 }

// IsRedirect reports whether StatusCode is one Client follows automatically
// (301, 302, 303, 307, 308).
func (resp *Response) IsRedirect() bool {
	switch resp.StatusCode {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

// parseStartAndHeaders splits raw into its start line, parsed headers, and
// whatever bytes remain after the blank line separating headers from body.
// ok is false if raw doesn't yet contain a complete header block.
func parseStartAndHeaders(raw []byte) (startLine string, header *Header, rest []byte, ok bool) {
	idx := bytes.Index(raw, []byte("\r\n\r\n"))
	if idx < 0 {
		return "", nil, nil, false
	}

	head := raw[:idx]
	rest = raw[idx+4:]

	lines := bytes.Split(head, []byte("\r\n"))
	startLine = string(lines[0])

	header = NewHeader()
	for _, line := range lines[1:] {
		name, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		header.Add(string(bytes.TrimSpace(name)), string(bytes.TrimSpace(value)))
	}
	return startLine, header, rest, true
}

// ParseRequestLine parses raw's header block into a Request with no Body
// set (the caller streams the body separately per Content-Length/chunked
// framing). ok is false if raw has no complete header block yet.
func ParseRequestLine(raw []byte) (*Request, []byte, bool) {
	startLine, header, rest, ok := parseStartAndHeaders(raw)
	if !ok {
		return nil, nil, false
	}
	parts := strings.SplitN(startLine, " ", 3)
	if len(parts) != 3 {
		return nil, nil, false
	}
	req := &Request{Method: parts[0], Target: parts[1], Version: parts[2], Header: header}
	return req, rest, true
}

// ParseResponseLine parses raw's header block into a Response with no Body
// set. ok is false if raw has no complete header block yet.
func ParseResponseLine(raw []byte) (*Response, []byte, bool) {
	startLine, header, rest, ok := parseStartAndHeaders(raw)
	if !ok {
		return nil, nil, false
	}
	parts := strings.SplitN(startLine, " ", 3)
	if len(parts) < 2 {
		return nil, nil, false
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, nil, false
	}
	text := ""
	if len(parts) == 3 {
		text = parts[2]
	}
	resp := &Response{Version: parts[0], StatusCode: code, StatusText: text, Header: header}
	return resp, rest, true
}
