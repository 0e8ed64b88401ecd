// Package http implements the HTTP/1.1 codec, client, and server components
// layered on top of evnet's TCPChannel (spec.md §4.9–§4.13).
package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// defaultPorts maps a URL scheme to its implicit port, used when a URL
// omits one explicitly, matching the source's HttpUrl::getPort() fallback.
var defaultPorts = map[string]uint16{
	"http":  80,
	"https": 443,
	"ws":    80,
	"wss":   443,
}

// URL is the parsed form of an HTTP or WebSocket URL, the Go analogue of the
// source's HttpUrl (http.hpp): component accessors rather than a single
// opaque string, because Client and the WebSocket handshake helpers need to
// rewrite individual fields (e.g. scheme on a redirect from http to https).
type URL struct {
	Scheme   string
	User     string
	Password string
	Host     string
	Port     uint16
	Path     string
	Query    string
	Fragment string

	portExplicit bool
}

// ParseURL parses raw into a URL, filling Port from defaultPorts when the
// input omits one.
func ParseURL(raw string) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("evnet/http: %q has no scheme", raw)
	}

	out := &URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     u.Hostname(),
		Path:     u.EscapedPath(),
		Query:    u.RawQuery,
		Fragment: u.Fragment,
	}
	if out.Path == "" {
		out.Path = "/"
	}
	if u.User != nil {
		out.User = u.User.Username()
		out.Password, _ = u.User.Password()
	}

	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("evnet/http: invalid port in %q: %w", raw, err)
		}
		out.Port = uint16(port)
		out.portExplicit = true
	} else if def, ok := defaultPorts[out.Scheme]; ok {
		out.Port = def
	}

	return out, nil
}

// SetPort overrides the URL's port, marking it explicit so String always
// renders it.
func (u *URL) SetPort(port uint16) {
	u.Port = port
	u.portExplicit = true
}

// IsDefaultPort reports whether Port matches the scheme's implicit default.
func (u *URL) IsDefaultPort() bool {
	def, ok := defaultPorts[u.Scheme]
	return ok && def == u.Port
}

// HostPort renders "host:port" suitable for evnet.ResolveTCPName / dialing.
func (u *URL) HostPort() string {
	return u.Host + ":" + strconv.Itoa(int(u.Port))
}

// RequestTarget renders the path?query form used on an HTTP/1.1 request
// line.
func (u *URL) RequestTarget() string {
	if u.Query == "" {
		return u.Path
	}
	return u.Path + "?" + u.Query
}

// String renders the full URL, omitting the port when it is the scheme's
// unexplicit default.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != "" {
		b.WriteString(u.User)
		if u.Password != "" {
			b.WriteString(":")
			b.WriteString(u.Password)
		}
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	if u.portExplicit || !u.IsDefaultPort() {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(int(u.Port)))
	}
	b.WriteString(u.RequestTarget())
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// Clone returns a deep copy, used when building a redirect target from a
// base URL.
func (u *URL) Clone() *URL {
	c := *u
	return &c
}
