package http

import "errors"

var (
	ErrRedirectLoop     = errors.New("evnet/http: redirect loop detected")
	ErrTooManyRedirects = errors.New("evnet/http: too many redirects")
	ErrMissingLocation  = errors.New("evnet/http: redirect response missing Location header")
)
