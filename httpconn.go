// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import (
	"net/http"
	"strconv"
	"strings"
)

// HTTPConn is a [Conn] with HTTP-specific setters and getters.
//
// It adds request-header management, redirect control, and parsed views of
// the response: the numeric status code and the response headers as an
// [http.Header]. Everything else (lifecycle, callbacks, result getters) is
// inherited from the embedded [Conn], which is what [Manager.Start] and
// [Manager.Abort] accept.
type HTTPConn struct {
	*Conn

	// parsedHeaders caches the lazily parsed response headers.
	parsedHeaders http.Header
}

// NewHTTPConn creates a [*HTTPConn] and opens a transfer handle for it
// inside the given engine.
//
// The cfg argument contains the common configuration for muxio components.
func NewHTTPConn(cfg *Config, engine Engine) (*HTTPConn, error) {
	conn, err := NewConn(cfg, engine)
	if err != nil {
		return nil, err
	}
	hc := &HTTPConn{Conn: conn}
	conn.resetExtra = func() {
		hc.parsedHeaders = nil
	}
	return hc, nil
}

// SetUsePost selects the HTTP POST method.
func (hc *HTTPConn) SetUsePost(usePost bool) {
	hc.opts.HTTPPost = usePost
}

// SetRequestHeaders replaces all request headers. Each value of a
// multi-valued field becomes its own header line.
func (hc *HTTPConn) SetRequestHeaders(headers http.Header) {
	hc.opts.HTTPHeaders = nil
	for field, values := range headers {
		for _, value := range values {
			hc.AddRequestHeader(field, value)
		}
	}
}

// AddRequestHeader appends one request header line, keeping the headers
// set so far.
func (hc *HTTPConn) AddRequestHeader(field, value string) {
	hc.opts.HTTPHeaders = append(hc.opts.HTTPHeaders, field+": "+value)
}

// SetAutoRedirect asks the engine to follow HTTP redirects.
func (hc *HTTPConn) SetAutoRedirect(follow bool) {
	hc.opts.FollowRedirects = follow
}

// SetMaxAutoRedirectCount bounds the number of redirects followed.
func (hc *HTTPConn) SetMaxAutoRedirectCount(count int) {
	hc.opts.MaxRedirects = count
}

// SetForm installs a multipart form as the request body: the rendered body
// becomes the request body, the matching Content-Type header is appended,
// and the POST method is selected.
func (hc *HTTPConn) SetForm(form *Form) error {
	contentType, body, err := form.Build()
	if err != nil {
		return err
	}
	hc.SetRequestBody(body)
	hc.AddRequestHeader("Content-Type", contentType)
	hc.SetUsePost(true)
	return nil
}

// ResponseStatusCode returns the HTTP status code parsed from the status
// line of the response header, or zero when there is none. The value is
// undefined before the connection has finished.
func (hc *HTTPConn) ResponseStatusCode() int {
	statusLine, _, _ := strings.Cut(string(hc.ResponseHeader()), "\r\n")
	// Status line shape: "HTTP/1.1 200 OK". The reason phrase is optional.
	fields := strings.Fields(statusLine)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}

// ResponseHeaders returns the response headers parsed into an
// [http.Header]. Field names are canonicalized and repeated fields
// accumulate their values. The result is empty when a write-header
// callback is set, and undefined before the connection has finished.
//
// Parsing happens on first use and is cached until the next run.
func (hc *HTTPConn) ResponseHeaders() http.Header {
	if hc.parsedHeaders == nil {
		hc.parsedHeaders = parseResponseHeaders(string(hc.ResponseHeader()))
	}
	return hc.parsedHeaders
}

// parseResponseHeaders splits raw response-header text into an
// [http.Header], skipping the status line and anything not shaped like a
// header field. Folded continuation lines are not supported; engines
// normally deliver unfolded headers.
func parseResponseHeaders(raw string) http.Header {
	headers := make(http.Header)
	for _, line := range strings.Split(raw, "\r\n") {
		field, value, found := strings.Cut(line, ":")
		if !found || field == "" {
			continue
		}
		headers.Add(field, strings.TrimLeft(value, " \t"))
	}
	return headers
}
