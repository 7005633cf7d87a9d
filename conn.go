// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// State is the lifecycle state of a [Conn].
type State int

const (
	// StateIdle means the connection was never started, or was aborted.
	StateIdle State = iota

	// StateRunning means the connection is registered with a [Manager].
	StateRunning

	// StateFinished means the connection finished and recorded a result.
	StateFinished
)

// String returns a short human-readable label for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Options is the configuration of one transfer, read by the [Engine] via
// [TransferSource.Options] when the transfer starts.
//
// Mutate through the [Conn] setters. By convention options are immutable
// while the connection is running.
type Options struct {
	// Verbose asks the engine to emit detailed information about the
	// transfer through its own logging.
	Verbose bool

	// URL is the transfer URL.
	URL string

	// Proxy is the proxy to use, empty for none.
	Proxy string

	// ProxyUsername and ProxyPassword authenticate against the proxy.
	ProxyUsername string
	ProxyPassword string

	// ConnectOnly asks to establish the connection without transferring
	// any data.
	ConnectOnly bool

	// VerifyCertificate controls peer certificate verification. The
	// default is true.
	VerifyCertificate bool

	// VerifyHost controls certificate name verification against the
	// host. The default is true.
	VerifyHost bool

	// CertificateFile is the path of a file holding one or more
	// certificates to verify the peer with, empty for the system default.
	CertificateFile string

	// RequestBody is the request body served by the default in-memory
	// body source. Ignored when a read-body callback is set.
	RequestBody []byte

	// ReceiveBody controls whether a response body is expected. Must be
	// set to false for responses without a body. The default is true.
	ReceiveBody bool

	// EnableProgress enables the progress meter. When disabled the
	// progress callback is never invoked. The default is false.
	EnableProgress bool

	// ConnectTimeout bounds the connect phase; zero means the engine
	// default.
	ConnectTimeout time.Duration

	// Timeout bounds the whole transfer; zero means no timeout.
	Timeout time.Duration

	// LowSpeedLimit and LowSpeedTime define the low-speed timeout: the
	// transfer fails when the average speed stays below LowSpeedLimit
	// bytes per second for LowSpeedTime. Zero in either disables it.
	LowSpeedLimit int64
	LowSpeedTime  time.Duration

	// HTTPPost selects the HTTP POST method.
	HTTPPost bool

	// HTTPHeaders are request header lines in "Field: value" form.
	HTTPHeaders []string

	// FollowRedirects asks the engine to follow HTTP redirects.
	FollowRedirects bool

	// MaxRedirects bounds the number of redirects followed; zero means
	// the engine default.
	MaxRedirects int
}

// ReadBodyFunc supplies request-body bytes, replacing the in-memory body.
// It follows the [io.Reader] contract: return [io.EOF] once the body is
// exhausted. Any other error aborts the transfer.
type ReadBodyFunc func(conn *Conn, p []byte) (int, error)

// SeekBodyFunc repositions a custom body source, with whence being one of
// [io.SeekStart], [io.SeekCurrent], and [io.SeekEnd]. Provide it together
// with a [ReadBodyFunc]; it must reposition the same cursor that reading
// advances. An error aborts the transfer.
type SeekBodyFunc func(conn *Conn, whence int, offset int64) error

// WriteHeaderFunc consumes response-header bytes, replacing the in-memory
// header buffer. An error aborts the transfer.
type WriteHeaderFunc func(conn *Conn, header []byte) error

// WriteBodyFunc consumes response-body bytes, replacing the in-memory body
// buffer. An error aborts the transfer.
type WriteBodyFunc func(conn *Conn, body []byte) error

// ProgressFunc receives progress-meter updates. An error aborts the
// transfer.
type ProgressFunc func(conn *Conn, downloadTotal, downloadNow, uploadTotal, uploadNow int64) error

// FinishedFunc is invoked exactly once per run when the transfer finishes.
// It is never invoked for aborted runs.
type FinishedFunc func(conn *Conn)

// Conn is one transfer: its configuration, per-run mutable state, and
// result.
//
// Configure a Conn with the setter methods, register a finished callback
// with [Conn.SetFinishedCallback], and hand it to [Manager.Start]. Once the
// finished callback has fired, read the outcome with [Conn.Result],
// [Conn.ResponseHeader], and [Conn.ResponseBody]. Getters return undefined
// values while the connection has not finished.
//
// A Conn is shared between the caller and the [Manager]: the manager holds
// it only while it is running and releases it when the run finishes or is
// aborted. Restarting a finished or aborted Conn begins a fresh run with
// cleanly reset per-run state.
//
// Conn is not safe for concurrent use; like everything in this package it
// belongs to the event-loop goroutine.
//
// For HTTP there is [HTTPConn] with HTTP-specific setters and getters.
type Conn struct {
	// engine is the engine this connection was opened against.
	engine Engine

	// handle is the engine-assigned transfer identity.
	handle Handle

	// opts is the transfer configuration.
	opts Options

	// Caller-supplied callbacks, all optional.
	readBodyFunc    ReadBodyFunc
	seekBodyFunc    SeekBodyFunc
	writeHeaderFunc WriteHeaderFunc
	writeBodyFunc   WriteBodyFunc
	progressFunc    ProgressFunc
	finishedFunc    FinishedFunc

	// resetExtra lets derived connection types reset their own per-run
	// state; see [NewHTTPConn].
	resetExtra func()

	// Per-run mutable state.
	state      State
	result     error
	bodyCursor int64
	respHeader []byte
	respBody   []byte
	runID      string

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	TimeNow func() time.Time
}

var _ TransferSource = &Conn{}

// NewConn creates a [*Conn] and opens a transfer handle for it inside the
// given engine.
//
// The cfg argument contains the common configuration for muxio components.
func NewConn(cfg *Config, engine Engine) (*Conn, error) {
	c := &Conn{
		engine: engine,
		opts: Options{
			VerifyCertificate: true,
			VerifyHost:        true,
			ReceiveBody:       true,
		},
		Logger:  cfg.Logger,
		TimeNow: cfg.TimeNow,
	}
	handle, err := engine.Open(c)
	if err != nil {
		return nil, err
	}
	c.handle = handle
	return c, nil
}

// Handle returns the engine-assigned transfer identity.
func (c *Conn) Handle() Handle {
	return c.handle
}

// Close releases the engine handle. The connection must not be running and
// must not be used afterwards. Abort a running connection before closing it.
func (c *Conn) Close() {
	c.engine.Close(c.handle)
}

// State returns the lifecycle state.
func (c *Conn) State() State {
	return c.state
}

// RunID returns the UUIDv7 identifying the current run. It is empty before
// the first start.
func (c *Conn) RunID() string {
	return c.runID
}

// Result returns the transfer result: nil for success, otherwise an error
// describing the failure. The value is undefined unless [Conn.State] is
// [StateFinished].
func (c *Conn) Result() error {
	return c.result
}

// ResponseHeader returns the accumulated response header. It is empty when
// a write-header callback is set, and undefined before the connection has
// finished.
func (c *Conn) ResponseHeader() []byte {
	return c.respHeader
}

// ResponseBody returns the accumulated response body. It is empty when a
// write-body callback is set, and undefined before the connection has
// finished.
func (c *Conn) ResponseBody() []byte {
	return c.respBody
}

// Options implements [TransferSource].
func (c *Conn) Options() Options {
	return c.opts
}

// SetVerbose asks the engine to emit detailed transfer information.
func (c *Conn) SetVerbose(verbose bool) {
	c.opts.Verbose = verbose
}

// SetURL sets the URL used in the transfer.
func (c *Conn) SetURL(url string) {
	c.opts.URL = url
}

// SetProxy sets the proxy used in the transfer.
func (c *Conn) SetProxy(proxy string) {
	c.opts.Proxy = proxy
}

// SetProxyAccount sets the authenticated account for the proxy.
func (c *Conn) SetProxyAccount(username, password string) {
	c.opts.ProxyUsername = username
	c.opts.ProxyPassword = password
}

// SetConnectOnly asks to connect to the server without transferring data.
func (c *Conn) SetConnectOnly(connectOnly bool) {
	c.opts.ConnectOnly = connectOnly
}

// SetVerifyCertificate controls peer certificate verification. The default
// is true.
func (c *Conn) SetVerifyCertificate(verify bool) {
	c.opts.VerifyCertificate = verify
}

// SetVerifyHost controls certificate name verification against the host.
// The default is true.
func (c *Conn) SetVerifyHost(verify bool) {
	c.opts.VerifyHost = verify
}

// SetCertificateFile sets the path of a file holding one or more
// certificates to verify the peer with.
func (c *Conn) SetCertificateFile(path string) {
	c.opts.CertificateFile = path
}

// SetRequestBody sets the request body served by the default in-memory
// body source. The body is ignored once a read-body callback is set.
func (c *Conn) SetRequestBody(body []byte) {
	c.opts.RequestBody = body
}

// SetReceiveBody controls whether a response body is expected. It must be
// set to false for responses without a body, otherwise the transfer would
// stall. The default is true.
func (c *Conn) SetReceiveBody(receive bool) {
	c.opts.ReceiveBody = receive
}

// SetEnableProgress enables the progress meter. When the meter is disabled
// the progress callback is never invoked. The default is false.
func (c *Conn) SetEnableProgress(enable bool) {
	c.opts.EnableProgress = enable
}

// SetConnectTimeout bounds the connect phase. Zero restores the engine
// default.
func (c *Conn) SetConnectTimeout(timeout time.Duration) {
	c.opts.ConnectTimeout = timeout
}

// SetTimeout bounds the whole transfer. Zero means no timeout.
func (c *Conn) SetTimeout(timeout time.Duration) {
	c.opts.Timeout = timeout
}

// SetLowSpeedTimeout fails the transfer when the average speed stays below
// lowSpeedLimit bytes per second for the given duration. Zero in either
// argument disables the timeout.
func (c *Conn) SetLowSpeedTimeout(lowSpeedLimit int64, timeout time.Duration) {
	c.opts.LowSpeedLimit = lowSpeedLimit
	c.opts.LowSpeedTime = timeout
}

// SetIdleTimeout bounds how long the transfer may be idle. This is a
// shortcut for [Conn.SetLowSpeedTimeout] with the speed limit set to one
// byte per second.
func (c *Conn) SetIdleTimeout(timeout time.Duration) {
	limit := int64(1)
	if timeout == 0 {
		limit = 0
	}
	c.SetLowSpeedTimeout(limit, timeout)
}

// SetReadBodyCallback installs a custom request-body source. When set, the
// body installed with [Conn.SetRequestBody] is ignored.
func (c *Conn) SetReadBodyCallback(fn ReadBodyFunc) {
	c.readBodyFunc = fn
}

// SetSeekBodyCallback installs the seek companion of a custom request-body
// source. Provide it along with the read-body callback: engines seek to
// rewind the body when a resend is needed.
func (c *Conn) SetSeekBodyCallback(fn SeekBodyFunc) {
	c.seekBodyFunc = fn
}

// SetWriteHeaderCallback installs a custom response-header sink. When set,
// [Conn.ResponseHeader] returns an empty slice.
func (c *Conn) SetWriteHeaderCallback(fn WriteHeaderFunc) {
	c.writeHeaderFunc = fn
}

// SetWriteBodyCallback installs a custom response-body sink. When set,
// [Conn.ResponseBody] returns an empty slice.
func (c *Conn) SetWriteBodyCallback(fn WriteBodyFunc) {
	c.writeBodyFunc = fn
}

// SetProgressCallback installs the progress-meter callback. Remember to
// also call [Conn.SetEnableProgress].
func (c *Conn) SetProgressCallback(fn ProgressFunc) {
	c.progressFunc = fn
}

// SetFinishedCallback installs the callback invoked exactly once per run
// when the transfer finishes. Aborted runs never invoke it.
func (c *Conn) SetFinishedCallback(fn FinishedFunc) {
	c.finishedFunc = fn
}

// willStart resets all per-run mutable state ahead of a fresh run. Called
// by [Manager.Start]; callable any number of times between runs.
func (c *Conn) willStart() {
	c.state = StateRunning
	c.result = nil
	c.bodyCursor = 0
	c.respHeader = nil
	c.respBody = nil
	c.runID = NewRunID()
	if c.resetExtra != nil {
		c.resetExtra()
	}
}

// didFinish records the result, marks the connection finished, and invokes
// the finished callback, if any. Called by the [Manager] completion drain,
// at most once per run.
func (c *Conn) didFinish(result error) {
	c.state = StateFinished
	c.result = result
	if c.finishedFunc != nil {
		c.finishedFunc(c)
	}
}

// didAbort reverts the connection to not-running without recording a
// result and without firing the finished callback. Called by
// [Manager.Abort].
func (c *Conn) didAbort() {
	c.state = StateIdle
}

// ReadBody implements [TransferSource].
func (c *Conn) ReadBody(p []byte) (int, error) {
	if c.readBodyFunc != nil {
		count, err := c.readBodyFunc(c, p)
		if err != nil && !errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: %w", ErrReadBodyAbort, err)
		}
		c.logIO("readBody", int64(count), err)
		return count, err
	}
	remain := int64(len(c.opts.RequestBody)) - c.bodyCursor
	if remain <= 0 {
		c.logIO("readBody", 0, io.EOF)
		return 0, io.EOF
	}
	count := copy(p, c.opts.RequestBody[c.bodyCursor:])
	c.bodyCursor += int64(count)
	c.logIO("readBody", int64(count), nil)
	return count, nil
}

// SeekBody implements [TransferSource].
func (c *Conn) SeekBody(whence int, offset int64) error {
	err := c.seekBody(whence, offset)
	c.logIO("seekBody", offset, err)
	return err
}

func (c *Conn) seekBody(whence int, offset int64) error {
	// A custom body source seeks through its own callback; the in-memory
	// body is not the cursor being repositioned in that case.
	if c.readBodyFunc != nil {
		if c.seekBodyFunc == nil {
			return ErrSeekBodyAbort
		}
		if err := c.seekBodyFunc(c, whence, offset); err != nil {
			return fmt.Errorf("%w: %w", ErrSeekBodyAbort, err)
		}
		return nil
	}
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = c.bodyCursor
	case io.SeekEnd:
		base = int64(len(c.opts.RequestBody))
	default:
		return ErrSeekOutOfRange
	}
	position := base + offset
	if position < 0 || position > int64(len(c.opts.RequestBody)) {
		return ErrSeekOutOfRange
	}
	c.bodyCursor = position
	return nil
}

// WriteHeader implements [TransferSource].
func (c *Conn) WriteHeader(header []byte) error {
	var err error
	if c.writeHeaderFunc != nil {
		if cberr := c.writeHeaderFunc(c, header); cberr != nil {
			err = fmt.Errorf("%w: %w", ErrWriteHeaderAbort, cberr)
		}
	} else {
		c.respHeader = append(c.respHeader, header...)
	}
	c.logIO("writeHeader", int64(len(header)), err)
	return err
}

// WriteBody implements [TransferSource].
func (c *Conn) WriteBody(body []byte) error {
	var err error
	if c.writeBodyFunc != nil {
		if cberr := c.writeBodyFunc(c, body); cberr != nil {
			err = fmt.Errorf("%w: %w", ErrWriteBodyAbort, cberr)
		}
	} else {
		c.respBody = append(c.respBody, body...)
	}
	c.logIO("writeBody", int64(len(body)), err)
	return err
}

// Progress implements [TransferSource].
func (c *Conn) Progress(downloadTotal, downloadNow, uploadTotal, uploadNow int64) error {
	if c.progressFunc == nil {
		return nil
	}
	if err := c.progressFunc(c, downloadTotal, downloadNow, uploadTotal, uploadNow); err != nil {
		return fmt.Errorf("%w: %w", ErrProgressAbort, err)
	}
	return nil
}

func (c *Conn) logIO(event string, count int64, err error) {
	c.Logger.Debug(
		event,
		slog.Uint64("handle", uint64(c.handle)),
		slog.Int64("count", count),
		slog.Any("err", err),
		slog.String("runId", c.runID),
		slog.Time("t", c.TimeNow()),
	)
}
