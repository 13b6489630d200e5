// Package conn drives the request/response protocol for a single
// non-blocking socket.
package conn

import (
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zeebo/pollkv/internal/proto"
	"github.com/zeebo/pollkv/internal/stats"
)

// Error is the class of connection errors.
var Error = errs.Class("conn")

// ErrUnexpectedEOF is the cause of a connection that was closed by the peer
// in the middle of a request.
var ErrUnexpectedEOF = Error.New("unexpected EOF")

// DefaultBufferSize is the initial size of the receive buffer.
const DefaultBufferSize = 1024 + 4

// State is where a connection is in the protocol.
type State int

const (
	// Receiving accumulates bytes until a full request is framed.
	Receiving State = iota
	// Sending writes out the response to the last request.
	Sending
	// Terminated connections do no more I/O and should be closed.
	Terminated
)

func (s State) String() string {
	switch s {
	case Receiving:
		return "receiving"
	case Sending:
		return "sending"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options configure a Conn.
type Options struct {
	Log        *zap.Logger
	Handler    Handler      // defaults to Echo
	Stats      *stats.Stats // optional
	Trace      bool         // log every I/O step at debug level
	BufferSize int          // defaults to DefaultBufferSize
}

// Conn is the protocol state for one socket. It owns the descriptor.
type Conn struct {
	fd    int
	state State
	err   error

	rbuf  []byte
	rlen  int
	wbuf  []byte
	wsent int

	framed  time.Time
	bufSize int
	handler Handler
	log     *zap.Logger
	stats   *stats.Stats
	trace   bool
}

// New returns a Conn in the Receiving state for the non-blocking descriptor.
func New(fd int, opts Options) *Conn {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Handler == nil {
		opts.Handler = Echo
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	return &Conn{
		fd:      fd,
		state:   Receiving,
		rbuf:    make([]byte, opts.BufferSize),
		wbuf:    make([]byte, 0, opts.BufferSize),
		bufSize: opts.BufferSize,
		handler: opts.Handler,
		log:     opts.Log.With(zap.Int("fd", fd)),
		stats:   opts.Stats,
		trace:   opts.Trace,
	}
}

// Fd returns the descriptor.
func (c *Conn) Fd() int { return c.fd }

// State returns the protocol state.
func (c *Conn) State() State { return c.state }

// Err returns why the connection terminated. It is nil for a clean close.
func (c *Conn) Err() error { return c.err }

// Buffered returns the number of request bytes received so far.
func (c *Conn) Buffered() int { return c.rlen }

// Pending returns the number of response bytes not yet written.
func (c *Conn) Pending() int { return len(c.wbuf) - c.wsent }

// Interest returns the poll events the connection is waiting for.
func (c *Conn) Interest() int16 {
	switch c.state {
	case Receiving:
		return unix.POLLIN | unix.POLLERR
	case Sending:
		return unix.POLLOUT | unix.POLLERR
	default:
		return 0
	}
}

// Advance does as much I/O as the socket allows for the current state.
func (c *Conn) Advance() {
	if c.trace {
		c.log.Debug("io available", zap.Stringer("state", c.state))
	}

	switch c.state {
	case Receiving:
		c.receive()
	case Sending:
		c.send()
	}

	if c.trace {
		c.log.Debug("io done", zap.Stringer("state", c.state))
	}
}

// Close closes the descriptor and releases the buffers.
func (c *Conn) Close() error {
	c.log.Debug("closing connection")
	c.state = Terminated
	c.rbuf, c.wbuf = nil, nil
	c.rlen, c.wsent = 0, 0
	return Error.Wrap(unix.Close(c.fd))
}

func (c *Conn) terminate(err error) {
	c.state = Terminated
	c.err = err
	if err != nil {
		c.log.Warn("connection terminated", zap.Error(err))
	}
}

//
// receiving
//

func (c *Conn) receive() {
	for c.state == Receiving && c.read() {
		n, err := proto.Check(c.rbuf[:c.rlen])
		if err != nil {
			c.terminate(err)
			return
		} else if n > 0 {
			c.respond()
			c.state = Sending
		}
	}
}

// read does one read into the receive buffer and reports if another read
// should be attempted.
func (c *Conn) read() bool {
	if c.rlen == len(c.rbuf) {
		c.rbuf = append(c.rbuf, make([]byte, len(c.rbuf))...)
	}

	n, err := readSome(c.fd, c.rbuf[c.rlen:])
	switch {
	case err == unix.EAGAIN:
		return false

	case err != nil:
		c.terminate(Error.Wrap(err))
		return false

	case n == 0 && c.rlen > 0:
		c.log.Warn("unexpected EOF", zap.Int("buffered", c.rlen))
		c.respond()
		c.flushOnce()
		c.terminate(ErrUnexpectedEOF)
		return false

	case n == 0:
		c.log.Debug("EOF")
		c.terminate(nil)
		return false
	}

	c.rlen += n
	if c.trace {
		c.log.Debug("read", zap.Int("bytes", n), zap.Int("buffered", c.rlen))
	}
	return true
}

// respond hands the buffered request to the handler and resets the receive
// buffer.
func (c *Conn) respond() {
	c.wbuf = c.handler.Handle(c.rbuf[:c.rlen], c.wbuf[:0])
	c.wsent = 0
	c.framed = time.Now()

	c.rlen = 0
	if len(c.rbuf) > c.bufSize {
		c.rbuf = make([]byte, c.bufSize)
	}
}

//
// sending
//

func (c *Conn) send() {
	for c.state == Sending && c.write() {
	}
}

// write does one write of the pending response and reports if another write
// should be attempted.
func (c *Conn) write() bool {
	if c.wsent < len(c.wbuf) {
		n, err := writeSome(c.fd, c.wbuf[c.wsent:])
		switch {
		case err == unix.EAGAIN:
			return false
		case err != nil:
			c.terminate(Error.Wrap(err))
			return false
		}

		c.wsent += n
		if c.trace {
			c.log.Debug("wrote", zap.Int("bytes", n), zap.Int("pending", c.Pending()))
		}
	}

	if c.wsent == len(c.wbuf) {
		c.stats.Served(time.Since(c.framed))
		c.wsent = 0
		c.wbuf = c.wbuf[:0]
		c.state = Receiving
		return false
	}
	return true
}

// flushOnce makes a single attempt to write the pending response.
func (c *Conn) flushOnce() {
	if n, err := writeSome(c.fd, c.wbuf[c.wsent:]); err == nil {
		c.wsent += n
	}
}

//
// syscall helpers
//

func readSome(fd int, p []byte) (n int, err error) {
	for {
		n, err = unix.Read(fd, p)
		if err != unix.EINTR {
			return n, err
		}
	}
}

func writeSome(fd int, p []byte) (n int, err error) {
	for {
		n, err = unix.Write(fd, p)
		if err != unix.EINTR {
			return n, err
		}
	}
}
