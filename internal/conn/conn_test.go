package conn

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/zeebo/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"

	"github.com/zeebo/pollkv/internal/proto"
	"github.com/zeebo/pollkv/internal/stats"
)

//
// test helpers
//

// newPair returns a Conn over one end of a socket pair along with the peer
// descriptor, which stays blocking with a receive timeout.
func newPair(t *testing.T, opts Options) (*Conn, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	assert.NoError(t, err)
	assert.NoError(t, unix.SetNonblock(fds[0], true))
	assert.NoError(t, unix.SetsockoptTimeval(fds[1], unix.SOL_SOCKET, unix.SO_RCVTIMEO,
		&unix.Timeval{Sec: 5}))

	c := New(fds[0], opts)
	t.Cleanup(func() {
		if c.rbuf != nil {
			_ = c.Close()
		}
		_ = unix.Close(fds[1])
	})
	return c, fds[1]
}

func peerWrite(t *testing.T, fd int, data string) {
	for len(data) > 0 {
		n, err := unix.Write(fd, []byte(data))
		assert.NoError(t, err)
		data = data[n:]
	}
}

func peerRead(t *testing.T, fd int, n int) string {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := unix.Read(fd, buf[got:])
		assert.NoError(t, err)
		assert.That(t, m > 0)
		got += m
	}
	return string(buf)
}

// wait blocks until the connection's descriptor is ready for its interest.
func wait(t *testing.T, c *Conn) {
	fds := []unix.PollFd{{Fd: int32(c.Fd()), Events: c.Interest()}}
	n, err := unix.Poll(fds, 5000)
	assert.NoError(t, err)
	assert.Equal(t, n, 1)
}

func frame(t *testing.T, payload string) string {
	out, err := proto.Append(nil, []byte(payload))
	assert.NoError(t, err)
	return string(out)
}

//
// tests
//

func TestConn(t *testing.T) {
	t.Run("SingleWrite", func(t *testing.T) {
		c, peer := newPair(t, Options{})
		peerWrite(t, peer, "13hello world")

		c.Advance()
		assert.Equal(t, c.State(), Sending)
		assert.Equal(t, c.Buffered(), 0)
		assert.Equal(t, c.Pending(), 13)

		c.Advance()
		assert.Equal(t, c.State(), Receiving)
		assert.Equal(t, c.Pending(), 0)
		assert.Equal(t, peerRead(t, peer, 13), "13hello world")
	})

	t.Run("SplitWrite", func(t *testing.T) {
		c, peer := newPair(t, Options{})

		peerWrite(t, peer, "13hel")
		c.Advance()
		assert.Equal(t, c.State(), Receiving)
		assert.Equal(t, c.Buffered(), 5)
		assert.Equal(t, c.Pending(), 0)

		peerWrite(t, peer, "lo world")
		c.Advance()
		assert.Equal(t, c.State(), Sending)

		c.Advance()
		assert.Equal(t, c.State(), Receiving)
		assert.Equal(t, peerRead(t, peer, 13), "13hello world")
	})

	t.Run("LoneDigit", func(t *testing.T) {
		c, peer := newPair(t, Options{})

		peerWrite(t, peer, "1")
		c.Advance()
		assert.Equal(t, c.State(), Receiving)
		assert.Equal(t, c.Buffered(), 1)
		assert.Equal(t, c.Pending(), 0)

		peerWrite(t, peer, "2hello worl")
		c.Advance()
		assert.Equal(t, c.State(), Sending)

		c.Advance()
		assert.Equal(t, c.State(), Receiving)
		assert.Equal(t, peerRead(t, peer, 12), "12hello worl")
	})

	t.Run("Persistent", func(t *testing.T) {
		st := stats.New()
		c, peer := newPair(t, Options{Stats: st})
		for _, payload := range []string{"first", "second request", "third"} {
			msg := frame(t, payload)
			peerWrite(t, peer, msg)
			c.Advance()
			c.Advance()
			assert.Equal(t, c.State(), Receiving)
			assert.Equal(t, peerRead(t, peer, len(msg)), msg)
		}
		assert.Equal(t, st.Requests(), int64(3))
	})

	t.Run("Marked", func(t *testing.T) {
		c, peer := newPair(t, Options{})
		peerWrite(t, peer, "*14hello world")
		c.Advance()
		c.Advance()
		assert.Equal(t, peerRead(t, peer, 14), "*14hello world")
	})

	t.Run("UnexpectedEOF", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		c, peer := newPair(t, Options{Log: zap.New(core)})

		peerWrite(t, peer, "13hel")
		assert.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))

		c.Advance()
		assert.Equal(t, c.State(), Terminated)
		assert.Equal(t, c.Err(), ErrUnexpectedEOF)
		assert.Equal(t, peerRead(t, peer, 5), "13hel")
		assert.Equal(t, logs.FilterMessage("unexpected EOF").Len(), 1)
	})

	t.Run("CleanEOF", func(t *testing.T) {
		c, peer := newPair(t, Options{})
		assert.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))

		c.Advance()
		assert.Equal(t, c.State(), Terminated)
		assert.Nil(t, c.Err())
		assert.Equal(t, c.Pending(), 0)
		assert.Equal(t, c.Interest(), int16(0))
	})

	t.Run("Overlong", func(t *testing.T) {
		c, peer := newPair(t, Options{})
		peerWrite(t, peer, "11hello world")

		c.Advance()
		assert.Equal(t, c.State(), Terminated)
		assert.Equal(t, c.Err(), proto.ErrOverlong)
		assert.Equal(t, c.Pending(), 0)
	})

	t.Run("LargeMessage", func(t *testing.T) {
		c, peer := newPair(t, Options{})
		msg := frame(t, "x"+strings.Repeat("y", 1<<20))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for data := msg; len(data) > 0; {
				n, err := unix.Write(peer, []byte(data))
				if err != nil {
					return
				}
				data = data[n:]
			}
		}()

		for c.State() == Receiving {
			wait(t, c)
			c.Advance()
		}
		<-done
		assert.Equal(t, c.State(), Sending)
		assert.Equal(t, len(c.rbuf), DefaultBufferSize)

		got := make(chan string, 1)
		go func() {
			buf := make([]byte, len(msg))
			n := 0
			for n < len(buf) {
				m, err := unix.Read(peer, buf[n:])
				if err != nil || m == 0 {
					break
				}
				n += m
			}
			got <- string(buf[:n])
		}()

		for c.State() == Sending {
			wait(t, c)
			c.Advance()
		}
		assert.Equal(t, c.State(), Receiving)
		assert.That(t, <-got == msg)
	})

	t.Run("Handler", func(t *testing.T) {
		upper := HandlerFunc(func(msg, resp []byte) []byte {
			return append(resp, bytes.ToUpper(msg)...)
		})
		c, peer := newPair(t, Options{Handler: upper})
		peerWrite(t, peer, "13hello world")
		c.Advance()
		c.Advance()
		assert.Equal(t, peerRead(t, peer, 13), "13HELLO WORLD")
	})

	t.Run("Interest", func(t *testing.T) {
		c, peer := newPair(t, Options{})
		assert.Equal(t, c.Interest(), int16(unix.POLLIN|unix.POLLERR))
		peerWrite(t, peer, "13hello world")
		c.Advance()
		assert.Equal(t, c.Interest(), int16(unix.POLLOUT|unix.POLLERR))
	})

	t.Run("WriteError", func(t *testing.T) {
		c, peer := newPair(t, Options{})
		peerWrite(t, peer, "13hello world")
		c.Advance()
		assert.Equal(t, c.State(), Sending)

		assert.NoError(t, unix.Shutdown(peer, unix.SHUT_RDWR))
		c.Advance()
		assert.Equal(t, c.State(), Terminated)
		assert.That(t, Error.Has(c.Err()))
	})

	t.Run("ReadError", func(t *testing.T) {
		var fds [2]int
		assert.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK))
		defer unix.Close(fds[0])

		// reading from the write end of a pipe fails.
		c := New(fds[1], Options{})
		c.Advance()
		assert.Equal(t, c.State(), Terminated)
		assert.That(t, Error.Has(c.Err()))
		assert.That(t, errors.Is(c.Err(), unix.EBADF))
		assert.NoError(t, c.Close())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, Receiving.String(), "receiving")
	assert.Equal(t, Sending.String(), "sending")
	assert.Equal(t, Terminated.String(), "terminated")
	assert.Equal(t, State(42).String(), "unknown")
}
