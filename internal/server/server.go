// Package server runs a single-threaded readiness loop over a listening TCP
// socket and the connections accepted from it.
package server

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zeebo/pollkv/internal/conn"
	"github.com/zeebo/pollkv/internal/slots"
	"github.com/zeebo/pollkv/internal/stats"
)

// Error is the class of server errors.
var Error = errs.Class("server")

const (
	// DefaultPollTimeout bounds how long a Step waits for readiness.
	DefaultPollTimeout = time.Second

	// DefaultStatsInterval is how often Run logs the stats.
	DefaultStatsInterval = 10 * time.Second
)

// Options configure a Server.
type Options struct {
	Log           *zap.Logger
	Handler       conn.Handler // defaults to conn.Echo
	Trace         bool
	PollTimeout   time.Duration
	StatsInterval time.Duration // negative disables stats logging
}

// Server owns the listening socket and every live connection.
type Server struct {
	fd    int
	opts  Options
	log   *zap.Logger
	conns slots.Slots[*conn.Conn]
	stats *stats.Stats

	pollfds []unix.PollFd
}

// Listen binds a non-blocking IPv4 listening socket to host and port.
func Listen(host string, port int, opts Options) (_ *Server, err error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.StatsInterval == 0 {
		opts.StatsInterval = DefaultStatsInterval
	}

	var addr unix.SockaddrInet4
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, Error.New("invalid IPv4 host: %q", host)
	}
	if port < 0 || port > 65535 {
		return nil, Error.New("invalid port: %d", port)
	}
	copy(addr.Addr[:], ip)
	addr.Port = port

	var cl cleaner
	defer cl.Close(&err)

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	cl.Add(func() error { return unix.Close(fd) })

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := unix.Bind(fd, &addr); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, Error.Wrap(err)
	}

	return &Server{
		fd:    fd,
		opts:  opts,
		log:   opts.Log,
		stats: stats.New(),
	}, nil
}

// Port returns the port the listener is bound to.
func (s *Server) Port() (int, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port, nil
	case *unix.SockaddrInet6:
		return sa.Port, nil
	default:
		return 0, Error.New("unknown socket address type: %T", sa)
	}
}

// Conns returns the number of live connections.
func (s *Server) Conns() int { return s.conns.Len() }

// Stats returns the server's bookkeeping.
func (s *Server) Stats() *stats.Stats { return s.stats }

// Run steps the loop until the context is done or polling fails.
func (s *Server) Run(ctx context.Context) error {
	last := time.Now()
	for ctx.Err() == nil {
		if err := s.Step(); err != nil {
			return err
		}
		if s.opts.StatsInterval > 0 && time.Since(last) >= s.opts.StatsInterval {
			s.log.Debug("server stats", s.stats.Field())
			last = time.Now()
		}
	}
	return nil
}

// Step runs one iteration of the loop: wait for readiness, advance every
// ready connection, close the ones that terminated, and then accept at most
// one new connection.
func (s *Server) Step() error {
	s.pollfds = append(s.pollfds[:0], unix.PollFd{
		Fd:     int32(s.fd),
		Events: unix.POLLIN,
	})
	s.conns.Range(func(fd int, c *conn.Conn) bool {
		s.pollfds = append(s.pollfds, unix.PollFd{
			Fd:     int32(fd),
			Events: c.Interest(),
		})
		return true
	})

	if s.opts.Trace {
		s.log.Debug("polling", zap.Int("fds", len(s.pollfds)))
	}

	_, err := unix.Poll(s.pollfds, int(s.opts.PollTimeout/time.Millisecond))
	if err == unix.EINTR {
		return nil
	} else if err != nil {
		return Error.Wrap(err)
	}

	for _, pfd := range s.pollfds[1:] {
		if pfd.Revents == 0 {
			continue
		}
		c, ok := s.conns.Get(int(pfd.Fd))
		if !ok {
			continue
		}
		c.Advance()
		if c.State() == conn.Terminated {
			s.reap(c)
		}
	}

	if s.pollfds[0].Revents != 0 {
		s.accept()
	}
	return nil
}

func (s *Server) reap(c *conn.Conn) {
	s.conns.Take(c.Fd())
	s.stats.Terminated(c.Err())
	if err := c.Close(); err != nil {
		s.log.Warn("close failed", zap.Int("fd", c.Fd()), zap.Error(err))
	}
}

func (s *Server) accept() {
	fd, sa, err := unix.Accept(s.fd)
	if err == unix.EAGAIN {
		return
	} else if err != nil {
		s.stats.AcceptFailed()
		s.log.Warn("accept failed", zap.Error(err))
		return
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		s.stats.AcceptFailed()
		s.log.Warn("accept failed", zap.Error(errs.Combine(err, unix.Close(fd))))
		return
	}

	s.log.Debug("accepted connection",
		zap.Int("fd", fd),
		zap.String("peer", sockaddrString(sa)))

	c := conn.New(fd, conn.Options{
		Log:     s.log,
		Handler: s.opts.Handler,
		Stats:   s.stats,
		Trace:   s.opts.Trace,
	})
	s.conns.Put(fd, c)
	s.stats.Accepted()
}

// Close closes every live connection and then the listener.
func (s *Server) Close() (err error) {
	s.conns.Range(func(fd int, c *conn.Conn) bool {
		s.conns.Take(fd)
		s.stats.Shutdown()
		err = errs.Combine(err, c.Close())
		return true
	})
	return errs.Combine(err, Error.Wrap(unix.Close(s.fd)))
}

func sockaddrString(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	default:
		return "unknown"
	}
}
