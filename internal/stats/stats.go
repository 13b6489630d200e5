// Package stats keeps the bookkeeping for a running server: connection
// counts, why connections ended, and how long requests took to serve.
//
// All methods may be called on a nil *Stats, in which case they do nothing.
package stats

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Stats is owned by the event loop and is not safe for concurrent use.
type Stats struct {
	accepted       int64
	acceptFailures int64
	live           int64
	terminated     map[string]int64
	served         Histogram
}

// New returns empty Stats.
func New() *Stats {
	return &Stats{terminated: make(map[string]int64)}
}

// Accepted records a newly registered connection.
func (s *Stats) Accepted() {
	if s == nil {
		return
	}
	s.accepted++
	s.live++
}

// AcceptFailed records a dropped accept.
func (s *Stats) AcceptFailed() {
	if s == nil {
		return
	}
	s.acceptFailures++
}

// Terminated records a closed connection and the error that ended it, if
// any.
func (s *Stats) Terminated(err error) {
	if s == nil {
		return
	}
	s.live--
	s.terminated[Kind(err)]++
}

// Shutdown records a connection closed by the server while it was still
// live. It is counted under the "shutdown" kind.
func (s *Stats) Shutdown() {
	if s == nil {
		return
	}
	s.live--
	s.terminated["shutdown"]++
}

// Served records the time between a request being framed and its response
// being fully written.
func (s *Stats) Served(d time.Duration) {
	if s == nil {
		return
	}
	s.served.Observe(int64(d))
}

// Live returns the number of registered connections.
func (s *Stats) Live() int64 {
	if s == nil {
		return 0
	}
	return s.live
}

// Requests returns the number of served requests.
func (s *Stats) Requests() int64 {
	if s == nil {
		return 0
	}
	return s.served.Total()
}

// TerminatedBy returns how many connections ended with the given kind.
func (s *Stats) TerminatedBy(kind string) int64 {
	if s == nil {
		return 0
	}
	return s.terminated[kind]
}

// MarshalLogObject lets the stats be logged as a single field.
func (s *Stats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if s == nil {
		return nil
	}
	enc.AddInt64("accepted", s.accepted)
	enc.AddInt64("accept_failures", s.acceptFailures)
	enc.AddInt64("live", s.live)
	enc.AddInt64("requests", s.served.Total())
	if s.served.Total() > 0 {
		enc.AddDuration("served_avg", time.Duration(s.served.Average()))
		enc.AddDuration("served_p50", time.Duration(s.served.Quantile(.5)))
		enc.AddDuration("served_p99", time.Duration(s.served.Quantile(.99)))
	}

	kinds := make([]string, 0, len(s.terminated))
	for kind := range s.terminated {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		enc.AddInt64("terminated_"+kind, s.terminated[kind])
	}
	return nil
}

// Field returns the stats as a zap field.
func (s *Stats) Field() zap.Field { return zap.Object("stats", s) }

// Kind returns a short string representative of the error. Errors that have
// a class name use it, and a nil error is a clean "eof".
func Kind(err error) string {
	if err == nil {
		return "eof"
	}

	if n, ok := err.(interface{ Name() (string, bool) }); ok {
		if name, ok := n.Name(); ok {
			return name
		}
	}

	s := err.Error()
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[:i]
	} else if strings.IndexByte(s, ' ') == -1 {
		return s
	}
	return "error"
}
