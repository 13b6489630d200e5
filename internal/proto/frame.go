// Package proto implements the wire framing used between clients and the
// server.
//
// A frame starts with an optional '*' marker followed by a run of ASCII
// decimal digits giving the total length of the frame in bytes, marker and
// digits included. The payload follows the digits directly with no
// separator, so a payload must not start with a digit.
package proto

import (
	"strconv"

	"github.com/zeebo/errs"
)

// Error is the class of framing errors.
var Error = errs.Class("proto")

var (
	// ErrOverlong is returned when more bytes are buffered than the frame
	// declares.
	ErrOverlong = Error.New("buffered data exceeds declared length")

	// ErrPrefixOverflow is returned when the declared length does not fit.
	ErrPrefixOverflow = Error.New("declared length overflows")

	// ErrDigitPayload is returned when encoding a payload that would be
	// read back as part of the length.
	ErrDigitPayload = Error.New("payload starts with a digit")

	// ErrEmptyPayload is returned when encoding an empty payload, whose
	// frame would be indistinguishable from a partially received length.
	ErrEmptyPayload = Error.New("empty payload")
)

// Marker optionally precedes the length digits.
const Marker = '*'

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

// prefix returns the offset where the digits start and the offset just past
// them.
func prefix(buf []byte) (start, end int) {
	if len(buf) > 0 && buf[0] == Marker {
		start = 1
	}
	end = start
	for end < len(buf) && isDigit(buf[end]) {
		end++
	}
	return start, end
}

// Check inspects the bytes buffered so far. It returns the frame length when
// buf holds exactly one complete frame, and zero when more bytes are needed.
// A zero or missing length never completes.
func Check(buf []byte) (n int, err error) {
	start, end := prefix(buf)
	if start == end || end == len(buf) {
		// no digits yet, or the digits may continue in the next read.
		return 0, nil
	}

	declared, err := strconv.Atoi(string(buf[start:end]))
	if err != nil {
		return 0, ErrPrefixOverflow
	}

	switch {
	case declared == 0 || declared > len(buf):
		return 0, nil
	case declared < len(buf):
		return 0, ErrOverlong
	}
	return declared, nil
}

// Payload returns the bytes of the frame after the length.
func Payload(frame []byte) []byte {
	_, end := prefix(frame)
	return frame[end:]
}

// Append appends the frame for payload to dst.
func Append(dst, payload []byte) ([]byte, error) {
	return appendFrame(dst, payload, false)
}

// AppendMarked is like Append but starts the frame with the marker.
func AppendMarked(dst, payload []byte) ([]byte, error) {
	return appendFrame(dst, payload, true)
}

func appendFrame(dst, payload []byte, marked bool) ([]byte, error) {
	if len(payload) == 0 {
		return dst, ErrEmptyPayload
	} else if isDigit(payload[0]) {
		return dst, ErrDigitPayload
	}

	fixed := len(payload)
	if marked {
		fixed++
	}

	// the length counts its own digits, so find the digit count that agrees
	// with the total it produces.
	digits := 1
	for len(strconv.Itoa(fixed+digits)) != digits {
		digits++
	}

	if marked {
		dst = append(dst, Marker)
	}
	dst = strconv.AppendInt(dst, int64(fixed+digits), 10)
	return append(dst, payload...), nil
}
