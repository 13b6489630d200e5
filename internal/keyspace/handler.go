package keyspace

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/zeebo/errs"

	"github.com/zeebo/pollkv/internal/proto"
)

// Error is the class of command errors.
var Error = errs.Class("keyspace")

// Reply types are the first byte of every response payload.
const (
	Simple  = '+'
	Failure = '-'
	Integer = ':'
	Bulk    = '$'
	Null    = '_'
)

// Handler runs commands against a Store. It implements conn.Handler.
//
// Requests are framed text of the form "VERB [key [value]]" with a case
// insensitive verb. Values may contain spaces.
type Handler struct {
	store   *Store
	scratch []byte
}

// NewHandler returns a Handler over the store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Handle appends the framed response for the framed request msg to resp.
// Failed commands respond with the error text.
func (h *Handler) Handle(msg, resp []byte) []byte {
	out, err := h.run(resp, proto.Payload(msg))
	if err != nil {
		return h.reply(resp, Failure, "ERR "+err.Error())
	}
	return out
}

func (h *Handler) run(resp, payload []byte) ([]byte, error) {
	verb, key, value, err := parse(payload)
	if err != nil {
		return nil, err
	}

	switch verb {
	case "PING":
		if value != nil {
			return nil, arity(verb)
		} else if key != "" {
			return h.reply(resp, Bulk, key), nil
		}
		return h.reply(resp, Simple, "PONG"), nil

	case "GET":
		if key == "" || value != nil {
			return nil, arity(verb)
		}
		v, ok := h.store.Get(key)
		if !ok {
			return h.reply(resp, Null, ""), nil
		}
		return h.replyBytes(resp, Bulk, v), nil

	case "SET":
		if key == "" || value == nil {
			return nil, arity(verb)
		}
		h.store.Set(key, value)
		return h.reply(resp, Simple, "OK"), nil

	case "DEL":
		if key == "" || value != nil {
			return nil, arity(verb)
		}
		if h.store.Del(key) {
			return h.integer(resp, 1), nil
		}
		return h.integer(resp, 0), nil

	case "DBSIZE":
		if key != "" {
			return nil, arity(verb)
		}
		return h.integer(resp, int64(h.store.Len())), nil

	default:
		return nil, Error.New("unknown command %q", verb)
	}
}

func arity(verb string) error {
	return Error.New("wrong number of arguments for %q", strings.ToLower(verb))
}

// parse splits a payload into an upper cased verb, a key, and everything
// after the key as the value. value is nil when there is no value.
func parse(payload []byte) (verb, key string, value []byte, err error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return "", "", nil, Error.New("empty command")
	}

	head, rest := cut(payload)
	verb = strings.ToUpper(string(head))
	if len(rest) == 0 {
		return verb, "", nil, nil
	}

	head, rest = cut(rest)
	key = string(head)
	if len(rest) == 0 {
		return verb, key, nil, nil
	}
	return verb, key, rest, nil
}

// cut splits off the first space separated word.
func cut(b []byte) (head, rest []byte) {
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		return b[:i], bytes.TrimLeft(b[i+1:], " ")
	}
	return b, nil
}

//
// replies
//

func (h *Handler) integer(resp []byte, n int64) []byte {
	h.scratch = strconv.AppendInt(append(h.scratch[:0], Integer), n, 10)
	return h.frame(resp)
}

func (h *Handler) reply(resp []byte, typ byte, body string) []byte {
	h.scratch = append(append(h.scratch[:0], typ), body...)
	return h.frame(resp)
}

func (h *Handler) replyBytes(resp []byte, typ byte, body []byte) []byte {
	h.scratch = append(append(h.scratch[:0], typ), body...)
	return h.frame(resp)
}

func (h *Handler) frame(resp []byte) []byte {
	// scratch always starts with a reply type, so it is a valid payload.
	out, err := proto.Append(resp, h.scratch)
	if err != nil {
		return resp
	}
	return out
}
