package conn

// Handler turns one framed request into a response.
type Handler interface {
	// Handle appends the response for msg to resp and returns it. msg is the
	// whole frame, length included, and is only valid during the call.
	Handle(msg, resp []byte) []byte
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(msg, resp []byte) []byte

// Handle calls f(msg, resp).
func (f HandlerFunc) Handle(msg, resp []byte) []byte { return f(msg, resp) }

// Echo responds with the request frame unchanged.
var Echo Handler = HandlerFunc(func(msg, resp []byte) []byte {
	return append(resp, msg...)
})
