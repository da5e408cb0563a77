package lctp

import (
	"context"
	"net"
)

// Transport names used in Peer.
const (
	TransportStream   = "stream"
	TransportDatagram = "datagram"
)

// Peer identifies the sender of a command line.
type Peer struct {
	// ID is the connection ID for stream transports and
	// the source address for datagram transports.
	ID         string
	Transport  string
	RemoteAddr net.Addr
}

// Handler turns a command line into a response.
// It is invoked by transports once per received line.
type Handler interface {
	HandleCommand(ctx context.Context, line string, peer Peer) Message
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(ctx context.Context, line string, peer Peer) Message

// HandleCommand implements Handler.
func (f HandlerFunc) HandleCommand(ctx context.Context, line string, peer Peer) Message {
	return f(ctx, line, peer)
}

// RequestHandler handles parsed requests.
type RequestHandler interface {
	Dispatch(ctx context.Context, req *Request) Message
}

// ParsingHandler adapts a RequestHandler to Handler. Unparseable lines are
// answered with 400 without reaching the RequestHandler.
func ParsingHandler(h RequestHandler) Handler {
	return HandlerFunc(func(ctx context.Context, line string, peer Peer) Message {
		req, err := ParseRequest(line)
		if err != nil {
			return BadRequest(err.Error())
		}
		return h.Dispatch(ctx, req)
	})
}
