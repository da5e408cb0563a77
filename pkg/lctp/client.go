package lctp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultClientTimeout bounds a single request/response exchange.
const DefaultClientTimeout = time.Second

// maxDatagramSize is large enough for any LCTP line.
const maxDatagramSize = 2048

// ResponseError is a non-2xx response.
type ResponseError struct {
	Response Message
}

// Error implements error.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("lctp: %d %s", e.Response.StatusCode, e.Response.Content)
}

// Client sends requests to an LCTP server.
//
// Over a stream connection requests and responses are strictly paired.
// A failed exchange leaves the stream out of step, so the client closes
// itself and must be dialed again. Over datagrams a lost request or response surfaces as a timeout and
// nothing is retransmitted. A reply arriving after its request timed out
// is discarded before the next request is sent.
type Client struct {
	Timeout time.Duration

	conn     net.Conn
	reader   *bufio.Reader
	datagram bool
	late     bool
	closed   bool
	lock     sync.Mutex
}

// lateReplyWait bounds how long a datagram client waits for late replies.
const lateReplyWait = 5 * time.Millisecond

// Dial connects to addr using "tcp" (stream) or "udp" (datagram).
func Dial(ctx context.Context, network, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	c := &Client{Timeout: DefaultClientTimeout, conn: conn}
	if _, ok := conn.(net.PacketConn); ok {
		c.datagram = true
	} else {
		c.reader = bufio.NewReader(conn)
	}
	return c
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local end of the connection.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Do sends a request and waits for its response.
func (c *Client) Do(ctx context.Context, req *Request) (Message, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return Message{}, ErrClosed
	}
	if c.late {
		c.discardLate()
	}
	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return Message{}, err
	}
	if _, err := c.conn.Write([]byte(req.Format() + "\n")); err != nil {
		return Message{}, err
	}
	if c.datagram {
		buf := make([]byte, maxDatagramSize)
		n, err := c.conn.Read(buf)
		if err != nil {
			var ne net.Error
			c.late = errors.As(err, &ne) && ne.Timeout()
			return Message{}, err
		}
		return ParseMessage(string(buf[:n])), nil
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.closed = true
		c.conn.Close()
		return Message{}, err
	}
	return ParseMessage(strings.TrimRight(line, "\r\n")), nil
}

// discardLate drops the replies to requests which timed out.
func (c *Client) discardLate() {
	c.late = false
	buf := make([]byte, maxDatagramSize)
	for {
		c.conn.SetReadDeadline(time.Now().Add(lateReplyWait))
		if _, err := c.conn.Read(buf); err != nil {
			return
		}
	}
}

func (c *Client) do(ctx context.Context, req *Request) (Message, error) {
	msg, err := c.Do(ctx, req)
	if err != nil {
		return msg, err
	}
	if !msg.IsOK() {
		return msg, &ResponseError{Response: msg}
	}
	return msg, nil
}

func checkPath(req *Request, path string) error {
	if _, ok := ParsePath(path); !ok {
		return &ProtocolError{Line: req.Format(), Reason: "invalid path"}
	}
	return nil
}

// Get reads the content at path.
func (c *Client) Get(ctx context.Context, path string) (string, error) {
	req := Get(path)
	if err := checkPath(req, path); err != nil {
		return "", err
	}
	msg, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// Set writes value to path.
func (c *Client) Set(ctx context.Context, path, value string) error {
	req := Set(path, value)
	if err := checkPath(req, path); err != nil {
		return err
	}
	_, err := c.do(ctx, req)
	return err
}

// Ping measures the round trip time.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	msg, err := c.do(ctx, &Request{Verb: VerbPing})
	if err != nil {
		return 0, err
	}
	if msg.Content != ContentPong {
		return 0, &ResponseError{Response: msg}
	}
	return time.Since(start), nil
}

// Disconnect ends the session and closes the client.
func (c *Client) Disconnect(ctx context.Context) error {
	_, err := c.do(ctx, &Request{Verb: VerbDisconnect})
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Closed reports whether the client was closed, explicitly or after a
// failed stream exchange.
func (c *Client) Closed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// Close implements io.Closer.
func (c *Client) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
