package comm

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	fx "github.com/robotalks/legocar.go/pkg/framework"
	"github.com/robotalks/legocar.go/pkg/lctp"
)

// Defaults for StreamServer.
const (
	DefaultStreamAddr   = ":5080"
	DefaultIdleTimeout  = time.Minute
	DefaultWriteTimeout = 5 * time.Second
)

// Connection is a client connection served by StreamServer.
type Connection struct {
	ID         string
	RemoteAddr net.Addr

	conn         net.Conn
	lastActivity int64
	interrupted  bool
	lock         sync.Mutex
}

// LastActivity returns when the last line was received.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActivity))
}

func (c *Connection) touch() {
	atomic.StoreInt64(&c.lastActivity, time.Now().UnixNano())
}

// armRead sets the read deadline for the next line unless the
// connection was interrupted for shutdown.
func (c *Connection) armRead(idle time.Duration) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.interrupted {
		return false
	}
	var deadline time.Time
	if idle > 0 {
		deadline = time.Now().Add(idle)
	}
	c.conn.SetReadDeadline(deadline)
	return true
}

// interrupt unblocks a pending read, leaving writes untouched.
func (c *Connection) interrupt() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.interrupted = true
	c.conn.SetReadDeadline(time.Now())
}

// StreamServer serves LCTP over a connection-oriented stream (TCP).
// Lines on one connection are handled strictly one after another.
type StreamServer struct {
	Addr         string
	Handler      lctp.Handler
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	MaxConns     int

	listener net.Listener
	conns    map[string]*Connection
	lock     sync.Mutex
	wg       sync.WaitGroup
}

// NewStreamServer creates a StreamServer with defaults.
func NewStreamServer(addr string, handler lctp.Handler) *StreamServer {
	if addr == "" {
		addr = DefaultStreamAddr
	}
	return &StreamServer{
		Addr:         addr,
		Handler:      handler,
		IdleTimeout:  DefaultIdleTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Listen binds the listener. Run calls it when needed.
func (s *StreamServer) Listen() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	if s.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.MaxConns)
	}
	s.listener = ln
	return nil
}

// ListenAddr returns the bound address, nil before Listen.
func (s *StreamServer) ListenAddr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of connections being served.
func (s *StreamServer) ConnectionCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.conns)
}

// Connections returns a snapshot of the connections being served.
func (s *StreamServer) Connections() []*Connection {
	s.lock.Lock()
	defer s.lock.Unlock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

// Close releases the listener of a server which is not running. Run
// closes it by itself.
func (s *StreamServer) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Name implements Named.
func (s *StreamServer) Name() string {
	return "lctp-stream"
}

// Run implements Runnable. On cancellation it stops accepting, interrupts
// pending reads and waits until every connection finished the line it was
// handling.
func (s *StreamServer) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	ln := s.listener
	glog.Infof("LCTP stream server listening on %s", ln.Addr())
	err := fx.RunWithContextCloser(ctx, ln, func() error {
		return s.acceptLoop(ctx, ln)
	})
	for _, c := range s.Connections() {
		c.interrupt()
	}
	s.wg.Wait()
	glog.Infof("LCTP stream server on %s stopped", ln.Addr())
	return err
}

func (s *StreamServer) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				glog.Warningf("accept error: %v; retrying in %v", err, backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0
		s.wg.Add(1)
		go s.serve(ctx, conn)
	}
}

func (s *StreamServer) track(c *Connection) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conns == nil {
		s.conns = make(map[string]*Connection)
	}
	s.conns[c.ID] = c
}

func (s *StreamServer) untrack(c *Connection) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.conns, c.ID)
}

func (s *StreamServer) serve(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	c := &Connection{ID: uuid.NewString(), RemoteAddr: conn.RemoteAddr(), conn: conn}
	c.touch()
	s.track(c)
	defer s.untrack(c)
	glog.V(1).Infof("connection %s from %s accepted", c.ID, c.RemoteAddr)

	// responses must go out even when the server is stopping.
	handlerCtx := context.WithoutCancel(ctx)
	peer := lctp.Peer{ID: c.ID, Transport: lctp.TransportStream, RemoteAddr: c.RemoteAddr}
	rw := NewLineReadWriter(conn)
	for {
		if ctx.Err() != nil || !c.armRead(s.IdleTimeout) {
			glog.V(1).Infof("connection %s closed: server stopping", c.ID)
			return
		}
		line, err := rw.ReadLine()
		if err != nil {
			s.logReadError(c, err)
			return
		}
		c.touch()
		if strings.TrimSpace(line) == "" {
			continue
		}
		resp := s.Handler.HandleCommand(handlerCtx, line, peer)
		if s.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		}
		if err := rw.WriteLine(resp.Format()); err != nil {
			glog.Warningf("connection %s write error: %v", c.ID, err)
			return
		}
		if resp.IsDisconnected() {
			glog.V(1).Infof("connection %s disconnected by client", c.ID)
			return
		}
	}
}

func (s *StreamServer) logReadError(c *Connection, err error) {
	c.lock.Lock()
	interrupted := c.interrupted
	c.lock.Unlock()
	switch {
	case interrupted:
		glog.V(1).Infof("connection %s closed: server stopping", c.ID)
	case errors.Is(err, io.EOF):
		glog.V(1).Infof("connection %s closed by peer", c.ID)
	case errors.Is(err, os.ErrDeadlineExceeded):
		glog.Infof("connection %s idle for %v, closing", c.ID, s.IdleTimeout)
	default:
		glog.Warningf("connection %s read error: %v", c.ID, err)
	}
}
