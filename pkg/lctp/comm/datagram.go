package comm

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/legocar.go/pkg/lctp"
)

// Defaults for DatagramServer.
const (
	DefaultDatagramAddr = ":5081"
	DefaultPollInterval = 100 * time.Millisecond
	maxDatagramSize     = 2048
)

// DatagramServer serves LCTP over a connectionless datagram socket (UDP).
// Every datagram is a complete command and is answered with exactly one
// datagram to its source address. Nothing is retransmitted.
type DatagramServer struct {
	Addr    string
	Handler lctp.Handler
	// PollInterval bounds how long a receive blocks before the
	// cancellation signal is checked again.
	PollInterval time.Duration

	conn net.PacketConn
	lock sync.Mutex
}

// NewDatagramServer creates a DatagramServer with defaults.
func NewDatagramServer(addr string, handler lctp.Handler) *DatagramServer {
	if addr == "" {
		addr = DefaultDatagramAddr
	}
	return &DatagramServer{
		Addr:         addr,
		Handler:      handler,
		PollInterval: DefaultPollInterval,
	}
}

// Listen binds the socket. Run calls it when needed.
func (s *DatagramServer) Listen() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// ListenAddr returns the bound address, nil before Listen.
func (s *DatagramServer) ListenAddr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close releases the socket of a server which is not running. Run closes
// it by itself.
func (s *DatagramServer) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Name implements Named.
func (s *DatagramServer) Name() string {
	return "lctp-datagram"
}

// Run implements Runnable. A datagram being handled when ctx is
// cancelled is still answered before the socket closes.
func (s *DatagramServer) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	conn := s.conn
	defer conn.Close()
	glog.Infof("LCTP datagram server listening on %s", conn.LocalAddr())

	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	handlerCtx := context.WithoutCancel(ctx)
	buf := make([]byte, maxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			glog.Infof("LCTP datagram server on %s stopped", conn.LocalAddr())
			return err
		}
		conn.SetReadDeadline(time.Now().Add(poll))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			glog.Warningf("datagram read error: %v", err)
			continue
		}
		line := strings.TrimSpace(string(buf[:n]))
		if line == "" {
			continue
		}
		peer := lctp.Peer{ID: addr.String(), Transport: lctp.TransportDatagram, RemoteAddr: addr}
		resp := s.Handler.HandleCommand(handlerCtx, line, peer)
		if _, err := conn.WriteTo([]byte(resp.Format()+"\n"), addr); err != nil {
			glog.Warningf("datagram reply to %s failed: %v", addr, err)
		}
	}
}
