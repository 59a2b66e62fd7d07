package relay

import (
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/rtsp"

	"github.com/smazurov/avsync/internal/logging"
)

// Server accepts RTSP publishers and players on one listener.
type Server struct {
	hub      *Hub
	listener net.Listener
	logger   logging.Logger
	wg       sync.WaitGroup
	closed   bool
	conns    map[net.Conn]struct{}
	mu       sync.Mutex
}

// NewServer creates a relay server around hub.
func NewServer(hub *Hub, logger logging.Logger) *Server {
	return &Server{
		hub:    hub,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start listens on addr and serves connections in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.closed = false
	s.mu.Unlock()

	s.logger.Info("RTSP relay started", "addr", ln.Addr().String())

	go s.acceptLoop(ln)
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()

			if closed {
				return
			}
			s.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handleConn(conn)

			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func streamPath(c *rtsp.Conn) string {
	if c.URL == nil {
		return ""
	}
	return strings.TrimPrefix(c.URL.Path, "/")
}

func (s *Server) handleConn(conn net.Conn) {
	rtspConn := rtsp.NewServer(conn)
	var published string

	rtspConn.Listen(func(msg any) {
		switch msg {
		case rtsp.MethodAnnounce:
			if id := streamPath(rtspConn); id != "" {
				published = id
				s.hub.AddProducer(id, rtspConn)
				s.logger.Info("Publisher connected", "stream_id", id, "remote", conn.RemoteAddr())
			}

		case rtsp.MethodDescribe:
			if id := streamPath(rtspConn); id != "" {
				if err := s.hub.WireConsumer(id, rtspConn); err != nil {
					s.logger.Warn("Failed to wire player", "stream_id", id, "error", err)
				} else {
					s.logger.Info("Player connected", "stream_id", id, "remote", conn.RemoteAddr())
				}
			}
		}
	})

	if err := rtspConn.Accept(); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("RTSP accept error", "error", err)
		}
		_ = rtspConn.Stop()
		return
	}

	if err := rtspConn.Handle(); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("RTSP handle error", "error", err)
		}
	}

	if published != "" {
		s.hub.RemoveProducer(published, rtspConn)
		s.logger.Info("Publisher disconnected", "stream_id", published)
	}
}

// Stop closes the listener and every open connection, then waits for
// their handlers to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil {
			return err
		}
	}

	s.hub.Stop()
	s.wg.Wait()

	s.logger.Info("RTSP relay stopped")
	return nil
}

// Hub returns the server's stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
