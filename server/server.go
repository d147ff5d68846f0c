// Package server implements the Modbus server task and the
// handler contract it dispatches decoded requests to.
package server

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
)

// Server accepts Modbus/TCP connections and serves each from its own
// session goroutine, routing requests by unit id to the handlers
// registered via WithUnitHandler.
type Server struct {
	cfg *config

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

// New constructs a Server. It does not start listening; call Start.
func New(opts ...Option) *Server {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	return &Server{cfg: cfg, conns: make(map[net.Conn]struct{})}
}

// Start binds cfg.bindAddress and begins accepting connections in a
// background goroutine. Start returns once the listener is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("modbus: server already started")
	}

	var l net.Listener
	var err error
	if s.cfg.tlsConfig != nil {
		l, err = tls.Listen("tcp", s.cfg.bindAddress, s.cfg.tlsConfig)
	} else {
		l, err = net.Listen("tcp", s.cfg.bindAddress)
	}
	if err != nil {
		return err
	}
	s.listener = l

	go s.acceptLoop(l)
	return nil
}

// Stop closes the listener and every active session. Stop is
// idempotent; calling it on a server that was never started returns
// an error.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return errors.New("modbus: server not started")
	}

	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.listener = nil
	return err
}

// acceptLoop accepts connections, respecting cfg.maxSessions, until the
// listener is closed.
func (s *Server) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.listener == nil
			s.mu.Unlock()
			if stopped {
				return
			}
			s.cfg.logger.Warnw("accept failed", "err", err)
			continue
		}

		s.mu.Lock()
		accepted := s.cfg.maxSessions == 0 || len(s.conns) < s.cfg.maxSessions
		if accepted {
			s.conns[conn] = struct{}{}
		}
		s.mu.Unlock()

		if !accepted {
			s.cfg.logger.Warnw("max sessions reached, rejecting", "remote_addr", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go s.serve(conn)
	}
}

// serve runs one connection's session to completion, then removes it
// from the active set and closes the socket.
func (s *Server) serve(conn net.Conn) {
	sess := newSession(conn, s.cfg)
	sess.run()

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	conn.Close()
}
