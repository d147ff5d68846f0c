package client

import (
	"crypto/tls"
	"net"
)

// dial opens the transport connection for one connect attempt
// (Connecting state), optionally wrapping it in TLS per WithTLS.
func (s *session) dial() (net.Conn, error) {
	d := net.Dialer{Timeout: s.cfg.dialTimeout}

	if s.cfg.tlsConfig == nil {
		return d.Dial("tcp", s.endpoint)
	}

	conn, err := d.Dial("tcp", s.endpoint)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(newSockWrapper(conn), s.cfg.tlsConfig)
	if err := handshakeWithDeadline(tlsConn, s.cfg.dialTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
