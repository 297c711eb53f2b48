// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"net"
	"sync"

	applog "emgrep/internal/log"

	"github.com/inconshreveable/log15"
)

// UDPSender writes datagrams to one target address.
type UDPSender struct {
	logger log15.Logger
	conn   *net.UDPConn
	mu     sync.Mutex // Protects conn during Close.
	closed bool
}

// NewUDPSender dials targetAddress ("host:port").
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("resolving UDP target %q: %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing UDP target %q: %w", targetAddress, err)
	}

	logger := applog.New("transport", "udp", "target", conn.RemoteAddr().String())
	logger.Info("sender ready")
	return &UDPSender{logger: logger, conn: conn}, nil
}

// Send transmits data as a single datagram. It is safe for concurrent use.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("UDP sender is closed")
	}
	if _, err := s.conn.Write(data); err != nil {
		s.logger.Debug("send failed", "err", err)
		return fmt.Errorf("sending UDP packet: %w", err)
	}
	return nil
}

// Close closes the connection. Further sends fail.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing sender")
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing UDP connection: %w", err)
	}
	return nil
}

var _ interface{ Close() error } = (*UDPSender)(nil)
