// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"
	"time"

	applog "emgrep/internal/log"
	"emgrep/internal/transport"

	"github.com/inconshreveable/log15"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 50 * time.Millisecond

// PacketSender is the datagram sink used by UDPPublisher.
type PacketSender interface {
	Send(data []byte) error
}

// UDPPublisher polls the latest envelope frame at a fixed interval and sends
// it as a binary packet. A frame already sent is not repeated.
type UDPPublisher struct {
	logger   log15.Logger
	sender   PacketSender
	frames   transport.FrameProvider
	interval time.Duration

	mu       sync.Mutex // Protects ticker and done across Start/Stop.
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup
	seq      uint32
	lastSent uint64
	packet   []byte // Reused encode buffer.
}

// NewUDPPublisher creates a publisher for frames read from frames.
func NewUDPPublisher(interval time.Duration, sender PacketSender, frames transport.FrameProvider) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: sender cannot be nil")
	}
	if frames == nil {
		return nil, fmt.Errorf("UDPPublisher: frame provider cannot be nil")
	}
	logger := applog.New("transport", "udp-publisher")
	if interval <= 0 {
		logger.Warn("invalid interval, using default", "interval", interval, "default", DefaultInterval)
		interval = DefaultInterval
	}
	return &UDPPublisher{
		logger:   logger,
		sender:   sender,
		frames:   frames,
		interval: interval,
		packet:   make([]byte, 0, PacketSize),
	}, nil
}

// Start launches the publishing goroutine. Calling it while running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.logger.Warn("start called while running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.done = make(chan struct{})
	ticker, done := p.ticker, p.done
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logger.Info("publishing", "interval", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-done:
				return
			}
		}
	}()
}

// Stop ends the publishing goroutine and waits for it. It is idempotent.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.done)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("stopped")
	return nil
}

// publish sends the newest frame if it has not been sent yet. It reports
// whether a packet went out.
func (p *UDPPublisher) publish() bool {
	frame, ok := p.frames.LatestFrame()
	if !ok || frame.Seq == p.lastSent {
		return false
	}
	p.seq++
	p.packet = AppendPacket(p.packet[:0], p.seq, frame)
	if err := p.sender.Send(p.packet); err != nil {
		return false
	}
	p.lastSent = frame.Seq
	return true
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
