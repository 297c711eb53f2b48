// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	applog "emgrep/internal/log"

	"github.com/nats-io/nats.go"
)

// NATS subscribes to a subject whose messages are little-endian float32
// sample batches in volts.
type NATS struct {
	url     string
	subject string
}

func NewNATS(url, subject string) *NATS {
	return &NATS{url: url, subject: subject}
}

func (n *NATS) Name() string { return "nats:" + n.subject }

// DecodeFloat32LE converts a little-endian float32 payload to samples.
func DecodeFloat32LE(data []byte) ([]float64, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not a whole number of float32 samples", len(data))
	}
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return out, nil
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE, used by producers.
func EncodeFloat32LE(samples []float64) []byte {
	out := make([]byte, 0, len(samples)*4)
	for _, v := range samples {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(v)))
	}
	return out
}

// Stream subscribes until ctx is done or the connection is closed for good.
// NATS delivers a subscription's messages on one goroutine, in order.
func (n *NATS) Stream(ctx context.Context, sink func([]float64)) error {
	logger := applog.New("source", "nats", "subject", n.subject)
	closed := make(chan struct{})

	nc, err := nats.Connect(n.url,
		nats.Name("emgrep"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", n.url, err)
	}

	sub, err := nc.Subscribe(n.subject, func(msg *nats.Msg) {
		batch, err := DecodeFloat32LE(msg.Data)
		if err != nil {
			logger.Warn("dropping malformed message", "err", err)
			return
		}
		if len(batch) > 0 {
			sink(batch)
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribing to %s: %w", n.subject, err)
	}
	logger.Info("subscribed", "url", n.url)

	select {
	case <-ctx.Done():
		sub.Unsubscribe()
		nc.Close()
		return ctx.Err()
	case <-closed:
		return fmt.Errorf("connection to %s closed: %v", n.url, nc.LastError())
	}
}

var _ Source = (*NATS)(nil)
