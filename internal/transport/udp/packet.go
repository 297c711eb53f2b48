// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"emgrep/internal/analysis"
	"emgrep/internal/transport"
)

/*
Envelope packet (big endian, 35 bytes):

| Field     | Type    | Size | Description                      |
|-----------|---------|------|----------------------------------|
| Sequence  | uint32  | 4    | Packet counter                   |
| Frame     | uint64  | 8    | Engine frame sequence            |
| Timestamp | int64   | 8    | Window time, ns since Unix epoch |
| RMS       | float32 | 4    | Window RMS in volts              |
| Ratio     | float32 | 4    | Unclipped normalized value       |
| Peak      | float32 | 4    | Running peak in volts            |
| Engaged   | uint8   | 1    | 1 while a rep is in progress     |
| Reps      | uint16  | 2    | Reps counted so far              |
*/

// PacketSize is the length of an encoded envelope packet.
const PacketSize = 4 + 8 + 8 + 4 + 4 + 4 + 1 + 2

// Packet is the decoded form of an envelope datagram.
type Packet struct {
	Sequence uint32
	Frame    uint64
	At       time.Time
	RMS      float32
	Ratio    float32
	Peak     float32
	Engaged  bool
	Reps     uint16
}

// AppendPacket encodes f into dst.
func AppendPacket(dst []byte, seq uint32, f transport.EnvelopeFrame) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, f.Seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(f.At.UnixNano()))
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(f.RMS)))
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(f.Ratio)))
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(f.Peak)))
	var engaged uint8
	if f.State == analysis.Engaged.String() {
		engaged = 1
	}
	dst = append(dst, engaged)
	reps := f.Reps
	if reps > math.MaxUint16 {
		reps = math.MaxUint16
	}
	return binary.BigEndian.AppendUint16(dst, uint16(reps))
}

// DecodePacket parses one envelope datagram.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("packet is %d bytes, want %d", len(b), PacketSize)
	}
	be := binary.BigEndian
	return Packet{
		Sequence: be.Uint32(b[0:]),
		Frame:    be.Uint64(b[4:]),
		At:       time.Unix(0, int64(be.Uint64(b[12:]))).UTC(),
		RMS:      math.Float32frombits(be.Uint32(b[20:])),
		Ratio:    math.Float32frombits(be.Uint32(b[24:])),
		Peak:     math.Float32frombits(be.Uint32(b[28:])),
		Engaged:  b[32] == 1,
		Reps:     be.Uint16(b[33:]),
	}, nil
}
