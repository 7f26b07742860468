// Package events implements the GVCP event/message channel: a UDP
// socket decoding incoming datagrams as event notifications, with
// optional host-time mapping. Grounded on
// original_source/crates/tl-gige/src/message.rs and spec.md §4.7.
package events

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	"gencam.dev/gencam/internal/log"
	"gencam.dev/gencam/pkg/stats"
	"gencam.dev/gencam/pkg/timesync"
)

// OpEventCmd is the GVCP message-channel opcode carrying event
// notifications (spec.md §4.7).
const OpEventCmd uint16 = 0x000D

const headerLen = 8
const eventBodyFixedLen = 2 + 2 + 8 + 2 + 2 + 2 + 2

// Event is a decoded event notification.
type Event struct {
	EventID        uint16
	NotificationID uint16
	DeviceTime     uint64
	StreamChannel  uint16
	BlockID        uint16
	Payload        []byte
	HostTime       time.Time // zero if no mapper was configured
}

// EventSocket binds a UDP socket and decodes incoming datagrams.
type EventSocket struct {
	conn   *net.UDPConn
	mapper *timesync.Mapper
	stats  stats.EventStats
	logger log.Logger
}

// Bind listens for event datagrams on addr. mapper may be nil, in
// which case decoded events carry a zero HostTime.
func Bind(addr string, mapper *timesync.Mapper) (*EventSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, err
	}
	return &EventSocket{conn: conn, mapper: mapper, logger: log.GetLogger()}, nil
}

// Addr reports the bound local address.
func (s *EventSocket) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the socket.
func (s *EventSocket) Close() error { return s.conn.Close() }

// Stats exposes the socket's atomic counters.
func (s *EventSocket) Stats() *stats.EventStats { return &s.stats }

// Run reads datagrams until ctx is cancelled, discarding malformed
// ones and delivering well-formed events to handle.
func (s *EventSocket) Run(ctx context.Context, handle func(Event)) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.conn.Close()
		close(done)
	}()

	buf := make([]byte, 2048)
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
				return err
			}
		}
		n, err := s.conn.Read(buf)
		if err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		ev, ok := s.decode(buf[:n])
		if !ok {
			s.stats.Malformed.Add(1)
			continue
		}
		s.stats.Received.Add(1)
		handle(ev)
	}
}

func (s *EventSocket) decode(buf []byte) (Event, bool) {
	if len(buf) < headerLen {
		return Event{}, false
	}
	opcode := binary.BigEndian.Uint16(buf[2:4])
	length := binary.BigEndian.Uint16(buf[4:6])
	if opcode != OpEventCmd {
		return Event{}, false
	}
	body := buf[headerLen:]
	if len(body) < int(length) || len(body) < eventBodyFixedLen {
		return Event{}, false
	}

	ev := Event{
		EventID:        binary.BigEndian.Uint16(body[0:2]),
		NotificationID: binary.BigEndian.Uint16(body[2:4]),
		DeviceTime:     binary.BigEndian.Uint64(body[4:12]),
		StreamChannel:  binary.BigEndian.Uint16(body[12:14]),
		BlockID:        binary.BigEndian.Uint16(body[14:16]),
	}
	payloadLength := binary.BigEndian.Uint16(body[16:18])
	payloadStart := eventBodyFixedLen
	if len(body) < payloadStart+int(payloadLength) {
		return Event{}, false
	}
	ev.Payload = append([]byte(nil), body[payloadStart:payloadStart+int(payloadLength)]...)

	if s.mapper != nil {
		ev.HostTime = s.mapper.ToHostTime(ev.DeviceTime)
	}
	return ev, true
}
