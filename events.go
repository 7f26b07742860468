package gencam

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tevino/abool"

	"gencam.dev/gencam/pkg/events"
)

// EventStream wraps the device's event/message channel: pointing the
// device's message destination at a bound socket, enabling/disabling
// individual event ids, and delivering decoded events to a consumer
// channel. Grounded on original_source/crates/genicam/src/events.rs
// and spec.md §4.4.6, §4.7.
type EventStream struct {
	dev     *Device
	socket  *events.EventSocket
	ch      chan events.Event
	cancel  context.CancelFunc
	done    chan struct{}
	enabled abool.AtomicBool
}

// OpenEventStream binds a UDP socket on bindAddr, points dev's message
// destination at it, and starts delivering decoded events to the
// channel returned by Events.
func OpenEventStream(ctx context.Context, dev *Device, bindAddr string) (*EventStream, error) {
	socket, err := events.Bind(bindAddr, dev.mapper)
	if err != nil {
		return nil, fmt.Errorf("gencam: bind event socket: %w", err)
	}

	es := &EventStream{dev: dev, socket: socket}
	if err := es.ConfigureMessageChannel(ctx); err != nil {
		socket.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch := make(chan events.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(ch)
		_ = socket.Run(runCtx, func(ev events.Event) {
			select {
			case ch <- ev:
			case <-runCtx.Done():
			}
		})
	}()
	es.cancel = cancel
	es.done = done
	es.ch = ch
	es.enabled.Set()
	return es, nil
}

// Enabled reports whether event delivery is currently running.
func (es *EventStream) Enabled() bool { return es.enabled.IsSet() }

// ConfigureMessageChannel (re)points the device's message destination
// register pair at this stream's bound socket (spec.md §4.4.6).
func (es *EventStream) ConfigureMessageChannel(ctx context.Context) error {
	addr := es.socket.Addr()
	return es.dev.control.SetMessageDestination(ctx, addr.IP, uint16(addr.Port))
}

// EnableEvent/DisableEvent flip the notification mask bit for eventID
// via a read-modify-write of its 32-bit register (spec.md §4.4.6).
func (es *EventStream) EnableEvent(ctx context.Context, eventID uint32) error {
	return es.dev.control.EnableEvent(ctx, eventID, true)
}

func (es *EventStream) DisableEvent(ctx context.Context, eventID uint32) error {
	return es.dev.control.EnableEvent(ctx, eventID, false)
}

// Events returns the channel decoded events are delivered on; it is
// closed when the stream is closed.
func (es *EventStream) Events() <-chan events.Event { return es.ch }

// Close stops event delivery and releases the socket.
func (es *EventStream) Close() error {
	es.enabled.UnSet()
	es.cancel()
	<-es.done
	return nil
}

// ParseEventID accepts 0x/0X-prefixed hex or plain decimal, grounded
// on original_source's parse_event_id.
func ParseEventID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("gencam: invalid event id %q: %w", s, err)
	}
	return uint32(v), nil
}
