package gvcp

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"gencam.dev/gencam/pkg/netutil"
)

// ActionCommand is the broadcast action-command payload (spec.md
// §4.4.8): device key / group key / group mask gate which devices on
// the network act on it, scheduledTime of 0 means "act immediately".
type ActionCommand struct {
	DeviceKey     uint32
	GroupKey      uint32
	GroupMask     uint32
	ScheduledTime uint64
	Channel       uint16
}

// ActionAck is a single device's reply to a broadcast action command.
type ActionAck struct {
	From   *net.UDPAddr
	Status StatusCode
}

const (
	actionAckWindow  = 150 * time.Millisecond
	actionAckMaxAcks = 64
)

// SendAction broadcasts cmd to every device on broadcastAddr:Port and
// collects acknowledgements for a fixed window, bounded to
// actionAckMaxAcks replies (spec.md §4.4.8 — there is no retry: a
// broadcast with no response is not an error).
func SendAction(broadcastAddr string, cmd ActionCommand) ([]ActionAck, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, ioErr(err)
	}
	defer conn.Close()
	if err := netutil.SetBroadcast(conn); err != nil {
		return nil, ioErr(err)
	}

	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(broadcastAddr, "3956"))
	if err != nil {
		return nil, ioErr(err)
	}

	// [device_key, group_key, group_mask, scheduled_hi, scheduled_lo, channel: u16, 0: u16]
	payload := make([]byte, 24)
	binary.BigEndian.PutUint32(payload[0:4], cmd.DeviceKey)
	binary.BigEndian.PutUint32(payload[4:8], cmd.GroupKey)
	binary.BigEndian.PutUint32(payload[8:12], cmd.GroupMask)
	binary.BigEndian.PutUint32(payload[12:16], uint32(cmd.ScheduledTime>>32))
	binary.BigEndian.PutUint32(payload[16:20], uint32(cmd.ScheduledTime))
	binary.BigEndian.PutUint16(payload[20:22], cmd.Channel)

	header := RequestHeader{
		Flags:     FlagAckRequired | FlagBroadcast,
		Command:   OpActionCommand,
		Length:    uint16(len(payload)),
		RequestID: 1,
	}
	packet := header.Encode(payload)
	if _, err := conn.WriteTo(packet, dest); err != nil {
		return nil, ioErr(err)
	}

	var (
		mu   sync.Mutex
		acks []ActionAck
	)
	deadline := time.Now().Add(actionAckWindow)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, ioErr(err)
	}

	buf := make([]byte, HeaderSize+16)
	for len(acks) < actionAckMaxAcks {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			break
		}
		ack, err := DecodeAckHeader(buf[:n])
		if err != nil || ack.Command != OpActionAck {
			continue
		}
		// spec.md §4.4.8: ignore acks with a mismatched request id or a
		// non-success status rather than counting them as replies.
		if ack.RequestID != header.RequestID || ack.Status != StatusSuccess {
			continue
		}
		mu.Lock()
		acks = append(acks, ActionAck{From: from, Status: ack.Status})
		mu.Unlock()
	}
	return acks, nil
}
