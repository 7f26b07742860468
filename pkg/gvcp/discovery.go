package gvcp

import (
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"gencam.dev/gencam/internal/log"
	"gencam.dev/gencam/pkg/netutil"
)

// DeviceInfo is the parsed payload of a discovery acknowledgement
// (spec.md §4.4.1): mac at offset 14, IPv4 at offset 24, manufacturer
// and model as trimmed 32-byte fixed fields.
type DeviceInfo struct {
	IP           net.IP
	MAC          [6]byte
	Manufacturer string
	Model        string
}

// MACString formats d.MAC as colon-separated uppercase hex.
func (d DeviceInfo) MACString() string {
	parts := make([]string, 6)
	for i, b := range d.MAC {
		parts[i] = hexByte(b)
	}
	return strings.Join(parts, ":")
}

func hexByte(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}

// Discover broadcasts a GVCP discovery command on every eligible
// non-loopback IPv4 interface and collects acknowledgements for
// timeout, deduplicated by (ip, mac) and sorted by IP (spec.md
// §4.4.1). iface, when non-empty, restricts discovery to that
// interface name.
func Discover(timeout time.Duration, iface string) ([]DeviceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, ioErr(err)
	}

	type target struct {
		iface     net.Interface
		localIP   net.IP
		broadcast net.IP
	}
	var targets []target
	for _, ifc := range ifaces {
		if iface != "" && ifc.Name != iface {
			continue
		}
		if ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			bcast := broadcastAddr(ip4, ipnet.Mask)
			targets = append(targets, target{iface: ifc, localIP: ip4, broadcast: bcast})
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]DeviceInfo)
	)
	var wg conc.WaitGroup
	for idx, tgt := range targets {
		requestID := uint16(0x0100 + idx)
		tgt := tgt
		wg.Go(func() {
			devices, err := discoverOnInterface(tgt.localIP, tgt.broadcast, requestID, timeout)
			if err != nil {
				log.GetLogger().WithField("interface", tgt.iface.Name).WithError(err).Warn("gvcp discovery failed on interface")
				return
			}
			mu.Lock()
			for _, d := range devices {
				key := d.IP.String() + "|" + d.MACString()
				if _, ok := seen[key]; !ok {
					seen[key] = d
				}
			}
			mu.Unlock()
		})
	}
	wg.Wait()

	out := make([]DeviceInfo, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytesLess(out[i].IP.To4(), out[j].IP.To4())
	})
	return out, nil
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func broadcastAddr(ip net.IP, mask net.IPMask) net.IP {
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

func discoverOnInterface(localIP, broadcast net.IP, requestID uint16, timeout time.Duration) ([]DeviceInfo, error) {
	localAddr := &net.UDPAddr{IP: localIP, Port: 0}
	conn, err := net.ListenUDP("udp4", localAddr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := netutil.SetBroadcast(conn); err != nil {
		return nil, err
	}

	dest := &net.UDPAddr{IP: broadcast, Port: Port}
	header := RequestHeader{
		Flags:     FlagAckRequired | FlagBroadcast,
		Command:   OpDiscoveryCommand,
		Length:    0,
		RequestID: requestID,
	}
	packet := header.Encode(nil)
	if _, err := conn.WriteTo(packet, dest); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	buf := make([]byte, DiscoveryBufferSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			break
		}
		info, ok, err := parseDiscoveryAck(buf[:n], requestID)
		if err != nil {
			continue
		}
		if ok {
			devices = append(devices, info)
		}
	}
	return devices, nil
}

func parseDiscoveryAck(buf []byte, expectedRequest uint16) (DeviceInfo, bool, error) {
	header, err := DecodeAckHeader(buf)
	if err != nil {
		return DeviceInfo{}, false, err
	}
	if header.RequestID != expectedRequest {
		return DeviceInfo{}, false, nil
	}
	if header.Command != OpDiscoveryAck {
		return DeviceInfo{}, false, protocolErr("unexpected discovery opcode 0x%04x", header.Command)
	}
	if header.Status != StatusSuccess {
		return DeviceInfo{}, false, protocolErr("discovery returned status %s", header.Status)
	}
	if len(buf) < HeaderSize+int(header.Length) {
		return DeviceInfo{}, false, protocolErr("discovery payload truncated")
	}
	payload := buf[HeaderSize : HeaderSize+int(header.Length)]
	info, err := parseDiscoveryPayload(payload)
	if err != nil {
		return DeviceInfo{}, false, err
	}
	return info, true, nil
}

// parseDiscoveryPayload decodes fields at the offsets documented in
// spec.md §4.4.1: mac at offset 14, IPv4 at offset 24, manufacturer
// (32 bytes at offset 32, trimmed) and model (32 bytes at offset 64,
// trimmed).
func parseDiscoveryPayload(payload []byte) (DeviceInfo, error) {
	const minLen = 64 + 32
	if len(payload) < minLen {
		return DeviceInfo{}, protocolErr("discovery payload too small")
	}
	var info DeviceInfo
	copy(info.MAC[:], payload[14:20])
	info.IP = net.IPv4(payload[24], payload[25], payload[26], payload[27])
	info.Manufacturer = trimmedString(payload[32:64])
	info.Model = trimmedString(payload[64:96])
	return info, nil
}

func trimmedString(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	return strings.TrimSpace(string(b[:end]))
}
