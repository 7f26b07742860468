// Package netutil provides network interface lookup, MTU-derived
// packet sizing, and multicast-aware UDP socket construction for the
// GVSP stream path. Grounded on
// original_source/crates/tl-gige/src/nic.rs, using
// golang.org/x/net/ipv4 for multicast group membership and
// golang.org/x/sys/unix for SO_REUSEADDR/SO_BROADCAST.
package netutil

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// DefaultRecvBufferBytes mirrors the teacher's conservative default
// socket receive buffer size.
const DefaultRecvBufferBytes = 4 << 20 // 4 MiB

// Ethernet/IPv4/UDP header sizes used to derive the maximum GVSP
// payload that fits in one packet.
const (
	ethernetL2Bytes = 14
	ipv4HeaderBytes = 20
	udpHeaderBytes  = 8
)

// Iface is a resolved host network interface.
type Iface struct {
	Name string
	IPv4 net.IP
}

// FromName resolves iface by OS name.
func FromName(name string) (Iface, error) {
	ifc, err := net.InterfaceByName(name)
	if err != nil {
		return Iface{}, err
	}
	return fromInterface(*ifc)
}

// FromIPv4 resolves the interface whose primary address matches ip.
func FromIPv4(ip net.IP) (Iface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Iface{}, err
	}
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if ok && ipnet.IP.To4() != nil && ipnet.IP.To4().Equal(ip.To4()) {
				return fromInterface(ifc)
			}
		}
	}
	return Iface{}, fmt.Errorf("netutil: no interface with IPv4 %s", ip)
}

func fromInterface(ifc net.Interface) (Iface, error) {
	addrs, err := ifc.Addrs()
	if err != nil {
		return Iface{}, err
	}
	var ip net.IP
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if ok && ipnet.IP.To4() != nil {
			ip = ipnet.IP.To4()
			break
		}
	}
	return Iface{Name: ifc.Name, IPv4: ip}, nil
}

// MTU reads the interface's configured MTU, falling back to the
// canonical Ethernet MTU when it cannot be determined.
func MTU(iface Iface) uint32 {
	path := fmt.Sprintf("/sys/class/net/%s/mtu", iface.Name)
	contents, err := os.ReadFile(path)
	if err != nil {
		return 1500
	}
	mtu, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 32)
	if err != nil {
		return 1500
	}
	return uint32(mtu)
}

// BestPacketSize computes the maximum GVSP user payload that fits a
// single packet on a link of the given MTU.
func BestPacketSize(mtu uint32) uint32 {
	overhead := uint32(ethernetL2Bytes + ipv4HeaderBytes + udpHeaderBytes)
	if mtu <= overhead {
		return 0
	}
	return mtu - overhead
}

// McOptions configures a multicast-subscribed socket.
type McOptions struct {
	Loopback     bool
	TTL          int
	RecvBufBytes int
	ReuseAddr    bool
}

// DefaultMcOptions mirrors the teacher's conservative multicast defaults.
func DefaultMcOptions() McOptions {
	return McOptions{Loopback: false, TTL: 1, RecvBufBytes: DefaultRecvBufferBytes, ReuseAddr: true}
}

// BindUDP opens a UDP socket bound to bind:port, applying
// SO_REUSEADDR when requested and sizing the kernel receive buffer.
// SO_REUSEPORT is not set.
func BindUDP(bind net.IP, port int, reuseAddr bool, recvBufBytes int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: bind, Port: port})
	if err != nil {
		return nil, err
	}
	if recvBufBytes > 0 {
		_ = conn.SetReadBuffer(recvBufBytes)
	}
	if reuseAddr {
		if rc, err := conn.SyscallConn(); err == nil {
			_ = rc.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
		}
	}
	return conn, nil
}

// SetBroadcast enables SO_BROADCAST on conn, required before sending to
// a broadcast destination address (spec.md §4.4.1 discovery, §4.4.8
// action-command broadcast) — without it, sendto on Linux returns
// EACCES.
func SetBroadcast(conn *net.UDPConn) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := rc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// BindMulticast opens a UDP socket on iface subscribed to group:port
// (spec.md's ambient netutil concern; GVSP itself is unicast per
// device but multicast distribution to multiple consumers is a common
// deployment).
func BindMulticast(iface Iface, group net.IP, port int, opts McOptions) (*net.UDPConn, error) {
	if group.To4() == nil || (group.To4()[0]&0xF0) != 0xE0 {
		return nil, fmt.Errorf("netutil: multicast group must be within 224.0.0.0/4")
	}
	if opts.TTL < 0 || opts.TTL > 255 {
		return nil, fmt.Errorf("netutil: multicast TTL must be <= 255")
	}
	if iface.IPv4 == nil {
		return nil, fmt.Errorf("netutil: interface %s lacks IPv4", iface.Name)
	}

	conn, err := BindUDP(net.IPv4zero, port, opts.ReuseAddr, opts.RecvBufBytes)
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	sysIface, err := net.InterfaceByName(iface.Name)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := pc.JoinGroup(sysIface, &net.UDPAddr{IP: group}); err != nil {
		conn.Close()
		return nil, err
	}
	if err := pc.SetMulticastLoopback(opts.Loopback); err != nil {
		conn.Close()
		return nil, err
	}
	if err := pc.SetMulticastTTL(opts.TTL); err != nil {
		conn.Close()
		return nil, err
	}
	if err := pc.SetMulticastInterface(sysIface); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// JoinMulticast subscribes an already-bound socket to group on iface.
func JoinMulticast(conn *net.UDPConn, group net.IP, iface Iface) error {
	pc := ipv4.NewPacketConn(conn)
	sysIface, err := net.InterfaceByName(iface.Name)
	if err != nil {
		return err
	}
	return pc.JoinGroup(sysIface, &net.UDPAddr{IP: group})
}
