package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Announcement is one discovery datagram heard on the network.
type Announcement struct {
	Host string
	From string
}

// broadcastLoop tells the local subnets our host name while we are listening
// and nobody is connected.
func (t *TCPTransport) broadcastLoop() {
	defer t.wg.Done()

	host, err := os.Hostname()
	if err != nil {
		t.log.Warn("discovery disabled, no host name", "err", err)
		return
	}

	lc := net.ListenConfig{Control: setSocketBroadcast}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		t.log.Warn("discovery disabled", "err", err)
		return
	}
	defer pc.Close()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-t.quitChannel:
			return
		case <-timer.C:
		}
		if !t.IsListening() {
			return
		}
		if !t.IsConnected() {
			t.announce(pc, host)
		}
		timer.Reset(t.BroadcastInterval)
	}
}

// broadcastTargets lists where announcements go.
var broadcastTargets = broadcastAddrs

func (t *TCPTransport) announce(pc net.PacketConn, host string) {
	targets, err := broadcastTargets()
	if err != nil {
		t.log.Debug("list interfaces", "err", err)
		return
	}
	for _, ip := range targets {
		dst := &net.UDPAddr{IP: ip, Port: t.DiscoveryPort}
		if _, err := pc.WriteTo([]byte(host), dst); err != nil {
			t.log.Debug("announce failed", "dst", dst, "err", err)
		}
	}
}

// broadcastAddrs returns the IPv4 broadcast address of every up,
// non-loopback interface that supports broadcast.
func broadcastAddrs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if bc := subnetBroadcast(ipnet); bc != nil {
				out = append(out, bc)
			}
		}
	}
	return out, nil
}

func subnetBroadcast(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil || len(n.Mask) != net.IPv4len {
		return nil
	}
	bc := make(net.IP, net.IPv4len)
	for i := range ip {
		bc[i] = ip[i] | ^n.Mask[i]
	}
	return bc
}

// Discover listens for announcements on port until ctx is done, calling fn
// for each datagram.
func Discover(ctx context.Context, port int, fn func(Announcement)) error {
	if fn == nil {
		return errors.New("p2p: discover needs a callback")
	}
	if port == 0 {
		port = DefaultPort
	}

	lc := net.ListenConfig{Control: setSocketBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", ":"+strconv.Itoa(port))
	if err != nil {
		return fmt.Errorf("discovery listen: %w", err)
	}
	defer pc.Close()

	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery read: %w", err)
		}
		if n == 0 {
			continue
		}
		fn(Announcement{Host: string(buf[:n]), From: from.String()})
	}
}

// LocalIP returns the address the OS would use for outbound traffic. Nothing
// is sent; the UDP dial only consults the routing table.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
