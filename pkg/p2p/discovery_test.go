package p2p

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	spare, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer spare.Close()
	return spare.LocalAddr().(*net.UDPAddr).Port
}

func TestSubnetBroadcast(t *testing.T) {
	_, n, _ := net.ParseCIDR("192.168.10.37/24")
	n.IP = net.ParseIP("192.168.10.37")
	if got := subnetBroadcast(n); !got.Equal(net.ParseIP("192.168.10.255")) {
		t.Fatalf("got %v", got)
	}

	_, n, _ = net.ParseCIDR("10.1.2.3/8")
	if got := subnetBroadcast(n); !got.Equal(net.ParseIP("10.255.255.255")) {
		t.Fatalf("got %v", got)
	}

	_, v6, _ := net.ParseCIDR("fe80::1/64")
	if got := subnetBroadcast(v6); got != nil {
		t.Fatalf("IPv6 has no broadcast address, got %v", got)
	}
}

func TestDiscoverReceivesAnnouncement(t *testing.T) {
	port := freeUDPPort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Announcement, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Discover(ctx, port, func(a Announcement) {
			select {
			case got <- a:
			default:
			}
		})
	}()

	conn, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		conn.Write([]byte("bench-host"))
		select {
		case a := <-got:
			if a.Host != "bench-host" {
				t.Fatalf("host %q", a.Host)
			}
			cancel()
			if err := <-errCh; err != nil {
				t.Fatalf("discover returned %v", err)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no announcement received")
		}
	}
}

func TestBroadcastOnlyWhileIdle(t *testing.T) {
	host, err := os.Hostname()
	if err != nil {
		t.Skip("no host name:", err)
	}
	orig := broadcastTargets
	broadcastTargets = func() ([]net.IP, error) { return []net.IP{net.IPv4(127, 0, 0, 1)}, nil }
	defer func() { broadcastTargets = orig }()

	port := freeUDPPort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	heard := make(chan Announcement, 64)
	go Discover(ctx, port, func(a Announcement) {
		select {
		case heard <- a:
		default:
		}
	})

	expect := func(what string) {
		t.Helper()
		select {
		case a := <-heard:
			if a.Host != host {
				t.Fatalf("announced %q, want %q", a.Host, host)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("no announcement %s", what)
		}
	}
	quiet := func(what string) {
		t.Helper()
		time.Sleep(100 * time.Millisecond)
		for len(heard) > 0 {
			<-heard
		}
		select {
		case a := <-heard:
			t.Fatalf("announcement %s: %+v", what, a)
		case <-time.After(300 * time.Millisecond):
		}
	}

	srv := NewTCPTransport(TCPTransportOptions{
		ListenAddr:        "0.0.0.0:0",
		BroadcastInterval: 20 * time.Millisecond,
		DiscoveryPort:     port,
	})
	defer srv.Close()
	cb, accepted := signal()
	if err := srv.Listen(cb); err != nil {
		t.Fatal(err)
	}
	expect("while listening")

	_, listenPort, _ := net.SplitHostPort(srv.Addr())
	cli := NewTCPTransport(TCPTransportOptions{})
	defer cli.Close()
	connected, _ := signal()
	if err := cli.Connect(net.JoinHostPort("127.0.0.1", listenPort), connected); err != nil {
		t.Fatal(err)
	}
	wait(t, accepted, "peer")
	quiet("while a peer is connected")

	cli.Close()
	if _, err := srv.Recv(make([]byte, 1)); err == nil {
		t.Fatal("expected read error after peer left")
	}
	expect("after the peer left")

	srv.Close()
	quiet("after close")
}

func TestNoBroadcastOnLoopback(t *testing.T) {
	sent := make(chan struct{}, 1)
	orig := broadcastTargets
	broadcastTargets = func() ([]net.IP, error) {
		select {
		case sent <- struct{}{}:
		default:
		}
		return nil, nil
	}
	defer func() { broadcastTargets = orig }()

	srv := NewTCPTransport(TCPTransportOptions{
		ListenAddr:        "127.0.0.1:0",
		BroadcastInterval: 10 * time.Millisecond,
	})
	defer srv.Close()
	cb, _ := signal()
	if err := srv.Listen(cb); err != nil {
		t.Fatal(err)
	}
	select {
	case <-sent:
		t.Fatal("loopback listener broadcast")
	case <-time.After(200 * time.Millisecond):
	}
}
