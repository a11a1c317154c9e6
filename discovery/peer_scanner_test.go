package discovery

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"duochat/models"
)

func TestScanFiltersSelfAndNonServers(t *testing.T) {
	browser := newTestBrowser(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		entries <- testServiceEntry("self", "Self", 1234, "10.0.0.1")
		entries <- testServiceEntry("peer-b", "Bob", 1234, "10.0.0.2")
		entries <- testServiceEntry("peer-a", "Alice", 4321, "10.0.0.3")

		client := testServiceEntry("peer-c", "Carol", 1234, "10.0.0.4")
		client.Text = append(client.Text, "role=client")
		entries <- client

		entries <- &zeroconf.ServiceEntry{Text: []string{"version=1"}, Port: 1234}
		<-ctx.Done()
		return nil
	})

	peers, err := browser.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 servers, got %d: %+v", len(peers), peers)
	}
	if peers[0].DisplayName != "Alice" || peers[1].DisplayName != "Bob" {
		t.Fatalf("expected peers sorted by name, got %q, %q", peers[0].DisplayName, peers[1].DisplayName)
	}
	if peers[0].Port != 4321 || peers[0].InstanceID != "peer-a" {
		t.Fatalf("unexpected first peer: %+v", peers[0])
	}
	if peers[0].LastSeen == 0 {
		t.Fatalf("expected last seen to be stamped")
	}
}

func TestScanDeduplicatesAddresses(t *testing.T) {
	browser := newTestBrowser(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		entry := testServiceEntry("peer-1", "Bob", 1234, "10.0.0.2")
		entry.AddrIPv4 = append(entry.AddrIPv4, net.ParseIP("10.0.0.2"), net.ParseIP("10.0.0.1"))
		entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
		entries <- entry
		<-ctx.Done()
		return nil
	})

	peers, err := browser.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected one peer, got %d", len(peers))
	}
	want := []string{"10.0.0.1", "10.0.0.2", "fe80::1"}
	if len(peers[0].Addresses) != len(want) {
		t.Fatalf("expected addresses %v, got %v", want, peers[0].Addresses)
	}
	for i := range want {
		if peers[0].Addresses[i] != want[i] {
			t.Fatalf("expected addresses %v, got %v", want, peers[0].Addresses)
		}
	}
}

func TestScanIgnoresDeadlineExceededFromBrowse(t *testing.T) {
	browser := newTestBrowser(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		entries <- testServiceEntry("peer-1", "Bob", 1234, "10.0.0.2")
		<-ctx.Done()
		return ctx.Err()
	})

	peers, err := browser.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(peers) != 1 || peers[0].InstanceID != "peer-1" {
		t.Fatalf("unexpected peers: %+v", peers)
	}
}

func TestFindServerRetriesUntilFound(t *testing.T) {
	var calls int32
	browser := newTestBrowser(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		if atomic.AddInt32(&calls, 1) >= 3 {
			entries <- testServiceEntry("peer-1", "Bob", 1234, "10.0.0.2")
		}
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	peer, err := browser.FindServer(ctx)
	if err != nil {
		t.Fatalf("FindServer failed: %v", err)
	}
	if peer.InstanceID != "peer-1" {
		t.Fatalf("unexpected peer: %+v", peer)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 scans, got %d", got)
	}
}

func TestFindServerGivesUpWithContext(t *testing.T) {
	browser := newTestBrowser(t, func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := browser.FindServer(ctx)
	if !errors.Is(err, ErrNoServer) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrNoServer wrapping deadline, got %v", err)
	}
}

func TestDialHost(t *testing.T) {
	cases := []struct {
		name string
		peer models.Peer
		want string
	}{
		{"prefers ipv4", models.Peer{Addresses: []string{"fe80::1", "192.168.1.5"}}, "192.168.1.5"},
		{"falls back to ipv6", models.Peer{Addresses: []string{"fe80::1"}}, "fe80::1"},
		{"falls back to host", models.Peer{HostName: "bob.local."}, "bob.local"},
	}
	for _, tc := range cases {
		if got := DialHost(tc.peer); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func newTestBrowser(t *testing.T, browse browseFunc) *Browser {
	t.Helper()

	browser, err := NewBrowser(Config{
		InstanceID:    "self",
		ScanTimeout:   35 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
		Logger:        quietLogger(),
		browseFn:      browse,
	})
	if err != nil {
		t.Fatalf("NewBrowser failed: %v", err)
	}
	return browser
}

func testServiceEntry(instanceID, instance string, port int, ip string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  DefaultService,
			Domain:   DefaultDomain,
		},
		HostName: instance + ".local.",
		Port:     port,
		Text: []string{
			"instance_id=" + instanceID,
			"version=1",
		},
		AddrIPv4: []net.IP{net.ParseIP(ip)},
	}
}
