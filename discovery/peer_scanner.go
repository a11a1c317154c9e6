package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"duochat/models"
)

// ErrNoServer indicates no chat server answered before the caller gave up.
var ErrNoServer = errors.New("discovery: no server found")

// Browser looks for advertised chat servers on the local network.
type Browser struct {
	cfg    Config
	browse browseFunc
}

// NewBrowser creates a browser with config defaults applied.
func NewBrowser(config Config) (*Browser, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	return &Browser{cfg: cfg, browse: browse}, nil
}

// Scan browses for one scan window and returns the servers seen, sorted by
// display name. Our own advertisement is filtered out.
func (b *Browser) Scan(ctx context.Context) ([]models.Peer, error) {
	scanCtx, cancel := context.WithTimeout(ctx, b.cfg.ScanTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collected := make(map[string]models.Peer)
	var collectedMu sync.Mutex
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		in := entries
		for {
			select {
			case <-scanCtx.Done():
				return
			case entry, ok := <-in:
				if !ok {
					in = nil
					continue
				}
				if entry == nil {
					continue
				}
				peer, ok := parseEntry(entry, b.cfg.InstanceID)
				if !ok {
					continue
				}
				peer.LastSeen = time.Now().UnixMilli()
				collectedMu.Lock()
				collected[peer.InstanceID] = peer
				collectedMu.Unlock()
			}
		}
	}()

	if err := b.browse(scanCtx, b.cfg.Service, b.cfg.Domain, entries); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		cancel()
		<-collectorDone
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browse mDNS: %w", err)
	}

	<-scanCtx.Done()
	<-collectorDone

	// A deadline only means this window ended; the caller's own
	// cancellation is reported.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collectedMu.Lock()
	peers := make([]models.Peer, 0, len(collected))
	for _, peer := range collected {
		peers = append(peers, peer)
	}
	collectedMu.Unlock()

	sort.Slice(peers, func(i, j int) bool {
		if peers[i].DisplayName == peers[j].DisplayName {
			return peers[i].InstanceID < peers[j].InstanceID
		}
		return peers[i].DisplayName < peers[j].DisplayName
	})
	return peers, nil
}

// FindServer scans until a server shows up or ctx ends.
func (b *Browser) FindServer(ctx context.Context) (models.Peer, error) {
	for attempt := 1; ; attempt++ {
		peers, err := b.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return models.Peer{}, fmt.Errorf("%w: %w", ErrNoServer, ctx.Err())
			}
			return models.Peer{}, err
		}
		if len(peers) > 0 {
			peer := peers[0]
			b.cfg.Logger.Printf("discovery: found server name=%q address=%s attempts=%d", peer.DisplayName, DialHost(peer), attempt)
			return peer, nil
		}

		select {
		case <-ctx.Done():
			return models.Peer{}, fmt.Errorf("%w: %w", ErrNoServer, ctx.Err())
		case <-time.After(b.cfg.RetryInterval):
		}
	}
}

// DialHost picks the host a client should dial for peer, preferring an IPv4
// address over IPv6 and falling back to the advertised host name.
func DialHost(peer models.Peer) string {
	for _, addr := range peer.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return addr
		}
	}
	if len(peer.Addresses) > 0 {
		return peer.Addresses[0]
	}
	return strings.TrimSuffix(peer.HostName, ".")
}

func parseEntry(entry *zeroconf.ServiceEntry, selfInstanceID string) (models.Peer, bool) {
	txt := txtToMap(entry.Text)

	instanceID := strings.TrimSpace(txt[txtInstanceID])
	if instanceID == "" || instanceID == selfInstanceID {
		return models.Peer{}, false
	}
	if role := txt[txtRole]; role != "" && role != serverRole {
		return models.Peer{}, false
	}
	if entry.Port <= 0 {
		return models.Peer{}, false
	}
	if version, err := strconv.Atoi(txt[txtVersion]); err == nil && version > DefaultVersion {
		return models.Peer{}, false
	}

	addresses := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	seen := make(map[string]struct{})
	for _, ip := range append(entry.AddrIPv4, entry.AddrIPv6...) {
		if ip == nil {
			continue
		}
		raw := ip.String()
		if _, exists := seen[raw]; exists {
			continue
		}
		seen[raw] = struct{}{}
		addresses = append(addresses, raw)
	}
	sort.Strings(addresses)

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}
	if name == "" {
		name = instanceID
	}

	return models.Peer{
		InstanceID:  instanceID,
		DisplayName: name,
		HostName:    entry.HostName,
		Port:        entry.Port,
		Addresses:   addresses,
	}, true
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}
