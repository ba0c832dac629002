// Package discovery resolves the network addresses of a peer known only by
// its ID, backed by a Kademlia DHT lookup. It exists to serve the address
// discovery trigger the Membership Behavior documents for SkippedProvider:
// a peer that announced a subnet record but whose addresses we don't yet
// have.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

// defaultFindPeerTimeout bounds a single DHT lookup, mirroring the
// findCtx timeout the teacher applies around kdht.FindPeer calls.
const defaultFindPeerTimeout = 10 * time.Second

// peerFinder is the narrow surface Resolver needs from *dht.IpfsDHT,
// kept as an interface so tests can supply a fake without a live DHT.
type peerFinder interface {
	FindPeer(ctx context.Context, p peer.ID) (peer.AddrInfo, error)
}

// Resolver looks up peer addresses via a Kademlia DHT and records them in
// the host's peerstore, the same refresh step
// pkg/p2pnet/peermanager.go performs before attempting to dial a peer.
type Resolver struct {
	host host.Host
	kdht peerFinder
	log  *slog.Logger

	findPeerTimeout time.Duration
	addrTTL         time.Duration
}

// New returns a Resolver backed by kdht. h is used to stash newly
// discovered addresses in the peerstore.
func New(h host.Host, kdht *dht.IpfsDHT, log *slog.Logger) *Resolver {
	return newResolver(h, kdht, log)
}

func newResolver(h host.Host, kdht peerFinder, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		host:            h,
		kdht:            kdht,
		log:             log,
		findPeerTimeout: defaultFindPeerTimeout,
		addrTTL:         10 * time.Minute,
	}
}

// FindPeer resolves p's current addresses via the DHT and adds them to the
// peerstore so a subsequent dial can use them. It returns the resolved
// peer.AddrInfo for callers that want to connect immediately.
func (r *Resolver) FindPeer(ctx context.Context, p peer.ID) (peer.AddrInfo, error) {
	findCtx, cancel := context.WithTimeout(ctx, r.findPeerTimeout)
	defer cancel()

	info, err := r.kdht.FindPeer(findCtx, p)
	if err != nil {
		r.log.Debug("discovery: DHT FindPeer failed", "peer", p, "error", err)
		return peer.AddrInfo{}, fmt.Errorf("find peer %s: %w", p, err)
	}

	r.host.Peerstore().AddAddrs(p, info.Addrs, r.addrTTL)
	r.log.Debug("discovery: DHT resolved addresses", "peer", p, "count", len(info.Addrs))
	return info, nil
}
