// Package providercache implements the in-memory index of subnet
// providers: which peers are routable, their latest signed records, and
// the derived peer-to-subnet index used to answer "who serves subnet X?"
package providercache

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ipc-subnet/subnet-agent/internal/provider"
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// AddResult reports the outcome of Cache.AddProvider.
type AddResult struct {
	// Skipped is true when the record's peer is not routable; the cache
	// was not mutated and the caller should trigger address discovery.
	Skipped bool

	// NewSubnets holds the subnets newly present in the installed record
	// relative to any prior record for this peer. It is empty (not nil)
	// when the record was installed but introduced no new subnets and when
	// a stale record was dropped, and nil when the record was skipped.
	NewSubnets []subnetid.ID
}

// Cache is the provider cache described in the data model: a routable set,
// the latest record per peer, and a derived subnet-to-peers index. In the
// agent it is owned by a single goroutine (the Membership Behavior's
// scheduler loop); every exported method also takes the internal lock, so
// concurrent calls are safe.
type Cache struct {
	mu       sync.RWMutex
	routable map[peer.ID]struct{}
	records  map[peer.ID]provider.Record
	bySubnet map[string]map[peer.ID]struct{}
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		routable: make(map[peer.ID]struct{}),
		records:  make(map[peer.ID]provider.Record),
		bySubnet: make(map[string]map[peer.ID]struct{}),
	}
}

// SetRoutable marks p as routable. If a record already exists for p, the
// by_subnet index is rebuilt for p's current subnets. Calling it twice in
// a row is equivalent to calling it once.
func (c *Cache) SetRoutable(p peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routable[p] = struct{}{}
	if rec, ok := c.records[p]; ok {
		c.indexSubnetsLocked(p, rec.SubnetIDs)
	}
}

// SetUnroutable removes p from the routable set and from every
// by_subnet entry, without discarding its stored record. It reports
// whether p had previously been routable.
func (c *Cache) SetUnroutable(p peer.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, wasRoutable := c.routable[p]
	delete(c.routable, p)
	c.deindexAllLocked(p)
	return wasRoutable
}

// AddProvider ingests a verified record. See the package-level AddResult
// doc and the component design for the exact semantics: non-routable
// peers are skipped without mutation; stale (non-newer) timestamps are
// dropped silently; otherwise the record is installed and the newly
// added subnets (possibly none) are reported.
func (c *Cache) AddProvider(rec provider.Record) AddResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, routable := c.routable[rec.PeerID]; !routable {
		return AddResult{Skipped: true}
	}

	prior, hadPrior := c.records[rec.PeerID]
	if hadPrior && !prior.Timestamp.Before(rec.Timestamp) {
		// Tie-break rule: equal timestamps are not-newer (stability).
		return AddResult{NewSubnets: []subnetid.ID{}}
	}

	var newSubnets []subnetid.ID
	if hadPrior {
		newSubnets = diffSubnets(prior.SubnetIDs, rec.SubnetIDs)
	} else {
		newSubnets = append([]subnetid.ID{}, rec.SubnetIDs...)
	}

	c.records[rec.PeerID] = rec
	c.indexSubnetsLocked(rec.PeerID, rec.SubnetIDs)

	return AddResult{NewSubnets: newSubnets}
}

// ProvidersOfSubnet returns the set of routable providers of s, in
// unspecified order.
func (c *Cache) ProvidersOfSubnet(s subnetid.ID) []peer.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	peers := c.bySubnet[s.String()]
	out := make([]peer.ID, 0, len(peers))
	for p := range peers {
		out = append(out, p)
	}
	return out
}

// PruneProviders removes every record with a timestamp strictly earlier
// than cutoff, and updates the by_subnet index accordingly.
func (c *Cache) PruneProviders(cutoff provider.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p, rec := range c.records {
		if rec.Timestamp.Before(cutoff) {
			delete(c.records, p)
			c.deindexAllLocked(p)
		}
	}
}

// Record returns the latest stored record for p, if any.
func (c *Cache) Record(p peer.ID) (provider.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[p]
	return rec, ok
}

// indexSubnetsLocked rebuilds p's entries in bySubnet to exactly subnets,
// assuming p is currently routable. Callers must hold c.mu.
func (c *Cache) indexSubnetsLocked(p peer.ID, subnets []subnetid.ID) {
	c.deindexAllLocked(p)
	for _, s := range subnets {
		key := s.String()
		if c.bySubnet[key] == nil {
			c.bySubnet[key] = make(map[peer.ID]struct{})
		}
		c.bySubnet[key][p] = struct{}{}
	}
}

// deindexAllLocked removes p from every bySubnet entry. Callers must hold
// c.mu.
func (c *Cache) deindexAllLocked(p peer.ID) {
	for key, peers := range c.bySubnet {
		delete(peers, p)
		if len(peers) == 0 {
			delete(c.bySubnet, key)
		}
	}
}

// diffSubnets returns the entries of next not present in prev.
func diffSubnets(prev, next []subnetid.ID) []subnetid.ID {
	prevSet := make(map[string]struct{}, len(prev))
	for _, id := range prev {
		prevSet[id.String()] = struct{}{}
	}
	added := []subnetid.ID{}
	for _, id := range next {
		if _, ok := prevSet[id.String()]; !ok {
			added = append(added, id)
		}
	}
	return added
}
