// Package provider implements the signed provider record: an authenticated
// announcement tying a peer identity to the set of subnets it serves at a
// point in time.
package provider

import (
	"sort"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// Timestamp is a monotone wall-clock instant, recorded as whole seconds
// since the Unix epoch so it survives JSON round-trips without locale or
// precision surprises.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().Unix())
}

// Sub returns the Timestamp d earlier than t, used to compute pruning
// cutoffs (e.g. now().Sub(maxProviderAge)).
func (t Timestamp) Sub(d time.Duration) Timestamp {
	return Timestamp(time.Unix(int64(t), 0).Add(-d).Unix())
}

// Before reports whether t is strictly earlier than other.
func (t Timestamp) Before(other Timestamp) bool { return t < other }

// Time converts the Timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time { return time.Unix(int64(t), 0).UTC() }

// Record is the unsigned content of a provider announcement: a peer
// identity plus the subnets it claims to serve as of Timestamp.
type Record struct {
	PeerID    peer.ID       `json:"peer_id"`
	SubnetIDs []subnetid.ID `json:"subnet_ids"`
	Timestamp Timestamp     `json:"timestamp"`
}

// sortedSubnetIDs returns a copy of ids sorted by path string, giving the
// record a canonical subnet ordering independent of caller-supplied order.
func sortedSubnetIDs(ids []subnetid.ID) []subnetid.ID {
	out := make([]subnetid.ID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// NewRecord builds a Record with a canonical (sorted, deduplicated) subnet
// list and the current timestamp.
func NewRecord(peerID peer.ID, subnetIDs []subnetid.ID) Record {
	return Record{
		PeerID:    peerID,
		SubnetIDs: dedupSubnetIDs(sortedSubnetIDs(subnetIDs)),
		Timestamp: Now(),
	}
}

func dedupSubnetIDs(sorted []subnetid.ID) []subnetid.ID {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, id := range sorted[1:] {
		if !id.Equal(out[len(out)-1]) {
			out = append(out, id)
		}
	}
	return out
}

// HasSubnet reports whether r advertises subnet s.
func (r Record) HasSubnet(s subnetid.ID) bool {
	for _, id := range r.SubnetIDs {
		if id.Equal(s) {
			return true
		}
	}
	return false
}
