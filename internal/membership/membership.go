// Package membership implements the gossip-backed Membership Behavior: it
// publishes this node's own signed provider record on a heartbeat, ingests
// records from other peers over a single gossip topic, and surfaces
// AddedProvider / SkippedProvider / RemovedProvider events to a consumer.
//
// The behavior is single-threaded and cooperative: exactly one goroutine
// (the one running Run) ever touches the embedded provider cache or the
// local subnet set. Rather than a literal non-blocking poll loop, Run uses
// a select-driven scheduler goroutine in the shape of
// pkg/p2pnet's publishLoop/cleanupLoop in the teacher repository: callers on
// other goroutines submit work through channel-backed methods, and the
// scheduler executes it in order alongside the heartbeat and gossip ingestion.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ipc-subnet/subnet-agent/internal/provider"
	"github.com/ipc-subnet/subnet-agent/internal/providercache"
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// EventKind distinguishes the members of the domain event taxonomy.
type EventKind int

const (
	// AddedProvider: a record installed for a routable peer introduced at
	// least one previously unseen subnet. NewSubnets is always non-empty.
	// Marking a peer routable emits no event, even when the cache already
	// holds a record for it.
	AddedProvider EventKind = iota
	// SkippedProvider: a valid record arrived for a peer not yet marked
	// routable. The consumer should trigger address discovery for Peer.
	SkippedProvider
	// RemovedProvider is not emitted by the Behavior: pruning drops stale
	// records without an event.
	RemovedProvider
)

func (k EventKind) String() string {
	switch k {
	case AddedProvider:
		return "AddedProvider"
	case SkippedProvider:
		return "SkippedProvider"
	case RemovedProvider:
		return "RemovedProvider"
	default:
		return "Unknown"
	}
}

// Event is a single domain event surfaced to the consumer of Events().
type Event struct {
	Kind       EventKind
	Peer       peer.ID
	NewSubnets []subnetid.ID
}

// Metrics is the nil-safe metrics sink consulted by the Behavior, mirroring
// the "metrics *Metrics // nil-safe" convention used throughout the teacher's
// pkg/p2pnet package. A nil Metrics disables instrumentation entirely.
type Metrics interface {
	ObserveEvent(kind EventKind)
	ObservePublish(err error)
	ObserveDecodeError()
}

// Config configures a Behavior.
type Config struct {
	// NetworkName names the subnet network this agent belongs to; the
	// gossip topic is exactly "/ipc/membership/<NetworkName>".
	NetworkName string
	// PublishInterval is how often the Behavior re-publishes its own
	// record and prunes stale providers.
	PublishInterval time.Duration
	// MaxProviderAge bounds how long a peer's record is trusted before
	// prune_providers drops it.
	MaxProviderAge time.Duration
}

func (c Config) topicName() string {
	return fmt.Sprintf("/ipc/membership/%s", c.NetworkName)
}

// topic is the narrow publish surface the Behavior needs from a pubsub
// topic handle, kept as an interface so tests can supply a fake.
type topic interface {
	Publish(ctx context.Context, data []byte) error
}

// gossipEnvelope is a received, not-yet-decoded gossip message.
type gossipEnvelope struct {
	data []byte
	from peer.ID
}

// subscription is the narrow receive surface the Behavior needs from a
// pubsub subscription handle.
type subscription interface {
	Next(ctx context.Context) (gossipEnvelope, error)
}

// Behavior is the gossip-topic participant described in the component
// design: it owns a ProviderCache and the local subnet set, and is driven
// entirely by Run.
type Behavior struct {
	priv   crypto.PrivKey
	peerID peer.ID

	topic   topic
	sub     subscription
	cache   *providercache.Cache
	metrics Metrics
	log     *slog.Logger

	publishInterval time.Duration
	maxProviderAge  time.Duration

	subnetIDs []subnetid.ID

	outbox   chan Event
	commands chan func(*Behavior)
}

// New joins the membership topic on ps and returns a Behavior ready to
// Run. priv/peerID are the agent's signing identity.
func New(ps *pubsub.PubSub, priv crypto.PrivKey, peerID peer.ID, cfg Config, log *slog.Logger, m Metrics) (*Behavior, error) {
	t, err := ps.Join(cfg.topicName())
	if err != nil {
		return nil, fmt.Errorf("join membership topic %s: %w", cfg.topicName(), err)
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe membership topic %s: %w", cfg.topicName(), err)
	}
	if log == nil {
		log = slog.Default()
	}
	return newBehavior(&pubsubTopic{t}, &pubsubSubscription{sub}, priv, peerID, cfg, log, m), nil
}

// newBehavior builds a Behavior from already-resolved topic/subscription
// handles, split out from New so unit tests can inject fakes without a
// live libp2p host.
func newBehavior(t topic, sub subscription, priv crypto.PrivKey, peerID peer.ID, cfg Config, log *slog.Logger, m Metrics) *Behavior {
	return &Behavior{
		priv:            priv,
		peerID:          peerID,
		topic:           t,
		sub:             sub,
		cache:           providercache.New(),
		metrics:         m,
		log:             log,
		publishInterval: cfg.PublishInterval,
		maxProviderAge:  cfg.MaxProviderAge,
		outbox:          make(chan Event, 16),
		commands:        make(chan func(*Behavior)),
	}
}

// Events returns the channel domain events are published on. Consumers
// must keep reading it; the scheduler loop blocks on a full outbox.
func (b *Behavior) Events() <-chan Event {
	return b.outbox
}

// Run drives the scheduler loop until ctx is canceled. It is the sole
// goroutine that ever touches b.cache or b.subnetIDs.
func (b *Behavior) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.publishInterval)
	defer ticker.Stop()

	gossipCh := make(chan gossipEnvelope, 64)
	pumpDone := make(chan struct{})
	go b.pumpGossip(ctx, gossipCh, pumpDone)

	b.publishMembership(ctx)

	for {
		// A due heartbeat is served before any queued gossip.
		select {
		case <-ticker.C:
			b.publishMembership(ctx)
			b.pruneMembership()
		default:
		}
		select {
		case <-ctx.Done():
			<-pumpDone
			return ctx.Err()
		case cmd := <-b.commands:
			cmd(b)
		case <-ticker.C:
			b.publishMembership(ctx)
			b.pruneMembership()
		case env := <-gossipCh:
			b.handleGossip(env)
		}
	}
}

// pumpGossip forwards subscription messages into gossipCh until ctx is
// canceled or the subscription is permanently closed.
func (b *Behavior) pumpGossip(ctx context.Context, out chan<- gossipEnvelope, done chan<- struct{}) {
	defer close(done)
	for {
		env, err := b.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Debug("membership gossip subscription closed", "error", err)
			return
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return
		}
	}
}

// do submits fn to run on the scheduler goroutine and waits for it to
// complete (or ctx to be canceled).
func (b *Behavior) do(ctx context.Context, fn func(*Behavior)) error {
	done := make(chan struct{})
	wrapped := func(bb *Behavior) {
		fn(bb)
		close(done)
	}
	select {
	case b.commands <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSubnetIDs replaces the local subnet set and immediately re-publishes.
func (b *Behavior) SetSubnetIDs(ctx context.Context, ids []subnetid.ID) error {
	return b.do(ctx, func(bb *Behavior) {
		bb.subnetIDs = append([]subnetid.ID(nil), ids...)
		bb.publishMembership(ctx)
	})
}

// AddSubnetID adds id to the local subnet set, publishing only if the set
// actually changed.
func (b *Behavior) AddSubnetID(ctx context.Context, id subnetid.ID) error {
	return b.do(ctx, func(bb *Behavior) {
		for _, existing := range bb.subnetIDs {
			if existing.Equal(id) {
				return
			}
		}
		bb.subnetIDs = append(bb.subnetIDs, id)
		bb.publishMembership(ctx)
	})
}

// RemoveSubnetID removes id from the local subnet set, publishing only if
// the set actually changed.
func (b *Behavior) RemoveSubnetID(ctx context.Context, id subnetid.ID) error {
	return b.do(ctx, func(bb *Behavior) {
		for i, existing := range bb.subnetIDs {
			if existing.Equal(id) {
				bb.subnetIDs = append(bb.subnetIDs[:i], bb.subnetIDs[i+1:]...)
				bb.publishMembership(ctx)
				return
			}
		}
	})
}

// SetRoutable delegates to the cache on the scheduler goroutine.
func (b *Behavior) SetRoutable(ctx context.Context, p peer.ID) error {
	return b.do(ctx, func(bb *Behavior) { bb.cache.SetRoutable(p) })
}

// SetUnroutable delegates to the cache on the scheduler goroutine.
func (b *Behavior) SetUnroutable(ctx context.Context, p peer.ID) (bool, error) {
	var was bool
	err := b.do(ctx, func(bb *Behavior) { was = bb.cache.SetUnroutable(p) })
	return was, err
}

// ProvidersOfSubnet delegates to the cache on the scheduler goroutine.
func (b *Behavior) ProvidersOfSubnet(ctx context.Context, s subnetid.ID) ([]peer.ID, error) {
	var out []peer.ID
	err := b.do(ctx, func(bb *Behavior) { out = bb.cache.ProvidersOfSubnet(s) })
	return out, err
}

// publishMembership signs the current subnet set and publishes it. Errors
// are logged, never propagated: a publish failure must not halt the
// scheduler loop.
func (b *Behavior) publishMembership(ctx context.Context) {
	env, err := provider.Sign(b.priv, b.peerID, b.subnetIDs)
	if err != nil {
		b.log.Warn("sign membership record", "error", err)
		b.observePublish(err)
		return
	}
	wire, err := provider.Encode(env)
	if err != nil {
		b.log.Warn("encode membership record", "error", err)
		b.observePublish(err)
		return
	}
	if err := b.topic.Publish(ctx, wire); err != nil {
		b.log.Warn("publish membership record", "error", err)
	}
	b.observePublish(err)
}

// pruneMembership drops providers last heard from before now-maxProviderAge.
func (b *Behavior) pruneMembership() {
	cutoff := provider.Now().Sub(b.maxProviderAge)
	b.cache.PruneProviders(cutoff)
}

// handleGossip decodes, verifies, and ingests a single gossip message,
// emitting the corresponding event if any.
func (b *Behavior) handleGossip(env gossipEnvelope) {
	e, err := provider.Decode(env.data)
	if err != nil {
		b.log.Debug("discard malformed membership gossip", "from", env.from, "error", err)
		b.observeDecodeError()
		return
	}
	rec, err := e.IntoRecord()
	if err != nil {
		b.log.Debug("discard malformed membership record", "from", env.from, "error", err)
		b.observeDecodeError()
		return
	}
	if rec.PeerID == b.peerID {
		return // our own republished record, looped back by the gossip fabric
	}

	result := b.cache.AddProvider(rec)
	switch {
	case result.Skipped:
		b.emit(Event{Kind: SkippedProvider, Peer: rec.PeerID})
	case len(result.NewSubnets) > 0:
		b.emit(Event{Kind: AddedProvider, Peer: rec.PeerID, NewSubnets: result.NewSubnets})
	}
}

func (b *Behavior) emit(ev Event) {
	b.observeEvent(ev.Kind)
	b.outbox <- ev
}

func (b *Behavior) observeEvent(kind EventKind) {
	if b.metrics != nil {
		b.metrics.ObserveEvent(kind)
	}
}

func (b *Behavior) observePublish(err error) {
	if b.metrics != nil {
		b.metrics.ObservePublish(err)
	}
}

func (b *Behavior) observeDecodeError() {
	if b.metrics != nil {
		b.metrics.ObserveDecodeError()
	}
}
