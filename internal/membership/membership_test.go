package membership

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/goleak"

	"github.com/ipc-subnet/subnet-agent/internal/provider"
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// TestMain verifies that Behavior.Run's gossip pump goroutine always exits
// with its parent test, since every test here starts one via Run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTopic records every published payload.
type fakeTopic struct {
	mu        sync.Mutex
	published [][]byte
	failNext  bool
}

func (f *fakeTopic) Publish(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("injected publish failure")
	}
	f.published = append(f.published, data)
	return nil
}

func (f *fakeTopic) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// fakeSubscription serves envelopes from a channel, blocking until one is
// available or ctx is canceled, matching pubsub.Subscription.Next.
type fakeSubscription struct {
	in chan gossipEnvelope
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{in: make(chan gossipEnvelope, 16)}
}

func (f *fakeSubscription) Next(ctx context.Context) (gossipEnvelope, error) {
	select {
	case env := <-f.in:
		return env, nil
	case <-ctx.Done():
		return gossipEnvelope{}, ctx.Err()
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity(t *testing.T) (crypto.PrivKey, peer.ID) {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		t.Fatalf("GenerateKeyPair() = %v", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("IDFromPrivateKey() = %v", err)
	}
	return priv, id
}

func newTestBehavior(t *testing.T, topicIn *fakeTopic, subIn *fakeSubscription) (*Behavior, crypto.PrivKey, peer.ID) {
	t.Helper()
	priv, id := testIdentity(t)
	cfg := Config{
		NetworkName:     "test",
		PublishInterval: time.Hour, // tests trigger publish manually
		MaxProviderAge:  time.Hour,
	}
	b := newBehavior(topicIn, subIn, priv, id, cfg, discardLogger(), nil)
	return b, priv, id
}

func signEnvelopeWire(t *testing.T, priv crypto.PrivKey, id peer.ID, subnets []subnetid.ID) []byte {
	t.Helper()
	env, err := provider.Sign(priv, id, subnets)
	if err != nil {
		t.Fatalf("Sign() = %v", err)
	}
	wire, err := provider.Encode(env)
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	return wire
}

// TestPublishOnStart verifies Run() publishes the node's own record once
// at startup, before entering the select loop.
func TestPublishOnStart(t *testing.T) {
	top := &fakeTopic{}
	sub := newFakeSubscription()
	b, _, _ := newTestBehavior(t, top, sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for top.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for startup publish")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

// TestColdIngestThenRoutableEvents mirrors providercache's scenario 1
// through the Behavior's event surface.
func TestColdIngestThenRoutableEvents(t *testing.T) {
	top := &fakeTopic{}
	sub := newFakeSubscription()
	b, _, _ := newTestBehavior(t, top, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	otherPriv, otherID := testIdentity(t)
	sA := subnetid.MustParse("/f0001")
	wire := signEnvelopeWire(t, otherPriv, otherID, []subnetid.ID{sA})
	sub.in <- gossipEnvelope{data: wire, from: otherID}

	select {
	case ev := <-b.Events():
		if ev.Kind != SkippedProvider {
			t.Fatalf("Kind = %v, want SkippedProvider", ev.Kind)
		}
		if ev.Peer != otherID {
			t.Fatalf("Peer = %s, want %s", ev.Peer, otherID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SkippedProvider event")
	}

	if err := b.SetRoutable(ctx, otherID); err != nil {
		t.Fatalf("SetRoutable() = %v", err)
	}

	providers, err := b.ProvidersOfSubnet(ctx, sA)
	if err != nil {
		t.Fatalf("ProvidersOfSubnet() = %v", err)
	}
	if len(providers) != 0 {
		t.Fatalf("providers = %v, want empty: the skipped record was never installed", providers)
	}

	// Re-deliver the same record now that the peer is routable: no prior
	// record was ever installed (the first ingest was skipped), so this
	// is treated as a first-time install and yields AddedProvider.
	sub.in <- gossipEnvelope{data: wire, from: otherID}

	select {
	case ev := <-b.Events():
		if ev.Kind != AddedProvider {
			t.Fatalf("Kind = %v, want AddedProvider", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AddedProvider event")
	}

	providers, err = b.ProvidersOfSubnet(ctx, sA)
	if err != nil {
		t.Fatalf("ProvidersOfSubnet() = %v", err)
	}
	if len(providers) != 1 || providers[0] != otherID {
		t.Fatalf("providers = %v, want [%s]", providers, otherID)
	}
}

// TestSelfRecordLoopback verifies a record re-delivered for this node's own
// peer ID is discarded without installing into the cache or emitting an
// event.
func TestSelfRecordLoopback(t *testing.T) {
	top := &fakeTopic{}
	sub := newFakeSubscription()
	b, priv, id := newTestBehavior(t, top, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	wire := signEnvelopeWire(t, priv, id, nil)
	sub.in <- gossipEnvelope{data: wire, from: id}

	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event for self-loopback record: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestMalformedGossipDiscarded verifies a garbage payload does not crash
// the scheduler loop and produces no event.
func TestMalformedGossipDiscarded(t *testing.T) {
	top := &fakeTopic{}
	sub := newFakeSubscription()
	b, _, _ := newTestBehavior(t, top, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	sub.in <- gossipEnvelope{data: []byte("not a valid envelope"), from: ""}

	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event for malformed gossip: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	// The loop must still be alive and responsive afterward.
	if err := b.SetRoutable(ctx, ""); err != nil {
		t.Fatalf("SetRoutable() after malformed gossip = %v", err)
	}
}

// TestAddRemoveSubnetIDPublishesOnChangeOnly verifies add/remove only
// triggers a publish when the set actually changes.
func TestAddRemoveSubnetIDPublishesOnChangeOnly(t *testing.T) {
	top := &fakeTopic{}
	sub := newFakeSubscription()
	b, _, _ := newTestBehavior(t, top, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	for top.count() == 0 {
		time.Sleep(time.Millisecond)
	}
	baseline := top.count()

	sA := subnetid.MustParse("/f0001")
	if err := b.AddSubnetID(ctx, sA); err != nil {
		t.Fatalf("AddSubnetID() = %v", err)
	}
	if top.count() != baseline+1 {
		t.Fatalf("publish count = %d, want %d after adding a new subnet", top.count(), baseline+1)
	}

	if err := b.AddSubnetID(ctx, sA); err != nil {
		t.Fatalf("AddSubnetID() (duplicate) = %v", err)
	}
	if top.count() != baseline+1 {
		t.Fatalf("publish count = %d, want unchanged after re-adding an existing subnet", top.count())
	}

	if err := b.RemoveSubnetID(ctx, sA); err != nil {
		t.Fatalf("RemoveSubnetID() = %v", err)
	}
	if top.count() != baseline+2 {
		t.Fatalf("publish count = %d, want %d after removing a present subnet", top.count(), baseline+2)
	}

	if err := b.RemoveSubnetID(ctx, sA); err != nil {
		t.Fatalf("RemoveSubnetID() (absent) = %v", err)
	}
	if top.count() != baseline+2 {
		t.Fatalf("publish count = %d, want unchanged after removing an absent subnet", top.count())
	}
}

// TestPublishFailureDoesNotHaltLoop verifies a publish error (e.g. a
// transient transport failure) is absorbed, not propagated.
func TestPublishFailureDoesNotHaltLoop(t *testing.T) {
	top := &fakeTopic{failNext: true}
	sub := newFakeSubscription()
	b, _, _ := newTestBehavior(t, top, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	defer func() { cancel(); <-done }()

	// The startup publish is the one that fails; the loop must remain
	// responsive to subsequent commands regardless.
	if err := b.SetRoutable(ctx, ""); err != nil {
		t.Fatalf("SetRoutable() after failed publish = %v", err)
	}
}
