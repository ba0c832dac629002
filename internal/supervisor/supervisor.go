// Package supervisor implements the Subnet Supervisor: for each configured
// (child, parent) subnet pair with local validator accounts, it spawns a
// monitor task that watches the child's chain head, detects checkpoint
// epochs, and submits checkpoints via the Checkpoint Assembler. Grounded on
// original_source/src/manager/checkpoint.rs's start/subnets_to_manage/
// manage_subnet, using the teacher's internal/watchdog.Run select-loop
// shape for the cancellable ticker and golang.org/x/sync/errgroup for the
// per-pair join semantics.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"github.com/ipc-subnet/subnet-agent/internal/chainrpc"
	"github.com/ipc-subnet/subnet-agent/internal/checkpoint"
	"github.com/ipc-subnet/subnet-agent/internal/config"
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// ChainHeadRequestPeriod is how often a monitor polls the child chain head
// between checkpoint checks, per spec.md §4.6 step 3c.
const ChainHeadRequestPeriod = 10 * time.Second

// RPC is the narrow Chain RPC surface a monitor needs from either side of
// a (child, parent) pair. *chainrpc.Client satisfies it structurally.
type RPC interface {
	ChainHead(ctx context.Context) (chainrpc.ChainHead, error)
	Tipset(ctx context.Context) (cid.Cid, error)
	IPCReadSubnetActorState(ctx context.Context, id subnetid.ID, tipset cid.Cid) (chainrpc.SubnetActorState, error)
	checkpoint.ChildRPC
	checkpoint.ParentRPC
}

// Resolver returns the RPC client for a subnet id, per the current
// config. rpcpool.Pool.Get satisfies this.
type Resolver func(id subnetid.ID) (RPC, error)

// pair is a managed (child, parent) subnet pair with the local accounts
// that submit checkpoints for child.
type pair struct {
	child    subnetid.ID
	parent   subnetid.ID
	accounts []subnetid.Address
}

// Supervisor runs the outer config-reload loop and the set of per-pair
// monitors it currently manages.
type Supervisor struct {
	cfg      *config.ReloadableConfig
	resolve  Resolver
	log      *slog.Logger
	tickWait time.Duration // overridable in tests; defaults to ChainHeadRequestPeriod
}

// New returns a Supervisor managing pairs derived from cfg's snapshots,
// resolving RPC clients through resolve.
func New(cfg *config.ReloadableConfig, resolve Resolver, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{cfg: cfg, resolve: resolve, log: log, tickWait: ChainHeadRequestPeriod}
}

// managedPairs computes, from a Snapshot, the set of (child, parent) pairs
// to monitor: every subnet with non-empty accounts whose parent subnet is
// also present in the same snapshot, per spec.md §4.6 step 2.
func managedPairs(snap *config.Snapshot) []pair {
	var pairs []pair
	for _, sub := range snap.Subnets() {
		if len(sub.Accounts) == 0 {
			continue
		}
		parentID, ok := sub.ID.Parent()
		if !ok {
			continue // root subnet has no parent
		}
		if _, ok := snap.SubnetByID(parentID); !ok {
			continue
		}
		pairs = append(pairs, pair{child: sub.ID, parent: parentID, accounts: sub.Accounts})
	}
	return pairs
}

// Run executes the outer loop of §4.6: compute managed pairs, spawn one
// monitor per pair, and wait for either shutdown (ctx cancellation) or a
// config reload. On reload it cancels and respawns; on shutdown it
// cancels, waits, and returns. It returns nil on a clean shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		snap := s.cfg.Current()
		pairs := managedPairs(snap)
		reloadCh := s.cfg.Subscribe()

		pairCtx, cancel := context.WithCancel(ctx)
		var g errgroup.Group
		for _, p := range pairs {
			p := p
			g.Go(func() error { return s.monitorPair(pairCtx, p) })
		}

		select {
		case <-ctx.Done():
			cancel()
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case <-reloadCh:
			cancel()
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("pair monitor exited with error before reload", "error", err)
			}
			continue
		}
	}
}

// monitorPair runs the per-pair monitor loop of §4.6: Bootstrapping (steps
// 1-2), then Watching/Submitting until cancellation (step 3).
func (s *Supervisor) monitorPair(ctx context.Context, p pair) error {
	parentRPC, err := s.resolve(p.parent)
	if err != nil {
		return fmt.Errorf("resolve parent rpc for pair %s->%s: %w", p.child, p.parent, err)
	}
	childRPC, err := s.resolve(p.child)
	if err != nil {
		return fmt.Errorf("resolve child rpc for pair %s->%s: %w", p.child, p.parent, err)
	}
	assembler := checkpoint.NewAssembler(childRPC, parentRPC)

	tipset, err := parentRPC.Tipset(ctx)
	if err != nil {
		return fmt.Errorf("read parent tipset for pair %s->%s: %w", p.child, p.parent, err)
	}
	state, err := parentRPC.IPCReadSubnetActorState(ctx, p.child, tipset)
	if err != nil {
		return fmt.Errorf("read subnet actor state for %s: %w", p.child, err)
	}
	checkPeriod := state.CheckPeriod
	if checkPeriod == 0 {
		checkPeriod = 1
	}

	for {
		head, err := childRPC.ChainHead(ctx)
		if err != nil {
			return fmt.Errorf("read child chain head for %s: %w", p.child, err)
		}
		epoch := int64(head.Height)

		if uint64(epoch)%checkPeriod == 0 {
			parentTipset, err := parentRPC.Tipset(ctx)
			if err != nil {
				return fmt.Errorf("read parent tipset for epoch %d: %w", epoch, err)
			}
			valState, err := parentRPC.IPCReadSubnetActorState(ctx, p.child, parentTipset)
			if err != nil {
				return fmt.Errorf("read validator set for epoch %d: %w", epoch, err)
			}
			childTip := cid.Undef
			if len(head.Cids) > 0 {
				childTip = head.Cids[0].CID
			}
			for _, account := range localValidators(p.accounts, valState.ValidatorSet) {
				if _, err := assembler.Submit(ctx, account, p.child, childTip, epoch); err != nil {
					return fmt.Errorf("submit checkpoint for %s account %s at epoch %d: %w", p.child, account, epoch, err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.tickWait):
		}
	}
}

// localValidators returns the accounts present in both a subnet's
// configured local accounts and the parent-reported validator set,
// preserving accounts' order. Tie-break per spec.md §4.6: if multiple
// accounts match, one checkpoint per account is submitted; ordering among
// them is unspecified.
func localValidators(accounts []subnetid.Address, validatorSet []subnetid.Address) []subnetid.Address {
	inSet := make(map[subnetid.Address]struct{}, len(validatorSet))
	for _, v := range validatorSet {
		inSet[v] = struct{}{}
	}
	var out []subnetid.Address
	for _, a := range accounts {
		if _, ok := inSet[a]; ok {
			out = append(out, a)
		}
	}
	return out
}
