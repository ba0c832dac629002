// Package checkpoint implements the Checkpoint Assembler: given a child
// subnet's chain tip, it gathers the data a checkpoint submission needs
// from the child and parent chains and encodes the message pushed to the
// parent's message pool. Grounded step for step on the Rust
// submit_checkpoint function this spec was distilled from.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/ipc-subnet/subnet-agent/internal/chainrpc"
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// MethodSubmitCheckpoint is the subnet actor method number invoked to
// submit a checkpoint, per the IPC subnet actor ABI.
const MethodSubmitCheckpoint uint64 = 2

// Data is the body of a Checkpoint. Proof carries the serialized child
// tipset CID; this spec uses the "proof" field rather than the legacy
// "tip_set" field name (see the Open Question resolution in DESIGN.md).
type Data struct {
	Children  []byte          `json:"children"`
	PrevCheck chainrpc.CIDMap `json:"prev_check"`
	Proof     []byte          `json:"proof"`
}

// Checkpoint is the signed-message payload submitted to a child subnet's
// actor on the parent chain.
type Checkpoint struct {
	SubnetID subnetid.ID `json:"subnet_id"`
	Epoch    int64       `json:"epoch"`
	Data     Data        `json:"data"`
}

// New returns an empty Checkpoint for subnet id at epoch, mirroring
// Checkpoint::new in the original implementation.
func New(id subnetid.ID, epoch int64) Checkpoint {
	return Checkpoint{SubnetID: id, Epoch: epoch}
}

// ChildRPC is the narrow surface the Assembler needs from the child
// subnet's Chain RPC client.
type ChildRPC interface {
	IPCGetCheckpointTemplate(ctx context.Context, epoch int64) (chainrpc.CheckpointTemplate, error)
}

// ParentRPC is the narrow surface the Assembler needs from the parent
// subnet's Chain RPC client.
type ParentRPC interface {
	IPCGetPrevCheckpointForChild(ctx context.Context, id subnetid.ID) (chainrpc.PrevCheckpoint, error)
	MpoolPushMessage(ctx context.Context, msg chainrpc.Message) (chainrpc.MpoolPushResult, error)
}

// Assembler builds and submits checkpoints for a single child/parent pair.
// A *chainrpc.Client satisfies both ChildRPC and ParentRPC without this
// package importing chainrpc's concrete Client type for anything but
// those two interfaces.
type Assembler struct {
	child  ChildRPC
	parent ParentRPC
}

// NewAssembler returns an Assembler reading the child template from child
// and the prior checkpoint / pushing messages against parent.
func NewAssembler(child ChildRPC, parent ParentRPC) *Assembler {
	return &Assembler{child: child, parent: parent}
}

// Assemble performs steps 1-4 of the component design: create the
// checkpoint shell, copy the child's template children, fetch the
// previous checkpoint CID from the parent, and set the proof.
func (a *Assembler) Assemble(ctx context.Context, id subnetid.ID, childTip cid.Cid, epoch int64) (Checkpoint, error) {
	cp := New(id, epoch)

	tmpl, err := a.child.IPCGetCheckpointTemplate(ctx, epoch)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("fetch checkpoint template for %s at epoch %d: %w", id, epoch, err)
	}
	cp.Data.Children = tmpl.Children

	prev, err := a.parent.IPCGetPrevCheckpointForChild(ctx, id)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("fetch previous checkpoint for %s: %w", id, err)
	}
	cp.Data.PrevCheck = prev.CID

	cp.Data.Proof = childTip.Bytes()

	return cp, nil
}

// Submit assembles a checkpoint and pushes the SubmitCheckpoint message to
// the parent's message pool on behalf of account, per steps 5-6. It does
// not wait for chain inclusion.
func (a *Assembler) Submit(ctx context.Context, account subnetid.Address, id subnetid.ID, childTip cid.Cid, epoch int64) (chainrpc.MpoolPushResult, error) {
	cp, err := a.Assemble(ctx, id, childTip, epoch)
	if err != nil {
		return chainrpc.MpoolPushResult{}, err
	}

	actor, err := id.SubnetActor()
	if err != nil {
		return chainrpc.MpoolPushResult{}, fmt.Errorf("resolve subnet actor for %s: %w", id, err)
	}

	params, err := json.Marshal(cp)
	if err != nil {
		return chainrpc.MpoolPushResult{}, fmt.Errorf("serialize checkpoint: %w", err)
	}

	result, err := a.parent.MpoolPushMessage(ctx, chainrpc.Message{
		To:     actor,
		From:   account,
		Method: MethodSubmitCheckpoint,
		Params: params,
	})
	if err != nil {
		return chainrpc.MpoolPushResult{}, fmt.Errorf("push checkpoint message for %s: %w", id, err)
	}
	return result, nil
}
