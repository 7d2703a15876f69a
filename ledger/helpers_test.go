package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jacentio/fgo/ledger"
)

const (
	svg       = `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10"/></svg>`
	secondSvg = `<svg xmlns="http://www.w3.org/2000/svg" width="20" height="20"><circle r="5"/></svg>`
)

var (
	deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	second   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	third    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

// recordingPersister keeps every change set and can be told to fail.
type recordingPersister struct {
	sets []*ledger.ChangeSet
	err  error
}

func (p *recordingPersister) Persist(_ context.Context, cs *ledger.ChangeSet) error {
	if p.err != nil {
		return p.err
	}
	p.sets = append(p.sets, cs)
	return nil
}

func (p *recordingPersister) last() *ledger.ChangeSet {
	if len(p.sets) == 0 {
		return nil
	}
	return p.sets[len(p.sets)-1]
}

var errStoreDown = errors.New("store unavailable")

func newChild(t *testing.T, opts ...ledger.Option) *ledger.ChildRegistry {
	t.Helper()
	addr := ledger.ContractAddress(deployer, 0)
	return ledger.NewChildRegistry(deployer, addr, ledger.DefaultChildName, ledger.DefaultChildSymbol, opts...)
}

// newPair deploys both registries and mints "leftArm" (1) and "rightArm"
// (2) to the deployer.
func newPair(t *testing.T, opts ...ledger.Option) (*ledger.ChildRegistry, *ledger.ParentRegistry) {
	t.Helper()
	ctx := context.Background()
	child := newChild(t, opts...)
	parent := ledger.NewParentRegistry(deployer, ledger.ContractAddress(deployer, 1), child, opts...)

	if _, err := child.Mint(ctx, deployer, deployer, 1, svg, "leftArm"); err != nil {
		t.Fatalf("mint leftArm: %v", err)
	}
	if _, err := child.Mint(ctx, deployer, deployer, 1, svg, "rightArm"); err != nil {
		t.Fatalf("mint rightArm: %v", err)
	}
	return child, parent
}

// newJacket creates parent template 1 ("long sleeve jacket") from child 1 and 2.
func newJacket(t *testing.T, opts ...ledger.Option) (*ledger.ChildRegistry, *ledger.ParentRegistry, *ledger.Receipt) {
	t.Helper()
	child, parent := newPair(t, opts...)
	rec, err := parent.CreateTemplate(context.Background(), deployer, svg, []uint64{1, 2}, "long sleeve jacket")
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return child, parent, rec
}

func approveParent(t *testing.T, child *ledger.ChildRegistry, parent *ledger.ParentRegistry, holder ledger.Address) {
	t.Helper()
	if _, err := child.SetApprovalForAll(context.Background(), holder, parent.Address(), true); err != nil {
		t.Fatalf("approve parent: %v", err)
	}
}

func mustChildOwner(t *testing.T, child *ledger.ChildRegistry, id uint64) ledger.Address {
	t.Helper()
	owner, err := child.OwnerOf(id)
	if err != nil {
		t.Fatalf("child owner of %d: %v", id, err)
	}
	return owner
}

func mustParentOwner(t *testing.T, parent *ledger.ParentRegistry, id uint64) ledger.Address {
	t.Helper()
	owner, err := parent.OwnerOf(id)
	if err != nil {
		t.Fatalf("parent owner of %d: %v", id, err)
	}
	return owner
}
