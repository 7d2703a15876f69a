package ledger

import (
	"fmt"
)

// ChildSnapshot is the complete state of a child registry.
type ChildSnapshot struct {
	State     RegistryState
	Templates []ChildTemplate
}

// ParentSnapshot is the complete state of a parent registry.
type ParentSnapshot struct {
	State     RegistryState
	Templates []ParentTemplate
}

// RestoreChildRegistry rebuilds a child registry from a snapshot.
func RestoreChildRegistry(snap ChildSnapshot, opts ...Option) (*ChildRegistry, error) {
	if snap.State.Kind != KindChild {
		return nil, fmt.Errorf("%w: kind %q is not a child registry", ErrRegistryMismatch, snap.State.Kind)
	}
	r := NewChildRegistry(snap.State.Owner, snap.State.Address, snap.State.Name, snap.State.Symbol, opts...)
	r.state = snap.State.clone()
	for i := range snap.Templates {
		t := snap.Templates[i].clone()
		if t.TokenID < 1 || t.TokenID > r.state.TokenIDPointer {
			return nil, fmt.Errorf("%w: child token %d beyond pointer %d",
				ErrRegistryMismatch, t.TokenID, r.state.TokenIDPointer)
		}
		r.templates[t.TokenID] = t
	}
	for id := uint64(1); id <= r.state.TokenIDPointer; id++ {
		if _, ok := r.templates[id]; !ok {
			return nil, fmt.Errorf("%w: child token %d missing", ErrRegistryMismatch, id)
		}
	}
	return r, nil
}

// RestoreParentRegistry rebuilds a parent registry from a snapshot. Burned
// templates that are no longer stored are restored as burned placeholders
// so their ids keep reporting ZeroAddress as owner.
func RestoreParentRegistry(snap ParentSnapshot, child *ChildRegistry, opts ...Option) (*ParentRegistry, error) {
	if snap.State.Kind != KindParent {
		return nil, fmt.Errorf("%w: kind %q is not a parent registry", ErrRegistryMismatch, snap.State.Kind)
	}
	if snap.State.ChildContract != child.Address() {
		return nil, fmt.Errorf("%w: parent cascades into %s, got child registry %s",
			ErrRegistryMismatch, snap.State.ChildContract.Hex(), child.Address().Hex())
	}
	p := NewParentRegistry(snap.State.Owner, snap.State.Address, child, opts...)
	p.state = snap.State.clone()
	for i := range snap.Templates {
		t := snap.Templates[i].clone()
		if t.TokenID < 1 || t.TokenID > p.state.TokenIDPointer {
			return nil, fmt.Errorf("%w: parent token %d beyond pointer %d",
				ErrRegistryMismatch, t.TokenID, p.state.TokenIDPointer)
		}
		p.templates[t.TokenID] = t
	}
	for id := uint64(1); id <= p.state.TokenIDPointer; id++ {
		if _, ok := p.templates[id]; !ok {
			p.templates[id] = &ParentTemplate{
				Registry: p.state.Address,
				TokenID:  id,
				Owner:    ZeroAddress,
			}
		}
	}
	return p, nil
}
