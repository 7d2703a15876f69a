package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

// ParentRegistry issues composite templates built from child templates
// held in a single child registry.
type ParentRegistry struct {
	mu        sync.Mutex
	state     RegistryState
	templates map[uint64]*ParentTemplate
	child     *ChildRegistry

	persister Persister
	logger    *slog.Logger
	now       func() time.Time

	obsMu     sync.Mutex
	observers []func(*Receipt)
}

// NewParentRegistry creates an empty parent registry cascading into child.
func NewParentRegistry(owner, address Address, child *ChildRegistry, opts ...Option) *ParentRegistry {
	o := buildOptions(opts)
	return &ParentRegistry{
		state: RegistryState{
			Kind:          KindParent,
			Address:       address,
			Owner:         owner,
			Name:          DefaultParentName,
			Symbol:        DefaultParentSymbol,
			ChildContract: child.Address(),
			Version:       1,
		},
		templates: make(map[uint64]*ParentTemplate),
		child:     child,
		persister: o.persister,
		logger:    o.logger,
		now:       o.now,
	}
}

// Deployment returns the registry state as a change set.
func (p *ParentRegistry) Deployment() *ChangeSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &ChangeSet{
		Receipt:    newReceipt("deploy", p.state.Owner, nil),
		Registries: []RegistryState{p.state.clone()},
	}
}

// Name returns the registry name.
func (p *ParentRegistry) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Name
}

// Symbol returns the registry symbol.
func (p *ParentRegistry) Symbol() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Symbol
}

// Address returns the registry address.
func (p *ParentRegistry) Address() Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Address
}

// Owner returns the registry owner allowed to burn.
func (p *ParentRegistry) Owner() Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Owner
}

// ChildContract returns the address of the child registry.
func (p *ParentRegistry) ChildContract() Address {
	return p.child.Address()
}

// TotalSupply returns the number of parent templates ever created.
func (p *ParentRegistry) TotalSupply() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.TokenIDPointer
}

// Subscribe registers fn to receive every committed receipt that touched
// this registry.
func (p *ParentRegistry) Subscribe(fn func(*Receipt)) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *ParentRegistry) notify(rec *Receipt) {
	if len(rec.LogsFrom(p.Address())) == 0 {
		return
	}
	p.obsMu.Lock()
	fns := slices.Clone(p.observers)
	p.obsMu.Unlock()
	for _, fn := range fns {
		fn(rec)
	}
}

// CreateTemplate creates a parent template owned by the caller. Every
// child id must exist and be held by the caller; ids are stored in the
// given order.
func (p *ParentRegistry) CreateTemplate(ctx context.Context, caller Address, svg string, childIDs []uint64, name string) (*Receipt, error) {
	return p.execute(ctx, "createTemplate", caller, nil, func(s *parentStage) error {
		if caller == ZeroAddress {
			return ErrZeroAddress
		}
		seen := make(map[uint64]bool, len(childIDs))
		for _, id := range childIDs {
			if seen[id] {
				return fmt.Errorf("%w: token %d", ErrDuplicateChild, id)
			}
			seen[id] = true
			c, err := s.child.peek(id)
			if err != nil {
				return err
			}
			if c.Burned() {
				return burned(id)
			}
			if c.Balances[caller] == 0 {
				return fmt.Errorf("%w: token %d", ErrChildNotHeld, id)
			}
		}

		s.state.TokenIDPointer++
		s.stateDirty = true
		id := s.state.TokenIDPointer
		image := ImageURI(svg)
		t := &ParentTemplate{
			Registry:      s.state.Address,
			TokenID:       id,
			Name:          name,
			ImageURI:      image,
			TokenURI:      TokenURI(name, image),
			ChildTokenIDs: append([]uint64(nil), childIDs...),
			Owner:         caller,
			Version:       1,
		}
		s.put(t)
		s.emit(Transfer{From: ZeroAddress, To: caller, TokenID: id})
		s.emit(ParentTemplateCreated{TokenID: id, URI: t.TokenURI})
		return nil
	})
}

// UpdateSVG replaces the image of a parent template. Name and child ids
// are left untouched.
func (p *ParentRegistry) UpdateSVG(ctx context.Context, caller Address, id uint64, svg string) (*Receipt, error) {
	return p.execute(ctx, "updateSvg", caller, nil, func(s *parentStage) error {
		t, err := s.live(id)
		if err != nil {
			return err
		}
		if caller != t.Owner && caller != s.state.Owner {
			return ErrNotTokenOwnerOrApproved
		}
		t.ImageURI = ImageURI(svg)
		t.TokenURI = TokenURI(t.Name, t.ImageURI)
		return nil
	})
}

// Approve lets to transfer a single parent template.
func (p *ParentRegistry) Approve(ctx context.Context, caller, to Address, id uint64) (*Receipt, error) {
	return p.execute(ctx, "approve", caller, nil, func(s *parentStage) error {
		t, err := s.live(id)
		if err != nil {
			return err
		}
		if to == t.Owner {
			return fmt.Errorf("%w: approval to current owner", ErrInvalidAddress)
		}
		if caller != t.Owner && !s.state.isApprovedForAll(t.Owner, caller) {
			return ErrNotTokenOwnerOrApproved
		}
		t.Approved = to
		s.emit(Approval{Owner: t.Owner, Approved: to, TokenID: id})
		return nil
	})
}

// GetApproved returns the single-token approval of id.
func (p *ParentRegistry) GetApproved(id uint64) (Address, error) {
	t, err := p.Template(id)
	if err != nil {
		return ZeroAddress, err
	}
	return t.Approved, nil
}

// SetApprovalForAll lets operator move every parent template the caller owns.
func (p *ParentRegistry) SetApprovalForAll(ctx context.Context, caller, operator Address, approved bool) (*Receipt, error) {
	return p.execute(ctx, "setApprovalForAll", caller, nil, func(s *parentStage) error {
		if caller == operator {
			return fmt.Errorf("%w: approve to caller", ErrInvalidAddress)
		}
		s.state.setApprovalForAll(caller, operator, approved)
		s.stateDirty = true
		s.emit(ApprovalForAll{Owner: caller, Operator: operator, Approved: approved})
		return nil
	})
}

// IsApprovedForAll reports whether owner approved operator for parent templates.
func (p *ParentRegistry) IsApprovedForAll(owner, operator Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.isApprovedForAll(owner, operator)
}

// TransferFrom moves a parent template and one unit of each of its child
// templates from one owner to another. The registry moves the children as
// an operator, so from must have approved it on the child registry.
// The cascaded TransferBatch names the parent registry as its operator.
func (p *ParentRegistry) TransferFrom(ctx context.Context, caller, from, to Address, id uint64) (*Receipt, error) {
	return p.transfer(ctx, "transferFrom", caller, from, to, id, nil)
}

// SafeTransferFrom is TransferFrom without a data payload.
func (p *ParentRegistry) SafeTransferFrom(ctx context.Context, caller, from, to Address, id uint64) (*Receipt, error) {
	return p.transfer(ctx, "safeTransferFrom", caller, from, to, id, nil)
}

// SafeTransferFromWithData is TransferFrom carrying an opaque payload that
// is recorded on the receipt.
func (p *ParentRegistry) SafeTransferFromWithData(ctx context.Context, caller, from, to Address, id uint64, data []byte) (*Receipt, error) {
	return p.transfer(ctx, "safeTransferFrom", caller, from, to, id, data)
}

func (p *ParentRegistry) transfer(ctx context.Context, op string, caller, from, to Address, id uint64, data []byte) (*Receipt, error) {
	return p.execute(ctx, op, caller, data, func(s *parentStage) error {
		t, err := s.live(id)
		if err != nil {
			return err
		}
		if caller != t.Owner && caller != t.Approved && !s.state.isApprovedForAll(t.Owner, caller) {
			return ErrNotTokenOwnerOrApproved
		}
		if t.Owner != from {
			return ErrIncorrectOwner
		}
		if to == ZeroAddress {
			return ErrZeroAddress
		}

		t.Owner = to
		t.Approved = ZeroAddress
		s.emit(Transfer{From: from, To: to, TokenID: id})

		if len(t.ChildTokenIDs) == 0 {
			return nil
		}
		ones := make([]uint64, len(t.ChildTokenIDs))
		for i := range ones {
			ones[i] = 1
		}
		if err := s.child.batchMove(s.state.Address, from, to, t.ChildTokenIDs, ones); err != nil {
			return fmt.Errorf("cascade transfer of template %d: %w", id, err)
		}
		return nil
	})
}

// BurnTemplate burns a parent template and the given units of its child
// templates. Only the registry owner may burn. childIDs must name exactly
// the template's children; when empty, one unit of each child is burned.
func (p *ParentRegistry) BurnTemplate(ctx context.Context, caller Address, id uint64, childIDs, amounts []uint64) (*Receipt, error) {
	return p.execute(ctx, "burnTemplate", caller, nil, func(s *parentStage) error {
		if caller != s.state.Owner {
			return ErrNotOwner
		}
		t, err := s.live(id)
		if err != nil {
			return err
		}
		ids, amts, err := burnArgs(t, childIDs, amounts)
		if err != nil {
			return err
		}

		owner := t.Owner
		t.Owner = ZeroAddress
		t.Approved = ZeroAddress
		t.BurnedAt = p.now().UTC()
		s.emit(Transfer{From: owner, To: ZeroAddress, TokenID: id})

		if len(ids) == 0 {
			return nil
		}
		if err := s.child.batchMove(s.state.Address, owner, ZeroAddress, ids, amts); err != nil {
			return fmt.Errorf("cascade burn of template %d: %w", id, err)
		}
		return nil
	})
}

func burnArgs(t *ParentTemplate, childIDs, amounts []uint64) ([]uint64, []uint64, error) {
	if len(childIDs) == 0 && len(amounts) == 0 {
		ones := make([]uint64, len(t.ChildTokenIDs))
		for i := range ones {
			ones[i] = 1
		}
		return t.ChildTokenIDs, ones, nil
	}
	if len(childIDs) != len(amounts) {
		return nil, nil, ErrLengthMismatch
	}
	if len(childIDs) != len(t.ChildTokenIDs) {
		return nil, nil, fmt.Errorf("%w: template %d has %d children, got %d",
			ErrChildMismatch, t.TokenID, len(t.ChildTokenIDs), len(childIDs))
	}
	want := make(map[uint64]bool, len(t.ChildTokenIDs))
	for _, id := range t.ChildTokenIDs {
		want[id] = true
	}
	for _, id := range childIDs {
		if !want[id] {
			return nil, nil, fmt.Errorf("%w: token %d", ErrChildMismatch, id)
		}
		delete(want, id)
	}
	return childIDs, amounts, nil
}

// Template returns a copy of a parent template.
func (p *ParentRegistry) Template(id uint64) (ParentTemplate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 1 || id > p.state.TokenIDPointer {
		return ParentTemplate{}, notMinted(id)
	}
	t, ok := p.templates[id]
	if !ok {
		return ParentTemplate{}, notMinted(id)
	}
	return *t.clone(), nil
}

// ParentChildTokens returns the child ids a parent template was created with.
func (p *ParentRegistry) ParentChildTokens(id uint64) ([]uint64, error) {
	t, err := p.Template(id)
	if err != nil {
		return nil, err
	}
	return t.ChildTokenIDs, nil
}

// TokenURI returns the metadata URI of a parent template.
func (p *ParentRegistry) TokenURI(id uint64) (string, error) {
	t, err := p.Template(id)
	if err != nil {
		return "", err
	}
	return t.TokenURI, nil
}

// OwnerOf returns the owner of a parent template, ZeroAddress once burned.
func (p *ParentRegistry) OwnerOf(id uint64) (Address, error) {
	t, err := p.Template(id)
	if err != nil {
		return ZeroAddress, err
	}
	return t.Owner, nil
}

// BalanceOf returns how many live parent templates owner holds.
func (p *ParentRegistry) BalanceOf(owner Address) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n uint64
	for _, t := range p.templates {
		if t.Owner == owner && !t.Burned() {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the full registry state.
func (p *ParentRegistry) Snapshot() ParentSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := ParentSnapshot{State: p.state.clone()}
	for _, t := range p.templates {
		snap.Templates = append(snap.Templates, *t.clone())
	}
	sort.Slice(snap.Templates, func(i, j int) bool {
		return snap.Templates[i].TokenID < snap.Templates[j].TokenID
	})
	return snap
}

func (p *ParentRegistry) execute(ctx context.Context, op string, caller Address, data []byte, fn func(*parentStage) error) (*Receipt, error) {
	rec, err := func() (*Receipt, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.child.mu.Lock()
		defer p.child.mu.Unlock()

		s := &parentStage{
			p:      p,
			state:  p.state.clone(),
			staged: make(map[uint64]*ParentTemplate),
			child:  p.child.stage(),
		}
		if err := fn(s); err != nil {
			return nil, err
		}

		logs := append(s.logs, s.child.logs...)
		cs := &ChangeSet{Receipt: newReceipt(op, caller, logs)}
		cs.Receipt.Data = data
		s.collect(cs)
		s.child.collect(cs)
		if p.persister != nil {
			if err := p.persister.Persist(ctx, cs); err != nil {
				p.logger.Warn("parent registry persist failed",
					"op", op,
					"registry", p.state.Address.Hex(),
					"error", err,
				)
				return nil, fmt.Errorf("persist %s: %w", op, err)
			}
		}
		s.apply()
		s.child.apply()
		p.logger.Debug("parent registry call committed",
			"op", op,
			"receipt", cs.Receipt.ID.String(),
			"records", cs.Size(),
		)
		return cs.Receipt, nil
	}()
	if err != nil {
		return nil, err
	}
	p.notify(rec)
	p.child.notify(rec)
	return rec, nil
}

// parentStage stages parent records alongside a child stage so a cascade
// commits or aborts as one unit.
type parentStage struct {
	p          *ParentRegistry
	state      RegistryState
	stateDirty bool
	staged     map[uint64]*ParentTemplate
	order      []uint64
	logs       []Log
	child      *childStage
}

func (s *parentStage) emit(e Event) {
	s.logs = append(s.logs, Log{Address: s.state.Address, Event: e})
}

func (s *parentStage) put(t *ParentTemplate) {
	if _, ok := s.staged[t.TokenID]; !ok {
		s.order = append(s.order, t.TokenID)
	}
	s.staged[t.TokenID] = t
}

// live stages and returns a template that exists and is not burned.
func (s *parentStage) live(id uint64) (*ParentTemplate, error) {
	if t, ok := s.staged[id]; ok {
		if t.Burned() {
			return nil, burned(id)
		}
		return t, nil
	}
	if id < 1 || id > s.state.TokenIDPointer {
		return nil, notMinted(id)
	}
	cur, ok := s.p.templates[id]
	if !ok {
		return nil, notMinted(id)
	}
	if cur.Burned() {
		return nil, burned(id)
	}
	t := cur.clone()
	t.Version++
	s.put(t)
	return t, nil
}

func (s *parentStage) collect(cs *ChangeSet) {
	if s.stateDirty {
		s.state.Version++
		cs.Registries = append(cs.Registries, s.state.clone())
	}
	for _, id := range s.order {
		cs.Parents = append(cs.Parents, *s.staged[id].clone())
	}
}

func (s *parentStage) apply() {
	s.p.state = s.state
	for _, id := range s.order {
		s.p.templates[id] = s.staged[id]
	}
}
