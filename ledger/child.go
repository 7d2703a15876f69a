package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// ChildRegistry issues and tracks child templates.
type ChildRegistry struct {
	mu        sync.Mutex
	state     RegistryState
	templates map[uint64]*ChildTemplate

	persister Persister
	logger    *slog.Logger

	obsMu     sync.Mutex
	observers []func(*Receipt)
}

// NewChildRegistry creates an empty child registry owned by owner.
func NewChildRegistry(owner, address Address, name, symbol string, opts ...Option) *ChildRegistry {
	o := buildOptions(opts)
	return &ChildRegistry{
		state: RegistryState{
			Kind:    KindChild,
			Address: address,
			Owner:   owner,
			Name:    name,
			Symbol:  symbol,
			Version: 1,
		},
		templates: make(map[uint64]*ChildTemplate),
		persister: o.persister,
		logger:    o.logger,
	}
}

// Deployment returns the registry state as a change set so a fresh
// registry can be persisted before its first call.
func (r *ChildRegistry) Deployment() *ChangeSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &ChangeSet{
		Receipt:    newReceipt("deploy", r.state.Owner, nil),
		Registries: []RegistryState{r.state.clone()},
	}
}

// Name returns the registry name.
func (r *ChildRegistry) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Name
}

// Symbol returns the registry symbol.
func (r *ChildRegistry) Symbol() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Symbol
}

// Address returns the registry address.
func (r *ChildRegistry) Address() Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Address
}

// Owner returns the registry owner allowed to mint.
func (r *ChildRegistry) Owner() Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Owner
}

// TokenIDPointer returns the id of the most recently minted template.
func (r *ChildRegistry) TokenIDPointer() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.TokenIDPointer
}

// Subscribe registers fn to receive every committed receipt that touched
// this registry.
func (r *ChildRegistry) Subscribe(fn func(*Receipt)) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *ChildRegistry) notify(rec *Receipt) {
	if len(rec.LogsFrom(r.Address())) == 0 {
		return
	}
	r.obsMu.Lock()
	fns := slices.Clone(r.observers)
	r.obsMu.Unlock()
	for _, fn := range fns {
		fn(rec)
	}
}

// Mint creates a new child template with amount units held by to.
func (r *ChildRegistry) Mint(ctx context.Context, caller, to Address, amount uint64, svg, name string) (*Receipt, error) {
	return r.execute(ctx, "mint", caller, nil, func(s *childStage) error {
		if caller != s.state.Owner {
			return ErrNotOwner
		}
		if to == ZeroAddress {
			return ErrZeroAddress
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		id := s.mint(to, amount, svg, name)
		s.emit(TransferSingle{Operator: caller, From: ZeroAddress, To: to, ID: id, Amount: amount})
		return nil
	})
}

// MintBatch mints one template per element of the parallel slices.
func (r *ChildRegistry) MintBatch(ctx context.Context, caller, to Address, amounts []uint64, svgs, names []string) (*Receipt, error) {
	return r.execute(ctx, "mintBatch", caller, nil, func(s *childStage) error {
		if caller != s.state.Owner {
			return ErrNotOwner
		}
		if to == ZeroAddress {
			return ErrZeroAddress
		}
		if len(amounts) != len(svgs) || len(amounts) != len(names) {
			return ErrLengthMismatch
		}
		ids := make([]uint64, 0, len(amounts))
		for i, amount := range amounts {
			if amount == 0 {
				return ErrInvalidAmount
			}
			ids = append(ids, s.mint(to, amount, svgs[i], names[i]))
		}
		s.emit(TransferBatch{
			Operator: caller,
			From:     ZeroAddress,
			To:       to,
			IDs:      ids,
			Amounts:  append([]uint64(nil), amounts...),
		})
		return nil
	})
}

// TokenExists reports true when every id has been minted. The first
// unminted id is returned as an ErrNotMinted error.
func (r *ChildRegistry) TokenExists(ids []uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if !r.exists(id) {
			return false, notMinted(id)
		}
	}
	return true, nil
}

func (r *ChildRegistry) exists(id uint64) bool {
	return id >= 1 && id <= r.state.TokenIDPointer
}

// Template returns a copy of the template with the given id.
func (r *ChildRegistry) Template(id uint64) (ChildTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok || !r.exists(id) {
		return ChildTemplate{}, notMinted(id)
	}
	return *t.clone(), nil
}

// TokenURI returns the metadata URI of a template.
func (r *ChildRegistry) TokenURI(id uint64) (string, error) {
	t, err := r.Template(id)
	if err != nil {
		return "", err
	}
	return t.TokenURI, nil
}

// AmountOf returns the minted quantity of a template.
func (r *ChildRegistry) AmountOf(id uint64) (uint64, error) {
	t, err := r.Template(id)
	if err != nil {
		return 0, err
	}
	return t.Amount, nil
}

// OwnerOf returns the current holder, ZeroAddress once burned.
func (r *ChildRegistry) OwnerOf(id uint64) (Address, error) {
	t, err := r.Template(id)
	if err != nil {
		return ZeroAddress, err
	}
	return t.Owner, nil
}

// BalanceOf returns the units of id held by holder.
func (r *ChildRegistry) BalanceOf(holder Address, id uint64) (uint64, error) {
	t, err := r.Template(id)
	if err != nil {
		return 0, err
	}
	return t.Balances[holder], nil
}

// IsApprovedForAll reports whether owner approved operator.
func (r *ChildRegistry) IsApprovedForAll(owner, operator Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.isApprovedForAll(owner, operator)
}

// SetApprovalForAll lets operator move every template the caller holds.
func (r *ChildRegistry) SetApprovalForAll(ctx context.Context, caller, operator Address, approved bool) (*Receipt, error) {
	return r.execute(ctx, "setApprovalForAll", caller, nil, func(s *childStage) error {
		if caller == operator {
			return fmt.Errorf("%w: setting approval status for self", ErrInvalidAddress)
		}
		s.state.setApprovalForAll(caller, operator, approved)
		s.stateDirty = true
		s.emit(ApprovalForAll{Owner: caller, Operator: operator, Approved: approved})
		return nil
	})
}

// SafeTransferFrom moves amount units of id from one holder to another.
func (r *ChildRegistry) SafeTransferFrom(ctx context.Context, caller, from, to Address, id, amount uint64, data []byte) (*Receipt, error) {
	return r.execute(ctx, "safeTransferFrom", caller, data, func(s *childStage) error {
		if to == ZeroAddress {
			return ErrZeroAddress
		}
		if err := s.authorize(caller, from); err != nil {
			return err
		}
		if err := s.move(from, to, id, amount); err != nil {
			return err
		}
		s.emit(TransferSingle{Operator: caller, From: from, To: to, ID: id, Amount: amount})
		return nil
	})
}

// SafeBatchTransferFrom moves several ids at once.
func (r *ChildRegistry) SafeBatchTransferFrom(ctx context.Context, caller, from, to Address, ids, amounts []uint64, data []byte) (*Receipt, error) {
	return r.execute(ctx, "safeBatchTransferFrom", caller, data, func(s *childStage) error {
		if to == ZeroAddress {
			return ErrZeroAddress
		}
		return s.batchMove(caller, from, to, ids, amounts)
	})
}

// Burn destroys amount units of id held by the caller.
func (r *ChildRegistry) Burn(ctx context.Context, caller Address, id, amount uint64) (*Receipt, error) {
	return r.execute(ctx, "burn", caller, nil, func(s *childStage) error {
		if err := s.move(caller, ZeroAddress, id, amount); err != nil {
			return err
		}
		s.emit(TransferSingle{Operator: caller, From: caller, To: ZeroAddress, ID: id, Amount: amount})
		return nil
	})
}

// BurnBatch destroys several ids held by the caller.
func (r *ChildRegistry) BurnBatch(ctx context.Context, caller Address, ids, amounts []uint64) (*Receipt, error) {
	return r.execute(ctx, "burnBatch", caller, nil, func(s *childStage) error {
		return s.batchMove(caller, caller, ZeroAddress, ids, amounts)
	})
}

// Snapshot returns a copy of the full registry state.
func (r *ChildRegistry) Snapshot() ChildSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := ChildSnapshot{State: r.state.clone()}
	for _, t := range r.templates {
		snap.Templates = append(snap.Templates, *t.clone())
	}
	sort.Slice(snap.Templates, func(i, j int) bool {
		return snap.Templates[i].TokenID < snap.Templates[j].TokenID
	})
	return snap
}

func (r *ChildRegistry) execute(ctx context.Context, op string, caller Address, data []byte, fn func(*childStage) error) (*Receipt, error) {
	rec, err := func() (*Receipt, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		s := r.stage()
		if err := fn(s); err != nil {
			return nil, err
		}
		cs := &ChangeSet{Receipt: newReceipt(op, caller, s.logs)}
		cs.Receipt.Data = data
		s.collect(cs)
		if r.persister != nil {
			if err := r.persister.Persist(ctx, cs); err != nil {
				r.logger.Warn("child registry persist failed",
					"op", op,
					"registry", r.state.Address.Hex(),
					"error", err,
				)
				return nil, fmt.Errorf("persist %s: %w", op, err)
			}
		}
		s.apply()
		r.logger.Debug("child registry call committed",
			"op", op,
			"receipt", cs.Receipt.ID.String(),
			"records", cs.Size(),
		)
		return cs.Receipt, nil
	}()
	if err != nil {
		return nil, err
	}
	r.notify(rec)
	return rec, nil
}

// childStage accumulates the effects of one call. Templates are cloned on
// first touch so the live registry stays untouched until apply.
type childStage struct {
	r          *ChildRegistry
	state      RegistryState
	stateDirty bool
	staged     map[uint64]*ChildTemplate
	order      []uint64
	logs       []Log
}

// stage must be called with r.mu held.
func (r *ChildRegistry) stage() *childStage {
	return &childStage{
		r:      r,
		state:  r.state.clone(),
		staged: make(map[uint64]*ChildTemplate),
	}
}

func (s *childStage) emit(e Event) {
	s.logs = append(s.logs, Log{Address: s.state.Address, Event: e})
}

func (s *childStage) exists(id uint64) bool {
	return id >= 1 && id <= s.state.TokenIDPointer
}

// peek returns the staged or live template without staging it.
func (s *childStage) peek(id uint64) (*ChildTemplate, error) {
	if !s.exists(id) {
		return nil, notMinted(id)
	}
	if t, ok := s.staged[id]; ok {
		return t, nil
	}
	t, ok := s.r.templates[id]
	if !ok {
		return nil, notMinted(id)
	}
	return t, nil
}

// template returns the staged copy of id, staging it on first use.
func (s *childStage) template(id uint64) (*ChildTemplate, error) {
	if t, ok := s.staged[id]; ok {
		return t, nil
	}
	cur, err := s.peek(id)
	if err != nil {
		return nil, err
	}
	t := cur.clone()
	t.Version++
	s.staged[id] = t
	s.order = append(s.order, id)
	return t, nil
}

func (s *childStage) mint(to Address, amount uint64, svg, name string) uint64 {
	s.state.TokenIDPointer++
	s.stateDirty = true
	id := s.state.TokenIDPointer
	image := ImageURI(svg)
	t := &ChildTemplate{
		Registry: s.state.Address,
		TokenID:  id,
		Name:     name,
		ImageURI: image,
		TokenURI: TokenURI(name, image),
		Amount:   amount,
		Owner:    to,
		Balances: map[Address]uint64{to: amount},
		Version:  1,
	}
	s.staged[id] = t
	s.order = append(s.order, id)
	s.emit(ChildTemplateCreated{TokenID: id, URI: t.TokenURI})
	return id
}

func (s *childStage) authorize(operator, from Address) error {
	if operator == from || s.state.isApprovedForAll(from, operator) {
		return nil
	}
	return fmt.Errorf("%w: operator %s for holder %s", ErrNotApproved, operator.Hex(), from.Hex())
}

// move shifts amount units of id from one holder to another. Moving to
// ZeroAddress burns the units; the template itself is burned once no
// holder has any left.
func (s *childStage) move(from, to Address, id, amount uint64) error {
	t, err := s.template(id)
	if err != nil {
		return err
	}
	if t.Burned() {
		return burned(id)
	}
	if amount == 0 {
		return fmt.Errorf("%w: token %d", ErrInvalidAmount, id)
	}
	if t.Balances[from] < amount {
		return fmt.Errorf("%w: token %d holder %s has %d, needs %d",
			ErrInsufficientBalance, id, from.Hex(), t.Balances[from], amount)
	}
	t.Balances[from] -= amount
	if t.Balances[from] == 0 {
		delete(t.Balances, from)
	}
	switch {
	case to != ZeroAddress:
		t.Balances[to] += amount
		t.Owner = to
	case len(t.Balances) == 0:
		t.Owner = ZeroAddress
	}
	return nil
}

// batchMove moves or burns ids on behalf of operator and emits one
// TransferBatch.
func (s *childStage) batchMove(operator, from, to Address, ids, amounts []uint64) error {
	if len(ids) != len(amounts) {
		return ErrLengthMismatch
	}
	if err := s.authorize(operator, from); err != nil {
		return err
	}
	for i, id := range ids {
		if err := s.move(from, to, id, amounts[i]); err != nil {
			return err
		}
	}
	s.emit(TransferBatch{
		Operator: operator,
		From:     from,
		To:       to,
		IDs:      append([]uint64(nil), ids...),
		Amounts:  append([]uint64(nil), amounts...),
	})
	return nil
}

func (s *childStage) collect(cs *ChangeSet) {
	if s.stateDirty {
		s.state.Version++
		cs.Registries = append(cs.Registries, s.state.clone())
	}
	for _, id := range s.order {
		cs.Children = append(cs.Children, *s.staged[id].clone())
	}
}

func (s *childStage) apply() {
	s.r.state = s.state
	for _, id := range s.order {
		s.r.templates[id] = s.staged[id]
	}
}
