package ledger

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"
)

// Registry names and symbols used by the deployment tooling.
const (
	DefaultChildName    = "ChildTemplates"
	DefaultChildSymbol  = "CFGO"
	DefaultParentName   = "ParentTemplates"
	DefaultParentSymbol = "PTFGO"
)

// RegistryKind distinguishes the two registries in persisted state.
type RegistryKind string

const (
	KindChild  RegistryKind = "child"
	KindParent RegistryKind = "parent"
)

// OperatorApproval records that Owner allowed Operator to move all of its tokens.
type OperatorApproval struct {
	Owner    Address
	Operator Address
}

// RegistryState is the registry-level record: identity, ownership,
// token id pointer and operator approvals.
type RegistryState struct {
	Kind           RegistryKind
	Address        Address
	Owner          Address
	Name           string
	Symbol         string
	TokenIDPointer uint64

	// ChildContract is the child registry a parent registry cascades into.
	// Zero for child registries.
	ChildContract Address

	Operators []OperatorApproval
	Version   int64
}

func (s RegistryState) clone() RegistryState {
	out := s
	out.Operators = append([]OperatorApproval(nil), s.Operators...)
	return out
}

func (s *RegistryState) isApprovedForAll(owner, operator Address) bool {
	for _, a := range s.Operators {
		if a.Owner == owner && a.Operator == operator {
			return true
		}
	}
	return false
}

// setApprovalForAll keeps Operators sorted so persisted state is stable.
func (s *RegistryState) setApprovalForAll(owner, operator Address, approved bool) {
	kept := s.Operators[:0]
	for _, a := range s.Operators {
		if a.Owner == owner && a.Operator == operator {
			continue
		}
		kept = append(kept, a)
	}
	s.Operators = kept
	if approved {
		s.Operators = append(s.Operators, OperatorApproval{Owner: owner, Operator: operator})
	}
	sort.Slice(s.Operators, func(i, j int) bool {
		if c := bytes.Compare(s.Operators[i].Owner[:], s.Operators[j].Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(s.Operators[i].Operator[:], s.Operators[j].Operator[:]) < 0
	})
}

// ChildTemplate is a multi-quantity part template.
type ChildTemplate struct {
	Registry Address
	TokenID  uint64
	Name     string
	ImageURI string
	TokenURI string
	Amount   uint64

	// Owner is the latest recipient. It becomes ZeroAddress once every unit
	// has been burned.
	Owner    Address
	Balances map[Address]uint64
	Version  int64
}

func (t *ChildTemplate) clone() *ChildTemplate {
	out := *t
	out.Balances = make(map[Address]uint64, len(t.Balances))
	for k, v := range t.Balances {
		out.Balances[k] = v
	}
	return &out
}

// Burned reports whether the template has been burned.
func (t *ChildTemplate) Burned() bool {
	return t.Owner == ZeroAddress
}

// ParentTemplate is a single-quantity composite template.
type ParentTemplate struct {
	Registry      Address
	TokenID       uint64
	Name          string
	ImageURI      string
	TokenURI      string
	ChildTokenIDs []uint64
	Owner         Address
	Approved      Address
	BurnedAt      time.Time
	Version       int64
}

func (t *ParentTemplate) clone() *ParentTemplate {
	out := *t
	out.ChildTokenIDs = append([]uint64(nil), t.ChildTokenIDs...)
	return &out
}

// Burned reports whether the template has been burned.
func (t *ParentTemplate) Burned() bool {
	return t.Owner == ZeroAddress
}

// ChangeSet holds the post-state of every record a call touches. Versions
// in the change set are the new versions; the previous version of an
// existing record is Version-1.
type ChangeSet struct {
	Receipt    *Receipt
	Registries []RegistryState
	Children   []ChildTemplate
	Parents    []ParentTemplate
}

// Size returns the number of records in the change set.
func (c *ChangeSet) Size() int {
	return len(c.Registries) + len(c.Children) + len(c.Parents)
}

// Persister durably records a change set. A returned error aborts the call.
type Persister interface {
	Persist(ctx context.Context, cs *ChangeSet) error
}

// Option configures a registry.
type Option func(*options)

type options struct {
	persister Persister
	logger    *slog.Logger
	now       func() time.Time
}

// WithPersister commits every change set through p before applying it.
func WithPersister(p Persister) Option {
	return func(o *options) { o.persister = p }
}

// WithLogger sets the registry logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the clock used for burn timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}
