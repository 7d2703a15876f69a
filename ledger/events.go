package ledger

import (
	"github.com/google/uuid"
)

// Event is a notification emitted by a registry call.
type Event interface {
	EventName() string
}

// ChildTemplateCreated is emitted once per minted child template.
type ChildTemplateCreated struct {
	TokenID uint64
	URI     string
}

// ParentTemplateCreated is emitted when a parent template is created.
type ParentTemplateCreated struct {
	TokenID uint64
	URI     string
}

// TransferSingle is emitted by the child registry for single-id moves,
// including mints (From is zero) and burns (To is zero).
type TransferSingle struct {
	Operator Address
	From     Address
	To       Address
	ID       uint64
	Amount   uint64
}

// TransferBatch is emitted by the child registry for batch moves.
type TransferBatch struct {
	Operator Address
	From     Address
	To       Address
	IDs      []uint64
	Amounts  []uint64
}

// Transfer is emitted by the parent registry when a template changes owner.
type Transfer struct {
	From    Address
	To      Address
	TokenID uint64
}

// Approval is emitted when a parent template is approved for a single spender.
type Approval struct {
	Owner    Address
	Approved Address
	TokenID  uint64
}

// ApprovalForAll is emitted when an operator approval changes.
type ApprovalForAll struct {
	Owner    Address
	Operator Address
	Approved bool
}

func (ChildTemplateCreated) EventName() string  { return "ChildTemplateCreated" }
func (ParentTemplateCreated) EventName() string { return "ParentTemplateCreated" }
func (TransferSingle) EventName() string        { return "TransferSingle" }
func (TransferBatch) EventName() string         { return "TransferBatch" }
func (Transfer) EventName() string              { return "Transfer" }
func (Approval) EventName() string              { return "Approval" }
func (ApprovalForAll) EventName() string        { return "ApprovalForAll" }

// Log is an event together with the registry that emitted it.
type Log struct {
	Address Address
	Event   Event
}

// Receipt describes a committed call.
type Receipt struct {
	ID        uuid.UUID
	Operation string
	From      Address
	Data      []byte
	Logs      []Log
}

func newReceipt(op string, from Address, logs []Log) *Receipt {
	return &Receipt{
		ID:        uuid.New(),
		Operation: op,
		From:      from,
		Logs:      logs,
	}
}

// Events returns the events with the given name in emission order.
func (r *Receipt) Events(name string) []Event {
	var out []Event
	for _, l := range r.Logs {
		if l.Event.EventName() == name {
			out = append(out, l.Event)
		}
	}
	return out
}

// LogsFrom returns the logs emitted by one registry.
func (r *Receipt) LogsFrom(addr Address) []Log {
	var out []Log
	for _, l := range r.Logs {
		if l.Address == addr {
			out = append(out, l)
		}
	}
	return out
}
