// Package ledger implements the garment template registries.
//
// Two registries cooperate:
//
//   - [ChildRegistry] issues multi-quantity child templates (parts such as
//     "leftArm") with incrementing ids, an SVG derived image URI and
//     per-holder balances.
//   - [ParentRegistry] issues single-quantity parent templates that
//     reference an ordered list of child template ids. Transferring or
//     burning a parent cascades the same operation onto its children.
//
// # Atomicity
//
// Every mutating call stages its effects in a [ChangeSet] before touching
// registry state. Validation of the parent and all cascaded child steps
// happens first; the optional [Persister] is then given the change set and
// only when it succeeds are the staged records applied. A failure at any
// point leaves both registries exactly as they were.
//
// Parent operations lock the parent registry and then the child registry.
// Child operations lock only the child registry.
//
// # Events
//
// Calls return a [Receipt] with the ordered [Log] entries emitted by the
// call, mirroring a transaction receipt. Observers registered with
// Subscribe receive the receipt after commit.
//
// # Errors
//
//   - [ErrNotMinted] - token id has never been minted
//   - [ErrNotOwner] - caller is not the registry owner
//   - [ErrNotTokenOwnerOrApproved] - caller may not move a parent template
//   - [ErrNotApproved] - operator was not approved by the child holder
//   - [ErrBurned] - token has been burned
package ledger
