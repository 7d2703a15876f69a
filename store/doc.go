// Package store persists template registries in DynamoDB.
//
// A [Store] implements ledger.Persister. Every ledger call produces a
// change set that the store writes with a single TransactWriteItems call,
// so a parent transfer and the child moves it cascades into are committed
// together or not at all.
//
// # Tables
//
//   - registries: one record per registry (owner, name, symbol, token id
//     pointer, operator approvals) plus a nonce counter per deployer
//   - child templates: one record per child token id, with holder balances
//   - parent templates: one record per parent token id; burned parents
//     carry a ttl
//   - relationships: one record per (parent template, child template) link,
//     sharded by [shard.RelationshipPK]
//
// # Optimistic Locking
//
// Each record carries a version. New records are written with
// attribute_not_exists(id); updated records require the stored version to
// equal the version the change set was staged from. A lost race surfaces
// as [ErrConcurrentModification] and the ledger leaves its in-memory state
// untouched.
//
// # Burn Retention
//
// A burned parent template keeps its record for [Config].BurnRetention,
// after which DynamoDB TTL removes it. The stream package propagates that
// TTL to the parent's relationship records. Loading a parent registry
// restores expired ids as burned.
//
// # Errors
//
//   - [ErrNotFound] - registry doesn't exist
//   - [ErrAlreadyExists] - a new record collided with a stored one
//   - [ErrConcurrentModification] - optimistic lock failed
//   - [ErrTransactionTooLarge] - change set needs more than 100 writes
//   - [ErrCorruptRecord] - stored record could not be decoded
package store
