// Package store is the SQLite-backed store collaborator of the changeset
// applier.
//
// Tables:
//   - assets, asset_groups: entities, identified by integer id and named by uuid
//   - facts: subject/predicate/object triples, object is a literal or an asset
//   - asset_groups_assets: group membership edges
//   - owners: the records operations point at
//   - operations: the append-only audit log
//
// # Ordering
//
// Every multi-row read is ordered by id, which is insertion order. The
// audit log is ordered by owner_id, seq, id.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All writes happen inside RunInTransaction; a failing transaction
// function leaves the database unchanged.
package store
