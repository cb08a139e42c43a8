package ir

import "context"

// Reader is the read side of the store collaborator. Staging calls use it
// to resolve uuids and read current fact values outside any transaction.
type Reader interface {
	// FindByUUID returns the stored entity, or nil, nil when there is none.
	FindByUUID(ctx context.Context, kind Kind, uuid string) (*Entity, error)

	// FactsOf returns the stored facts of subjectID with the given predicate,
	// in insertion order.
	FactsOf(ctx context.Context, subjectID int64, predicate string) ([]Fact, error)
}

// FactQuery selects stored facts by value. Object matches a literal unless
// ObjectID is non-zero.
type FactQuery struct {
	SubjectID int64
	Predicate string
	Object    string
	ObjectID  int64
}

// Tx is the write side, only reachable inside RunInTransaction.
// Every method either fully succeeds or returns an error; the caller rolls
// back the whole transaction on error.
type Tx interface {
	Reader

	// SaveOwner inserts the owner when ID == 0, updates it otherwise.
	SaveOwner(ctx context.Context, owner *OwnerRecord) error

	// ImportEntities bulk-inserts unsaved entities and assigns their IDs.
	ImportEntities(ctx context.Context, kind Kind, entities []*Entity) error
	DeleteEntities(ctx context.Context, kind Kind, ids []int64) error
	// DetachGroups clears the owner of the given groups without deleting them.
	DetachGroups(ctx context.Context, ids []int64) error

	// ImportFacts bulk-inserts facts and assigns their IDs.
	ImportFacts(ctx context.Context, facts []*Fact) error
	FindFacts(ctx context.Context, q FactQuery) ([]Fact, error)
	FactsByID(ctx context.Context, ids []int64) ([]Fact, error)
	FactsOfEntities(ctx context.Context, subjectIDs []int64) ([]Fact, error)
	DeleteFacts(ctx context.Context, ids []int64) error
	UpdateFactFlag(ctx context.Context, ids []int64, flag string, value bool) error

	// ImportMemberships bulk-inserts edges and assigns their IDs.
	ImportMemberships(ctx context.Context, edges []*Membership) error
	FindMembership(ctx context.Context, groupID, assetID int64) (*Membership, error)
	MembershipsOfEntities(ctx context.Context, assetIDs []int64) ([]Membership, error)
	DeleteMemberships(ctx context.Context, ids []int64) error

	// AppendOperations writes the audit log in one call and assigns IDs.
	AppendOperations(ctx context.Context, ops []Operation) error
}

// Store is the full collaborator contract consumed by the applier.
type Store interface {
	Reader

	// RunInTransaction runs fn inside one atomic boundary. Any error from fn
	// rolls back every write fn made.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Operations returns the persisted audit log, optionally for one owner
	// (ownerID == 0 means all), ordered by owner then seq.
	Operations(ctx context.Context, ownerID int64) ([]Operation, error)
}

// FlagRemote is the fact flag set by remote replacement.
const FlagRemote = "is_remote"
