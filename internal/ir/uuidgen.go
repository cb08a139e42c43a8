package ir

import "github.com/google/uuid"

// UUIDGenerator allocates uuids for wildcards seen for the first time.
// Implemented by RandomUUIDGenerator (production) and
// testutil.SequentialUUIDGenerator (tests).
type UUIDGenerator interface {
	Generate() string
}

// RandomUUIDGenerator returns random (version 4) uuids.
//
// Thread-safety: stateless and safe for concurrent use.
type RandomUUIDGenerator struct{}

// Generate returns a new hyphenated uuid string.
func (RandomUUIDGenerator) Generate() string {
	return uuid.NewString()
}
