// Package disjoint implements a pair of complementary staged lists with
// mutual-cancellation insertion.
//
// A Pair has a Primary side (e.g. facts to add) and an Opposite side (facts to
// destroy). Inserting an element whose key is already on the other side
// removes it there and discards the new element: the two intents annihilate.
// Annihilated keys are remembered as disabled, so the same key staged again
// later, or arriving through a merge, is cancelled as well.
//
// Pair is a value type built on persistent maps: Insert, Remove and Merge
// return a new Pair and leave the receiver untouched. Callers keep the result:
//
//	pair, res := pair.Insert(disjoint.Primary, fact)
//
// Lookup by key is O(1) amortized (hash array mapped trie) and iteration
// follows insertion order.
package disjoint
