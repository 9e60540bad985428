package audit

import "sort"

// VerifyChain replays one account's chain and annotates every entry with a
// validity verdict. It never fails: malformed entries simply come back
// marked invalid, and an empty chain verifies to an empty result.
//
// Storage order is not trusted, so entries are first sorted ascending by
// timestamp (id as tiebreak). The walk keeps an expectedPrev hash starting
// at the genesis sentinel; an entry is hash-valid iff its stored hash
// matches recomputation with expectedPrev substituted for its previous
// hash, and link-valid iff its stored previous hash equals expectedPrev.
// expectedPrev then advances to the entry's *stored* hash rather than the
// recomputed one, so a single corrupted entry invalidates itself without
// cascading false failures onto successors that correctly point at its
// unchanged stored hash. A forged continuation is only caught when it
// fails its own recomputation.
//
// Two sibling entries written from the same observed tip (the writer does
// not serialize per account) resolve first-wins here: the earlier sibling
// verifies, the later one fails its link check. That outcome is expected,
// not tampering.
//
// The result is returned most recent first, the order the chain is shown.
func VerifyChain(entries []AuditEntry) []VerifiedEntry {
	sorted := make([]AuditEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ts.Equal(sorted[j].Ts) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Ts.Before(sorted[j].Ts)
	})

	out := make([]VerifiedEntry, 0, len(sorted))
	expectedPrev := GenesisPrevHash
	for _, e := range sorted {
		candidate := e
		candidate.PrevHash = expectedPrev
		hashValid := EntryHash(&candidate) == e.Hash
		linkValid := e.PrevHash == expectedPrev
		out = append(out, VerifiedEntry{AuditEntry: e, Valid: hashValid && linkValid})
		expectedPrev = e.Hash
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
