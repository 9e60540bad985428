package audit

import (
	"strings"
	"time"
)

const (
	// DefaultGracePeriod is how long an audit entry for a bulk-imported
	// transaction stays hidden from the default listing, giving the user
	// room to undo a bad import before it becomes official history. The
	// record-level filter in the bookkeeping backend consults the same
	// threshold.
	DefaultGracePeriod = 24 * time.Hour

	// BulkImportMarker is the detail-substring convention the CSV import
	// collaborator writes into entries. Kept for chains that predate the
	// structured Origin tag.
	BulkImportMarker = "imported via CSV file"
)

// IsBulkImport reports whether the entry records a bulk-imported record,
// via the structured origin tag or the legacy detail marker.
func IsBulkImport(e *AuditEntry) bool {
	if e.Origin == OriginBulkImport {
		return true
	}
	return strings.Contains(e.Detail, BulkImportMarker)
}

// InGracePeriod reports whether the entry should be suppressed from the
// default listing right now. Only bulk-imported transaction creations are
// ever suppressed, and only while the grace window is still open.
func InGracePeriod(e *AuditEntry, now time.Time, grace time.Duration) bool {
	if e.EntityKind != EntityTransaction || e.Action != ActionCreate {
		return false
	}
	if !IsBulkImport(e) {
		return false
	}
	return now.Sub(e.Ts) < grace
}

// FilterGracePeriod removes grace-period entries from a verified listing.
// This is a display rule only: the suppressed entries remain in storage,
// remain part of the hash chain, and are always included when the chain is
// verified. The caller supplies now so elapsed time is testable.
func FilterGracePeriod(entries []VerifiedEntry, now time.Time, grace time.Duration) []VerifiedEntry {
	out := make([]VerifiedEntry, 0, len(entries))
	for _, e := range entries {
		if InGracePeriod(&e.AuditEntry, now, grace) {
			continue
		}
		out = append(out, e)
	}
	return out
}
