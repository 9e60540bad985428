package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store defines the minimal persistence abstraction the audit trail uses.
//
// TipEntry returns the chain tip (latest entry by timestamp) for an
// account, or (nil, nil) when the account has no chain yet. The tip read
// and the subsequent InsertEntry are deliberately not atomic; see
// Service.RecordMutation for the consequences.
type Store interface {
	// InsertEntry persists a fully-populated entry. All-or-nothing at
	// single-entry granularity: no partial entries are possible.
	InsertEntry(ctx context.Context, e *AuditEntry) error

	// TipEntry fetches the account's chronologically latest entry.
	TipEntry(ctx context.Context, accountID string) (*AuditEntry, error)

	// ListEntries returns every entry of an account's chain, timestamp
	// ascending.
	ListEntries(ctx context.Context, accountID string) ([]AuditEntry, error)

	// GetEntry retrieves an entry by id.
	GetEntry(ctx context.Context, id string) (*AuditEntry, error)

	// Ping validates the store is reachable/healthy.
	Ping(ctx context.Context) error
}

// HashBytes computes the SHA-256 digest bytes for input data.
func HashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// HashHex returns the hex-encoded SHA-256 of the input bytes.
func HashHex(b []byte) string {
	return hex.EncodeToString(HashBytes(b))
}
