package audit

import (
	"bytes"
	"time"
)

const (
	// GenesisPrevHash is the previous-hash sentinel carried by the first
	// entry of a chain. It serializes to the literal four characters
	// "null", never to an empty string; chains already on disk depend on
	// that exact encoding.
	GenesisPrevHash = "null"

	// TimestampLayout is the one ISO-8601 form an entry timestamp takes
	// inside the hash input. Fixed-width millisecond precision, so the
	// string re-encoded at verification time is bit-identical to the one
	// hashed at write time after a round trip through timestamptz. The
	// writer truncates timestamps to this precision before hashing.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// EncodeEntry returns the canonical hashing input for an entry: the content
// fields concatenated with no delimiter, in the fixed order
// timestamp, actorId, actorName, action, entityKind, entityId, detail,
// previousHash. The absence of separators is a compatibility contract with
// previously stored chains, not an oversight — changing it would invalidate
// every hash ever computed.
func EncodeEntry(e *AuditEntry) []byte {
	prev := e.PrevHash
	if prev == "" {
		prev = GenesisPrevHash
	}
	var b bytes.Buffer
	b.WriteString(e.Ts.UTC().Format(TimestampLayout))
	b.WriteString(e.ActorID)
	b.WriteString(e.ActorName)
	b.WriteString(string(e.Action))
	b.WriteString(string(e.EntityKind))
	b.WriteString(e.EntityID)
	b.WriteString(e.Detail)
	b.WriteString(prev)
	return b.Bytes()
}

// EntryHash computes the entry's chain hash: lowercase hex SHA-256 of the
// canonical encoding.
func EntryHash(e *AuditEntry) string {
	return HashHex(EncodeEntry(e))
}

// CanonicalTimestamp truncates t to the precision the codec serializes, in
// UTC. Every timestamp must pass through this before an entry is hashed.
func CanonicalTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
