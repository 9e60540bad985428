// package audit contains the canonical models used by the audit-trail subsystem.
package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of mutation an entry records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// EntityKind names the domain object a mutation touched. The set is open:
// entries carrying a kind this package does not know about still round-trip
// and still get their hashes verified.
type EntityKind string

const (
	EntityTransaction   EntityKind = "transaction"
	EntityGoal          EntityKind = "goal"
	EntityBudget        EntityKind = "budget"
	EntityUser          EntityKind = "user"
	EntityPlan          EntityKind = "plan"
	EntityFeatureFlags  EntityKind = "feature_flags"
	EntitySupportTicket EntityKind = "support_ticket"
	EntityTracking      EntityKind = "tracking"
)

// Origin is the structured provenance tag for an entry. It lives next to
// the free-text detail so the grace-period filter does not have to parse
// display strings, and it is deliberately excluded from the hash input so
// chains written before the tag existed keep verifying.
type Origin string

const (
	OriginManual     Origin = "manual"
	OriginBulkImport Origin = "bulk_import"
	OriginSystem     Origin = "system"
)

// BatchEntityID is the entity-id sentinel used when one entry summarizes a
// batch operation rather than a single record.
const BatchEntityID = "batch"

// AuditEntry is one immutable record of one mutation. Entries are created
// exactly once by the chain writer and never updated afterwards.
//
// ActorName is a denormalized snapshot taken at write time; it must not be
// re-resolved if the actor later renames themselves, since it is part of
// the hash input.
type AuditEntry struct {
	ID         string     `json:"id,omitempty"`
	AccountID  string     `json:"accountId"`
	Ts         time.Time  `json:"ts"`
	ActorID    string     `json:"actorId"`
	ActorName  string     `json:"actorName"`
	Action     Action     `json:"action"`
	EntityKind EntityKind `json:"entityKind"`
	EntityID   string     `json:"entityId"`
	Detail     string     `json:"detail"`
	Origin     Origin     `json:"origin,omitempty"`
	PrevHash   string     `json:"prevHash"`
	Hash       string     `json:"hash,omitempty"`
}

// VerifiedEntry is an AuditEntry annotated with the verifier's verdict.
type VerifiedEntry struct {
	AuditEntry
	Valid bool `json:"valid"`
}

// ErrNotFound is returned when a requested audit resource cannot be located.
var ErrNotFound = errors.New("not found")

// NewUUID returns a freshly-generated UUID string.
func NewUUID() string {
	return uuid.New().String()
}
