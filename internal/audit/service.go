package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAccountRequired = errors.New("accountId is required")
	ErrActorRequired   = errors.New("actorId is required")
	ErrInvalidAction   = errors.New("action must be create, update or delete")
)

// MutationRequest is the shape collaborators use to record a mutation.
// Detail is a human-readable description constructed by the caller; it is
// hashed verbatim, so its wording is part of the tamper-evident record.
type MutationRequest struct {
	AccountID  string     `json:"accountId"`
	ActorID    string     `json:"actorId"`
	ActorName  string     `json:"actorName"`
	Action     Action     `json:"action"`
	EntityKind EntityKind `json:"entityKind"`
	EntityID   string     `json:"entityId"`
	Detail     string     `json:"detail"`
	Origin     Origin     `json:"origin,omitempty"`

	// Ts is the moment the mutation was accepted. Zero means "now".
	Ts time.Time `json:"ts,omitempty"`
}

// ServiceConfig tunes the service. Zero values get defaults.
type ServiceConfig struct {
	// GracePeriod overrides DefaultGracePeriod for the display filter.
	GracePeriod time.Duration

	// Now is the clock used by the grace-period filter and for entries
	// without an explicit timestamp. Injected so tests can simulate
	// elapsed time.
	Now func() time.Time
}

// Service is the audit-trail core: the chain writer plus the verified
// read/export surface over one Store.
type Service struct {
	store Store
	grace time.Duration
	now   func() time.Time
}

// NewService constructs a Service over the given store.
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store: store,
		grace: cfg.GracePeriod,
		now:   cfg.Now,
	}
}

// GracePeriod returns the configured display-suppression window.
func (s *Service) GracePeriod() time.Duration { return s.grace }

// RecordMutation appends one entry to the account's chain: it reads the
// current tip, links the candidate to it (or to the genesis sentinel for a
// first entry), computes the hash and persists.
//
// The tip read and the insert are not atomic. Two concurrent calls for the
// same account can observe the same tip and produce sibling entries with
// identical prevHash values; VerifyChain later resolves that first-wins by
// timestamp. The race is a documented property of the chain, which orders
// logically by timestamp rather than by any write-side counter.
//
// A persistence failure is returned to the caller and leaves no entry
// behind; it never rolls back the domain mutation that triggered the log.
func (s *Service) RecordMutation(ctx context.Context, req MutationRequest) (*AuditEntry, error) {
	if req.AccountID == "" {
		return nil, ErrAccountRequired
	}
	if req.ActorID == "" {
		return nil, ErrActorRequired
	}
	switch req.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return nil, ErrInvalidAction
	}

	tip, err := s.store.TipEntry(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("fetch chain tip: %w", err)
	}
	prev := GenesisPrevHash
	if tip != nil {
		prev = tip.Hash
	}

	ts := req.Ts
	if ts.IsZero() {
		ts = s.now()
	}
	origin := req.Origin
	if origin == "" {
		origin = OriginManual
	}

	e := &AuditEntry{
		ID:         NewUUID(),
		AccountID:  req.AccountID,
		Ts:         CanonicalTimestamp(ts),
		ActorID:    req.ActorID,
		ActorName:  req.ActorName,
		Action:     req.Action,
		EntityKind: req.EntityKind,
		EntityID:   req.EntityID,
		Detail:     req.Detail,
		Origin:     origin,
		PrevHash:   prev,
	}
	e.Hash = EntryHash(e)

	if err := s.store.InsertEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	return e, nil
}

// GetChain returns the raw, unverified chain for an account in storage
// (timestamp-ascending) order.
func (s *Service) GetChain(ctx context.Context, accountID string) ([]AuditEntry, error) {
	if accountID == "" {
		return nil, ErrAccountRequired
	}
	return s.store.ListEntries(ctx, accountID)
}

// GetVerifiedChain loads and verifies the account's chain, returning it
// most recent first with per-entry verdicts.
func (s *Service) GetVerifiedChain(ctx context.Context, accountID string) ([]VerifiedEntry, error) {
	entries, err := s.GetChain(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return VerifyChain(entries), nil
}

// GetVerifiedChainFiltered is GetVerifiedChain with the grace-period
// display rule applied. Verification always ran over the full chain; only
// the returned listing omits suppressed entries.
func (s *Service) GetVerifiedChainFiltered(ctx context.Context, accountID string) ([]VerifiedEntry, error) {
	verified, err := s.GetVerifiedChain(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return FilterGracePeriod(verified, s.now(), s.grace), nil
}

// GetEntry fetches a single entry by id.
func (s *Service) GetEntry(ctx context.Context, id string) (*AuditEntry, error) {
	return s.store.GetEntry(ctx, id)
}

// ExportVerifiedCSV verifies the account's chain and renders the CSV
// report. Export failures are surfaced synchronously; no partial output is
// returned.
func (s *Service) ExportVerifiedCSV(ctx context.Context, accountID string) ([]byte, error) {
	verified, err := s.GetVerifiedChain(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return ExportCSV(verified)
}
