package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PGStore persists audit entries into Postgres.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

const entryColumns = `id, account_id, ts, actor_id, actor_name, action, entity_kind, entity_id, detail, origin, prev_hash, hash`

// InsertEntry persists one audit entry row.
func (p *PGStore) InsertEntry(ctx context.Context, e *AuditEntry) error {
	q := `
		INSERT INTO audit_entries
		  (` + entryColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	_, err := p.db.ExecContext(ctx, q,
		e.ID,
		e.AccountID,
		e.Ts,
		e.ActorID,
		e.ActorName,
		string(e.Action),
		string(e.EntityKind),
		e.EntityID,
		e.Detail,
		string(e.Origin),
		e.PrevHash,
		e.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit_entry: %w", err)
	}
	return nil
}

func scanEntry(s interface{ Scan(...interface{}) error }) (*AuditEntry, error) {
	var (
		e      AuditEntry
		action string
		kind   string
		origin sql.NullString
	)
	if err := s.Scan(&e.ID, &e.AccountID, &e.Ts, &e.ActorID, &e.ActorName,
		&action, &kind, &e.EntityID, &e.Detail, &origin, &e.PrevHash, &e.Hash); err != nil {
		return nil, err
	}
	e.Action = Action(action)
	e.EntityKind = EntityKind(kind)
	if origin.Valid {
		e.Origin = Origin(origin.String)
	}
	return &e, nil
}

// TipEntry returns the account's latest entry by timestamp, or (nil, nil)
// when the account has no entries.
func (p *PGStore) TipEntry(ctx context.Context, accountID string) (*AuditEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM audit_entries WHERE account_id=$1 ORDER BY ts DESC LIMIT 1`
	e, err := scanEntry(p.db.QueryRowContext(ctx, q, accountID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query chain tip: %w", err)
	}
	return e, nil
}

// ListEntries returns the full chain for an account, timestamp ascending.
func (p *PGStore) ListEntries(ctx context.Context, accountID string) ([]AuditEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM audit_entries WHERE account_id=$1 ORDER BY ts ASC`
	rows, err := p.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("query audit_entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit_entry: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// GetEntry fetches an entry by id.
func (p *PGStore) GetEntry(ctx context.Context, id string) (*AuditEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM audit_entries WHERE id=$1`
	e, err := scanEntry(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query audit_entry: %w", err)
	}
	return e, nil
}

// FetchPendingEntriesForStreaming claims up to limit pending rows for the
// mirror pipeline. Claimed rows move to stream_status='in_progress' with
// their attempt counter incremented, using FOR UPDATE SKIP LOCKED so
// multiple streamer instances never double-claim a row.
func (p *PGStore) FetchPendingEntriesForStreaming(ctx context.Context, limit int) ([]*AuditEntry, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE stream_status = 'pending'
		ORDER BY ts ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending entries: %w", err)
	}

	var claimed []*AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending entry: %w", err)
		}
		claimed = append(claimed, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("pending rows iteration: %w", err)
	}
	rows.Close()

	for _, e := range claimed {
		uq := `UPDATE audit_entries SET stream_status='in_progress', stream_attempts=stream_attempts+1 WHERE id=$1`
		if _, err := tx.ExecContext(ctx, uq, e.ID); err != nil {
			return nil, fmt.Errorf("claim entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return claimed, nil
}

// MarkEntryStreamResult records the outcome of one streamed entry so the DB
// stays the source of truth for retries. On success the row is marked
// complete with its S3 object key and produce/archive timestamps; on
// failure it goes back to 'pending' with the error text recorded.
func (p *PGStore) MarkEntryStreamResult(ctx context.Context, id string, s3Key sql.NullString, ok bool, streamErr sql.NullString) error {
	if ok {
		q := `
			UPDATE audit_entries
			SET stream_status='complete',
			    s3_object_key=$1,
			    s3_archived_at=now(),
			    kafka_produced_at=now(),
			    last_stream_error=NULL
			WHERE id=$2
		`
		if _, err := p.db.ExecContext(ctx, q, s3Key, id); err != nil {
			return fmt.Errorf("mark stream success for %s: %w", id, err)
		}
		return nil
	}
	q := `
		UPDATE audit_entries
		SET stream_status='pending',
		    last_stream_error=$1
		WHERE id=$2
	`
	if _, err := p.db.ExecContext(ctx, q, streamErr, id); err != nil {
		return fmt.Errorf("mark stream failure for %s: %w", id, err)
	}
	return nil
}
