package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"
)

// Producer is the small subset of kafka producer behavior the streamer needs.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) (partition int, offset int64, producedAt time.Time, err error)
	Close() error
}

// StreamerConfig configures the durable DB-first mirror streamer.
type StreamerConfig struct {
	// How many entries to claim per fetch.
	BatchSize int

	// PollInterval when there is no work (or after a batch).
	PollInterval time.Duration

	// MaxConcurrency bounds concurrent processing of claimed entries.
	MaxConcurrency int
}

// Streamer mirrors appended audit entries out of Postgres:
//   - claims pending audit_entries rows (SELECT ... FOR UPDATE SKIP LOCKED)
//   - for each entry: produces its envelope to Kafka (keyed by account so
//     one chain stays on one partition) and archives the envelope to S3
//   - marks the row complete/failed so the DB drives retries.
//
// The mirror is retention plumbing only; chain verification always runs
// against the primary store, never against the mirror.
type Streamer struct {
	store    *PGStore
	producer Producer
	archiver Archiver
	cfg      StreamerConfig

	wg sync.WaitGroup
}

// NewStreamer constructs a streamer. Zero cfg fields get sensible defaults.
func NewStreamer(store *PGStore, producer Producer, archiver Archiver, cfg StreamerConfig) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	return &Streamer{
		store:    store,
		producer: producer,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Run starts the streamer loop and blocks until ctx is cancelled. Safe to
// run in a goroutine.
func (s *Streamer) Run(ctx context.Context) error {
	log.Printf("[audit.streamer] starting (batch=%d, concurrency=%d)", s.cfg.BatchSize, s.cfg.MaxConcurrency)
	defer log.Printf("[audit.streamer] stopped")

	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			if s.producer != nil {
				_ = s.producer.Close()
			}
			return ctx.Err()
		default:
		}

		entries, err := s.store.FetchPendingEntriesForStreaming(ctx, s.cfg.BatchSize)
		if err != nil {
			log.Printf("[audit.streamer] fetch pending: %v", err)
			time.Sleep(s.cfg.PollInterval)
			continue
		}
		if len(entries) == 0 {
			time.Sleep(s.cfg.PollInterval)
			continue
		}

		for _, e := range entries {
			if ctx.Err() != nil {
				break
			}

			sem <- struct{}{}
			s.wg.Add(1)
			go func(e *AuditEntry) {
				defer func() {
					<-sem
					s.wg.Done()
				}()
				if err := s.processEntry(ctx, e); err != nil {
					// processEntry already recorded the DB result.
					log.Printf("[audit.streamer] process entry %s: %v", e.ID, err)
				}
			}(e)
		}

		// Drain the batch before claiming more, keeping per-account
		// mirror order within a single streamer.
		for i := 0; i < s.cfg.MaxConcurrency; i++ {
			sem <- struct{}{}
		}
		for i := 0; i < s.cfg.MaxConcurrency; i++ {
			<-sem
		}
	}
}

// processEntry performs the produce -> archive sequence for one entry and
// records the outcome via MarkEntryStreamResult.
func (s *Streamer) processEntry(parentCtx context.Context, e *AuditEntry) error {
	ctx, cancel := context.WithTimeout(parentCtx, 30*time.Second)
	defer cancel()

	envelope, err := entryEnvelope(e)
	if err != nil {
		errMsg := sql.NullString{String: fmt.Sprintf("marshal envelope: %v", err), Valid: true}
		_ = s.store.MarkEntryStreamResult(parentCtx, e.ID, sql.NullString{}, false, errMsg)
		return fmt.Errorf("marshal envelope: %w", err)
	}

	// Key by account so one chain maps to one partition.
	_, _, producedAt, err := s.producer.Produce(ctx, []byte(e.AccountID), envelope)
	if err != nil {
		errMsg := sql.NullString{String: fmt.Sprintf("kafka produce: %v", err), Valid: true}
		_ = s.store.MarkEntryStreamResult(parentCtx, e.ID, sql.NullString{}, false, errMsg)
		return fmt.Errorf("kafka produce: %w", err)
	}

	var archivedKey sql.NullString
	if s3Arch, ok := s.archiver.(*S3Archiver); ok {
		key, err := s3Arch.ArchiveEntryAndReturnKey(ctx, e)
		if err != nil {
			errMsg := sql.NullString{String: fmt.Sprintf("s3 archive: %v", err), Valid: true}
			_ = s.store.MarkEntryStreamResult(parentCtx, e.ID, sql.NullString{}, false, errMsg)
			return fmt.Errorf("s3 archive: %w", err)
		}
		archivedKey = sql.NullString{String: key, Valid: true}
	} else {
		if err := s.archiver.ArchiveEntry(ctx, e); err != nil {
			errMsg := sql.NullString{String: fmt.Sprintf("s3 archive: %v", err), Valid: true}
			_ = s.store.MarkEntryStreamResult(parentCtx, e.ID, sql.NullString{}, false, errMsg)
			return fmt.Errorf("s3 archive: %w", err)
		}
	}

	if err := s.store.MarkEntryStreamResult(parentCtx, e.ID, archivedKey, true, sql.NullString{}); err != nil {
		return fmt.Errorf("mark entry stream success: %w", err)
	}

	log.Printf("[audit.streamer] entry %s mirrored: produced_at=%s key=%v", e.ID, producedAt.Format(time.RFC3339Nano), archivedKey)
	return nil
}
