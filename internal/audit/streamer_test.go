package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// fakeProducer implements the minimal Producer interface for tests.
type fakeProducer struct {
	produceFunc func(ctx context.Context, key []byte, value []byte) (int, int64, time.Time, error)
}

func (f *fakeProducer) Produce(ctx context.Context, key []byte, value []byte) (int, int64, time.Time, error) {
	if f.produceFunc != nil {
		return f.produceFunc(ctx, key, value)
	}
	return -1, -1, time.Now().UTC(), nil
}

func (f *fakeProducer) Close() error { return nil }

// fakeArchiver implements Archiver for tests.
type fakeArchiver struct {
	archiveFunc func(ctx context.Context, e *AuditEntry) error
}

func (f *fakeArchiver) ArchiveEntry(ctx context.Context, e *AuditEntry) error {
	if f.archiveFunc != nil {
		return f.archiveFunc(ctx, e)
	}
	return nil
}

func TestProcessEntry_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	pstore := NewPGStore(db)

	var producedKey []byte
	prod := &fakeProducer{
		produceFunc: func(ctx context.Context, key []byte, value []byte) (int, int64, time.Time, error) {
			producedKey = key
			return -1, -1, time.Now().UTC(), nil
		},
	}
	arch := &fakeArchiver{}

	streamer := NewStreamer(pstore, prod, arch, StreamerConfig{
		BatchSize:      1,
		MaxConcurrency: 1,
		PollInterval:   1 * time.Second,
	})

	e := sampleEntry()
	e.Hash = EntryHash(e)

	// Expect the success-path UPDATE executed by MarkEntryStreamResult.
	// The SQL uses (s3_object_key, id); allow any first arg and match id.
	mock.ExpectExec("UPDATE\\s+audit_entries").
		WithArgs(sqlmock.AnyArg(), e.ID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := streamer.processEntry(context.Background(), e); err != nil {
		t.Fatalf("processEntry error: %v", err)
	}

	// Messages are keyed by account so one chain stays on one partition.
	if string(producedKey) != e.AccountID {
		t.Fatalf("expected account-keyed message, got key %q", producedKey)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessEntry_ProducerFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	pstore := NewPGStore(db)

	prod := &fakeProducer{
		produceFunc: func(ctx context.Context, key []byte, value []byte) (int, int64, time.Time, error) {
			return -1, -1, time.Time{}, errors.New("producer failure")
		},
	}
	archived := false
	arch := &fakeArchiver{
		archiveFunc: func(ctx context.Context, e *AuditEntry) error {
			archived = true
			return nil
		},
	}

	streamer := NewStreamer(pstore, prod, arch, StreamerConfig{
		BatchSize:      1,
		MaxConcurrency: 1,
		PollInterval:   1 * time.Second,
	})

	e := sampleEntry()
	e.Hash = EntryHash(e)

	// Expect the failure-path UPDATE: (last_stream_error, id).
	mock.ExpectExec("UPDATE\\s+audit_entries").
		WithArgs(sqlmock.AnyArg(), e.ID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := streamer.processEntry(context.Background(), e); err == nil {
		t.Fatalf("expected error from processEntry due to producer failure, got nil")
	}
	if archived {
		t.Fatalf("archive must not run when produce fails")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessEntry_ArchiverFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	pstore := NewPGStore(db)

	prod := &fakeProducer{}
	arch := &fakeArchiver{
		archiveFunc: func(ctx context.Context, e *AuditEntry) error {
			return errors.New("bucket unavailable")
		},
	}

	streamer := NewStreamer(pstore, prod, arch, StreamerConfig{
		BatchSize:      1,
		MaxConcurrency: 1,
		PollInterval:   1 * time.Second,
	})

	e := sampleEntry()
	e.Hash = EntryHash(e)

	mock.ExpectExec("UPDATE\\s+audit_entries").
		WithArgs(sqlmock.AnyArg(), e.ID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := streamer.processEntry(context.Background(), e); err == nil {
		t.Fatalf("expected error from processEntry due to archiver failure, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
