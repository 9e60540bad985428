package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver uploads audit entry envelopes to object storage for off-site
// retention.
type Archiver interface {
	ArchiveEntry(ctx context.Context, e *AuditEntry) error
}

// S3Archiver writes entry envelopes to S3 paths like:
//
//	s3://<bucket>/<prefix>/audit/<accountID>/YYYY/MM/DD/<entryID>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Region and credentials come from the
// usual AWS environment (AWS_REGION, AWS_PROFILE, key pair, etc.). The
// prefix may be empty.
func NewS3Archiver(ctx context.Context, bucket string, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// entryEnvelope is the archived JSON form of one entry. The timestamp uses
// the codec's canonical layout so an archived envelope can be re-hashed
// against the chain without precision drift.
func entryEnvelope(e *AuditEntry) ([]byte, error) {
	env := map[string]interface{}{
		"id":         e.ID,
		"accountId":  e.AccountID,
		"ts":         e.Ts.UTC().Format(TimestampLayout),
		"actorId":    e.ActorID,
		"actorName":  e.ActorName,
		"action":     string(e.Action),
		"entityKind": string(e.EntityKind),
		"entityId":   e.EntityID,
		"detail":     e.Detail,
		"origin":     string(e.Origin),
		"prevHash":   e.PrevHash,
		"hash":       e.Hash,
	}
	return json.Marshal(env)
}

func (s *S3Archiver) objectKey(e *AuditEntry) string {
	ts := time.Now().UTC()
	if !e.Ts.IsZero() {
		ts = e.Ts
	}
	year, month, day := ts.Date()
	return path.Join(s.prefix, "audit", e.AccountID,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.json", e.ID),
	)
}

// ArchiveEntry uploads one entry envelope to S3.
func (s *S3Archiver) ArchiveEntry(ctx context.Context, e *AuditEntry) error {
	if e == nil {
		return fmt.Errorf("nil entry")
	}

	body, err := entryEnvelope(e)
	if err != nil {
		return fmt.Errorf("marshal entry envelope: %w", err)
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(e)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		// SSE-S3 at rest.
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

// ArchiveEntryAndReturnKey uploads the entry and reports the object key so
// callers can persist the S3 pointer next to the entry row.
func (s *S3Archiver) ArchiveEntryAndReturnKey(ctx context.Context, e *AuditEntry) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil entry")
	}
	key := s.objectKey(e)
	if err := s.ArchiveEntry(ctx, e); err != nil {
		return "", err
	}
	return key, nil
}
