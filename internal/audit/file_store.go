package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore is a simple file-backed store for dev/testing.
// Each account gets its own subdirectory with one JSON file per entry and a
// head.hash file holding the chain tip's hash. The head read in TipEntry
// and the write in InsertEntry are not atomic, which mirrors the production
// store's tip-lookup behavior.
type FileStore struct {
	dir string
}

// NewFileStore returns a new FileStore and ensures the archive directory exists.
func NewFileStore(dir string) *FileStore {
	_ = os.MkdirAll(dir, 0o755)
	return &FileStore{dir: dir}
}

func (f *FileStore) Ping(ctx context.Context) error { return nil }

func (f *FileStore) accountDir(accountID string) string {
	return filepath.Join(f.dir, accountID)
}

// InsertEntry writes the entry JSON and updates the account's head.hash.
func (f *FileStore) InsertEntry(ctx context.Context, e *AuditEntry) error {
	dir := f.accountDir(e.AccountID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create account dir: %w", err)
	}

	b, _ := json.MarshalIndent(e, "", "  ")
	path := filepath.Join(dir, fmt.Sprintf("audit_%s.json", e.ID))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "head.hash"), []byte(e.Hash), 0o644); err != nil {
		return fmt.Errorf("write head.hash: %w", err)
	}
	return nil
}

// TipEntry returns the account's latest entry by timestamp, or (nil, nil)
// for an empty chain.
func (f *FileStore) TipEntry(ctx context.Context, accountID string) (*AuditEntry, error) {
	entries, err := f.ListEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	tip := entries[len(entries)-1]
	return &tip, nil
}

// ListEntries loads every entry of an account's chain, timestamp ascending.
func (f *FileStore) ListEntries(ctx context.Context, accountID string) ([]AuditEntry, error) {
	dir := f.accountDir(accountID)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read account dir: %w", err)
	}

	var out []AuditEntry
	for _, fi := range files {
		name := fi.Name()
		if fi.IsDir() || !strings.HasPrefix(name, "audit_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var e AuditEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", name, err)
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ts.Equal(out[j].Ts) {
			return out[i].ID < out[j].ID
		}
		return out[i].Ts.Before(out[j].Ts)
	})
	return out, nil
}

// GetEntry fetches an entry by id. The account is unknown here, so account
// subdirectories are scanned until the file is found.
func (f *FileStore) GetEntry(ctx context.Context, id string) (*AuditEntry, error) {
	accounts, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	for _, acc := range accounts {
		if !acc.IsDir() {
			continue
		}
		path := filepath.Join(f.dir, acc.Name(), fmt.Sprintf("audit_%s.json", id))
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		var e AuditEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, err
		}
		return &e, nil
	}
	return nil, ErrNotFound
}
