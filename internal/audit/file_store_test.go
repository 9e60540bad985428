package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	svc := NewService(store, ServiceConfig{})
	ctx := context.Background()

	var last *AuditEntry
	for i, detail := range []string{"Created goal Emergency fund", "Updated goal Emergency fund", "Deleted goal Emergency fund"} {
		action := []Action{ActionCreate, ActionUpdate, ActionDelete}[i]
		e, err := svc.RecordMutation(ctx, MutationRequest{
			AccountID:  "acct-1",
			ActorID:    "user-1",
			ActorName:  "Ana Lima",
			Action:     action,
			EntityKind: EntityGoal,
			EntityID:   "goal-1",
			Detail:     detail,
			Ts:         time.Date(2025, 4, 1, 9, 0, i, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("RecordMutation %d: %v", i, err)
		}
		last = e
	}

	// head.hash tracks the tip.
	headB, err := os.ReadFile(filepath.Join(dir, "acct-1", "head.hash"))
	if err != nil {
		t.Fatalf("read head.hash: %v", err)
	}
	if string(headB) != last.Hash {
		t.Fatalf("head.hash should hold the tip hash")
	}

	// Replay and verify the persisted chain.
	entries, err := store.ListEntries(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	out := VerifyChain(entries)
	if validCount(out) != 3 {
		t.Fatalf("replayed chain should be fully valid, got %d/3", validCount(out))
	}

	// First entry is genesis-linked.
	if entries[0].PrevHash != GenesisPrevHash {
		t.Fatalf("first entry should carry the genesis sentinel, got %q", entries[0].PrevHash)
	}
}

func TestFileStoreGetEntry(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	e := sampleEntry()
	e.Hash = EntryHash(e)
	if err := store.InsertEntry(ctx, e); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	got, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Hash != e.Hash || got.Detail != e.Detail {
		t.Fatalf("entry did not round-trip")
	}
	if !got.Ts.Equal(e.Ts) {
		t.Fatalf("timestamp drifted through persistence: %v != %v", got.Ts, e.Ts)
	}

	if _, err := store.GetEntry(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreTipEntry(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	tip, err := store.TipEntry(ctx, "acct-empty")
	if err != nil {
		t.Fatalf("TipEntry on empty chain: %v", err)
	}
	if tip != nil {
		t.Fatalf("empty chain has no tip")
	}

	chain := buildChain("acct-1", 3, time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	for i := range chain {
		if err := store.InsertEntry(ctx, &chain[i]); err != nil {
			t.Fatalf("InsertEntry: %v", err)
		}
	}
	tip, err = store.TipEntry(ctx, "acct-1")
	if err != nil {
		t.Fatalf("TipEntry: %v", err)
	}
	if tip.ID != chain[2].ID {
		t.Fatalf("tip should be the latest entry, got %s", tip.ID)
	}
}

func TestFileStoreChainsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	a := buildChain("acct-a", 2, time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	b := buildChain("acct-b", 3, time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	for i := range a {
		if err := store.InsertEntry(ctx, &a[i]); err != nil {
			t.Fatal(err)
		}
	}
	for i := range b {
		if err := store.InsertEntry(ctx, &b[i]); err != nil {
			t.Fatal(err)
		}
	}

	gotA, err := store.ListEntries(ctx, "acct-a")
	if err != nil {
		t.Fatal(err)
	}
	gotB, err := store.ListEntries(ctx, "acct-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(gotA) != 2 || len(gotB) != 3 {
		t.Fatalf("chains leaked across accounts: %d/%d", len(gotA), len(gotB))
	}
}
