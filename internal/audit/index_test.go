package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestIndexIngestAndSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	entries := []Entry{
		{Timestamp: time.Now(), RunID: "run-1", Type: TypeToolCall, Tool: "fs.read", DurationMS: 5},
		{Timestamp: time.Now(), RunID: "run-1", Type: TypeToolCall, Tool: "fs.list", DurationMS: 3},
		{Timestamp: time.Now(), RunID: "run-2", Type: TypeCommand, Tool: "cmd.run", DurationMS: 120},
	}
	if err := idx.Ingest(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := idx.Search(ctx, Query{Tool: "fs.read"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Entry.Tool != "fs.read" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	rows, err = idx.Search(ctx, Query{RunID: "run-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
}

func TestIndexSearchLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	var entries []Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, Entry{Timestamp: time.Now(), RunID: "run-1", Type: TypeToolCall, Tool: "fs.read"})
	}
	if err := idx.Ingest(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := idx.Search(ctx, Query{RunID: "run-1", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
}
