package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSnapshotLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	archive := New(tempDir)

	first := "[AI_CANONICAL_NOTE v1.1]\n{\"version\":\"1.1\",\"lead_id\":\"ld_h1\"}"
	commit, err := archive.RecordSnapshot("ld_h1", first, "ai-normalizer", "Canonical run 1")
	if err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "ld_h1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second := "[AI_CANONICAL_NOTE v1.1]\n{\"version\":\"1.1\",\"lead_id\":\"ld_h1\",\"risk_score\":40}"
	if _, err := archive.RecordSnapshot("ld_h1", second, "ai-normalizer", "Canonical run 2"); err != nil {
		t.Fatalf("RecordSnapshot() second error = %v", err)
	}

	history, err := archive.History("ld_h1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if history[0].Message != "Canonical run 2" {
		t.Fatalf("history must be newest first, got %+v", history[0])
	}

	old, err := archive.SnapshotAt("ld_h1", commit.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if !strings.Contains(old, "\"lead_id\":\"ld_h1\"") || strings.Contains(old, "risk_score") {
		t.Fatalf("expected first snapshot content, got %q", old)
	}
}

func TestHistoryForUnknownLead(t *testing.T) {
	archive := New(t.TempDir())

	history, err := archive.History("ld_missing", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}
}

func TestConcurrentSnapshotsSameLead(t *testing.T) {
	archive := New(t.TempDir())

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			encoded := fmt.Sprintf("[AI_CANONICAL_NOTE v1.1]\n{\"version\":\"1.1\",\"lead_id\":\"ld_c\",\"confidence\":%d}", idx)
			if _, err := archive.RecordSnapshot("ld_c", encoded, "ai-normalizer", fmt.Sprintf("Run %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("RecordSnapshot() concurrent error = %v", err)
		}
	}

	history, err := archive.History("ld_c", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d commits, got %d", writers, len(history))
	}
}

func TestSnapshotsIsolatedPerLead(t *testing.T) {
	archive := New(t.TempDir())

	if _, err := archive.RecordSnapshot("ld_a", "[AI_CANONICAL_NOTE v1.1]\n{\"lead_id\":\"ld_a\"}", "ai", "a"); err != nil {
		t.Fatalf("RecordSnapshot(ld_a) error = %v", err)
	}
	if _, err := archive.RecordSnapshot("ld_b", "[AI_CANONICAL_NOTE v1.1]\n{\"lead_id\":\"ld_b\"}", "ai", "b"); err != nil {
		t.Fatalf("RecordSnapshot(ld_b) error = %v", err)
	}

	historyA, err := archive.History("ld_a", 10)
	if err != nil {
		t.Fatalf("History(ld_a) error = %v", err)
	}
	if len(historyA) != 1 {
		t.Fatalf("expected 1 commit for ld_a, got %d", len(historyA))
	}
}
