package dedup

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryIndex_MarkAndProbe(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(24 * time.Hour)
	now := time.Now()

	known, err := idx.IsKnown(ctx, "acti_1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if known {
		t.Fatal("expected unseen pair to be unknown")
	}

	if err := idx.Mark(ctx, "acti_1", 1, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("same pair is known", func(t *testing.T) {
		known, _ := idx.IsKnown(ctx, "acti_1", 1)
		if !known {
			t.Error("expected (acti_1, 1) to be known after mark")
		}
	})

	t.Run("count increase is unknown", func(t *testing.T) {
		known, _ := idx.IsKnown(ctx, "acti_1", 2)
		if known {
			t.Error("expected (acti_1, 2) to be unknown, count increased")
		}
	})

	t.Run("count regression reads as known", func(t *testing.T) {
		if err := idx.Mark(ctx, "acti_1", 3, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		known, _ := idx.IsKnown(ctx, "acti_1", 2)
		if !known {
			t.Error("expected a stale lower count to read as duplicate")
		}
	})

	t.Run("other email is unknown", func(t *testing.T) {
		known, _ := idx.IsKnown(ctx, "acti_2", 1)
		if known {
			t.Error("expected different email id to be unknown")
		}
	})
}

func TestMemoryIndex_Expiry(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(24 * time.Hour)

	current := time.Now()
	idx.now = func() time.Time { return current }

	if err := idx.Mark(ctx, "acti_1", 1, current); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	known, _ := idx.IsKnown(ctx, "acti_1", 1)
	if !known {
		t.Fatal("expected pair to be known within window")
	}

	// Advance past the retention window.
	current = current.Add(25 * time.Hour)

	known, _ = idx.IsKnown(ctx, "acti_1", 1)
	if known {
		t.Error("expected pair to be unknown after window elapsed")
	}

	stats, _ := idx.Stats(ctx)
	if stats.Size != 0 {
		t.Errorf("expected expired entry to be purged, size = %d", stats.Size)
	}
}

func TestMemoryIndex_Stats(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(time.Hour)
	now := time.Now()

	_ = idx.Mark(ctx, "acti_1", 1, now.Add(-time.Minute))
	_ = idx.Mark(ctx, "acti_2", 4, now)

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Size != 2 {
		t.Errorf("size = %d, want 2", stats.Size)
	}
	if !stats.OldestEntry.Equal(now.Add(-time.Minute)) {
		t.Errorf("oldest entry = %v, want %v", stats.OldestEntry, now.Add(-time.Minute))
	}
	if stats.Retention != time.Hour {
		t.Errorf("retention = %v, want %v", stats.Retention, time.Hour)
	}

	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ = idx.Stats(ctx)
	if stats.Size != 0 {
		t.Errorf("size after clear = %d, want 0", stats.Size)
	}
	if !stats.OldestEntry.IsZero() {
		t.Errorf("oldest entry after clear = %v, want zero", stats.OldestEntry)
	}
}

func TestMemoryIndex_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(time.Hour)
	now := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for c := 1; c <= 50; c++ {
				_ = idx.Mark(ctx, "acti_shared", c, now)
				_, _ = idx.IsKnown(ctx, "acti_shared", c)
			}
		}(g)
	}
	wg.Wait()

	known, _ := idx.IsKnown(ctx, "acti_shared", 50)
	if !known {
		t.Error("expected highest marked count to be known")
	}
}
