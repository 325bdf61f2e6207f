package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/shopspring/decimal"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, "key3", []byte("old"), time.Minute)
		_ = cache.Set(ctx, "key3", []byte("new"), time.Minute)

		val, _ := cache.Get(ctx, "key3")
		if string(val) != "new" {
			t.Errorf("expected 'new', got '%s'", string(val))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}

		size, capacity := smallCache.Stats()
		if size != 3 || capacity != 3 {
			t.Errorf("expected 3/3, got %d/%d", size, capacity)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	local := NewLRUCache(10)
	remote := NewLRUCache(10)
	cache := newTwoPhase(local, remote, time.Minute)

	t.Run("WritesBothLevels", func(t *testing.T) {
		if err := cache.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if v, _ := local.Get(ctx, "k"); string(v) != "v" {
			t.Error("expected value in L1")
		}
		if v, _ := remote.Get(ctx, "k"); string(v) != "v" {
			t.Error("expected value in L2")
		}
	})

	t.Run("L2HitPopulatesL1", func(t *testing.T) {
		_ = remote.Set(ctx, "only-remote", []byte("r"), time.Hour)

		val, err := cache.Get(ctx, "only-remote")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "r" {
			t.Errorf("expected 'r', got '%s'", string(val))
		}
		if v, _ := local.Get(ctx, "only-remote"); string(v) != "r" {
			t.Error("expected L1 to be populated")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Delete(ctx, "k")
		if v, _ := cache.Get(ctx, "k"); v != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "none"})
	if err != nil || c != nil {
		t.Errorf("expected nil cache for none, got %v, %v", c, err)
	}

	c, err = New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}

func testTx(amount string) *domain.Transaction {
	return &domain.Transaction{
		Type:                  domain.TxTransfer,
		Amount:                decimal.RequireFromString(amount),
		SenderBalanceBefore:   decimal.RequireFromString("8000"),
		SenderBalanceAfter:    decimal.RequireFromString("3000"),
		ReceiverBalanceBefore: decimal.Zero,
		ReceiverBalanceAfter:  decimal.Zero,
	}
}

func TestVerdicts(t *testing.T) {
	ctx := context.Background()
	memo := NewVerdicts(NewLRUCache(10), time.Minute)
	tx := testTx("5000")

	res := &domain.ScoreResult{
		Probability:        0.87,
		ProbabilityDisplay: "87.0%",
		Label:              domain.LabelFraud,
		Source:             domain.SourceFallback,
		FallbackRule:       "large-transfer",
	}

	if _, ok := memo.Get(ctx, tx, 1); ok {
		t.Fatal("expected miss on empty memo")
	}

	memo.Put(ctx, tx, 1, res)

	got, ok := memo.Get(ctx, testTx("5000.00"), 1)
	if !ok {
		t.Fatal("expected hit for equal amount written differently")
	}
	if got.Probability != 0.87 || got.Label != domain.LabelFraud || got.FallbackRule != "large-transfer" {
		t.Errorf("unexpected cached verdict %+v", got)
	}

	if _, ok := memo.Get(ctx, tx, 2); ok {
		t.Error("expected miss for a newer rule generation")
	}

	if _, ok := memo.Get(ctx, testTx("5001"), 1); ok {
		t.Error("expected miss for a different transaction")
	}
}

func TestNilVerdicts(t *testing.T) {
	memo := NewVerdicts(nil, time.Minute)
	if memo != nil {
		t.Fatal("expected nil memo without a cache")
	}

	// a nil memo is a no-op
	memo.Put(context.Background(), testTx("1"), 1, &domain.ScoreResult{})
	if _, ok := memo.Get(context.Background(), testTx("1"), 1); ok {
		t.Error("expected miss from nil memo")
	}
}

func TestVerdictKey(t *testing.T) {
	got := VerdictKey(testTx("5000.00"), 3)
	want := "verdict:3:TRANSFER|5000|8000|3000|0|0"
	if got != want {
		t.Errorf("VerdictKey = %q, want %q", got, want)
	}
}
