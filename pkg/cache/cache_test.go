package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tradeline/degiro-go/pkg/webapi"
)

// setupTestRedis creates a test Redis client, skipping when no local Redis
// is available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testProduct(id string) webapi.ProductInfo {
	return webapi.ProductInfo{
		ID:            id,
		Name:          "AIRBUS",
		ISIN:          "NL0000235190",
		Symbol:        "AIR",
		Currency:      "EUR",
		ProductType:   "STOCK",
		ProductTypeID: webapi.ProductTypeStock,
		Tradable:      true,
		ClosePrice:    decimal.NewFromFloat(113.3),
	}
}

func TestStore_SetGet(t *testing.T) {
	store := New(setupTestRedis(t), time.Minute)
	ctx := context.Background()

	want := testProduct("96008")
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := store.Get(ctx, "96008")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != want.Name || got.ISIN != want.ISIN {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if !got.ClosePrice.Equal(want.ClosePrice) {
		t.Errorf("closePrice = %s, want %s", got.ClosePrice, want.ClosePrice)
	}
}

func TestStore_Miss(t *testing.T) {
	store := New(setupTestRedis(t), time.Minute)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestStore_GetMany(t *testing.T) {
	store := New(setupTestRedis(t), time.Minute)
	ctx := context.Background()

	if err := store.Set(ctx, testProduct("1")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := store.Set(ctx, testProduct("2")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got := store.GetMany(ctx, []string{"1", "2", "3"})
	if len(got) != 2 {
		t.Fatalf("GetMany() returned %d records, want 2", len(got))
	}
	if _, ok := got["3"]; ok {
		t.Error("GetMany() returned a record for an uncached id")
	}
}

func TestStore_Delete(t *testing.T) {
	store := New(setupTestRedis(t), time.Minute)
	ctx := context.Background()

	if err := store.Set(ctx, testProduct("96008")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := store.Delete(ctx, "96008"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, "96008"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after delete = %v, want ErrCacheMiss", err)
	}
}

func TestNilStoreIsPermanentMiss(t *testing.T) {
	var store *Store
	ctx := context.Background()

	if _, err := store.Get(ctx, "96008"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("nil store Get() = %v, want ErrCacheMiss", err)
	}
	if err := store.Set(ctx, testProduct("96008")); err != nil {
		t.Errorf("nil store Set() = %v, want nil", err)
	}
	if err := store.Delete(ctx, "96008"); err != nil {
		t.Errorf("nil store Delete() = %v, want nil", err)
	}
	if got := store.GetMany(ctx, []string{"96008"}); got != nil {
		t.Errorf("nil store GetMany() = %v, want nil", got)
	}
}

func TestNew_PanicOnNilClient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New should panic with nil redis client")
		}
	}()
	New(nil, time.Minute)
}
