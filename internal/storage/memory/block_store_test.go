package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

func TestBlockStore_InsertAndGet(t *testing.T) {
	store := NewBlockStore()
	ctx := context.Background()

	meta := &domain.Metadata{
		BlockNumber:      18_000_000,
		BlockTimestampMs: 1_700_000_000_000,
		BaseFeeWei:       big.NewRat(25_000_000_000, 1),
		Builder:          "builder0x69",
		USDStable:        domain.Token{Address: "0x0b", Symbol: "USDC", Decimals: 6},
	}
	if err := store.InsertBlock(ctx, meta); err != nil {
		t.Fatalf("InsertBlock failed: %v", err)
	}

	got, err := store.GetBlock(ctx, 18_000_000)
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if got.BlockTimestampMs != meta.BlockTimestampMs {
		t.Errorf("Timestamp mismatch: got %d", got.BlockTimestampMs)
	}
	if got.BaseFeeWei.Cmp(meta.BaseFeeWei) != 0 {
		t.Errorf("BaseFee mismatch: got %s", got.BaseFeeWei.RatString())
	}
	if got.Builder != "builder0x69" {
		t.Errorf("Builder mismatch: got %s", got.Builder)
	}
}

func TestBlockStore_NotFound(t *testing.T) {
	store := NewBlockStore()

	_, err := store.GetBlock(context.Background(), 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBlockStore_DuplicateKey(t *testing.T) {
	store := NewBlockStore()
	ctx := context.Background()

	meta := &domain.Metadata{BlockNumber: 5, BlockTimestampMs: 1000}
	if err := store.InsertBlock(ctx, meta); err != nil {
		t.Fatalf("InsertBlock failed: %v", err)
	}
	if err := store.InsertBlock(ctx, meta); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestBlockStore_StripsPriceTable(t *testing.T) {
	store := NewBlockStore()
	ctx := context.Background()

	meta := &domain.Metadata{
		BlockNumber:      7,
		BlockTimestampMs: 1000,
		Prices: domain.NewPriceTable([]domain.PricePoint{
			{Pair: domain.Pair{Base: "0x0a", Quote: "0x0b"}, TimestampMs: 900, Price: big.NewRat(1, 1)},
		}),
	}
	if err := store.InsertBlock(ctx, meta); err != nil {
		t.Fatalf("InsertBlock failed: %v", err)
	}

	got, err := store.GetBlock(ctx, 7)
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if got.Prices != nil {
		t.Errorf("Expected no price table on a block row")
	}
}
