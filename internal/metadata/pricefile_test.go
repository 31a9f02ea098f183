package metadata

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPriceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	content := `[
		{"base": "0x0A", "quote": "0x0b", "timestamp_ms": 1000, "price": "3/2"},
		{"base": "0x0a", "quote": "0x0b", "timestamp_ms": 2000, "price": "1500"}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write price file: %v", err)
	}

	points, err := LoadPriceFile(path)
	if err != nil {
		t.Fatalf("LoadPriceFile failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}
	if points[0].Pair.Base != "0x0a" {
		t.Errorf("Base address not normalized: %s", points[0].Pair.Base)
	}
	if points[0].Price.Cmp(big.NewRat(3, 2)) != 0 {
		t.Errorf("Price mismatch: got %s", points[0].Price.RatString())
	}
}

func TestLoadPriceFile_BadPrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	content := `[{"base": "0x0a", "quote": "0x0b", "timestamp_ms": 1000, "price": "abc"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write price file: %v", err)
	}

	if _, err := LoadPriceFile(path); err == nil {
		t.Error("Expected an error for a malformed price")
	}
}

func TestFilePriceFeed_WindowFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	content := `[
		{"base": "0x0a", "quote": "0x0b", "timestamp_ms": 1000, "price": "100"},
		{"base": "0x0a", "quote": "0x0b", "timestamp_ms": 5000, "price": "101"}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write price file: %v", err)
	}

	feed, err := NewFilePriceFeed(path)
	if err != nil {
		t.Fatalf("NewFilePriceFeed failed: %v", err)
	}

	points, err := feed.Prices(context.Background(), 0, 2000)
	if err != nil {
		t.Fatalf("Prices failed: %v", err)
	}
	if len(points) != 1 || points[0].TimestampMs != 1000 {
		t.Errorf("Window filter wrong: %v", points)
	}
}
