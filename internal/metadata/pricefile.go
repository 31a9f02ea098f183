package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// pricePointRecord is the on-disk shape of one price point. Price is a
// "num/den" rational rendered as text.
type pricePointRecord struct {
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	TimestampMs int64  `json:"timestamp_ms"`
	Price       string `json:"price"`
}

// LoadPriceFile reads reference price points from a JSON file.
func LoadPriceFile(path string) ([]domain.PricePoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price file: %w", err)
	}

	var records []pricePointRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse price file: %w", err)
	}

	points := make([]domain.PricePoint, 0, len(records))
	for i, rec := range records {
		price, err := storage.DecodeRat(rec.Price)
		if err != nil || price == nil {
			return nil, fmt.Errorf("price file record %d: bad price %q", i, rec.Price)
		}
		points = append(points, domain.PricePoint{
			Pair: domain.Pair{
				Base:  domain.HexToAddress(rec.Base),
				Quote: domain.HexToAddress(rec.Quote),
			},
			TimestampMs: rec.TimestampMs,
			Price:       price,
		})
	}
	return points, nil
}

// FilePriceFeed serves a fixed point set loaded from disk as a PriceFeed.
type FilePriceFeed struct {
	points []domain.PricePoint
}

// NewFilePriceFeed loads a price file into a feed.
func NewFilePriceFeed(path string) (*FilePriceFeed, error) {
	points, err := LoadPriceFile(path)
	if err != nil {
		return nil, err
	}
	return &FilePriceFeed{points: points}, nil
}

// Prices implements PriceFeed.
func (f *FilePriceFeed) Prices(_ context.Context, startMs, endMs int64) ([]domain.PricePoint, error) {
	var out []domain.PricePoint
	for _, p := range f.points {
		if p.TimestampMs >= startMs && p.TimestampMs <= endMs {
			out = append(out, p)
		}
	}
	return out, nil
}
