package clickhouse

import (
	"context"
	"fmt"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// PriceStore implements storage.PriceStore using ClickHouse. Prices are
// stored as "num/den" text in the price column.
type PriceStore struct {
	conn *Conn
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(conn *Conn) *PriceStore {
	return &PriceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// InsertBulk adds multiple price points in a single batch.
func (s *PriceStore) InsertBulk(ctx context.Context, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p.Price == nil {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ref_prices (base, quote, timestamp_ms, price)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			string(p.Pair.Base), string(p.Pair.Quote),
			uint64(p.TimestampMs), storage.EncodeRat(p.Price),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetAtOrBefore retrieves the pair's nearest point at-or-before tsMs within
// windowMs. Returns ErrNotFound when no such point exists.
func (s *PriceStore) GetAtOrBefore(ctx context.Context, pair domain.Pair, tsMs, windowMs int64) (*domain.PricePoint, error) {
	query := `
		SELECT base, quote, timestamp_ms, price
		FROM ref_prices
		WHERE base = ? AND quote = ? AND timestamp_ms <= ? AND timestamp_ms >= ?
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	earliest := tsMs - windowMs
	if earliest < 0 {
		earliest = 0
	}

	rows, err := s.conn.Query(ctx, query,
		string(pair.Base), string(pair.Quote), uint64(tsMs), uint64(earliest))
	if err != nil {
		return nil, fmt.Errorf("query price at or before: %w", err)
	}
	defer rows.Close()

	points, err := scanPricePoints(rows)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, storage.ErrNotFound
	}
	return &points[0], nil
}

// GetWindow retrieves all points across pairs within [startMs, endMs]
// (inclusive), ordered by timestamp ASC.
func (s *PriceStore) GetWindow(ctx context.Context, startMs, endMs int64) ([]domain.PricePoint, error) {
	query := `
		SELECT base, quote, timestamp_ms, price
		FROM ref_prices
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(startMs), uint64(endMs))
	if err != nil {
		return nil, fmt.Errorf("query price window: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// scanPricePoints scans multiple rows.
func scanPricePoints(rows chRows) ([]domain.PricePoint, error) {
	var points []domain.PricePoint

	for rows.Next() {
		var (
			base, quote, priceText string
			timestampMs            uint64
		)
		if err := rows.Scan(&base, &quote, &timestampMs, &priceText); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}

		price, err := storage.DecodeRat(priceText)
		if err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		points = append(points, domain.PricePoint{
			Pair:        domain.Pair{Base: domain.Address(base), Quote: domain.Address(quote)},
			TimestampMs: int64(timestampMs),
			Price:       price,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}

	return points, nil
}

// chRows abstracts driver.Rows for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}
