package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// BundleStore implements storage.BundleStore using PostgreSQL.
type BundleStore struct {
	pool *Pool
}

// NewBundleStore creates a new BundleStore.
func NewBundleStore(pool *Pool) *BundleStore {
	return &BundleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BundleStore = (*BundleStore)(nil)

const insertBundleQuery = `
	INSERT INTO bundles (
		id, kind, block_number, tx_hashes,
		profit_token, profit_symbol, profit_decimals, profit,
		profit_usd, classification
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Insert adds a new bundle. Returns ErrDuplicateKey if the bundle ID exists.
func (s *BundleStore) Insert(ctx context.Context, b *domain.Bundle) error {
	if b == nil || b.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertBundleQuery, bundleArgs(b)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

// InsertBulk adds multiple bundles in a single transaction. Fails the entire
// batch on any duplicate.
func (s *BundleStore) InsertBulk(ctx context.Context, bundles []*domain.Bundle) error {
	if len(bundles) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bundle batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, b := range bundles {
		if b == nil || b.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, insertBundleQuery, bundleArgs(b)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert bundle %s: %w", b.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bundle batch: %w", err)
	}
	return nil
}

const selectBundleColumns = `
	id, kind, block_number, tx_hashes,
	profit_token, profit_symbol, profit_decimals, profit,
	profit_usd, classification
`

// GetByBlock retrieves all bundles for a block, ordered by kind then ID.
func (s *BundleStore) GetByBlock(ctx context.Context, blockNumber uint64) ([]*domain.Bundle, error) {
	query := `
		SELECT ` + selectBundleColumns + `
		FROM bundles
		WHERE block_number = $1
		ORDER BY kind ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, int64(blockNumber))
	if err != nil {
		return nil, fmt.Errorf("get bundles by block: %w", err)
	}
	defer rows.Close()

	return scanBundles(rows)
}

// GetByKind retrieves bundles of one kind, newest block first. A limit of 0
// means no limit.
func (s *BundleStore) GetByKind(ctx context.Context, kind domain.BundleKind, limit int) ([]*domain.Bundle, error) {
	query := `
		SELECT ` + selectBundleColumns + `
		FROM bundles
		WHERE kind = $1
		ORDER BY block_number DESC, id ASC
	`

	args := []any{string(kind)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get bundles by kind: %w", err)
	}
	defer rows.Close()

	return scanBundles(rows)
}

func bundleArgs(b *domain.Bundle) []any {
	return []any{
		b.ID,
		string(b.Kind),
		int64(b.BlockNumber),
		b.TxHashes,
		string(b.Profit.Token.Address),
		b.Profit.Token.Symbol,
		int16(b.Profit.Token.Decimals),
		storage.EncodeRat(b.Profit.Amount),
		storage.EncodeRat(b.ProfitUSD),
		b.Classification,
	}
}

// scanBundle scans a single row into a Bundle.
func scanBundle(row pgx.Row) (*domain.Bundle, error) {
	var (
		b            domain.Bundle
		kind         string
		blockNumber  int64
		tokenAddr    string
		decimals     int16
		profitText   string
		profitUSDTxt string
	)

	err := row.Scan(
		&b.ID,
		&kind,
		&blockNumber,
		&b.TxHashes,
		&tokenAddr,
		&b.Profit.Token.Symbol,
		&decimals,
		&profitText,
		&profitUSDTxt,
		&b.Classification,
	)
	if err != nil {
		return nil, err
	}

	b.Kind = domain.BundleKind(kind)
	b.BlockNumber = uint64(blockNumber)
	b.Profit.Token.Address = domain.Address(tokenAddr)
	b.Profit.Token.Decimals = uint8(decimals)
	if b.Profit.Amount, err = storage.DecodeRat(profitText); err != nil {
		return nil, err
	}
	if b.ProfitUSD, err = storage.DecodeRat(profitUSDTxt); err != nil {
		return nil, err
	}
	return &b, nil
}

// scanBundles scans all rows into a slice of Bundles.
func scanBundles(rows pgx.Rows) ([]*domain.Bundle, error) {
	var result []*domain.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bundles: %w", err)
	}
	return result, nil
}
