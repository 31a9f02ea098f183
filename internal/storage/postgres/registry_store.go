package postgres

import (
	"context"
	"fmt"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/storage"
)

// RegistryStore implements storage.RegistryStore using PostgreSQL.
type RegistryStore struct {
	pool *Pool
}

// NewRegistryStore creates a new RegistryStore.
func NewRegistryStore(pool *Pool) *RegistryStore {
	return &RegistryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RegistryStore = (*RegistryStore)(nil)

// InsertEntries adds protocol bindings in a single transaction. Returns
// ErrDuplicateKey on a known address.
func (s *RegistryStore) InsertEntries(ctx context.Context, entries []storage.ProtocolEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin entry batch: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO protocol_entries (address, protocol) VALUES ($1, $2)`
	for _, e := range entries {
		if e.Address == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, query, string(e.Address), string(e.Protocol)); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert protocol entry %s: %w", e.Address, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit entry batch: %w", err)
	}
	return nil
}

// LoadEntries retrieves all protocol bindings, ordered by address.
func (s *RegistryStore) LoadEntries(ctx context.Context) ([]storage.ProtocolEntry, error) {
	query := `
		SELECT address, protocol
		FROM protocol_entries
		ORDER BY address ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load protocol entries: %w", err)
	}
	defer rows.Close()

	var result []storage.ProtocolEntry
	for rows.Next() {
		var addr, proto string
		if err := rows.Scan(&addr, &proto); err != nil {
			return nil, fmt.Errorf("scan protocol entry: %w", err)
		}
		result = append(result, storage.ProtocolEntry{
			Address:  domain.Address(addr),
			Protocol: domain.Protocol(proto),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate protocol entries: %w", err)
	}
	return result, nil
}

// InsertTokens adds token rows in a single transaction. Returns
// ErrDuplicateKey on a known address.
func (s *RegistryStore) InsertTokens(ctx context.Context, tokens []domain.Token) error {
	if len(tokens) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin token batch: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO tokens (address, symbol, decimals) VALUES ($1, $2, $3)`
	for _, t := range tokens {
		if t.Address == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, query, string(t.Address), t.Symbol, int16(t.Decimals)); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert token %s: %w", t.Address, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit token batch: %w", err)
	}
	return nil
}

// LoadTokens retrieves all token rows keyed by address.
func (s *RegistryStore) LoadTokens(ctx context.Context) (map[domain.Address]domain.Token, error) {
	query := `
		SELECT address, symbol, decimals
		FROM tokens
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.Address]domain.Token)
	for rows.Next() {
		var (
			addr, symbol string
			decimals     int16
		)
		if err := rows.Scan(&addr, &symbol, &decimals); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result[domain.Address(addr)] = domain.Token{
			Address:  domain.Address(addr),
			Symbol:   symbol,
			Decimals: uint8(decimals),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return result, nil
}
