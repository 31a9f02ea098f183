package storage

import (
	"context"

	"evm-mev-lab/internal/domain"
)

// ProtocolEntry binds a contract address to its protocol family.
type ProtocolEntry struct {
	Address  domain.Address
	Protocol domain.Protocol
}

// BundleStore provides access to detected bundle storage.
type BundleStore interface {
	// Insert adds a new bundle. Returns ErrDuplicateKey if the bundle ID exists.
	Insert(ctx context.Context, b *domain.Bundle) error

	// InsertBulk adds multiple bundles atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, bundles []*domain.Bundle) error

	// GetByBlock retrieves all bundles for a block, ordered by kind then ID.
	GetByBlock(ctx context.Context, blockNumber uint64) ([]*domain.Bundle, error)

	// GetByKind retrieves bundles of one kind, newest block first. A limit
	// of 0 means no limit.
	GetByKind(ctx context.Context, kind domain.BundleKind, limit int) ([]*domain.Bundle, error)
}

// PriceStore provides access to the reference price table.
type PriceStore interface {
	// InsertBulk adds multiple price points.
	InsertBulk(ctx context.Context, points []domain.PricePoint) error

	// GetAtOrBefore retrieves the pair's nearest point at-or-before tsMs
	// within windowMs. Returns ErrNotFound when no such point exists.
	GetAtOrBefore(ctx context.Context, pair domain.Pair, tsMs, windowMs int64) (*domain.PricePoint, error)

	// GetWindow retrieves all points across pairs within [startMs, endMs]
	// (inclusive), ordered by timestamp ASC.
	GetWindow(ctx context.Context, startMs, endMs int64) ([]domain.PricePoint, error)
}

// BlockStore provides access to per-block metadata rows. Price data is
// stored separately; Metadata rows returned here carry no price table.
type BlockStore interface {
	// InsertBlock adds a block row. Returns ErrDuplicateKey if the block exists.
	InsertBlock(ctx context.Context, meta *domain.Metadata) error

	// GetBlock retrieves a block row. Returns ErrNotFound if not exists.
	GetBlock(ctx context.Context, blockNumber uint64) (*domain.Metadata, error)
}

// RegistryStore provides access to protocol binding and token rows.
type RegistryStore interface {
	// InsertEntries adds protocol bindings. Returns ErrDuplicateKey on a
	// known address.
	InsertEntries(ctx context.Context, entries []ProtocolEntry) error

	// LoadEntries retrieves all protocol bindings, ordered by address.
	LoadEntries(ctx context.Context) ([]ProtocolEntry, error)

	// InsertTokens adds token rows. Returns ErrDuplicateKey on a known address.
	InsertTokens(ctx context.Context, tokens []domain.Token) error

	// LoadTokens retrieves all token rows keyed by address.
	LoadTokens(ctx context.Context) (map[domain.Address]domain.Token, error)
}
