// Package main backfills persisted block metadata and reference prices for
// a block range, and optionally seeds the protocol registry from a YAML
// file. Run it before range-mode inspection so detectors have pricing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"evm-mev-lab/internal/config"
	"evm-mev-lab/internal/metadata"
	"evm-mev-lab/internal/storage"
	chstore "evm-mev-lab/internal/storage/clickhouse"
	"evm-mev-lab/internal/storage/migrations"
	pgstore "evm-mev-lab/internal/storage/postgres"
	"evm-mev-lab/internal/tracesource"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration")
	fromBlock := flag.Uint64("from", 0, "Start block (inclusive)")
	toBlock := flag.Uint64("to", 0, "End block (inclusive)")
	pricesPath := flag.String("prices", "", "JSON file of reference price points")
	seedPath := flag.String("registry", "", "Registry seed YAML to load into the store")
	flag.Parse()

	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, cfg, *fromBlock, *toBlock, *pricesPath, *seedPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("backfill failed")
	}
}

func run(ctx context.Context, cfg *config.Config, from, to uint64, pricesPath, seedPath string) error {
	pgDSN := os.Getenv("POSTGRES_DSN")
	chDSN := os.Getenv("CLICKHOUSE_DSN")
	if pgDSN == "" || chDSN == "" {
		return fmt.Errorf("POSTGRES_DSN and CLICKHOUSE_DSN are required")
	}

	pool, err := pgstore.NewPool(ctx, pgDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("apply postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, chDSN)
	if err != nil {
		return fmt.Errorf("apply clickhouse migrations: %w", err)
	}
	defer conn.Close()

	if seedPath != "" {
		if err := seedRegistry(ctx, pgstore.NewRegistryStore(pool), seedPath); err != nil {
			return err
		}
	}

	if to < from || to == 0 {
		if seedPath != "" {
			// Seeding alone is a valid invocation.
			return nil
		}
		return fmt.Errorf("--from and --to are required")
	}

	var feed metadata.PriceFeed
	if pricesPath != "" {
		feed, err = metadata.NewFilePriceFeed(pricesPath)
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("no price file given, backfilled blocks will carry no reference prices")
	}

	source := tracesource.NewHTTPClient(cfg.RPC.HTTPEndpoint,
		tracesource.WithTimeout(cfg.RPCTimeout()),
		tracesource.WithMaxRetries(cfg.RPC.MaxRetries),
	)

	store := metadata.NewDBStore(
		pgstore.NewBlockStore(pool),
		chstore.NewPriceStore(conn),
		metadata.NewChainFetcher(source, feed),
		cfg.USDStable(),
	)

	log.Info().Uint64("from", from).Uint64("to", to).Msg("starting backfill")
	return store.Backfill(ctx, from, to)
}

// seedRegistry loads a registry seed file into the persistent store,
// tolerating rows that are already present.
func seedRegistry(ctx context.Context, store storage.RegistryStore, path string) error {
	seed, err := config.LoadRegistrySeed(path)
	if err != nil {
		return err
	}

	entries := make([]storage.ProtocolEntry, 0, len(seed.Entries))
	for _, e := range seed.RegistryEntries() {
		entries = append(entries, storage.ProtocolEntry{Address: e.Address, Protocol: e.Protocol})
	}
	if err := store.InsertEntries(ctx, entries); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("seed registry entries: %w", err)
	}
	if err := store.InsertTokens(ctx, seed.DomainTokens()); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("seed tokens: %w", err)
	}

	log.Info().Int("entries", len(entries)).Int("tokens", len(seed.Tokens)).Msg("registry seeded")
	return nil
}
