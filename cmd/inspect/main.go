// Package main runs the trace inspector: blocks stream in live over a
// newHeads subscription (or a polling fallback), flow through decode,
// classification and the MEV detectors, and detected bundles are persisted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"evm-mev-lab/internal/classifier"
	"evm-mev-lab/internal/config"
	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/inspect"
	"evm-mev-lab/internal/metadata"
	"evm-mev-lab/internal/observability"
	"evm-mev-lab/internal/pipeline"
	"evm-mev-lab/internal/registry"
	"evm-mev-lab/internal/storage"
	chstore "evm-mev-lab/internal/storage/clickhouse"
	"evm-mev-lab/internal/storage/memory"
	"evm-mev-lab/internal/storage/migrations"
	pgstore "evm-mev-lab/internal/storage/postgres"
	"evm-mev-lab/internal/tracesource"
)

const headPollInterval = 12 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration")
	mode := flag.String("mode", "live", "Run mode: live or range")
	fromBlock := flag.Uint64("from", 0, "Start block for range mode")
	toBlock := flag.Uint64("to", 0, "End block for range mode (inclusive)")
	seedPath := flag.String("registry", "", "Registry seed YAML (overrides stored registry)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	_ = godotenv.Load()
	setupLogging(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, cfg, *mode, *fromBlock, *toBlock, *seedPath, *useMemory); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("inspector failed")
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}

// signalContext cancels on SIGINT/SIGTERM; a second signal forces exit.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		<-sigCh
		log.Warn().Msg("forcing immediate shutdown")
		os.Exit(1)
	}()
	return ctx, cancel
}

func run(ctx context.Context, cfg *config.Config, mode string, fromBlock, toBlock uint64, seedPath string, useMemory bool) error {
	startMetricsServer(cfg.Metrics.Addr)

	// Stores: in-memory by default, persistent when DSNs are configured.
	var (
		bundleStore   storage.BundleStore   = memory.NewBundleStore()
		registryStore storage.RegistryStore = memory.NewRegistryStore()
		blockStore    storage.BlockStore    = memory.NewBlockStore()
		priceStore    storage.PriceStore    = memory.NewPriceStore()
	)

	if !useMemory {
		pgDSN := os.Getenv("POSTGRES_DSN")
		chDSN := os.Getenv("CLICKHOUSE_DSN")
		if pgDSN == "" || chDSN == "" {
			return fmt.Errorf("POSTGRES_DSN and CLICKHOUSE_DSN are required (or pass --use-memory)")
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

		bundleStore = pgstore.NewBundleStore(pool)
		registryStore = pgstore.NewRegistryStore(pool)
		blockStore = pgstore.NewBlockStore(pool)
		priceStore = chstore.NewPriceStore(conn)
	}

	// Registry: a seed file wins, otherwise the stored registry.
	entries, tokens, err := loadRegistry(ctx, seedPath, registryStore)
	if err != nil {
		return err
	}
	reg := registry.New(entries)
	log.Info().Int("addresses", reg.Len()).Int("tokens", len(tokens)).Msg("registry loaded")

	// RPC trace source with the registry as frame filter.
	source := tracesource.NewHTTPClient(cfg.RPC.HTTPEndpoint,
		tracesource.WithTimeout(cfg.RPCTimeout()),
		tracesource.WithMaxRetries(cfg.RPC.MaxRetries),
		tracesource.WithFrameFilter(reg.AddressFilter()),
	)

	// Metadata: missing blocks backfill through the chain header fetcher.
	metaStore := metadata.NewDBStore(blockStore, priceStore,
		metadata.NewChainFetcher(source, nil), cfg.USDStable())
	accessor := metadata.NewAccessor(metaStore, cfg.RPCTimeout())

	processor := pipeline.NewProcessor(pipeline.ProcessorOptions{
		Source:          source,
		Metadata:        accessor,
		Classifier:      classifier.New(reg, tokens),
		Inspectors:      inspect.NewRunner(inspect.DefaultInspectors(inspect.Config{CexDexThreshold: cfg.CexDexThreshold()})...),
		TraceRetries:    cfg.Pipeline.TraceRetries,
		TraceRetryDelay: cfg.TraceRetryDelay(),
	})

	emitter := pipeline.EmitterFunc(func(ctx context.Context, r *pipeline.BlockResult) error {
		return persistResult(ctx, bundleStore, r)
	})

	runner := pipeline.NewRunner(processor, emitter, cfg.Pipeline.MaxTasks)

	blocks := make(chan uint64)
	switch mode {
	case "live":
		go feedLive(ctx, cfg, source, blocks)
	case "range":
		if toBlock < fromBlock {
			return fmt.Errorf("--to must be >= --from")
		}
		go feedRange(ctx, fromBlock, toBlock, blocks)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}

	log.Info().Str("mode", mode).Msg("starting inspector")
	return runner.Run(ctx, blocks)
}

func startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// loadRegistry resolves the decode registry from a seed file or the store.
func loadRegistry(ctx context.Context, seedPath string, store storage.RegistryStore) ([]registry.Entry, map[domain.Address]domain.Token, error) {
	if seedPath != "" {
		seed, err := config.LoadRegistrySeed(seedPath)
		if err != nil {
			return nil, nil, err
		}
		tokens := make(map[domain.Address]domain.Token)
		for _, t := range seed.DomainTokens() {
			tokens[t.Address] = t
		}
		return seed.RegistryEntries(), tokens, nil
	}

	stored, err := store.LoadEntries(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load registry entries: %w", err)
	}
	entries := make([]registry.Entry, len(stored))
	for i, e := range stored {
		entries[i] = registry.Entry{Address: e.Address, Protocol: e.Protocol}
	}

	tokens, err := store.LoadTokens(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load tokens: %w", err)
	}
	if len(entries) == 0 {
		log.Warn().Msg("registry is empty, only ERC20 transfers will decode")
	}
	return entries, tokens, nil
}

// persistResult stores a block's bundles and logs the outcome.
func persistResult(ctx context.Context, store storage.BundleStore, r *pipeline.BlockResult) error {
	if r.Skipped {
		return nil
	}
	if len(r.Bundles) == 0 {
		log.Debug().Uint64("block", r.BlockNumber).Int("actions", r.ActionCount).Msg("no bundles")
		return nil
	}

	if err := store.InsertBulk(ctx, r.Bundles); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			log.Warn().Uint64("block", r.BlockNumber).Msg("bundles already stored, skipping")
			return nil
		}
		return fmt.Errorf("persist bundles for block %d: %w", r.BlockNumber, err)
	}

	for _, b := range r.Bundles {
		log.Info().
			Uint64("block", b.BlockNumber).
			Str("kind", string(b.Kind)).
			Str("profit", b.Profit.Amount.RatString()).
			Str("token", b.Profit.Token.Symbol).
			Strs("txs", b.TxHashes).
			Msg("bundle detected")
	}
	return nil
}

// feedLive streams new block numbers from the websocket head subscription,
// falling back to polling when no websocket endpoint is configured.
func feedLive(ctx context.Context, cfg *config.Config, source tracesource.Source, blocks chan<- uint64) {
	defer close(blocks)

	if cfg.RPC.WSEndpoint != "" {
		ws, err := tracesource.NewWSHeadClient(ctx, cfg.RPC.WSEndpoint, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket connect failed, falling back to polling")
		} else {
			defer ws.Close()
			heads, err := ws.SubscribeNewHeads(ctx)
			if err != nil {
				log.Error().Err(err).Msg("head subscription failed, falling back to polling")
			} else {
				for {
					select {
					case <-ctx.Done():
						return
					case head, ok := <-heads:
						if !ok {
							return
						}
						select {
						case blocks <- head.Number:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}

	pollHeads(ctx, source, blocks)
}

// pollHeads polls the node head and feeds every new block once.
func pollHeads(ctx context.Context, source tracesource.Source, blocks chan<- uint64) {
	ticker := time.NewTicker(headPollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := source.LatestBlock(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("head poll failed")
			continue
		}
		if last == 0 {
			last = head - 1
		}
		for n := last + 1; n <= head; n++ {
			select {
			case blocks <- n:
			case <-ctx.Done():
				return
			}
		}
		last = head
	}
}

func feedRange(ctx context.Context, from, to uint64, blocks chan<- uint64) {
	defer close(blocks)
	for n := from; n <= to; n++ {
		select {
		case blocks <- n:
		case <-ctx.Done():
			return
		}
	}
}
