// Package main serves detected bundles over HTTP for dashboards and ad-hoc
// queries, alongside Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/observability"
	"evm-mev-lab/internal/storage"
	"evm-mev-lab/internal/storage/migrations"
	pgstore "evm-mev-lab/internal/storage/postgres"
)

const defaultQueryLimit = 100

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgDSN := os.Getenv("POSTGRES_DSN")
	if pgDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	pool, err := pgstore.NewPool(ctx, pgDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("apply postgres migrations")
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: newHandler(pgstore.NewBundleStore(pool)),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
		cancel()
	}()

	log.Info().Str("addr", *addr).Msg("bundle server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}

func newHandler(bundles storage.BundleStore) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/bundles", handleBundlesByBlock(bundles))
	mux.HandleFunc("/bundles/kind/", handleBundlesByKind(bundles))
	return mux
}

// bundleView is the JSON shape of a bundle. Rationals render as exact
// "num/den" text to avoid any float rounding on the wire.
type bundleView struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	BlockNumber    uint64   `json:"block_number"`
	TxHashes       []string `json:"tx_hashes"`
	ProfitToken    string   `json:"profit_token"`
	ProfitSymbol   string   `json:"profit_symbol,omitempty"`
	Profit         string   `json:"profit"`
	ProfitUSD      string   `json:"profit_usd,omitempty"`
	Classification string   `json:"classification"`
}

func toView(b *domain.Bundle) bundleView {
	v := bundleView{
		ID:             b.ID,
		Kind:           string(b.Kind),
		BlockNumber:    b.BlockNumber,
		TxHashes:       b.TxHashes,
		ProfitToken:    string(b.Profit.Token.Address),
		ProfitSymbol:   b.Profit.Token.Symbol,
		Classification: b.Classification,
	}
	if b.Profit.Amount != nil {
		v.Profit = b.Profit.Amount.RatString()
	}
	if b.ProfitUSD != nil {
		v.ProfitUSD = b.ProfitUSD.RatString()
	}
	return v
}

// handleBundlesByBlock serves GET /bundles?block=N.
func handleBundlesByBlock(bundles storage.BundleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		block, err := strconv.ParseUint(r.URL.Query().Get("block"), 10, 64)
		if err != nil {
			http.Error(w, "block query parameter is required", http.StatusBadRequest)
			return
		}

		found, err := bundles.GetByBlock(r.Context(), block)
		if err != nil {
			log.Error().Err(err).Uint64("block", block).Msg("bundle query failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, found)
	}
}

// handleBundlesByKind serves GET /bundles/kind/{kind}?limit=N.
func handleBundlesByKind(bundles storage.BundleStore) http.HandlerFunc {
	valid := map[domain.BundleKind]bool{
		domain.BundleSandwich: true,
		domain.BundleCexDex:   true,
		domain.BundleJit:      true,
		domain.BundleBackrun:  true,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		kind := domain.BundleKind(strings.TrimPrefix(r.URL.Path, "/bundles/kind/"))
		if !valid[kind] {
			http.Error(w, "unknown bundle kind", http.StatusNotFound)
			return
		}

		limit := defaultQueryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		found, err := bundles.GetByKind(r.Context(), kind, limit)
		if err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("bundle query failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, found)
	}
}

func writeJSON(w http.ResponseWriter, bundles []*domain.Bundle) {
	views := make([]bundleView, 0, len(bundles))
	for _, b := range bundles {
		views = append(views, toView(b))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
