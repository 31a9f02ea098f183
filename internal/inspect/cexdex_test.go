package inspect

import (
	"context"
	"math/big"
	"testing"

	"evm-mev-lab/internal/domain"
)

// cexDexMeta references TKO at 1 TKI per unit and TKI at 2 USDC.
func cexDexMeta(ts int64) *domain.Metadata {
	table := domain.NewPriceTable([]domain.PricePoint{
		{
			Pair:        domain.Pair{Base: tokenOut.Address, Quote: tokenIn.Address},
			TimestampMs: ts,
			Price:       big.NewRat(1, 1),
		},
		{
			Pair:        domain.Pair{Base: tokenIn.Address, Quote: usdcTok.Address},
			TimestampMs: ts,
			Price:       big.NewRat(2, 1),
		},
	})
	return &domain.Metadata{
		BlockNumber:      200,
		BlockTimestampMs: ts,
		Prices:           table,
		USDStable:        usdcTok,
	}
}

func TestCexDex_DeviationAboveThreshold(t *testing.T) {
	// Paying 97 TKI for 100 TKO executes 3% below the 1.0 reference.
	set := mkSet(200, cexDexMeta(1_700_000_000_000),
		mkTx("0xarb", 0, senderX, mkSwap(1, poolP, amt(tokenIn, 97, 1), amt(tokenOut, 100, 1))),
	)

	bundles, err := NewCexDexInspector(nil).Inspect(context.Background(), set)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("3%% deviation at 1%% threshold: expected 1 bundle, got %d", len(bundles))
	}

	b := bundles[0]
	if b.Kind != domain.BundleCexDex {
		t.Errorf("kind: got %s", b.Kind)
	}
	// Profit: 100 bought * (1 - 0.97) = 3 TKI.
	if b.Profit.Token.Address != tokenIn.Address {
		t.Errorf("profit token: got %s", b.Profit.Token.Address)
	}
	if b.Profit.Amount.Cmp(big.NewRat(3, 1)) != 0 {
		t.Errorf("profit: got %s, want 3", b.Profit.Amount)
	}
	// USD equivalent via the TKI/USDC reference: 3 * 2 = 6.
	if b.ProfitUSD == nil || b.ProfitUSD.Cmp(big.NewRat(6, 1)) != 0 {
		t.Errorf("profit USD: got %v, want 6", b.ProfitUSD)
	}
}

func TestCexDex_DeviationBelowThreshold(t *testing.T) {
	// 995 TKI for 1000 TKO is a 0.5% deviation: under the threshold.
	set := mkSet(201, cexDexMeta(1_700_000_000_000),
		mkTx("0xarb", 0, senderX, mkSwap(1, poolP, amt(tokenIn, 995, 1), amt(tokenOut, 1000, 1))),
	)

	bundles, err := NewCexDexInspector(nil).Inspect(context.Background(), set)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("0.5%% deviation must not flag, got %d", len(bundles))
	}
}

func TestCexDex_WrongDirectionNotFlagged(t *testing.T) {
	// Paying 103 TKI for 100 TKO bought above reference: the deviation
	// exists but the swap direction does not capture it.
	set := mkSet(202, cexDexMeta(1_700_000_000_000),
		mkTx("0xarb", 0, senderX, mkSwap(1, poolP, amt(tokenIn, 103, 1), amt(tokenOut, 100, 1))),
	)

	bundles, err := NewCexDexInspector(nil).Inspect(context.Background(), set)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("inconsistent direction must not flag, got %d", len(bundles))
	}
}

func TestCexDex_MissingReferenceIsUndeterminable(t *testing.T) {
	// The pair TKM/TKI has no reference point; a huge deviation on it
	// yields nothing rather than defaulting to zero deviation.
	set := mkSet(203, cexDexMeta(1_700_000_000_000),
		mkTx("0xarb", 0, senderX, mkSwap(1, poolP, amt(tokenIn, 50, 1), amt(tokenMid, 100, 1))),
	)

	bundles, err := NewCexDexInspector(nil).Inspect(context.Background(), set)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("unpriced pair must be skipped, got %d", len(bundles))
	}
}

func TestCexDex_StaleReferenceIsUndeterminable(t *testing.T) {
	// Reference exists but predates the block beyond the staleness
	// window.
	ts := int64(1_700_000_000_000)
	meta := cexDexMeta(ts - domain.RefPriceWindowMs - 1)
	meta.BlockTimestampMs = ts

	set := mkSet(204, meta,
		mkTx("0xarb", 0, senderX, mkSwap(1, poolP, amt(tokenIn, 90, 1), amt(tokenOut, 100, 1))),
	)

	bundles, err := NewCexDexInspector(nil).Inspect(context.Background(), set)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("stale reference must be treated as absent, got %d", len(bundles))
	}
}

func TestCexDex_NoMetadataEmptyResult(t *testing.T) {
	set := mkSet(205, nil,
		mkTx("0xarb", 0, senderX, mkSwap(1, poolP, amt(tokenIn, 90, 1), amt(tokenOut, 100, 1))),
	)

	bundles, err := NewCexDexInspector(nil).Inspect(context.Background(), set)
	if err != nil {
		t.Fatalf("missing metadata must not error: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("expected empty result, got %d", len(bundles))
	}
}

func TestCexDex_CustomThreshold(t *testing.T) {
	// 2% deviation with a 5% threshold configured.
	set := mkSet(206, cexDexMeta(1_700_000_000_000),
		mkTx("0xarb", 0, senderX, mkSwap(1, poolP, amt(tokenIn, 98, 1), amt(tokenOut, 100, 1))),
	)

	bundles, err := NewCexDexInspector(big.NewRat(5, 100)).Inspect(context.Background(), set)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("2%% deviation under a 5%% threshold must not flag, got %d", len(bundles))
	}
}
