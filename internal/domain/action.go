package domain

import "math/big"

// ActionKind discriminates normalized action variants.
type ActionKind string

const (
	ActionTransfer     ActionKind = "transfer"
	ActionSwap         ActionKind = "swap"
	ActionMint         ActionKind = "mint"
	ActionBurn         ActionKind = "burn"
	ActionCollect      ActionKind = "collect"
	ActionFlashLoan    ActionKind = "flash_loan"
	ActionLiquidation  ActionKind = "liquidation"
	ActionUnclassified ActionKind = "unclassified"
)

// Action is one normalized protocol action. Variants share the base fields
// through ActionBase; trace index preserves call-tree execution order.
type Action interface {
	Kind() ActionKind
	Base() ActionBase
}

// ActionBase carries the fields common to every variant.
type ActionBase struct {
	TraceIndex uint64
	Protocol   Protocol
	Pool       Address // pool or contract the action executed against
	From       Address
	To         Address
}

// Base returns the shared fields.
func (b ActionBase) Base() ActionBase { return b }

// Transfer is a single token movement, either native or ERC20.
type Transfer struct {
	ActionBase
	Token  Token
	Amount *big.Rat
	Fee    *big.Rat // fee retained by fee-on-transfer tokens, zero otherwise
}

func (Transfer) Kind() ActionKind { return ActionTransfer }

// Swap is one pool-level exchange of TokenIn for TokenOut.
type Swap struct {
	ActionBase
	TokenIn  TokenAmount
	TokenOut TokenAmount
}

func (Swap) Kind() ActionKind { return ActionSwap }

// ExecutionPrice returns TokenOut per TokenIn as an exact rational, or
// false when the input amount is zero or unknown.
func (s Swap) ExecutionPrice() (*big.Rat, bool) {
	if s.TokenIn.Amount == nil || s.TokenOut.Amount == nil || s.TokenIn.Amount.Sign() == 0 {
		return nil, false
	}
	return new(big.Rat).Quo(s.TokenOut.Amount, s.TokenIn.Amount), true
}

// Mint adds liquidity to a pool. TickLower/TickUpper bound the position for
// concentrated-liquidity protocols and are both zero for full-range pools.
type Mint struct {
	ActionBase
	TickLower int32
	TickUpper int32
	Liquidity *big.Int      // liquidity delta in pool units
	Deposited []TokenAmount // token amounts moved into the pool
}

func (Mint) Kind() ActionKind { return ActionMint }

// Burn removes liquidity from a pool.
type Burn struct {
	ActionBase
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
	Withdrawn []TokenAmount // token amounts returned by the pool
}

func (Burn) Kind() ActionKind { return ActionBurn }

// Collect claims accrued fees from a concentrated-liquidity position.
type Collect struct {
	ActionBase
	TickLower int32
	TickUpper int32
	Collected []TokenAmount
}

func (Collect) Kind() ActionKind { return ActionCollect }

// FlashLoan is an uncollateralized intra-transaction loan.
type FlashLoan struct {
	ActionBase
	Borrowed []TokenAmount
	Repaid   []TokenAmount
}

func (FlashLoan) Kind() ActionKind { return ActionFlashLoan }

// Liquidation is a collateral seizure on a lending protocol.
type Liquidation struct {
	ActionBase
	DebtToken       TokenAmount
	CollateralToken TokenAmount
	Liquidatee      Address
}

func (Liquidation) Kind() ActionKind { return ActionLiquidation }

// Unclassified marks a frame that produced evidence but no recognized
// economic action. It preserves the 1:1 frame correspondence.
type Unclassified struct {
	ActionBase
}

func (Unclassified) Kind() ActionKind { return ActionUnclassified }
