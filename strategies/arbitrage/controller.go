package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/executor"
	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/simulator"
	"github.com/michaelpento.lv/dexarb/token"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrCycleInProgress is returned by a tick that arrives while a cycle is running
	ErrCycleInProgress = errors.New("cycle in progress")
	// ErrNoBalance is returned when a leg has nothing to swap
	ErrNoBalance = errors.New("no balance to swap")
)

// State of a controller
type State int32

const (
	StateIdle State = iota
	StateEvaluating
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// Leg stages
const (
	StageBalance   = "balance"
	StageAllowance = "allowance"
	StageParams    = "params"
	StageSwap      = "swap"
)

// LegError describes where in a leg execution stopped
type LegError struct {
	Leg      int
	Exchange string
	Stage    string
	Err      error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("leg %d on %s failed at %s: %v", e.Leg, e.Exchange, e.Stage, e.Err)
}

func (e *LegError) Unwrap() error {
	return e.Err
}

// BalanceReader reads token balances
type BalanceReader interface {
	BalanceOf(ctx context.Context, tok types.Token, owner common.Address) (*big.Int, error)
}

// AllowanceEnsurer raises allowances before a swap
type AllowanceEnsurer interface {
	EnsureAllowance(ctx context.Context, owner, spender common.Address, tok types.Token, required *big.Int) error
}

// ParamsBuilder derives swap bounds from the exchange's current reserves
type ParamsBuilder interface {
	Build(ctx context.Context, exchange simulator.ReturnEstimator, tokenIn, tokenOut types.Token, amountIn *big.Int) (*types.TradeParameters, error)
}

// Swapper executes a single router swap
type Swapper interface {
	Swap(ctx context.Context, req executor.SwapRequest) (*types.SwapReceipt, error)
}

// Config wires a Controller
type Config struct {
	ExchangeX dex.Exchange
	ExchangeY dex.Exchange
	Evaluator *Evaluator
	Pair      Pair
	Owner     common.Address

	Balances   BalanceReader
	Allowances AllowanceEnsurer
	Params     ParamsBuilder
	Swapper    Swapper

	// NativeReserve is kept back from native-asset legs to pay for gas
	NativeReserve *big.Int
	DryRun        bool

	Reporter reporter.Reporter
	Metrics  *metrics.ArbitrageMetrics
	Logger   *zap.Logger
}

// CycleResult summarizes a finished cycle
type CycleResult struct {
	ID          string
	Outcome     string
	Opportunity *types.ArbitrageOpportunity
	Receipts    []*types.SwapReceipt
}

// Controller runs evaluate-then-execute cycles, at most one at a time
type Controller struct {
	x, y          dex.Exchange
	evaluator     *Evaluator
	pair          Pair
	owner         common.Address
	balances      BalanceReader
	allowances    AllowanceEnsurer
	params        ParamsBuilder
	swapper       Swapper
	nativeReserve *big.Int
	dryRun        bool
	reporter      reporter.Reporter
	metrics       *metrics.ArbitrageMetrics
	logger        *zap.Logger

	state      atomic.Int32
	newCycleID func() string
}

// NewController creates a new controller
func NewController(cfg Config) (*Controller, error) {
	switch {
	case cfg.ExchangeX == nil || cfg.ExchangeY == nil:
		return nil, fmt.Errorf("both exchanges are required")
	case cfg.Evaluator == nil:
		return nil, fmt.Errorf("evaluator is required")
	case cfg.Balances == nil || cfg.Allowances == nil || cfg.Params == nil || cfg.Swapper == nil:
		return nil, fmt.Errorf("balance reader, allowance manager, params builder and swapper are required")
	case cfg.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}

	rep := cfg.Reporter
	if rep == nil {
		rep = reporter.Nop{}
	}
	reserve := cfg.NativeReserve
	if reserve == nil {
		reserve = big.NewInt(0)
	}

	return &Controller{
		x:             cfg.ExchangeX,
		y:             cfg.ExchangeY,
		evaluator:     cfg.Evaluator,
		pair:          cfg.Pair,
		owner:         cfg.Owner,
		balances:      cfg.Balances,
		allowances:    cfg.Allowances,
		params:        cfg.Params,
		swapper:       cfg.Swapper,
		nativeReserve: reserve,
		dryRun:        cfg.DryRun,
		reporter:      rep,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		newCycleID:    func() string { return uuid.NewString() },
	}, nil
}

// State returns the current controller state
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.State.Set(float64(s))
	}
}

// Tick is the scheduler entry point. A tick that arrives while a cycle is
// running is dropped without touching the chain.
func (c *Controller) Tick(ctx context.Context) error {
	if c.metrics != nil {
		c.metrics.Ticks.Inc()
	}

	_, err := c.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		if c.metrics != nil {
			c.metrics.DroppedTicks.Inc()
		}
		c.logger.Debug("Tick dropped, cycle still running", zap.Stringer("state", c.State()))
	case err != nil:
		c.logger.Warn("Cycle failed", zap.Error(err))
	}
	return err
}

// RunCycle evaluates both directions and executes the better one if it is
// profitable. The cycle keeps running if ctx is cancelled mid-way so that a
// confirmed first leg is always followed by its second leg.
func (c *Controller) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateEvaluating)) {
		return nil, ErrCycleInProgress
	}
	if c.metrics != nil {
		c.metrics.State.Set(float64(StateEvaluating))
	}
	defer c.setState(StateIdle)

	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	result := &CycleResult{ID: c.newCycleID()}
	log := c.logger.With(zap.String("cycle_id", result.ID))

	err := c.runCycle(ctx, result, log)

	if c.metrics != nil {
		c.metrics.Cycles.WithLabelValues(result.Outcome).Inc()
		c.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}
	return result, err
}

func (c *Controller) runCycle(ctx context.Context, result *CycleResult, log *zap.Logger) error {
	quotes, err := c.evaluator.FetchQuotes(ctx)
	if err != nil {
		result.Outcome = metrics.OutcomeQuoteFailed
		c.reporter.Report(reporter.Event{
			Kind:     reporter.EventError,
			CycleID:  result.ID,
			Stage:    "quote",
			TokenIn:  c.pair.Input,
			TokenOut: c.pair.Intermediate,
			AmountIn: c.evaluator.tradeSize,
			Err:      err,
		})
		return err
	}

	opp, ok := c.evaluator.Score(quotes)
	result.Opportunity = opp
	if !ok {
		result.Outcome = metrics.OutcomeNoOpportunity
		c.reporter.Report(reporter.Event{
			Kind:       reporter.EventNoOpportunity,
			CycleID:    result.ID,
			ProfitXToY: opp.ProfitXToY,
			ProfitYToX: opp.ProfitYToX,
		})
		return nil
	}

	c.reporter.Report(reporter.Event{
		Kind:       reporter.EventOpportunityFound,
		CycleID:    result.ID,
		Direction:  opp.Direction.String(),
		Exchange:   opp.BuyExchange,
		TokenIn:    opp.TokenIn,
		TokenOut:   opp.TokenOut,
		Profit:     opp.EstimatedProfit,
		ProfitXToY: opp.ProfitXToY,
		ProfitYToX: opp.ProfitYToX,
	})

	if c.dryRun {
		result.Outcome = metrics.OutcomeDryRun
		log.Info("Dry run, not executing",
			zap.Stringer("direction", opp.Direction),
			zap.String("buy", opp.BuyExchange),
			zap.String("sell", opp.SellExchange))
		return nil
	}

	c.setState(StateExecuting)
	return c.execute(ctx, opp, result, log)
}

func (c *Controller) execute(ctx context.Context, opp *types.ArbitrageOpportunity, result *CycleResult, log *zap.Logger) error {
	buy, sell := c.x, c.y
	if opp.Direction == types.YToX {
		buy, sell = c.y, c.x
	}

	log.Info("Executing arbitrage",
		zap.Stringer("direction", opp.Direction),
		zap.String("buy", buy.GetName()),
		zap.String("sell", sell.GetName()),
		zap.String("estimated_profit", opp.EstimatedProfit.String()))

	receipt, err := c.runLeg(ctx, result.ID, opp.Direction, 1, buy, c.pair.Input, c.pair.Intermediate)
	if err != nil {
		result.Outcome = metrics.OutcomeLegFailed
		return err
	}
	result.Receipts = append(result.Receipts, receipt)

	receipt, err = c.runLeg(ctx, result.ID, opp.Direction, 2, sell, c.pair.Intermediate, c.pair.Input)
	if err != nil {
		result.Outcome = metrics.OutcomePartial
		if c.metrics != nil {
			c.metrics.PartialPositions.Inc()
		}
		c.reporter.Report(reporter.Event{
			Kind:      reporter.EventPartialPosition,
			CycleID:   result.ID,
			Direction: opp.Direction.String(),
			Exchange:  sell.GetName(),
			TokenIn:   c.pair.Intermediate,
			TokenOut:  c.pair.Input,
			TxHash:    result.Receipts[0].TxHash,
			Err:       err,
		})
		return err
	}
	result.Receipts = append(result.Receipts, receipt)
	result.Outcome = metrics.OutcomeExecuted

	c.reportBalances(ctx, result.ID)
	return nil
}

// runLeg swaps the owner's full balance of tokenIn for tokenOut on ex
func (c *Controller) runLeg(ctx context.Context, cycleID string, direction types.Direction, leg int, ex dex.Exchange, tokenIn, tokenOut types.Token) (*types.SwapReceipt, error) {
	fail := func(stage string, amount *big.Int, err error) error {
		legErr := &LegError{Leg: leg, Exchange: ex.GetName(), Stage: stage, Err: err}
		c.reporter.Report(reporter.Event{
			Kind:      reporter.EventError,
			CycleID:   cycleID,
			Exchange:  ex.GetName(),
			Direction: direction.String(),
			Stage:     stage,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  amount,
			Err:       err,
		})
		return legErr
	}

	balance, err := c.balances.BalanceOf(ctx, tokenIn, c.owner)
	if err != nil {
		return nil, fail(StageBalance, nil, err)
	}
	amountIn := balance
	if tokenIn.IsNative() {
		amountIn = new(big.Int).Sub(balance, c.nativeReserve)
	}
	if amountIn.Sign() <= 0 {
		return nil, fail(StageBalance, balance, fmt.Errorf("%w: %s balance %s", ErrNoBalance, tokenIn.Symbol, balance))
	}

	c.reporter.Report(reporter.Event{
		Kind:     reporter.EventBalance,
		CycleID:  cycleID,
		TokenIn:  tokenIn,
		AmountIn: balance,
	})

	router := ex.GetRouterAddress()
	if err := c.allowances.EnsureAllowance(ctx, c.owner, router, tokenIn, amountIn); err != nil {
		c.observeApproval("failed")
		return nil, fail(StageAllowance, amountIn, err)
	}
	c.observeApproval("ok")

	params, err := c.params.Build(ctx, ex, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, fail(StageParams, amountIn, err)
	}

	receipt, err := c.swapper.Swap(ctx, executor.SwapRequest{
		Exchange: ex.GetName(),
		Router:   router,
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		Params:   params,
	})
	if err != nil {
		c.observeSwap(ex.GetName(), err)
		return nil, fail(StageSwap, amountIn, err)
	}
	c.observeSwap(ex.GetName(), nil)
	if c.metrics != nil {
		c.metrics.GasUsed.Observe(float64(receipt.GasUsed))
	}

	return receipt, nil
}

func (c *Controller) reportBalances(ctx context.Context, cycleID string) {
	for _, tok := range []types.Token{c.pair.Input, c.pair.Intermediate} {
		balance, err := c.balances.BalanceOf(ctx, tok, c.owner)
		if err != nil {
			c.logger.Warn("Failed to read balance", zap.String("token", tok.Symbol), zap.Error(err))
			continue
		}
		c.reporter.Report(reporter.Event{
			Kind:     reporter.EventBalance,
			CycleID:  cycleID,
			TokenIn:  tok,
			AmountIn: balance,
		})
	}
}

func (c *Controller) observeApproval(result string) {
	if c.metrics != nil {
		c.metrics.Approvals.WithLabelValues(result).Inc()
	}
}

func (c *Controller) observeSwap(exchange string, err error) {
	if c.metrics == nil {
		return
	}
	result := "confirmed"
	switch {
	case errors.Is(err, executor.ErrSwapReverted):
		result = "reverted"
	case err != nil:
		result = "failed"
	}
	c.metrics.Swaps.WithLabelValues(exchange, result).Inc()
}

var (
	_ AllowanceEnsurer = (*token.AllowanceManager)(nil)
	_ ParamsBuilder    = (*simulator.ParamsBuilder)(nil)
	_ Swapper          = (*executor.SwapExecutor)(nil)
	_ BalanceReader    = (*token.ERC20)(nil)
)
