package bot

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/dex/uniswap"
	"github.com/michaelpento.lv/dexarb/executor"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/reporter"
	"github.com/michaelpento.lv/dexarb/simulator"
	"github.com/michaelpento.lv/dexarb/strategies/arbitrage"
	"github.com/michaelpento.lv/dexarb/token"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const metricsNamespace = "arbbot"

// Bot owns every component of the arbitrage bot, wired from one config
type Bot struct {
	cfg    *config.Config
	client *ethclient.Client
	logger *zap.Logger

	ExchangeX  dex.Exchange
	ExchangeY  dex.Exchange
	Pair       arbitrage.Pair
	Wallet     *wallet.Wallet
	Gas        *gas.Estimator
	ERC20      *token.ERC20
	Params     *simulator.ParamsBuilder
	Swaps      *executor.SwapExecutor
	Evaluator  *arbitrage.Evaluator
	Controller *arbitrage.Controller

	registry  *prometheus.Registry
	metrics   *metrics.ArbitrageMetrics
	scheduler *arbitrage.Scheduler
}

// New dials the node and builds the bot. The config must already be validated.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	b, err := build(cfg, client, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	for _, tok := range []types.Token{b.Pair.Input, b.Pair.Intermediate} {
		if err := b.ERC20.VerifyDecimals(ctx, tok); err != nil {
			b.Close()
			return nil, fmt.Errorf("invalid pair config: %w", err)
		}
	}
	return b, nil
}

func build(cfg *config.Config, client *ethclient.Client, logger *zap.Logger) (*Bot, error) {
	tradeSize, err := cfg.TradeSizeUnits()
	if err != nil {
		return nil, fmt.Errorf("invalid trade size: %w", err)
	}
	estimatedCost, err := cfg.EstimatedCostUnits()
	if err != nil {
		return nil, fmt.Errorf("invalid estimated cost: %w", err)
	}
	maxGasPrice, err := cfg.MaxGasPriceWei()
	if err != nil {
		return nil, fmt.Errorf("invalid max gas price: %w", err)
	}
	nativeReserve, err := cfg.NativeReserveWei()
	if err != nil {
		return nil, fmt.Errorf("invalid native reserve: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RPCRateLimit.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPCRateLimit.RequestsPerSecond), cfg.RPCRateLimit.BurstSize)
	}

	exchangeX, err := newExchange(client, cfg.ExchangeX, limiter)
	if err != nil {
		return nil, err
	}
	exchangeY, err := newExchange(client, cfg.ExchangeY, limiter)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewArbitrageMetrics(metricsNamespace, registry)
	rep := reporter.NewZapReporter(logger)

	estimator := gas.NewEstimator(client, maxGasPrice, logger)
	w, err := wallet.New(client, estimator, cfg.PrivateKey, new(big.Int).SetUint64(cfg.ChainID), cfg.GasLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	erc20, err := token.NewERC20(client)
	if err != nil {
		return nil, err
	}
	allowances := token.NewAllowanceManager(erc20, token.NewTxApprover(erc20, w, rep), logger)

	var preflight executor.Preflighter
	if cfg.Preflight {
		preflight = simulator.NewSimulator(client)
	}
	swaps, err := executor.NewSwapExecutor(w, preflight, rep, logger)
	if err != nil {
		return nil, err
	}

	wrappedNative := common.HexToAddress(cfg.WrappedNative)
	params := simulator.NewParamsBuilder(wrappedNative, cfg.SlippageBps, cfg.DeadlineWindow)

	pair := arbitrage.Pair{
		Input:        cfg.Pair.Input.Token(),
		Intermediate: cfg.Pair.Intermediate.Token(),
	}
	evaluator := arbitrage.NewEvaluator(exchangeX, exchangeY, pair, wrappedNative, tradeSize, estimatedCost, rep, m, logger)

	controller, err := arbitrage.NewController(arbitrage.Config{
		ExchangeX:     exchangeX,
		ExchangeY:     exchangeY,
		Evaluator:     evaluator,
		Pair:          pair,
		Owner:         w.Address(),
		Balances:      erc20,
		Allowances:    allowances,
		Params:        params,
		Swapper:       swaps,
		NativeReserve: nativeReserve,
		DryRun:        cfg.DryRun,
		Reporter:      rep,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	return &Bot{
		cfg:        cfg,
		client:     client,
		logger:     logger,
		ExchangeX:  exchangeX,
		ExchangeY:  exchangeY,
		Pair:       pair,
		Wallet:     w,
		Gas:        estimator,
		ERC20:      erc20,
		Params:     params,
		Swaps:      swaps,
		Evaluator:  evaluator,
		Controller: controller,
		registry:   registry,
		metrics:    m,
		scheduler:  arbitrage.NewScheduler(controller, cfg.PollInterval, logger),
	}, nil
}

func newExchange(client *ethclient.Client, cfg config.ExchangeConfig, limiter *rate.Limiter) (dex.Exchange, error) {
	ex, err := uniswap.NewV2(client, cfg.Deployment())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.Name, err)
	}
	return dex.NewRateLimited(ex, limiter), nil
}

// Start starts the metrics endpoint and the polling loop
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting arbitrage bot",
		zap.String("wallet", b.Wallet.Address().Hex()),
		zap.String("exchange_x", b.ExchangeX.GetName()),
		zap.String("exchange_y", b.ExchangeY.GetName()),
		zap.Stringer("input", b.Pair.Input),
		zap.Stringer("intermediate", b.Pair.Intermediate),
		zap.Duration("poll_interval", b.cfg.PollInterval),
		zap.Bool("dry_run", b.cfg.DryRun),
	)

	if b.cfg.Metrics.Enabled {
		metrics.Serve(ctx, b.cfg.Metrics.ListenAddr, b.registry, b.logger)
	}

	if err := b.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Stop stops polling, waits for the running cycle and closes the node connection
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage bot...")
	b.scheduler.Stop()

	s := b.metrics.Summary()
	b.logger.Info("Session summary",
		zap.Float64("ticks", s.Ticks),
		zap.Float64("dropped_ticks", s.DroppedTicks),
		zap.Float64("executed", s.Executed),
		zap.Float64("no_opportunity", s.NoOpportunity),
		zap.Float64("failed", s.Failed),
		zap.Float64("partial_positions", s.PartialPositions),
	)
	b.Close()
}

// Close releases the node connection
func (b *Bot) Close() {
	b.client.Close()
}
