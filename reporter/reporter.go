// Package reporter turns arbitrage engine events into log lines.
package reporter

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/michaelpento.lv/dexarb/types"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventKind identifies what happened
type EventKind int

const (
	EventQuoteFetched EventKind = iota
	EventBalance
	EventOpportunityFound
	EventNoOpportunity
	EventApprovalSubmitted
	EventApprovalConfirmed
	EventSwapSubmitted
	EventSwapConfirmed
	EventPartialPosition
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventQuoteFetched:
		return "quote_fetched"
	case EventBalance:
		return "balance"
	case EventOpportunityFound:
		return "opportunity_found"
	case EventNoOpportunity:
		return "no_opportunity"
	case EventApprovalSubmitted:
		return "approval_submitted"
	case EventApprovalConfirmed:
		return "approval_confirmed"
	case EventSwapSubmitted:
		return "swap_submitted"
	case EventSwapConfirmed:
		return "swap_confirmed"
	case EventPartialPosition:
		return "partial_position"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single structured progress record. Only the fields relevant to
// the Kind are set.
type Event struct {
	Kind        EventKind
	CycleID     string
	Exchange    string
	Direction   string
	Stage       string
	TokenIn     types.Token
	TokenOut    types.Token
	AmountIn    *big.Int
	AmountOut   *big.Int
	Profit      *big.Int
	ProfitXToY  *big.Int
	ProfitYToX  *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	Err         error
}

// Reporter receives engine events
type Reporter interface {
	Report(ev Event)
}

// Nop discards every event
type Nop struct{}

// Report implements Reporter
func (Nop) Report(Event) {}

// ZapReporter writes events to a zap logger. Quotes that did not change since
// the previous poll are demoted to debug so a 1s polling loop stays readable.
type ZapReporter struct {
	logger *zap.Logger

	mu         sync.Mutex
	lastQuotes map[string]uint64
}

// NewZapReporter creates a new zap-backed reporter
func NewZapReporter(logger *zap.Logger) *ZapReporter {
	return &ZapReporter{
		logger:     logger,
		lastQuotes: make(map[string]uint64),
	}
}

// Report implements Reporter
func (r *ZapReporter) Report(ev Event) {
	fields := r.fields(ev)

	switch ev.Kind {
	case EventQuoteFetched:
		level := zapcore.InfoLevel
		if !r.quoteChanged(ev) {
			level = zapcore.DebugLevel
		}
		if ce := r.logger.Check(level, "Exchange rate"); ce != nil {
			ce.Write(fields...)
		}
	case EventBalance:
		r.logger.Info("Account balance", fields...)
	case EventOpportunityFound:
		r.logger.Info("Arbitrage found", fields...)
	case EventNoOpportunity:
		r.logger.Debug("No arbitrage opportunity", fields...)
	case EventApprovalSubmitted:
		r.logger.Info("Approval submitted", fields...)
	case EventApprovalConfirmed:
		r.logger.Info("Approval confirmed", fields...)
	case EventSwapSubmitted:
		r.logger.Info("Swap submitted", fields...)
	case EventSwapConfirmed:
		r.logger.Info("Swap confirmed", fields...)
	case EventPartialPosition:
		r.logger.Warn("Arbitrage left partially executed", fields...)
	case EventError:
		r.logger.Error("Arbitrage cycle failed", fields...)
	default:
		r.logger.Warn("Unknown event", fields...)
	}
}

func (r *ZapReporter) quoteChanged(ev Event) bool {
	key := ev.Exchange + "/" + ev.TokenIn.Address.Hex() + "/" + ev.TokenOut.Address.Hex()

	h := xxhash.New()
	var buf [8]byte
	for _, v := range []*big.Int{ev.AmountIn, ev.AmountOut} {
		if v == nil {
			binary.BigEndian.PutUint64(buf[:], 0)
			_, _ = h.Write(buf[:])
			continue
		}
		_, _ = h.Write(v.Bytes())
		binary.BigEndian.PutUint64(buf[:], uint64(len(v.Bytes())))
		_, _ = h.Write(buf[:])
	}
	sum := h.Sum64()

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, seen := r.lastQuotes[key]
	r.lastQuotes[key] = sum
	return !seen || prev != sum
}

func (r *ZapReporter) fields(ev Event) []zap.Field {
	fields := []zap.Field{zap.Stringer("event", ev.Kind)}
	if ev.CycleID != "" {
		fields = append(fields, zap.String("cycle_id", ev.CycleID))
	}
	if ev.Exchange != "" {
		fields = append(fields, zap.String("exchange", ev.Exchange))
	}
	if ev.Direction != "" {
		fields = append(fields, zap.String("direction", ev.Direction))
	}
	if ev.Stage != "" {
		fields = append(fields, zap.String("stage", ev.Stage))
	}
	if ev.TokenIn.Symbol != "" {
		fields = append(fields, zap.String("token_in", ev.TokenIn.Symbol))
	}
	if ev.TokenOut.Symbol != "" {
		fields = append(fields, zap.String("token_out", ev.TokenOut.Symbol))
	}
	if ev.AmountIn != nil {
		fields = append(fields, zap.String("amount_in", FormatUnits(ev.AmountIn, ev.TokenIn.Decimals)))
	}
	if ev.AmountOut != nil {
		fields = append(fields, zap.String("amount_out", FormatUnits(ev.AmountOut, ev.TokenOut.Decimals)))
	}
	if ev.Profit != nil {
		fields = append(fields, zap.String("profit", ev.Profit.String()))
	}
	if ev.ProfitXToY != nil {
		fields = append(fields, zap.String("profit_x_to_y", ev.ProfitXToY.String()))
	}
	if ev.ProfitYToX != nil {
		fields = append(fields, zap.String("profit_y_to_x", ev.ProfitYToX.String()))
	}
	if ev.TxHash != (common.Hash{}) {
		fields = append(fields, zap.String("tx_hash", ev.TxHash.Hex()))
	}
	if ev.BlockNumber != 0 {
		fields = append(fields, zap.Uint64("block", ev.BlockNumber))
	}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}
	return fields
}

// FormatUnits renders a base-unit amount as a decimal string at the given precision
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report implements Reporter
func (r *Recorder) Report(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order
func (r *Recorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}
