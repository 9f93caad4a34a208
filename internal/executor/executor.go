// Package executor turns admitted decisions into broker orders and drives
// the per-symbol decision loop.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jalverson/predbot/internal/domain"
	"github.com/jalverson/predbot/internal/service"
)

// Alerter delivers operator notifications. Implemented by notify.Notifier;
// kept as a local interface so tests can stub it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

const (
	defaultMaxAttempts  = 3
	defaultBaseBackoff  = time.Second
	defaultCallTimeout  = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultPollAttempts = 10
)

// Request is one admitted decision handed to the executor: the signal, the
// target quantity (fractional for exits of fractional positions), the reason
// chain accumulated so far, and—for forced exits—the risk limit that fired.
type Request struct {
	Signal     domain.Signal
	Quantity   float64
	Reasons    []string
	ExitReason domain.ExitReason // empty for discretionary trades
}

// Executor submits market orders with bounded retry and reconciles confirmed
// fills into the position ledger. It records exactly one audit entry per
// executed request, fill or failure.
type Executor struct {
	broker  domain.Broker
	ledger  *service.Ledger
	audit   *service.AuditRecorder
	alerter Alerter // optional
	logger  *slog.Logger

	maxAttempts  int
	baseBackoff  time.Duration
	callTimeout  time.Duration
	pollInterval time.Duration
	pollAttempts int
}

// NewExecutor creates an Executor with default retry and timeout settings.
func NewExecutor(broker domain.Broker, ledger *service.Ledger, audit *service.AuditRecorder, logger *slog.Logger) *Executor {
	return &Executor{
		broker:       broker,
		ledger:       ledger,
		audit:        audit,
		logger:       logger.With(slog.String("component", "executor")),
		maxAttempts:  defaultMaxAttempts,
		baseBackoff:  defaultBaseBackoff,
		callTimeout:  defaultCallTimeout,
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
}

// WithAlerter attaches an operator notification channel.
func (e *Executor) WithAlerter(a Alerter) *Executor {
	e.alerter = a
	return e
}

// SetRetryPolicy overrides attempt count and backoff. Used by tests to keep
// retries fast.
func (e *Executor) SetRetryPolicy(maxAttempts int, baseBackoff, callTimeout time.Duration) {
	if maxAttempts > 0 {
		e.maxAttempts = maxAttempts
	}
	if baseBackoff > 0 {
		e.baseBackoff = baseBackoff
	}
	if callTimeout > 0 {
		e.callTimeout = callTimeout
	}
	e.pollInterval = 0
}

// PositionSize computes the BUY quantity: the configured portfolio fraction
// at the current price, scaled by aggressiveness and floored to a minimum of
// one share.
func PositionSize(acct domain.AccountSnapshot, risk domain.RiskConfig, price float64) int64 {
	if price <= 0 {
		return 0
	}
	shares := int64(math.Floor(acct.PortfolioValue * risk.MaxPositionFraction / price * risk.Aggressiveness))
	if shares < 1 {
		shares = 1
	}
	return shares
}

// Execute submits the order, waits for the broker's terminal status, and on
// a confirmed fill applies it to the ledger. The ledger is never touched on
// submission failure or rejection: after a timeout the true account state is
// re-established by the next cycle's reconciliation before the symbol is
// acted on again.
func (e *Executor) Execute(ctx context.Context, req Request) (domain.OrderResult, error) {
	sig := req.Signal
	order := domain.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          sig.Action.Side(),
		Quantity:      req.Quantity,
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: uuid.New().String(),
	}

	log := e.logger.With(
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Float64("qty", order.Quantity),
	)

	result, err := e.submitWithRetry(ctx, order, log)
	if err != nil {
		reasons := append(append([]string{}, req.Reasons...), fmt.Sprintf("order submission failed: %v", err))
		e.audit.Record(ctx, domain.AuditEntry{
			Timestamp:  time.Now().UTC(),
			Symbol:     sig.Symbol,
			Action:     sig.Action,
			Quantity:   req.Quantity,
			Confidence: sig.Confidence,
			Strength:   sig.Strength,
			Reasons:    reasons,
			OrderID:    "",
		})
		e.alert(ctx, "order_failed", "Order failed",
			fmt.Sprintf("%s %s x%v: %v", order.Side, order.Symbol, order.Quantity, err))
		return domain.OrderResult{Status: domain.OrderStatusFailed}, fmt.Errorf("executor: %s %s: %w",
			order.Side, order.Symbol, errors.Join(domain.ErrOrderSubmission, err))
	}

	result = e.awaitTerminal(ctx, result, log)

	if result.FilledQuantity <= 0 {
		reasons := append(append([]string{}, req.Reasons...), fmt.Sprintf("order %s: %s", result.OrderID, result.Status))
		e.audit.Record(ctx, domain.AuditEntry{
			Timestamp:  time.Now().UTC(),
			Symbol:     sig.Symbol,
			Action:     sig.Action,
			Quantity:   req.Quantity,
			Confidence: sig.Confidence,
			Strength:   sig.Strength,
			Reasons:    reasons,
			OrderID:    result.OrderID,
		})
		return result, fmt.Errorf("executor: order %s not filled (%s): %w",
			result.OrderID, result.Status, domain.ErrOrderSubmission)
	}

	// Realized P&L is derived from the pre-fill entry price; compute it
	// before the fill mutates (or deletes) the position.
	var realized float64
	if order.Side == domain.OrderSideSell {
		if prior, ok := e.ledger.Get(sig.Symbol); ok {
			realized = (result.AvgFillPrice - prior.AvgEntryPrice) * result.FilledQuantity
		}
	}

	_, closed, err := e.ledger.ApplyFill(ctx, sig.Symbol, order.Side, result.FilledQuantity, result.AvgFillPrice, time.Now().UTC())
	if err != nil {
		log.ErrorContext(ctx, "fill could not be applied",
			slog.String("order_id", result.OrderID),
			slog.String("error", err.Error()),
		)
	}

	reasons := append([]string{}, req.Reasons...)
	if order.Side == domain.OrderSideSell {
		reasons = append(reasons, fmt.Sprintf("realized P/L: %.2f", realized))
	}
	e.audit.Record(ctx, domain.AuditEntry{
		Timestamp:  time.Now().UTC(),
		Symbol:     sig.Symbol,
		Action:     sig.Action,
		Quantity:   result.FilledQuantity,
		Confidence: sig.Confidence,
		Strength:   sig.Strength,
		Reasons:    reasons,
		OrderID:    result.OrderID,
	})

	event := "order_filled"
	title := "Order filled"
	if req.ExitReason != "" {
		event = "forced_exit"
		title = fmt.Sprintf("Forced exit (%s)", req.ExitReason)
	}
	e.alert(ctx, event, title, fmt.Sprintf("%s %s x%v @ %.2f",
		order.Side, order.Symbol, result.FilledQuantity, result.AvgFillPrice))

	log.InfoContext(ctx, "order executed",
		slog.String("order_id", result.OrderID),
		slog.Float64("filled_qty", result.FilledQuantity),
		slog.Float64("avg_fill_price", result.AvgFillPrice),
		slog.Bool("position_closed", closed),
	)
	return result, nil
}

// submitWithRetry submits the order with exponential backoff. Timeouts count
// as submission failures, not unknown state: the ClientOrderID makes a
// resubmission idempotent broker-side.
func (e *Executor) submitWithRetry(ctx context.Context, order domain.OrderRequest, log *slog.Logger) (domain.OrderResult, error) {
	backoff := e.baseBackoff
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		result, err := e.broker.SubmitOrder(callCtx, order)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return domain.OrderResult{}, ctx.Err()
		}

		log.WarnContext(ctx, "order submission attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", e.maxAttempts),
			slog.String("error", err.Error()),
		)

		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return domain.OrderResult{}, fmt.Errorf("after %d attempts: %w", e.maxAttempts, lastErr)
}

// awaitTerminal polls the broker until the order reaches a terminal status
// or the poll budget runs out. Market day orders normally fill within the
// first poll or two.
func (e *Executor) awaitTerminal(ctx context.Context, result domain.OrderResult, log *slog.Logger) domain.OrderResult {
	for attempt := 0; attempt < e.pollAttempts && !result.Status.Terminal(); attempt++ {
		select {
		case <-ctx.Done():
			return result
		case <-time.After(e.pollInterval):
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		updated, err := e.broker.GetOrder(callCtx, result.OrderID)
		cancel()
		if err != nil {
			log.WarnContext(ctx, "order status poll failed",
				slog.String("order_id", result.OrderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = updated
	}
	return result
}

func (e *Executor) alert(ctx context.Context, event, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
