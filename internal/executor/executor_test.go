package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalverson/predbot/internal/domain"
	"github.com/jalverson/predbot/internal/service"
)

var execNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

// fakeBroker is an in-memory broker test double. Order submissions can be
// made to fail a configurable number of times before succeeding.
type fakeBroker struct {
	mu          sync.Mutex
	account     domain.AccountSnapshot
	positions   []domain.Position
	quotes      map[string]domain.Quote
	failSubmits int
	submitted   []domain.OrderRequest
	fillPrice   float64
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		account: domain.AccountSnapshot{
			BuyingPower:    50_000,
			PortfolioValue: 100_000,
			Cash:           50_000,
			Equity:         100_000,
		},
		quotes:    map[string]domain.Quote{},
		fillPrice: 100,
	}
}

func (b *fakeBroker) ListPositions(context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Position{}, b.positions...), nil
}

func (b *fakeBroker) GetAccount(context.Context) (domain.AccountSnapshot, error) {
	return b.account, nil
}

func (b *fakeBroker) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSubmits > 0 {
		b.failSubmits--
		return domain.OrderResult{}, errors.New("gateway timeout")
	}
	b.submitted = append(b.submitted, req)
	return domain.OrderResult{
		OrderID:        fmt.Sprintf("order-%d", len(b.submitted)),
		FilledQuantity: req.Quantity,
		AvgFillPrice:   b.fillPrice,
		Status:         domain.OrderStatusFilled,
	}, nil
}

func (b *fakeBroker) GetOrder(_ context.Context, orderID string) (domain.OrderResult, error) {
	return domain.OrderResult{OrderID: orderID, Status: domain.OrderStatusFilled}, nil
}

func (b *fakeBroker) GetLatestQuote(_ context.Context, symbol string) (domain.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func (b *fakeBroker) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submitted)
}

func (b *fakeBroker) submittedOrders() []domain.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.OrderRequest{}, b.submitted...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(broker *fakeBroker) (*Executor, *service.Ledger, *service.AuditRecorder) {
	ledger := service.NewLedger(nil, nil, nil, discardLogger())
	audit := service.NewAuditRecorder(nil, nil, discardLogger())
	exec := NewExecutor(broker, ledger, audit, discardLogger())
	exec.SetRetryPolicy(3, time.Millisecond, time.Second)
	return exec, ledger, audit
}

func buyRequest(qty float64) Request {
	return Request{
		Signal: domain.Signal{
			Symbol:     "AAPL",
			Timestamp:  execNow,
			Action:     domain.ActionBuy,
			Strength:   0.6,
			Confidence: 0.9,
		},
		Quantity: qty,
		Reasons:  []string{"test buy"},
	}
}

func TestExecuteFillUpdatesLedgerAndAudit(t *testing.T) {
	broker := newFakeBroker()
	exec, ledger, audit := newHarness(broker)

	result, err := exec.Execute(context.Background(), buyRequest(10))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, result.Status)

	pos, ok := ledger.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.AvgEntryPrice)

	ring := audit.Ring()
	require.Len(t, ring, 1)
	assert.Equal(t, result.OrderID, ring[0].OrderID)
	assert.Equal(t, domain.ActionBuy, ring[0].Action)
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.failSubmits = 2 // third attempt succeeds
	exec, ledger, _ := newHarness(broker)

	_, err := exec.Execute(context.Background(), buyRequest(5))
	require.NoError(t, err)
	assert.Equal(t, 1, broker.submitCount())

	_, ok := ledger.Get("AAPL")
	assert.True(t, ok)
}

func TestExecuteExhaustedRetriesAuditsWithoutOrderID(t *testing.T) {
	broker := newFakeBroker()
	broker.failSubmits = 10 // more than the retry budget
	exec, ledger, audit := newHarness(broker)

	_, err := exec.Execute(context.Background(), buyRequest(5))
	assert.ErrorIs(t, err, domain.ErrOrderSubmission)

	// No speculative ledger mutation, but still exactly one audit entry
	// with an empty order id.
	_, ok := ledger.Get("AAPL")
	assert.False(t, ok)

	ring := audit.Ring()
	require.Len(t, ring, 1)
	assert.Empty(t, ring[0].OrderID)
	assert.Contains(t, ring[0].Reasons[len(ring[0].Reasons)-1], "order submission failed")
}

func TestExecuteSellRecordsRealizedPL(t *testing.T) {
	broker := newFakeBroker()
	exec, ledger, audit := newHarness(broker)

	_, _, err := ledger.ApplyFill(context.Background(), "AAPL", domain.OrderSideBuy, 10, 90, execNow)
	require.NoError(t, err)

	broker.fillPrice = 100
	req := buyRequest(10)
	req.Signal.Action = domain.ActionSell
	req.ExitReason = domain.ExitTakeProfit

	_, err = exec.Execute(context.Background(), req)
	require.NoError(t, err)

	// Position fully closed.
	_, ok := ledger.Get("AAPL")
	assert.False(t, ok)

	ring := audit.Ring()
	require.Len(t, ring, 1)
	assert.Contains(t, ring[0].Reasons[len(ring[0].Reasons)-1], "realized P/L: 100.00")
}

func TestPositionSize(t *testing.T) {
	acct := domain.AccountSnapshot{PortfolioValue: 100_000}
	risk := domain.DefaultRiskConfig() // 20% cap, aggressiveness 0.5

	// 100000*0.20/100*0.5 = 100 shares
	assert.Equal(t, int64(100), PositionSize(acct, risk, 100))

	// Sizing floors at one share.
	assert.Equal(t, int64(1), PositionSize(acct, risk, 1_000_000))

	// Bad price sizes to zero; the engine holds instead of submitting.
	assert.Equal(t, int64(0), PositionSize(acct, risk, 0))
}
