package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalverson/predbot/internal/domain"
	"github.com/jalverson/predbot/internal/service"
	"github.com/jalverson/predbot/internal/strategy"
)

type fakeStateCache struct {
	mu   sync.Mutex
	risk *domain.RiskConfig
}

func (c *fakeStateCache) GetRiskConfig(context.Context) (domain.RiskConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.risk == nil {
		return domain.RiskConfig{}, domain.ErrNotFound
	}
	return *c.risk, nil
}

func (c *fakeStateCache) SetRiskConfig(_ context.Context, cfg domain.RiskConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.risk = &cfg
	return nil
}

func (c *fakeStateCache) PublishPositions(context.Context, []domain.Position) error { return nil }
func (c *fakeStateCache) PublishActions(context.Context, []domain.AuditEntry) error { return nil }
func (c *fakeStateCache) SetAPIStatus(context.Context, string) error                { return nil }

type fakePredictions struct {
	mu     sync.Mutex
	points map[string]domain.PredictionPoint
}

func (p *fakePredictions) LatestPrediction(_ context.Context, symbol string) (domain.PredictionPoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt, ok := p.points[symbol]
	if !ok {
		return domain.PredictionPoint{}, domain.ErrNotFound
	}
	return pt, nil
}

type engineHarness struct {
	engine *Engine
	broker *fakeBroker
	ledger *service.Ledger
	audit  *service.AuditRecorder
	state  *fakeStateCache
	preds  *fakePredictions
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()
	broker := newFakeBroker()
	ledger := service.NewLedger(nil, nil, nil, discardLogger())
	audit := service.NewAuditRecorder(nil, nil, discardLogger())
	exec := NewExecutor(broker, ledger, audit, discardLogger())
	exec.SetRetryPolicy(1, time.Millisecond, time.Second)

	state := &fakeStateCache{}
	preds := &fakePredictions{points: map[string]domain.PredictionPoint{}}

	engine := NewEngine(
		state, preds, broker, ledger,
		service.NewRiskGate(discardLogger()),
		strategy.NewEvaluator(5*time.Minute),
		exec, audit, nil,
		domain.DefaultRiskConfig(),
		discardLogger(),
	)
	return &engineHarness{engine: engine, broker: broker, ledger: ledger, audit: audit, state: state, preds: preds}
}

func TestTickDisabledRejectsEverySymbolWithoutOrders(t *testing.T) {
	h := newEngineHarness(t)

	risk := domain.DefaultRiskConfig()
	risk.Enabled = false
	require.NoError(t, h.state.SetRiskConfig(context.Background(), risk))

	// An open position sitting past the stop-loss must not be force-exited
	// while the bot is disabled.
	h.broker.positions = []domain.Position{{
		Symbol:         "AAPL",
		Quantity:       10,
		AvgEntryPrice:  100,
		UnrealizedPLPC: -0.06,
	}}

	h.engine.Tick(context.Background(), execNow)

	ring := h.audit.Ring()
	require.Len(t, ring, len(risk.AllowedSymbols))
	for _, e := range ring {
		assert.Contains(t, e.Reasons, "rejected: bot disabled")
		assert.Empty(t, e.OrderID)
	}
	assert.Zero(t, h.broker.submitCount())

	// The losing position stays on the books untouched.
	pos, ok := h.ledger.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
}

func TestTickBuyFlow(t *testing.T) {
	h := newEngineHarness(t)

	risk := domain.DefaultRiskConfig()
	risk.AllowedSymbols = []string{"AAPL"}
	require.NoError(t, h.state.SetRiskConfig(context.Background(), risk))

	h.broker.quotes["AAPL"] = domain.Quote{Symbol: "AAPL", Price: 100}
	h.preds.points["AAPL"] = domain.PredictionPoint{
		Symbol:     "AAPL",
		Timestamp:  execNow.Add(-time.Minute).Unix(),
		Value:      106,
		Confidence: 0.9,
	}

	h.engine.Tick(context.Background(), execNow)

	assert.Equal(t, 1, h.broker.submitCount())
	pos, ok := h.ledger.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.Quantity) // 100000*0.20/100*0.5

	ring := h.audit.Ring()
	require.Len(t, ring, 1)
	assert.Equal(t, domain.ActionBuy, ring[0].Action)
	assert.NotEmpty(t, ring[0].OrderID)
}

func TestTickForcedExitOverridesBuySignal(t *testing.T) {
	h := newEngineHarness(t)

	risk := domain.DefaultRiskConfig()
	risk.AllowedSymbols = []string{"AAPL"}
	require.NoError(t, h.state.SetRiskConfig(context.Background(), risk))

	// Broker reports a position 6% underwater while the model screams BUY.
	h.broker.positions = []domain.Position{{
		Symbol:         "AAPL",
		Quantity:       10,
		AvgEntryPrice:  100,
		UnrealizedPLPC: -0.06,
	}}
	h.broker.quotes["AAPL"] = domain.Quote{Symbol: "AAPL", Price: 94}
	h.preds.points["AAPL"] = domain.PredictionPoint{
		Symbol:     "AAPL",
		Timestamp:  execNow.Add(-time.Minute).Unix(),
		Value:      120,
		Confidence: 0.95,
	}

	h.engine.Tick(context.Background(), execNow)

	ring := h.audit.Ring()
	require.Len(t, ring, 1)
	assert.Equal(t, domain.ActionSell, ring[0].Action)
	assert.Contains(t, ring[0].Reasons[0], string(domain.ExitStopLoss))

	// The stop-loss sell closed the full position.
	_, ok := h.ledger.Get("AAPL")
	assert.False(t, ok)
}

func TestTickForcedExitSellsFractionalPosition(t *testing.T) {
	h := newEngineHarness(t)

	risk := domain.DefaultRiskConfig()
	risk.AllowedSymbols = []string{"AAPL"}
	require.NoError(t, h.state.SetRiskConfig(context.Background(), risk))

	// Half a share, 6% underwater. The sell must carry the fractional
	// quantity instead of rounding it down to a zero-share order.
	h.broker.positions = []domain.Position{{
		Symbol:         "AAPL",
		Quantity:       0.5,
		AvgEntryPrice:  100,
		UnrealizedPLPC: -0.06,
	}}
	h.broker.quotes["AAPL"] = domain.Quote{Symbol: "AAPL", Price: 94}

	h.engine.Tick(context.Background(), execNow)

	orders := h.broker.submittedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderSideSell, orders[0].Side)
	assert.Equal(t, 0.5, orders[0].Quantity)

	// No residue: the whole fractional position is gone.
	_, ok := h.ledger.Get("AAPL")
	assert.False(t, ok)
}

func TestTickHoldsWithoutPrediction(t *testing.T) {
	h := newEngineHarness(t)

	risk := domain.DefaultRiskConfig()
	risk.AllowedSymbols = []string{"AAPL"}
	require.NoError(t, h.state.SetRiskConfig(context.Background(), risk))

	h.engine.Tick(context.Background(), execNow)

	ring := h.audit.Ring()
	require.Len(t, ring, 1)
	assert.Equal(t, domain.ActionHold, ring[0].Action)
	assert.Contains(t, ring[0].Reasons[0], "no prediction")
	assert.Zero(t, h.broker.submitCount())
}

func TestEvaluateSymbolStaleLedgerSkips(t *testing.T) {
	h := newEngineHarness(t)

	risk := domain.DefaultRiskConfig()
	// Ledger was never reconciled: two-interval staleness bound is blown.
	h.engine.evaluateSymbol(context.Background(), "AAPL", risk, h.broker.account, execNow)

	ring := h.audit.Ring()
	require.Len(t, ring, 1)
	assert.Equal(t, domain.ActionHold, ring[0].Action)
	assert.Contains(t, ring[0].Reasons[0], "stale")
	assert.Zero(t, h.broker.submitCount())
}

// blockingBroker wraps fakeBroker so order submission blocks until released,
// holding a decision cycle in flight.
type blockingBroker struct {
	*fakeBroker
	release chan struct{}
}

func (b *blockingBroker) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	<-b.release
	return b.fakeBroker.SubmitOrder(ctx, req)
}

func TestAtMostOneCycleInFlightPerSymbol(t *testing.T) {
	broker := &blockingBroker{fakeBroker: newFakeBroker(), release: make(chan struct{})}
	ledger := service.NewLedger(nil, nil, nil, discardLogger())
	audit := service.NewAuditRecorder(nil, nil, discardLogger())
	exec := NewExecutor(broker, ledger, audit, discardLogger())
	exec.SetRetryPolicy(1, time.Millisecond, time.Second)

	state := &fakeStateCache{}
	preds := &fakePredictions{points: map[string]domain.PredictionPoint{
		"AAPL": {Symbol: "AAPL", Timestamp: execNow.Add(-time.Minute).Unix(), Value: 106, Confidence: 0.9},
	}}
	broker.quotes["AAPL"] = domain.Quote{Symbol: "AAPL", Price: 100}

	engine := NewEngine(
		state, preds, broker, ledger,
		service.NewRiskGate(discardLogger()),
		strategy.NewEvaluator(5*time.Minute),
		exec, audit, nil,
		domain.DefaultRiskConfig(),
		discardLogger(),
	)
	require.NoError(t, ledger.Reconcile(context.Background(), nil, execNow))

	risk := domain.DefaultRiskConfig()
	risk.AllowedSymbols = []string{"AAPL"}

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			engine.evaluateSymbol(context.Background(), "AAPL", risk, broker.account, execNow)
		}()
	}

	// Give both goroutines time to reach the in-flight guard, then let the
	// surviving cycle's submission complete.
	time.Sleep(50 * time.Millisecond)
	close(broker.release)
	wg.Wait()

	assert.Equal(t, 1, broker.submitCount())
	assert.Len(t, audit.Ring(), 1)
}
