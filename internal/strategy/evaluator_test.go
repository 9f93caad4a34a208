package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalverson/predbot/internal/domain"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func freshPrediction(value, conf float64) domain.PredictionPoint {
	return domain.PredictionPoint{
		Symbol:     "AAPL",
		Timestamp:  testNow.Add(-time.Minute).Unix(),
		Value:      value,
		Confidence: conf,
	}
}

func riskWith(aggr, minConf float64) domain.RiskConfig {
	cfg := domain.DefaultRiskConfig()
	cfg.Aggressiveness = aggr
	cfg.MinConfidence = minConf
	return cfg
}

func TestEvaluateBuyScenario(t *testing.T) {
	// price=100, predicted=106, conf=0.9, aggressiveness=0.5:
	// adjusted=0.054, threshold=0.03 -> BUY with strength 0.54.
	e := NewEvaluator(5 * time.Minute)

	sig, err := e.Evaluate(freshPrediction(106, 0.9), 100, riskWith(0.5, 0.7), testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.InDelta(t, 0.54, sig.Strength, 1e-9)
	assert.Equal(t, 0.9, sig.Confidence)
}

func TestEvaluateSellOnNegativeMove(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)

	sig, err := e.Evaluate(freshPrediction(94, 0.9), 100, riskWith(0.5, 0.7), testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionSell, sig.Action)
	assert.Greater(t, sig.Strength, 0.0)
}

func TestEvaluateLowConfidenceAlwaysHolds(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)

	// A huge predicted move must not override the confidence floor.
	for _, conf := range []float64{0, 0.1, 0.3, 0.69} {
		sig, err := e.Evaluate(freshPrediction(200, conf), 100, riskWith(1.0, 0.7), testNow)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionHold, sig.Action, "conf=%v", conf)
		assert.Zero(t, sig.Strength, "conf=%v", conf)
	}
}

func TestEvaluateStalePredictionHolds(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)

	pred := freshPrediction(106, 0.9)
	pred.Timestamp = testNow.Add(-6 * time.Minute).Unix()

	sig, err := e.Evaluate(pred, 100, riskWith(0.5, 0.7), testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionHold, sig.Action)
	assert.Zero(t, sig.Strength)
	assert.Contains(t, sig.Reason, "stale")
}

func TestEvaluateInvalidPrice(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)

	for _, price := range []float64{0, -1} {
		_, err := e.Evaluate(freshPrediction(106, 0.9), price, riskWith(0.5, 0.7), testNow)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput), "price=%v", price)
	}
}

func TestThresholdMonotonicallyDecreasing(t *testing.T) {
	prev := Threshold(0)
	assert.InDelta(t, 0.04, prev, 1e-9)

	for a := 0.1; a <= 1.0001; a += 0.1 {
		cur := Threshold(a)
		assert.Less(t, cur, prev, "aggressiveness=%v", a)
		prev = cur
	}
	assert.InDelta(t, 0.02, Threshold(1), 1e-9)
}

func TestEvaluateStrengthSaturates(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)

	// 50% predicted move at conf 1.0 is far past the 10% saturation point.
	sig, err := e.Evaluate(freshPrediction(150, 1.0), 100, riskWith(1.0, 0.7), testNow)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.Equal(t, 1.0, sig.Strength)
}

func TestEvaluateDeterministic(t *testing.T) {
	e := NewEvaluator(5 * time.Minute)
	pred := freshPrediction(106, 0.9)
	risk := riskWith(0.5, 0.7)

	first, err := e.Evaluate(pred, 100, risk, testNow)
	require.NoError(t, err)
	second, err := e.Evaluate(pred, 100, risk, testNow)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
