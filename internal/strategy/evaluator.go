// Package strategy converts model predictions into directional trading
// signals. The evaluator is a pure function of its inputs so every decision
// is reproducible from the audit trail.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/jalverson/predbot/internal/domain"
)

const (
	// baseThreshold is the minimum confidence-weighted move required to
	// trade at aggressiveness 1.0. The effective threshold scales up to
	// twice this value at aggressiveness 0.
	baseThreshold = 0.02

	// saturationMove is the adjusted move at which signal strength
	// saturates at 1.0.
	saturationMove = 0.10
)

// Evaluator derives a Signal from the latest prediction and price snapshot.
// It performs no I/O; callers supply the clock so results are deterministic.
type Evaluator struct {
	// StaleAfter rejects predictions older than one fetch interval.
	StaleAfter time.Duration
}

// NewEvaluator returns an Evaluator with the given staleness bound. A zero
// bound falls back to the 5-minute prediction cadence.
func NewEvaluator(staleAfter time.Duration) Evaluator {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return Evaluator{StaleAfter: staleAfter}
}

// Threshold returns the decision threshold for the given aggressiveness.
// It decreases monotonically as aggressiveness increases: a maximally
// aggressive operator trades on a 2% adjusted move, a maximally cautious
// one requires 4%.
func Threshold(aggressiveness float64) float64 {
	return baseThreshold * (2 - aggressiveness)
}

// Evaluate converts a prediction plus the current price into a Signal.
//
// Stale or low-confidence predictions degrade to HOLD with strength 0 rather
// than erroring; only a nonsensical price is an error, because no sane
// decision can be derived from it.
func (e Evaluator) Evaluate(pred domain.PredictionPoint, currentPrice float64, risk domain.RiskConfig, now time.Time) (domain.Signal, error) {
	if currentPrice <= 0 {
		return domain.Signal{}, fmt.Errorf("strategy: current price %.4f for %s: %w",
			currentPrice, pred.Symbol, domain.ErrInvalidInput)
	}

	sig := domain.Signal{
		Symbol:     pred.Symbol,
		Timestamp:  now,
		Action:     domain.ActionHold,
		Confidence: pred.Confidence,
	}

	if age := pred.Age(now); age > e.StaleAfter {
		sig.Reason = fmt.Sprintf("prediction stale (%s old, limit %s)", age.Round(time.Second), e.StaleAfter)
		return sig, nil
	}

	if pred.Confidence < risk.MinConfidence {
		sig.Reason = fmt.Sprintf("confidence %.2f below minimum %.2f", pred.Confidence, risk.MinConfidence)
		return sig, nil
	}

	priceChange := (pred.Value - currentPrice) / currentPrice
	adjusted := priceChange * pred.Confidence
	threshold := Threshold(risk.Aggressiveness)

	switch {
	case adjusted > threshold:
		sig.Action = domain.ActionBuy
	case adjusted < -threshold:
		sig.Action = domain.ActionSell
	default:
		sig.Reason = fmt.Sprintf("adjusted move %.4f inside threshold %.4f", adjusted, threshold)
		return sig, nil
	}

	sig.Strength = clamp(math.Abs(adjusted)/saturationMove, 0, 1)
	sig.Reason = fmt.Sprintf("adjusted move %.4f vs threshold %.4f", adjusted, threshold)
	return sig, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
