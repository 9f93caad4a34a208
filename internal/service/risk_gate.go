package service

import (
	"fmt"
	"log/slog"

	"github.com/jalverson/predbot/internal/domain"
)

// RiskGate decides whether a candidate signal is admissible under the
// current risk limits. Admit is a pure function of its inputs: given the
// same signal, position, account, and config it always returns the same
// decision, so rejections are reproducible from the audit trail.
type RiskGate struct {
	logger *slog.Logger
}

// NewRiskGate creates a RiskGate.
func NewRiskGate(logger *slog.Logger) *RiskGate {
	return &RiskGate{
		logger: logger.With(slog.String("component", "risk_gate")),
	}
}

// Admit evaluates the ordered chain of disqualifying checks. The first
// failing check short-circuits and supplies the rejection reason: the
// disable switch and symbol eligibility come before the economic checks so
// audit reasons stay deterministic and the cheapest checks run first.
//
// Forced exits (stop-loss, take-profit, holding cap) never pass through
// here; the decision loop executes them directly.
func (g *RiskGate) Admit(sig domain.Signal, pos *domain.Position, acct domain.AccountSnapshot, risk domain.RiskConfig) domain.Decision {
	if !risk.Enabled {
		return g.reject(sig, "bot disabled")
	}

	if !risk.Allows(sig.Symbol) {
		return g.reject(sig, fmt.Sprintf("symbol %s not allowed", sig.Symbol))
	}

	switch sig.Action {
	case domain.ActionBuy:
		if pos != nil {
			cap := acct.PortfolioValue * risk.MaxPositionFraction
			if pos.MarketValue > cap {
				return g.reject(sig, fmt.Sprintf("position cap: market value %.2f over %.2f", pos.MarketValue, cap))
			}
		}
		if required := 1 - risk.Aggressiveness; sig.Strength < required {
			return g.reject(sig, fmt.Sprintf("strength %.2f below required %.2f", sig.Strength, required))
		}

	case domain.ActionSell:
		if pos == nil {
			return g.reject(sig, "no position to close")
		}
	}

	return domain.Decision{Admitted: true, Reason: "risk checks passed"}
}

func (g *RiskGate) reject(sig domain.Signal, reason string) domain.Decision {
	g.logger.Debug("signal rejected",
		slog.String("symbol", sig.Symbol),
		slog.String("action", string(sig.Action)),
		slog.String("reason", reason),
	)
	return domain.Decision{Admitted: false, Reason: reason}
}
