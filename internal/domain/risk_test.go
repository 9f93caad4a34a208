package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskConfigInterval(t *testing.T) {
	cfg := DefaultRiskConfig()

	cfg.TradeFrequency = "1min"
	assert.Equal(t, time.Minute, cfg.Interval())

	cfg.TradeFrequency = "15min"
	assert.Equal(t, 15*time.Minute, cfg.Interval())

	cfg.TradeFrequency = "hourly"
	assert.Equal(t, 5*time.Minute, cfg.Interval())
}

func TestRiskConfigAllows(t *testing.T) {
	cfg := DefaultRiskConfig()
	assert.True(t, cfg.Allows("AAPL"))
	assert.False(t, cfg.Allows("GME"))
}

func TestRiskConfigValidate(t *testing.T) {
	require.NoError(t, DefaultRiskConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*RiskConfig)
	}{
		{"aggressiveness above one", func(c *RiskConfig) { c.Aggressiveness = 1.1 }},
		{"zero position fraction", func(c *RiskConfig) { c.MaxPositionFraction = 0 }},
		{"negative confidence", func(c *RiskConfig) { c.MinConfidence = -0.1 }},
		{"zero stop loss", func(c *RiskConfig) { c.StopLoss = 0 }},
		{"take profit above one", func(c *RiskConfig) { c.TakeProfit = 1.5 }},
		{"zero holding days", func(c *RiskConfig) { c.MaxHoldingDays = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultRiskConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMaxHoldingPeriod(t *testing.T) {
	cfg := RiskConfig{MaxHoldingDays: 7}
	assert.Equal(t, 7*24*time.Hour, cfg.MaxHoldingPeriod())
}
