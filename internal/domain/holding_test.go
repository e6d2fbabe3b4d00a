package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvgCost(t *testing.T) {
	h := &Holding{Shares: dec("20"), TotalCost: dec("240")}
	assert.True(t, dec("12").Equal(h.AvgCost()))

	empty := &Holding{}
	assert.True(t, empty.AvgCost().IsZero(), "no shares means no average, not a division by zero")
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		shares string
		want   bool
	}{
		{shares: "0", want: true},
		{shares: "0.00009", want: true},
		{shares: "0.0001", want: false},
		{shares: "10", want: false},
	}
	for _, tt := range tests {
		h := &Holding{Shares: dec(tt.shares)}
		assert.Equal(t, tt.want, h.IsEmpty(), "shares=%s", tt.shares)
	}
}

func TestTradeSideAndAlertTypeValidation(t *testing.T) {
	assert.True(t, Buy.IsValid())
	assert.True(t, Sell.IsValid())
	assert.False(t, TradeSide("HOLD").IsValid())

	assert.True(t, AlertAbove.IsValid())
	assert.True(t, AlertBelow.IsValid())
	assert.True(t, AlertPercentChange.IsValid())
	assert.False(t, AlertType("crossing").IsValid())
}
