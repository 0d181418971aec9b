package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_700_000_000, 0)

func TestDerivePhase(t *testing.T) {
	tests := []struct {
		name   string
		market Market
		want   Phase
	}{
		{"future deadline", Market{DeadlineUnix: testNow.Unix() + 60}, PhaseLive},
		{"past deadline", Market{DeadlineUnix: testNow.Unix() - 60}, PhaseClosed},
		{"deadline equals now", Market{DeadlineUnix: testNow.Unix()}, PhaseClosed},
		{"resolved before deadline", Market{DeadlineUnix: testNow.Unix() + 60, Resolved: true}, PhaseResolved},
		{"resolved after deadline", Market{DeadlineUnix: testNow.Unix() - 60, Resolved: true}, PhaseResolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePhase(tt.market, testNow))
		})
	}
}

func TestDerivePhase_SubSecondNowUsesUnixSeconds(t *testing.T) {
	m := Market{DeadlineUnix: testNow.Unix()}
	// 999ms antes del siguiente segundo sigue siendo el mismo segundo Unix.
	assert.Equal(t, PhaseClosed, DerivePhase(m, testNow.Add(999*time.Millisecond)))
	assert.Equal(t, PhaseLive, DerivePhase(m, testNow.Add(-time.Millisecond)))
}

func TestCanStake(t *testing.T) {
	assert.True(t, CanStake(Market{DeadlineUnix: testNow.Unix() + 1}, testNow))
	assert.False(t, CanStake(Market{DeadlineUnix: testNow.Unix()}, testNow))
	assert.False(t, CanStake(Market{DeadlineUnix: testNow.Unix() + 100, Resolved: true}, testNow))
}

// Dos mercados: uno vencido sin resolver, otro abierto.
func TestDerivePhase_ClosedAndLive(t *testing.T) {
	markets := []Market{
		{ID: 0, DeadlineUnix: testNow.Add(-time.Hour).Unix()},
		{ID: 1, DeadlineUnix: testNow.Add(time.Hour).Unix()},
	}
	assert.Equal(t, PhaseClosed, DerivePhase(markets[0], testNow))
	assert.Equal(t, PhaseLive, DerivePhase(markets[1], testNow))
}

func TestDerivePositionStatus(t *testing.T) {
	resolved := Market{Resolved: true, WinningOutcome: 1}
	stake := big.NewInt(1e17)

	tests := []struct {
		name      string
		market    Market
		position  Position
		want      PositionStatus
		claimable bool
	}{
		{"unresolved", Market{}, Position{Amount: stake, Outcome: 1}, StatusPendingResolution, false},
		{"unresolved claimed flag ignored", Market{}, Position{Amount: stake, Outcome: 1, Claimed: true}, StatusPendingResolution, false},
		{"winner unclaimed", resolved, Position{Amount: stake, Outcome: 1}, StatusWonClaimable, true},
		{"loser", resolved, Position{Amount: stake, Outcome: 0}, StatusLost, false},
		{"winner claimed", resolved, Position{Amount: stake, Outcome: 1, Claimed: true}, StatusClaimed, false},
		{"loser claimed", resolved, Position{Amount: stake, Outcome: 2, Claimed: true}, StatusLost, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DerivePositionStatus(tt.market, tt.position)
			assert.Equal(t, tt.want, v.Status)
			assert.Equal(t, tt.claimable, v.Claimable)
		})
	}
}

// El pool dice que nadie apostó al outcome ganador; el estado solo mira el mercado.
func TestDerivePositionStatus_IgnoresPool(t *testing.T) {
	m := Market{Resolved: true, WinningOutcome: 2}
	p := Position{Amount: big.NewInt(100), Outcome: 2}
	pool := Pool{
		Total:     big.NewInt(300),
		ByOutcome: [NumOutcomes]*big.Int{big.NewInt(150), big.NewInt(150), big.NewInt(0)},
	}
	require.True(t, pool.Consistent())

	v := DerivePositionStatus(m, p)
	assert.Equal(t, StatusWonClaimable, v.Status)
	assert.True(t, v.Claimable)
}

func TestDerivePositionStatus_ClaimedNeverClaimable(t *testing.T) {
	for w := Outcome(0); w < NumOutcomes; w++ {
		for o := Outcome(0); o < NumOutcomes; o++ {
			for _, resolved := range []bool{true, false} {
				v := DerivePositionStatus(Market{Resolved: resolved, WinningOutcome: w}, Position{Amount: big.NewInt(1), Outcome: o, Claimed: true})
				assert.False(t, v.Claimable, "winning=%d outcome=%d resolved=%v", w, o, resolved)
			}
		}
	}
}

func TestDerivePositionStatus_Deterministic(t *testing.T) {
	m := Market{Resolved: true, WinningOutcome: 0}
	p := Position{Amount: big.NewInt(1), Outcome: 0}
	first := DerivePositionStatus(m, p)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, DerivePositionStatus(m, p))
	}
}

// Sin apuesta el ledger devuelve un registro en cero, que coincide con el outcome 0.
func TestDerivePositionStatus_NoPosition(t *testing.T) {
	for _, m := range []Market{
		{Resolved: true, WinningOutcome: 0},
		{Resolved: true, WinningOutcome: 2},
		{},
	} {
		for _, p := range []Position{{}, {Amount: big.NewInt(0)}} {
			v := DerivePositionStatus(m, p)
			assert.Equal(t, StatusNoPosition, v.Status)
			assert.False(t, v.Claimable)
		}
	}
	assert.Equal(t, "No position", StatusNoPosition.String())
}

func TestSplitMarkets(t *testing.T) {
	markets := []Market{
		{ID: 0, Active: true, DeadlineUnix: testNow.Unix() + 10},
		{ID: 1, Active: true, DeadlineUnix: testNow.Unix() - 10},
		{ID: 2, Active: false, DeadlineUnix: testNow.Unix() + 10},
		{ID: 3, Active: true, DeadlineUnix: testNow.Unix() + 20},
	}
	live, past := SplitMarkets(markets, testNow)

	assert.Equal(t, []MarketID{0, 3}, ids(live))
	assert.Equal(t, []MarketID{1, 2}, ids(past))
}

func TestPhaseAndStatusLabels(t *testing.T) {
	assert.Equal(t, "Live", PhaseLive.String())
	assert.Equal(t, "Betting closed", PhaseClosed.String())
	assert.Equal(t, "Resolved", PhaseResolved.String())
	assert.Equal(t, "Pending resolution", StatusPendingResolution.String())
	assert.Equal(t, "Won - claimable", StatusWonClaimable.String())
}

func ids(ms []Market) []MarketID {
	out := make([]MarketID, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
