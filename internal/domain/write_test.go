package domain

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Valid(t *testing.T) {
	tests := []struct {
		from WriteState
		ev   WriteEvent
		want WriteState
	}{
		{WriteIdle, EventSubmit, WriteSubmitted},
		{WriteSubmitted, EventAccepted, WriteConfirming},
		{WriteConfirming, EventFinalized, WriteSucceeded},
		{WriteSubmitted, EventRejected, WriteFailed},
		{WriteConfirming, EventRejected, WriteFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_TerminalStatesAreAbsorbing(t *testing.T) {
	for _, from := range []WriteState{WriteSucceeded, WriteFailed} {
		for _, ev := range []WriteEvent{EventSubmit, EventAccepted, EventFinalized, EventRejected} {
			got, err := Transition(from, ev)
			assert.Error(t, err, "%s on %s", ev, from)
			assert.Equal(t, from, got)
		}
	}
}

func TestTransition_Invalid(t *testing.T) {
	tests := []struct {
		from WriteState
		ev   WriteEvent
	}{
		{WriteIdle, EventAccepted},
		{WriteIdle, EventFinalized},
		{WriteIdle, EventRejected},
		{WriteSubmitted, EventFinalized},
		{WriteSubmitted, EventSubmit},
		{WriteConfirming, EventAccepted},
	}
	for _, tt := range tests {
		_, err := Transition(tt.from, tt.ev)
		assert.Error(t, err, "%s on %s", tt.ev, tt.from)
	}
}

func TestWriteRequest_Validate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name  string
		req   WriteRequest
		field string // "" = válido
	}{
		{"create ok", NewCreateMarket("Will it rain?", "", now.Add(time.Hour)), ""},
		{"create empty title", NewCreateMarket("   ", "d", now.Add(time.Hour)), "title"},
		{"create deadline now", NewCreateMarket("t", "", now), "deadline"},
		{"create deadline past", NewCreateMarket("t", "", now.Add(-time.Hour)), "deadline"},
		{"resolve ok", NewResolveMarket(1, 2), ""},
		{"resolve bad outcome", NewResolveMarket(1, 3), "winning_outcome"},
		{"stake ok", NewPlaceStake(0, 1, big.NewInt(1)), ""},
		{"stake outcome 3", NewPlaceStake(0, 3, big.NewInt(1)), "outcome"},
		{"stake zero", NewPlaceStake(0, 0, big.NewInt(0)), "stake"},
		{"stake negative", NewPlaceStake(0, 0, big.NewInt(-5)), "stake"},
		{"stake nil", NewPlaceStake(0, 0, nil), "stake"},
		{"claim ok", NewClaimReward(4), ""},
		{"unknown kind", WriteRequest{Kind: "TRANSFER"}, "kind"},
		{"missing args", WriteRequest{Kind: WritePlaceStake}, "args"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(now)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestWriteRequest_MarketID(t *testing.T) {
	assert.Equal(t, MarketID(0), NewCreateMarket("t", "", time.Now()).MarketID())
	assert.Equal(t, MarketID(7), NewResolveMarket(7, 0).MarketID())
	assert.Equal(t, MarketID(8), NewPlaceStake(8, 0, big.NewInt(1)).MarketID())
	assert.Equal(t, MarketID(9), NewClaimReward(9).MarketID())
}

func TestWriteState_Terminal(t *testing.T) {
	assert.True(t, WriteSucceeded.Terminal())
	assert.True(t, WriteFailed.Terminal())
	assert.False(t, WriteIdle.Terminal())
	assert.False(t, WriteSubmitted.Terminal())
	assert.False(t, WriteConfirming.Terminal())
}
