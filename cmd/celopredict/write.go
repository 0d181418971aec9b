package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/celopredict/internal/application/writes"
	"github.com/alejandrodnm/celopredict/internal/domain"
)

// writeFlags son las escrituras que se pueden lanzar desde la línea de comandos.
// Solo una por ejecución.
type writeFlags struct {
	create   string // título
	desc     string
	deadline time.Duration // desde ahora
	stake    string        // id:outcome:amount
	resolve  string        // id:outcome
	claim    int64
}

func (f *writeFlags) register() {
	flag.StringVar(&f.create, "create", "", "create a market with this title")
	flag.StringVar(&f.desc, "description", "", "description for -create")
	flag.DurationVar(&f.deadline, "deadline", 24*time.Hour, "betting window for -create, from now")
	flag.StringVar(&f.stake, "stake", "", "place a stake: <market>:<outcome>:<amount CELO>")
	flag.StringVar(&f.resolve, "resolve", "", "resolve a market: <market>:<winning outcome>")
	flag.Int64Var(&f.claim, "claim", -1, "claim the reward of a market")
}

func (f *writeFlags) any() bool {
	return f.create != "" || f.stake != "" || f.resolve != "" || f.claim >= 0
}

// runWrite envía la escritura pedida y espera su estado terminal.
func runWrite(ctx context.Context, tracker *writes.Tracker, f writeFlags) error {
	var (
		h   *writes.Handle
		err error
	)
	switch {
	case f.create != "":
		h, err = tracker.CreateMarket(ctx, f.create, f.desc, time.Now().Add(f.deadline))
	case f.stake != "":
		parts := strings.Split(f.stake, ":")
		if len(parts) != 3 {
			return fmt.Errorf("-stake: want <market>:<outcome>:<amount>, got %q", f.stake)
		}
		id, outcome, perr := parseMarketOutcome(parts[0], parts[1])
		if perr != nil {
			return fmt.Errorf("-stake: %w", perr)
		}
		h, err = tracker.PlaceStake(ctx, id, outcome, parts[2])
	case f.resolve != "":
		parts := strings.Split(f.resolve, ":")
		if len(parts) != 2 {
			return fmt.Errorf("-resolve: want <market>:<outcome>, got %q", f.resolve)
		}
		id, outcome, perr := parseMarketOutcome(parts[0], parts[1])
		if perr != nil {
			return fmt.Errorf("-resolve: %w", perr)
		}
		h, err = tracker.ResolveMarket(ctx, id, outcome)
	default:
		h, err = tracker.ClaimReward(ctx, domain.MarketID(f.claim))
	}
	if err != nil {
		if errors.Is(err, domain.ErrNoSigner) {
			return fmt.Errorf("%w: set PRIVATE_KEY to send writes", err)
		}
		return err
	}

	slog.Info("waiting for confirmation", "handle", h.ID, "kind", h.Kind, "tx", h.TxHash().Hex())
	if err := h.Wait(ctx); err != nil {
		return err
	}
	snap := h.Snapshot()
	slog.Info("write succeeded",
		"kind", snap.Kind,
		"tx", snap.TxHash.Hex(),
		"took", snap.SettledAt.Sub(snap.SubmittedAt),
	)
	return nil
}

func parseMarketOutcome(idStr, outcomeStr string) (domain.MarketID, domain.Outcome, error) {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("market id %q: %w", idStr, err)
	}
	o, err := strconv.ParseUint(outcomeStr, 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("outcome %q: %w", outcomeStr, err)
	}
	return domain.MarketID(id), domain.Outcome(o), nil
}
