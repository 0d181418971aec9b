package onchain

// ledger.go: lecturas tipadas del contrato CeloPredict.
//
// Cada lectura es un eth_call: se empaqueta el calldata con el ABI, se llama
// al contrato y se decodifica el resultado a los registros de domain. Los
// tuples crudos no salen de este archivo.

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

const (
	defaultReadRatePerSec = 20
	readBurst             = 10
)

// Ledger implementa ports.LedgerReader sobre un nodo JSON-RPC.
type Ledger struct {
	caller   ethereum.ContractCaller
	contract common.Address
	limiter  *rate.Limiter
}

// NewLedger crea un lector para el contrato en contract.
// ratePerSec <= 0 usa el límite por defecto.
func NewLedger(caller ethereum.ContractCaller, contract common.Address, ratePerSec float64) *Ledger {
	if ratePerSec <= 0 {
		ratePerSec = defaultReadRatePerSec
	}
	return &Ledger{
		caller:   caller,
		contract: contract,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), readBurst),
	}
}

// Contract devuelve la dirección del contrato leído.
func (l *Ledger) Contract() common.Address {
	return l.contract
}

// Owner devuelve owner().
func (l *Ledger) Owner(ctx context.Context) (common.Address, error) {
	vals, err := l.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("onchain.Owner: unexpected type %T", vals[0])
	}
	return owner, nil
}

// MarketCount devuelve eventCount().
func (l *Ledger) MarketCount(ctx context.Context) (uint64, error) {
	vals, err := l.call(ctx, "eventCount")
	if err != nil {
		return 0, err
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("onchain.MarketCount: unexpected type %T", vals[0])
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("onchain.MarketCount: count overflows uint64: %s", n)
	}
	return n.Uint64(), nil
}

// GetMarket devuelve getEvent(id).
func (l *Ledger) GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	vals, err := l.call(ctx, "getEvent", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return domain.Market{}, err
	}
	ev := *abi.ConvertType(vals[0], new(eventTuple)).(*eventTuple)

	m := domain.Market{
		ID:             id,
		Title:          ev.Title,
		Description:    ev.Description,
		Resolved:       ev.Resolved,
		WinningOutcome: domain.Outcome(ev.WinningOutcome),
		Active:         ev.Active,
	}
	if ev.Deadline != nil {
		if !ev.Deadline.IsInt64() {
			return domain.Market{}, fmt.Errorf("onchain.GetMarket: deadline of market %d overflows int64: %s", id, ev.Deadline)
		}
		m.DeadlineUnix = ev.Deadline.Int64()
	}
	return m, nil
}

// GetPool devuelve getPool(id).
func (l *Ledger) GetPool(ctx context.Context, id domain.MarketID) (domain.Pool, error) {
	vals, err := l.call(ctx, "getPool", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return domain.Pool{}, err
	}
	if len(vals) != 1+domain.NumOutcomes {
		return domain.Pool{}, fmt.Errorf("onchain.GetPool: expected %d values, got %d", 1+domain.NumOutcomes, len(vals))
	}
	var pool domain.Pool
	pool.Total = vals[0].(*big.Int)
	for i := 0; i < domain.NumOutcomes; i++ {
		pool.ByOutcome[i] = vals[i+1].(*big.Int)
	}
	return pool, nil
}

// GetPosition devuelve getBet(id, user).
func (l *Ledger) GetPosition(ctx context.Context, id domain.MarketID, user common.Address) (domain.Position, error) {
	vals, err := l.call(ctx, "getBet", new(big.Int).SetUint64(uint64(id)), user)
	if err != nil {
		return domain.Position{}, err
	}
	bet := *abi.ConvertType(vals[0], new(betTuple)).(*betTuple)

	amount := bet.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return domain.Position{
		MarketID: id,
		User:     user,
		Amount:   amount,
		Outcome:  domain.Outcome(bet.Outcome),
		Claimed:  bet.Claimed,
	}, nil
}

// ListUserMarketIDs devuelve getUserEvents(user).
func (l *Ledger) ListUserMarketIDs(ctx context.Context, user common.Address) ([]domain.MarketID, error) {
	vals, err := l.call(ctx, "getUserEvents", user)
	if err != nil {
		return nil, err
	}
	raw, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("onchain.ListUserMarketIDs: unexpected type %T", vals[0])
	}
	ids := make([]domain.MarketID, 0, len(raw))
	for _, v := range raw {
		if !v.IsUint64() {
			return nil, fmt.Errorf("onchain.ListUserMarketIDs: id overflows uint64: %s", v)
		}
		ids = append(ids, domain.MarketID(v.Uint64()))
	}
	return ids, nil
}

// call empaqueta, ejecuta eth_call y desempaqueta el método dado.
// Un revert se traduce a domain.ErrNotFound.
func (l *Ledger) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := ledgerABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("onchain.%s: pack: %w", method, err)
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("onchain.%s: rate limiter: %w", method, err)
	}

	out, err := l.caller.CallContract(ctx, ethereum.CallMsg{To: &l.contract, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("onchain.%s: %w: %v", method, domain.ErrNotFound, err)
		}
		return nil, fmt.Errorf("onchain.%s: call: %w", method, err)
	}

	vals, err := ledgerABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("onchain.%s: unpack: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("onchain.%s: empty result", method)
	}
	return vals, nil
}
