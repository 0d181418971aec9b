package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NumOutcomes es la cantidad fija de resultados posibles por mercado.
const NumOutcomes = 3

// MarketID identifica un mercado en el ledger. Lo asigna el contrato y es inmutable.
type MarketID uint64

// Outcome es el índice de un resultado (0, 1 o 2).
type Outcome uint8

// Valid devuelve true si el índice está dentro de {0,1,2}.
func (o Outcome) Valid() bool {
	return o < NumOutcomes
}

// Market es la proyección tipada de un registro getEvent del ledger.
type Market struct {
	ID             MarketID
	Title          string
	Description    string
	DeadlineUnix   int64 // segundos Unix, fijado al crear
	Resolved       bool  // terminal: una vez true no vuelve a cambiar
	WinningOutcome Outcome
	Active         bool
}

// Deadline devuelve el deadline como time.Time.
func (m Market) Deadline() time.Time {
	return time.Unix(m.DeadlineUnix, 0)
}

// Pool es el agregado de lo apostado en un mercado, total y por outcome.
// El ledger garantiza Total == suma de los subtotales; aquí solo se informa.
type Pool struct {
	Total     *big.Int
	ByOutcome [NumOutcomes]*big.Int
}

// Sum devuelve la suma de los tres subtotales.
func (p Pool) Sum() *big.Int {
	sum := new(big.Int)
	for _, v := range p.ByOutcome {
		if v != nil {
			sum.Add(sum, v)
		}
	}
	return sum
}

// Consistent devuelve true si Total coincide con la suma de subtotales.
func (p Pool) Consistent() bool {
	total := p.Total
	if total == nil {
		total = new(big.Int)
	}
	return total.Cmp(p.Sum()) == 0
}

// Position es la apuesta de un usuario en un mercado (bets[marketID][user]).
type Position struct {
	MarketID MarketID
	User     common.Address
	Amount   *big.Int // wei
	Outcome  Outcome
	Claimed  bool
}

// Exists devuelve true si el usuario tiene stake en el mercado.
// El ledger devuelve un registro en cero cuando no hay apuesta.
func (p Position) Exists() bool {
	return p.Amount != nil && p.Amount.Sign() > 0
}

// MarketDetail es la vista de un mercado individual junto con su pool.
type MarketDetail struct {
	Market Market
	Pool   Pool
}

// PortfolioEntry une una posición con su mercado y el total del pool.
type PortfolioEntry struct {
	MarketID  MarketID
	Market    Market
	PoolTotal *big.Int
	Position  Position
}

// Portfolio es el conjunto derivado de posiciones de un usuario.
// No se almacena: se recalcula en cada pasada de agregación.
type Portfolio struct {
	User    *common.Address
	Entries []PortfolioEntry // orden ascendente por MarketID
}

// Empty devuelve true si no hay posiciones.
func (p Portfolio) Empty() bool {
	return len(p.Entries) == 0
}

// OutcomeLabels devuelve etiquetas legibles para los tres outcomes,
// inferidas a partir del título del mercado.
func OutcomeLabels(title string) [NumOutcomes]string {
	if strings.Contains(title, "vs") || strings.Contains(title, "VS") || strings.Contains(title, "Vs") {
		return [NumOutcomes]string{"Home win", "Draw", "Away win"}
	}
	if strings.Contains(strings.ToLower(title), "price") {
		return [NumOutcomes]string{"Goes up", "Stays around", "Goes down"}
	}
	return [NumOutcomes]string{"Outcome 0", "Outcome 1", "Outcome 2"}
}
