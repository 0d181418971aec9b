package ports

import (
	"context"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// LedgerReader expone las lecturas del contrato de predicción ya decodificadas
// a registros tipados. Ningún tuple crudo sale de la implementación.
type LedgerReader interface {
	// Owner devuelve la identidad privilegiada registrada en el ledger.
	Owner(ctx context.Context) (common.Address, error)

	// MarketCount devuelve eventCount.
	MarketCount(ctx context.Context) (uint64, error)

	// GetMarket devuelve el mercado id. Un id inexistente puede devolver un
	// registro en cero; no se valida el rango.
	GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error)

	// GetPool devuelve el total y los subtotales por outcome.
	GetPool(ctx context.Context, id domain.MarketID) (domain.Pool, error)

	// GetPosition devuelve la apuesta del usuario en el mercado id.
	GetPosition(ctx context.Context, id domain.MarketID, user common.Address) (domain.Position, error)

	// ListUserMarketIDs devuelve los mercados en los que el usuario apostó.
	ListUserMarketIDs(ctx context.Context, user common.Address) ([]domain.MarketID, error)
}
