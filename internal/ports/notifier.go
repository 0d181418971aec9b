package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/celopredict/internal/domain"
)

// Notifier presenta los snapshots agregados al usuario.
type Notifier interface {
	// NotifyMarkets muestra la lista de mercados con su fase en now.
	NotifyMarkets(ctx context.Context, markets []domain.Market, now time.Time) error

	// NotifyPortfolio muestra las posiciones del usuario con su estado.
	NotifyPortfolio(ctx context.Context, portfolio domain.Portfolio) error
}
