package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/alejandrodnm/celopredict/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// Gateway es el acceso tipado a las lecturas del ledger que consumen los agregadores.
//
// Lecturas idénticas concurrentes se colapsan en una sola llamada; nada se
// guarda una vez que la llamada termina. Cualquier fallo que no sea
// domain.ErrNotFound se devuelve como *domain.TransportError. No hay reintentos.
type Gateway struct {
	reader ports.LedgerReader
	group  singleflight.Group
}

// New crea un Gateway sobre reader.
func New(reader ports.LedgerReader) *Gateway {
	return &Gateway{reader: reader}
}

// Owner devuelve la identidad privilegiada del ledger.
func (g *Gateway) Owner(ctx context.Context) (common.Address, error) {
	return do(ctx, g, "ownerOf", func(ctx context.Context) (common.Address, error) {
		return g.reader.Owner(ctx)
	})
}

// MarketCount devuelve la cantidad de mercados.
func (g *Gateway) MarketCount(ctx context.Context) (uint64, error) {
	return do(ctx, g, "marketCount", func(ctx context.Context) (uint64, error) {
		return g.reader.MarketCount(ctx)
	})
}

// GetMarket devuelve el mercado id tal como lo reporta el ledger.
func (g *Gateway) GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	return do(ctx, g, fmt.Sprintf("getMarket/%d", id), func(ctx context.Context) (domain.Market, error) {
		return g.reader.GetMarket(ctx, id)
	})
}

// GetPool devuelve el pool del mercado id.
func (g *Gateway) GetPool(ctx context.Context, id domain.MarketID) (domain.Pool, error) {
	return do(ctx, g, fmt.Sprintf("getPool/%d", id), func(ctx context.Context) (domain.Pool, error) {
		return g.reader.GetPool(ctx, id)
	})
}

// GetPosition devuelve la posición de user en el mercado id.
func (g *Gateway) GetPosition(ctx context.Context, id domain.MarketID, user common.Address) (domain.Position, error) {
	return do(ctx, g, fmt.Sprintf("getPosition/%d/%s", id, user.Hex()), func(ctx context.Context) (domain.Position, error) {
		return g.reader.GetPosition(ctx, id, user)
	})
}

// ListUserMarketIDs devuelve los mercados en los que user tiene posición.
func (g *Gateway) ListUserMarketIDs(ctx context.Context, user common.Address) ([]domain.MarketID, error) {
	ids, err := do(ctx, g, "listUserMarketIds/"+user.Hex(), func(ctx context.Context) ([]domain.MarketID, error) {
		return g.reader.ListUserMarketIDs(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	// Los llamadores comparten el slice de singleflight; cada uno recibe su copia.
	return append([]domain.MarketID(nil), ids...), nil
}

// CheckIsOwner compara user con el owner del ledger. Sin usuario devuelve false
// sin leer nada. Es solo para UI condicional: el ledger es quien autoriza.
func (g *Gateway) CheckIsOwner(ctx context.Context, user *common.Address) (bool, error) {
	if user == nil {
		return false, nil
	}
	owner, err := g.Owner(ctx)
	if err != nil {
		return false, err
	}
	return owner == *user, nil
}

// do ejecuta fn colapsando llamadas concurrentes con la misma key y clasifica el error.
//
// La llamada compartida corre con un ctx sin cancelación: que un caller se
// vaya no la corta para los demás. Cada caller espera solo hasta su propio ctx.
func do[T any](ctx context.Context, g *Gateway, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	shared := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (any, error) {
		return fn(shared)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, classify(key, res.Err)
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, classify(key, ctx.Err())
	}
}

func classify(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &domain.TransportError{Op: op, Err: err}
}
