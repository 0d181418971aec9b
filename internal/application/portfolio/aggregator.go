package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/celopredict/internal/application/refresh"
	"github.com/alejandrodnm/celopredict/internal/application/session"
	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/alejandrodnm/celopredict/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Reader es el subconjunto del gateway que necesita el agregador.
type Reader interface {
	ListUserMarketIDs(ctx context.Context, user common.Address) ([]domain.MarketID, error)
	GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error)
	GetPool(ctx context.Context, id domain.MarketID) (domain.Pool, error)
	GetPosition(ctx context.Context, id domain.MarketID, user common.Address) (domain.Position, error)
}

// Snapshot es el último portfolio publicado para la identidad actual.
type Snapshot struct {
	Portfolio domain.Portfolio
	Err       error
	UpdatedAt time.Time
	Pass      uint64
}

// Aggregator arma el portfolio del usuario conectado.
//
// A diferencia del agregador de mercados, un fallo en cualquier lectura hace
// fallar la pasada entera: un portfolio parcial puede mostrar mal qué rewards
// son cobrables.
type Aggregator struct {
	reader    Reader
	identity  *session.Identity
	poller    *refresh.Poller
	metrics   *metrics.Metrics
	coalescer *refresh.Coalescer

	mu      sync.RWMutex
	snap    Snapshot
	subs    map[int]func(Snapshot)
	nextID  int
	detach  func()
	unwatch func()
}

// New crea un Aggregator. Cada cambio de identidad dispara una pasada.
func New(ctx context.Context, reader Reader, identity *session.Identity, poller *refresh.Poller, m *metrics.Metrics) *Aggregator {
	a := &Aggregator{
		reader:   reader,
		identity: identity,
		poller:   poller,
		metrics:  m,
		subs:     make(map[int]func(Snapshot)),
	}
	a.coalescer = refresh.NewCoalescer(ctx, a.pass)
	a.unwatch = identity.Watch(func(user *common.Address) {
		slog.Info("identity changed, refreshing portfolio", "user", userLabel(user))
		a.Invalidate()
	})
	return a
}

// Close deja de observar la identidad.
func (a *Aggregator) Close() {
	a.unwatch()
}

// ListPositions lee el portfolio de user. Sin usuario devuelve un portfolio
// vacío sin hacer ninguna lectura.
//
// Por cada mercado del usuario se leen mercado, pool y posición en paralelo,
// y todos los mercados en paralelo entre sí. La primera lectura que falla
// cancela el resto y la llamada devuelve *domain.PartialAggregationError.
func (a *Aggregator) ListPositions(ctx context.Context, user *common.Address) (domain.Portfolio, error) {
	if user == nil {
		return domain.Portfolio{}, nil
	}
	u := *user

	ids, err := a.reader.ListUserMarketIDs(ctx, u)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio.ListPositions: %w", err)
	}
	ids = uniqueSorted(ids)

	entries := make([]domain.PortfolioEntry, len(ids))

	var (
		failedMu sync.Mutex
		failed   = make(map[domain.MarketID]error)
	)
	// Solo se registra el primer fallo; los demás son cancelaciones provocadas por él.
	fail := func(id domain.MarketID, err error) error {
		failedMu.Lock()
		if len(failed) == 0 {
			failed[id] = err
		}
		failedMu.Unlock()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			entry, err := a.readEntry(gctx, id, u)
			if err != nil {
				return fail(id, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		failedMu.Lock()
		defer failedMu.Unlock()
		return domain.Portfolio{}, &domain.PartialAggregationError{Scope: "portfolio", Failed: failed, Total: len(ids)}
	}

	return domain.Portfolio{User: &u, Entries: entries}, nil
}

// readEntry lanza las tres lecturas de un mercado en paralelo y las une.
func (a *Aggregator) readEntry(ctx context.Context, id domain.MarketID, user common.Address) (domain.PortfolioEntry, error) {
	var (
		market   domain.Market
		pool     domain.Pool
		position domain.Position
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		market, err = a.reader.GetMarket(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		pool, err = a.reader.GetPool(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		position, err = a.reader.GetPosition(gctx, id, user)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.PortfolioEntry{}, err
	}

	market.ID = id
	position.MarketID = id
	position.User = user
	return domain.PortfolioEntry{
		MarketID:  id,
		Market:    market,
		PoolTotal: pool.Total,
		Position:  position,
	}, nil
}

// Invalidate fuerza una pasada para la identidad actual.
func (a *Aggregator) Invalidate() {
	a.coalescer.Trigger()
}

// InvalidateUser fuerza una pasada solo si user es la identidad actual.
// Es lo que usa el tracker de escrituras tras un stake o claim confirmado.
func (a *Aggregator) InvalidateUser(user common.Address) {
	cur := a.identity.Current()
	if cur == nil || *cur != user {
		return
	}
	a.Invalidate()
}

// Refresh dispara una pasada y espera a que se publique.
func (a *Aggregator) Refresh(ctx context.Context) (Snapshot, error) {
	ticket := a.coalescer.Trigger()
	if err := a.coalescer.Wait(ctx, ticket); err != nil {
		return Snapshot{}, err
	}
	snap := a.Snapshot()
	return snap, snap.Err
}

// Snapshot devuelve el último portfolio publicado.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Subscribe registra fn para cada portfolio publicado. Mismas reglas de
// enganche al poller que el agregador de mercados.
func (a *Aggregator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.subs[id] = fn
	first := len(a.subs) == 1
	if first && a.poller != nil {
		a.detach = a.poller.Attach(a)
	}
	a.mu.Unlock()

	if first {
		a.Invalidate()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			var detach func()
			if len(a.subs) == 0 {
				detach, a.detach = a.detach, nil
			}
			a.mu.Unlock()
			if detach != nil {
				detach()
			}
		})
	}
}

func (a *Aggregator) pass(ctx context.Context) {
	start := time.Now()
	user := a.identity.Current()
	pf, err := a.ListPositions(ctx, user)
	a.metrics.ObservePass("portfolio", start, err)

	if err != nil {
		slog.Warn("portfolio refresh failed", "user", userLabel(user), "err", err)
	} else {
		slog.Debug("portfolio refreshed", "user", userLabel(user), "positions", len(pf.Entries), "took", time.Since(start))
	}

	a.mu.Lock()
	next := Snapshot{
		Portfolio: a.snap.Portfolio,
		Err:       err,
		UpdatedAt: time.Now(),
		Pass:      a.snap.Pass + 1,
	}
	if err == nil {
		next.Portfolio = pf
	} else if !sameUser(a.snap.Portfolio.User, user) {
		// Nunca mostrar el portfolio de otra identidad junto con el error.
		next.Portfolio = domain.Portfolio{User: user}
	}
	a.snap = next
	subs := make([]func(Snapshot), 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// uniqueSorted ordena los ids y descarta duplicados.
func uniqueSorted(ids []domain.MarketID) []domain.MarketID {
	out := append([]domain.MarketID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

func sameUser(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func userLabel(u *common.Address) string {
	if u == nil {
		return "none"
	}
	return u.Hex()
}
