package markets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/celopredict/internal/application/refresh"
	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/alejandrodnm/celopredict/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReadConcurrency = 8
	defaultMaxMarkets      = 100_000
)

// Reader es el subconjunto del gateway que necesita el agregador.
type Reader interface {
	MarketCount(ctx context.Context) (uint64, error)
	GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error)
	GetPool(ctx context.Context, id domain.MarketID) (domain.Pool, error)
}

// Config controla el fan-out de lecturas.
type Config struct {
	ReadConcurrency int    // lecturas getMarket simultáneas (0 = 8)
	MaxMarkets      uint64 // cota de eventCount aceptada (0 = 100000)
}

// Snapshot es el último resultado publicado. Nunca está a medio llenar.
type Snapshot struct {
	Markets   []domain.Market
	Err       error     // error de la última pasada; nil si terminó bien
	UpdatedAt time.Time // fin de la última pasada
	Pass      uint64
}

// Aggregator construye la lista completa de mercados y la mantiene fresca.
type Aggregator struct {
	reader    Reader
	cfg       Config
	poller    *refresh.Poller
	metrics   *metrics.Metrics
	coalescer *refresh.Coalescer

	mu     sync.RWMutex
	snap   Snapshot
	subs   map[int]func(Snapshot)
	nextID int
	detach func()
}

// New crea un Aggregator. ctx acota la vida de las pasadas en segundo plano.
// poller y m pueden ser nil.
func New(ctx context.Context, reader Reader, poller *refresh.Poller, cfg Config, m *metrics.Metrics) *Aggregator {
	if cfg.ReadConcurrency <= 0 {
		cfg.ReadConcurrency = defaultReadConcurrency
	}
	if cfg.MaxMarkets == 0 {
		cfg.MaxMarkets = defaultMaxMarkets
	}
	a := &Aggregator{
		reader:  reader,
		cfg:     cfg,
		poller:  poller,
		metrics: m,
		subs:    make(map[int]func(Snapshot)),
	}
	a.coalescer = refresh.NewCoalescer(ctx, a.pass)
	return a
}

// ListMarkets hace una lectura completa: count y luego un getMarket por id.
// Cada llamada es un fetch nuevo. El resultado está en orden ascendente de id
// sin importar en qué orden terminen las lecturas.
//
// Si alguna lectura falla devuelve *domain.PartialAggregationError junto con
// los mercados que sí se leyeron, para que el caller decida si mostrarlos.
func (a *Aggregator) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	count, err := a.reader.MarketCount(ctx)
	if err != nil {
		return nil, err
	}
	// Un count corrupto no puede dimensionar el fan-out.
	if count > a.cfg.MaxMarkets {
		return nil, &domain.TransportError{
			Op:  "marketCount",
			Err: fmt.Errorf("implausible market count %d (max %d)", count, a.cfg.MaxMarkets),
		}
	}

	results := make([]domain.Market, count)
	ok := make([]bool, count)

	var (
		failedMu sync.Mutex
		failed   = make(map[domain.MarketID]error)
	)

	g := new(errgroup.Group)
	g.SetLimit(a.cfg.ReadConcurrency)
	for i := uint64(0); i < count; i++ {
		id := domain.MarketID(i)
		g.Go(func() error {
			m, err := a.reader.GetMarket(ctx, id)
			if err != nil {
				failedMu.Lock()
				failed[id] = err
				failedMu.Unlock()
				return nil
			}
			m.ID = id
			results[id] = m
			ok[id] = true
			return nil
		})
	}
	_ = g.Wait()

	markets := make([]domain.Market, 0, count)
	for i := range results {
		if ok[i] {
			markets = append(markets, results[i])
		}
	}

	if len(failed) > 0 {
		return markets, &domain.PartialAggregationError{Scope: "markets", Failed: failed, Total: int(count)}
	}
	return markets, nil
}

// Detail lee un mercado y su pool en paralelo.
func (a *Aggregator) Detail(ctx context.Context, id domain.MarketID) (domain.MarketDetail, error) {
	var d domain.MarketDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := a.reader.GetMarket(gctx, id)
		if err != nil {
			return err
		}
		m.ID = id
		d.Market = m
		return nil
	})
	g.Go(func() error {
		p, err := a.reader.GetPool(gctx, id)
		if err != nil {
			return err
		}
		d.Pool = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.MarketDetail{}, err
	}
	return d, nil
}

// Invalidate fuerza una pasada inmediata. Si ya hay una en curso, se encadena
// una sola pasada más al terminar.
func (a *Aggregator) Invalidate() {
	a.coalescer.Trigger()
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

// Snapshot devuelve el último resultado publicado.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Subscribe registra fn, que recibe cada snapshot publicado. El primer
// suscriptor engancha el agregador al poller y dispara una pasada; el último
// en salir lo desengancha.
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

// pass es una pasada completa: lee, publica atómicamente y notifica.
func (a *Aggregator) pass(ctx context.Context) {
	start := time.Now()
	markets, err := a.ListMarkets(ctx)
	a.metrics.ObservePass("markets", start, err)

	var partial *domain.PartialAggregationError
	switch {
	case err == nil:
		slog.Debug("markets refreshed", "count", len(markets), "took", time.Since(start))
	case errors.As(err, &partial):
		slog.Warn("markets refreshed with failures",
			"count", len(markets),
			"failed_ids", partial.FailedIDs(),
			"err", err,
		)
	default:
		slog.Warn("markets refresh failed", "err", err)
	}

	a.mu.Lock()
	next := Snapshot{
		Markets:   a.snap.Markets,
		Err:       err,
		UpdatedAt: time.Now(),
		Pass:      a.snap.Pass + 1,
	}
	// Sin count no hay lista nueva: se conserva la anterior junto con el error.
	if err == nil || partial != nil {
		next.Markets = markets
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
