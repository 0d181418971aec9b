package writes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/celopredict/internal/application/session"
	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/alejandrodnm/celopredict/internal/metrics"
	"github.com/alejandrodnm/celopredict/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	defaultConfirmPoll    = 3 * time.Second
	defaultConfirmTimeout = 2 * time.Minute
)

// Reader son las lecturas que necesita la validación de ResolveMarket y CheckIsOwner.
type Reader interface {
	CheckIsOwner(ctx context.Context, user *common.Address) (bool, error)
	GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error)
}

// PortfolioInvalidator refresca el portfolio de un usuario concreto.
type PortfolioInvalidator interface {
	InvalidateUser(user common.Address)
}

// Config controla el polling de confirmaciones.
type Config struct {
	ConfirmPoll    time.Duration // 0 = 3s
	ConfirmTimeout time.Duration // 0 = 2m
	Now            func() time.Time
}

// Tracker envuelve cada escritura con su máquina de estados y, cuando una
// escritura se confirma, invalida los agregadores cuyos datos pudo cambiar.
type Tracker struct {
	ctx       context.Context
	submitter ports.WriteSubmitter
	reader    Reader
	identity  *session.Identity
	markets   ports.Invalidator
	portfolio PortfolioInvalidator
	metrics   *metrics.Metrics
	cfg       Config

	mu      sync.RWMutex
	handles map[uuid.UUID]*Handle
	latest  map[domain.WriteKind]*Handle
	lastErr error
}

// New crea un Tracker. submitter puede ser nil (modo solo lectura): toda
// escritura falla con domain.ErrNoSigner antes de tocar el transporte.
func New(
	ctx context.Context,
	submitter ports.WriteSubmitter,
	reader Reader,
	identity *session.Identity,
	markets ports.Invalidator,
	portfolio PortfolioInvalidator,
	cfg Config,
	m *metrics.Metrics,
) *Tracker {
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = defaultConfirmPoll
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		ctx:       ctx,
		submitter: submitter,
		reader:    reader,
		identity:  identity,
		markets:   markets,
		portfolio: portfolio,
		metrics:   m,
		cfg:       cfg,
		handles:   make(map[uuid.UUID]*Handle),
		latest:    make(map[domain.WriteKind]*Handle),
	}
}

// CreateMarket valida y envía createEvent.
func (t *Tracker) CreateMarket(ctx context.Context, title, description string, deadline time.Time) (*Handle, error) {
	return t.Submit(ctx, domain.NewCreateMarket(title, description, deadline))
}

// PlaceStake valida y envía placeBet con stake como value.
func (t *Tracker) PlaceStake(ctx context.Context, id domain.MarketID, outcome domain.Outcome, stake string) (*Handle, error) {
	wei, err := domain.ParseAmount(stake)
	if err != nil {
		verr := &domain.ValidationError{Field: "stake", Reason: err.Error()}
		t.setLastErr(verr)
		return nil, verr
	}
	return t.Submit(ctx, domain.NewPlaceStake(id, outcome, wei))
}

// ResolveMarket valida y envía resolveEvent.
func (t *Tracker) ResolveMarket(ctx context.Context, id domain.MarketID, winning domain.Outcome) (*Handle, error) {
	return t.Submit(ctx, domain.NewResolveMarket(id, winning))
}

// ClaimReward envía claimReward.
func (t *Tracker) ClaimReward(ctx context.Context, id domain.MarketID) (*Handle, error) {
	return t.Submit(ctx, domain.NewClaimReward(id))
}

// CheckIsOwner compara la identidad conectada con el owner del ledger.
// Solo sirve para UI condicional: quien autoriza es el ledger.
func (t *Tracker) CheckIsOwner(ctx context.Context) (bool, error) {
	return t.reader.CheckIsOwner(ctx, t.identity.Current())
}

// Submit valida req y la entrega al transporte. Los errores de validación se
// devuelven sin handle y sin ninguna llamada al transporte. Si el transporte
// rechaza el envío, el handle queda en Failed y se devuelve junto al error.
func (t *Tracker) Submit(ctx context.Context, req domain.WriteRequest) (*Handle, error) {
	if err := t.validate(ctx, req); err != nil {
		t.setLastErr(err)
		return nil, err
	}

	h := newHandle(req, t.submitter.From())
	if _, err := h.apply(domain.EventSubmit, nil); err != nil {
		return nil, fmt.Errorf("writes.Submit: %w", err)
	}

	t.mu.Lock()
	t.handles[h.ID] = h
	t.latest[req.Kind] = h
	t.lastErr = nil
	t.mu.Unlock()

	tx, err := t.submitter.Submit(ctx, req)
	if err != nil {
		var rejected *domain.WriteRejected
		if !errors.As(err, &rejected) {
			err = &domain.TransportError{Op: "submit " + string(req.Kind), Err: err}
		}
		t.settleFailed(h, err)
		return h, err
	}
	h.setTx(tx)

	slog.Info("write submitted",
		"handle", h.ID,
		"kind", req.Kind,
		"market_id", req.MarketID(),
		"tx", tx.Hex(),
	)

	go t.watch(h)
	return h, nil
}

// Get devuelve el handle id, si sigue registrado.
func (t *Tracker) Get(id uuid.UUID) (*Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handles[id]
	return h, ok
}

// Latest devuelve el último handle enviado para kind.
func (t *Tracker) Latest(kind domain.WriteKind) *Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest[kind]
}

// Pending devuelve true si la última escritura de kind no llegó a un estado terminal.
func (t *Tracker) Pending(kind domain.WriteKind) bool {
	h := t.Latest(kind)
	return h != nil && !h.State().Terminal()
}

// LastError devuelve el último error de envío. Se mantiene hasta el próximo intento.
func (t *Tracker) LastError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// Forget descarta un handle ya terminado. Devuelve false si sigue en curso.
func (t *Tracker) Forget(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[id]
	if !ok {
		return true
	}
	if !h.State().Terminal() {
		return false
	}
	delete(t.handles, id)
	return true
}

// validate aplica las restricciones previas al envío.
func (t *Tracker) validate(ctx context.Context, req domain.WriteRequest) error {
	now := t.cfg.Now()
	if err := req.Validate(now); err != nil {
		return err
	}
	if t.submitter == nil {
		return domain.ErrNoSigner
	}
	if req.Kind != domain.WriteResolveMarket {
		return nil
	}

	from := t.submitter.From()
	isOwner, err := t.reader.CheckIsOwner(ctx, &from)
	if err != nil {
		return fmt.Errorf("writes.validate: owner check: %w", err)
	}
	if !isOwner {
		return &domain.ValidationError{Field: "caller", Reason: "only the ledger owner can resolve markets"}
	}

	m, err := t.reader.GetMarket(ctx, req.Resolve.MarketID)
	if err != nil {
		return fmt.Errorf("writes.validate: read market %d: %w", req.Resolve.MarketID, err)
	}
	if m.Resolved {
		return &domain.ValidationError{Field: "market", Reason: "already resolved"}
	}
	if now.Unix() < m.DeadlineUnix {
		return &domain.ValidationError{Field: "market", Reason: "deadline has not passed"}
	}
	return nil
}

// watch hace polling de la confirmación hasta un estado terminal o timeout.
func (t *Tracker) watch(h *Handle) {
	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(t.cfg.ConfirmPoll)
	defer ticker.Stop()

	tx := h.TxHash()
	for {
		conf, err := t.submitter.Confirmation(ctx, tx)
		if err != nil {
			slog.Debug("confirmation poll failed", "handle", h.ID, "tx", tx.Hex(), "err", err)
		} else if t.observe(h, conf) {
			return
		}

		select {
		case <-ctx.Done():
			t.settleFailed(h, &domain.TransportError{Op: "confirm " + string(h.Kind), Err: ctx.Err()})
			return
		case <-ticker.C:
		}
	}
}

// observe aplica un reporte del transporte. Devuelve true si el handle quedó terminal.
func (t *Tracker) observe(h *Handle, conf domain.Confirmation) bool {
	switch conf.State {
	case domain.ConfirmUnknown:
		return false
	case domain.ConfirmPending:
		if h.State() == domain.WriteSubmitted {
			h.apply(domain.EventAccepted, nil)
			slog.Debug("write confirming", "handle", h.ID, "kind", h.Kind)
		}
		return false
	}

	// Final: puede llegar sin haber visto nunca el pending set.
	if h.State() == domain.WriteSubmitted {
		h.apply(domain.EventAccepted, nil)
	}
	if !conf.Success {
		t.settleFailed(h, &domain.WriteRejected{TxHash: h.TxHash().Hex(), Reason: conf.Reason})
		return true
	}
	if _, err := h.apply(domain.EventFinalized, nil); err != nil {
		slog.Warn("write finalize transition failed", "handle", h.ID, "err", err)
		t.settleFailed(h, fmt.Errorf("writes.observe: %w", err))
		return true
	}
	t.metrics.ObserveWrite(h.Kind, domain.WriteSucceeded)
	slog.Info("write confirmed", "handle", h.ID, "kind", h.Kind, "tx", h.TxHash().Hex())
	t.invalidateFor(h)
	h.release()
	return true
}

// invalidateFor refresca los agregadores afectados por una escritura confirmada.
func (t *Tracker) invalidateFor(h *Handle) {
	switch h.Kind {
	case domain.WriteCreateMarket, domain.WriteResolveMarket:
		t.markets.Invalidate()
	case domain.WritePlaceStake, domain.WriteClaimReward:
		t.markets.Invalidate()
		t.portfolio.InvalidateUser(h.Actor)
	}
}

func (t *Tracker) settleFailed(h *Handle, cause error) {
	t.mu.Lock()
	_, err := h.apply(domain.EventRejected, cause)
	if err == nil && t.latest[h.Kind] == h {
		t.lastErr = cause
	}
	t.mu.Unlock()
	if err != nil {
		// Ya terminal o nunca enviado: no hay estado que cambiar, pero Wait no puede quedar colgado.
		slog.Warn("write reject transition failed", "handle", h.ID, "err", err)
		h.release()
		return
	}

	t.metrics.ObserveWrite(h.Kind, domain.WriteFailed)
	slog.Warn("write failed", "handle", h.ID, "kind", h.Kind, "err", cause)
	h.release()
}

func (t *Tracker) setLastErr(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}
