package writes

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Handle sigue una escritura enviada desde Submitted hasta su estado terminal.
// Es propiedad exclusiva del tracker mientras vive y no se persiste.
type Handle struct {
	ID      uuid.UUID
	Kind    domain.WriteKind
	Request domain.WriteRequest
	Actor   common.Address

	mu          sync.RWMutex
	state       domain.WriteState
	tx          common.Hash
	err         error
	submittedAt time.Time
	settledAt   time.Time
	done        chan struct{}
	releaseOnce sync.Once
}

// HandleSnapshot es una copia consistente del estado de un Handle.
type HandleSnapshot struct {
	ID          uuid.UUID
	Kind        domain.WriteKind
	MarketID    domain.MarketID
	State       domain.WriteState
	TxHash      common.Hash
	Err         error
	SubmittedAt time.Time
	SettledAt   time.Time
}

func newHandle(req domain.WriteRequest, actor common.Address) *Handle {
	return &Handle{
		ID:      uuid.New(),
		Kind:    req.Kind,
		Request: req,
		Actor:   actor,
		state:   domain.WriteIdle,
		done:    make(chan struct{}),
	}
}

// State devuelve el estado actual.
func (h *Handle) State() domain.WriteState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// TxHash devuelve el hash de la tx, vacío si el envío falló.
func (h *Handle) TxHash() common.Hash {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tx
}

// Err devuelve el error de una escritura fallida.
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Done se cierra cuando la escritura terminó y sus efectos ya se dispararon.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait bloquea hasta el estado terminal y devuelve el error de la escritura, si lo hay.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot devuelve una copia del estado.
func (h *Handle) Snapshot() HandleSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HandleSnapshot{
		ID:          h.ID,
		Kind:        h.Kind,
		MarketID:    h.Request.MarketID(),
		State:       h.state,
		TxHash:      h.tx,
		Err:         h.err,
		SubmittedAt: h.submittedAt,
		SettledAt:   h.settledAt,
	}
}

// apply aplica un evento a la máquina de estados. cause se guarda si el
// resultado es Failed. No libera a los Wait: eso lo hace release.
func (h *Handle) apply(ev domain.WriteEvent, cause error) (domain.WriteState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := domain.Transition(h.state, ev)
	if err != nil {
		return h.state, err
	}
	h.state = next
	now := time.Now()
	switch next {
	case domain.WriteSubmitted:
		h.submittedAt = now
	case domain.WriteFailed:
		h.err = cause
	}
	if next.Terminal() {
		h.settledAt = now
	}
	return next, nil
}

// release despierta a quienes esperan en Wait. Se llama después de aplicar el
// estado terminal; llamadas repetidas no hacen nada.
func (h *Handle) release() {
	h.releaseOnce.Do(func() { close(h.done) })
}

func (h *Handle) setTx(tx common.Hash) {
	h.mu.Lock()
	h.tx = tx
	h.mu.Unlock()
}
