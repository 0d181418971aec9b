package refresh

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval es el intervalo de polling por defecto.
const DefaultInterval = 10 * time.Second

// Target es cualquier cosa que el poller pueda disparar en cada tick.
type Target interface {
	Invalidate()
}

// Poller es el timer compartido por todos los agregadores del proceso.
//
// El ticker arranca con el primer Attach y se detiene cuando se desengancha
// el último target. Un Attach posterior lo vuelve a arrancar.
type Poller struct {
	interval time.Duration

	mu      sync.Mutex
	targets map[uint64]Target
	nextID  uint64
	stop    chan struct{}
	stopped chan struct{}
}

// NewPoller crea un Poller con el intervalo dado (DefaultInterval si <= 0).
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		targets:  make(map[uint64]Target),
	}
}

// Interval devuelve el intervalo configurado.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Attach registra t y devuelve la función que lo desengancha. Es idempotente.
func (p *Poller) Attach(t Target) (detach func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.targets[id] = t
	if len(p.targets) == 1 {
		p.start()
	}

	var once sync.Once
	return func() {
		once.Do(func() { p.detach(id) })
	}
}

// Active devuelve true si el ticker está corriendo.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *Poller) detach(id uint64) {
	p.mu.Lock()
	delete(p.targets, id)
	if len(p.targets) > 0 || p.stop == nil {
		p.mu.Unlock()
		return
	}
	stop, stopped := p.stop, p.stopped
	p.stop, p.stopped = nil, nil
	p.mu.Unlock()

	close(stop)
	<-stopped
	slog.Debug("poller stopped, no consumers left")
}

// start debe llamarse con mu tomado.
func (p *Poller) start() {
	// Un detach anterior puede seguir esperando a su goroutine; esta es independiente.
	stop := make(chan struct{})
	stopped := make(chan struct{})
	p.stop, p.stopped = stop, stopped

	slog.Debug("poller started", "interval", p.interval)
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, t := range p.snapshot() {
					t.Invalidate()
				}
			}
		}
	}()
}

func (p *Poller) snapshot() []Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Target, 0, len(p.targets))
	for _, t := range p.targets {
		out = append(out, t)
	}
	return out
}
