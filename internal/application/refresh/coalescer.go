package refresh

import (
	"context"
	"sync"
)

// Coalescer ejecuta pasadas de agregación de a una.
//
// Un Trigger con una pasada en curso no lanza otra: marca rerun y la pasada
// en curso encadena exactamente una pasada más al terminar. N triggers
// durante una pasada producen una sola pasada extra.
type Coalescer struct {
	ctx  context.Context
	pass func(ctx context.Context)

	mu      sync.Mutex
	running bool
	rerun   bool
	started uint64        // pasadas iniciadas
	done    uint64        // pasadas terminadas
	changed chan struct{} // se cierra y reemplaza en cada pasada terminada
}

// NewCoalescer crea un Coalescer. ctx acota la vida de todas las pasadas.
func NewCoalescer(ctx context.Context, pass func(ctx context.Context)) *Coalescer {
	return &Coalescer{
		ctx:     ctx,
		pass:    pass,
		changed: make(chan struct{}),
	}
}

// Trigger pide una pasada y devuelve el número de la pasada que la satisface.
func (c *Coalescer) Trigger() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.rerun = true
		return c.started + 1
	}
	c.running = true
	c.started++
	go c.loop()
	return c.started
}

// Wait bloquea hasta que la pasada ticket haya terminado o ctx se cancele.
func (c *Coalescer) Wait(ctx context.Context, ticket uint64) error {
	for {
		c.mu.Lock()
		if c.done >= ticket {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

// Running devuelve true si hay una pasada en curso.
func (c *Coalescer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Passes devuelve cuántas pasadas terminaron.
func (c *Coalescer) Passes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Coalescer) loop() {
	for {
		if c.ctx.Err() == nil {
			c.pass(c.ctx)
		}

		c.mu.Lock()
		c.done++
		close(c.changed)
		c.changed = make(chan struct{})
		if c.rerun && c.ctx.Err() == nil {
			c.rerun = false
			c.started++
			c.mu.Unlock()
			continue
		}
		c.rerun = false
		c.running = false
		c.mu.Unlock()
		return
	}
}
