package session

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Identity es el usuario conectado del proceso. Se inyecta en los agregadores
// y en el tracker de escrituras en lugar de leerse de un global.
type Identity struct {
	mu       sync.RWMutex
	user     *common.Address
	watchers map[int]func(*common.Address)
	nextID   int
}

// NewIdentity crea una identidad, opcionalmente ya conectada.
func NewIdentity(user *common.Address) *Identity {
	id := &Identity{watchers: make(map[int]func(*common.Address))}
	if user != nil {
		u := *user
		id.user = &u
	}
	return id
}

// Current devuelve una copia del usuario conectado, o nil.
func (i *Identity) Current() *common.Address {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.user == nil {
		return nil
	}
	u := *i.user
	return &u
}

// Set conecta user. Notifica a los watchers solo si cambió.
func (i *Identity) Set(user common.Address) {
	i.update(&user)
}

// Clear desconecta al usuario.
func (i *Identity) Clear() {
	i.update(nil)
}

// Watch registra fn para cambios de identidad. Devuelve la cancelación.
func (i *Identity) Watch(fn func(*common.Address)) (cancel func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.nextID++
	id := i.nextID
	i.watchers[id] = fn
	return func() {
		i.mu.Lock()
		delete(i.watchers, id)
		i.mu.Unlock()
	}
}

func (i *Identity) update(user *common.Address) {
	i.mu.Lock()
	if sameUser(i.user, user) {
		i.mu.Unlock()
		return
	}
	i.user = user
	fns := make([]func(*common.Address), 0, len(i.watchers))
	for _, fn := range i.watchers {
		fns = append(fns, fn)
	}
	i.mu.Unlock()

	for _, fn := range fns {
		var u *common.Address
		if user != nil {
			c := *user
			u = &c
		}
		fn(u)
	}
}

func sameUser(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
