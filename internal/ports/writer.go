package ports

import (
	"context"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// WriteSubmitter firma y envía escrituras al ledger y reporta su confirmación.
type WriteSubmitter interface {
	// Submit entrega la escritura al transporte y devuelve el hash de la tx.
	Submit(ctx context.Context, req domain.WriteRequest) (common.Hash, error)

	// Confirmation devuelve el estado actual de una tx enviada.
	Confirmation(ctx context.Context, tx common.Hash) (domain.Confirmation, error)

	// From devuelve la cuenta que firma las escrituras.
	From() common.Address
}

// Invalidator es cualquier agregador que pueda forzar una nueva pasada.
type Invalidator interface {
	Invalidate()
}
