package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound se devuelve cuando el ledger rechaza una lectura (p. ej. revert
// por id fuera de rango). Un registro en cero NO se traduce a ErrNotFound.
var ErrNotFound = errors.New("not found")

// ErrNoSigner indica que no hay clave configurada para enviar escrituras.
var ErrNoSigner = errors.New("no signer configured")

// TransportError envuelve un fallo de red/RPC. Es recuperable y no se reintenta.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PartialAggregationError indica que una o más lecturas de una pasada fallaron.
type PartialAggregationError struct {
	Scope  string // "markets" | "portfolio"
	Failed map[MarketID]error
	Total  int // lecturas por id intentadas
}

// FailedIDs devuelve los ids que fallaron en orden ascendente.
func (e *PartialAggregationError) FailedIDs() []MarketID {
	ids := make([]MarketID, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *PartialAggregationError) Error() string {
	ids := e.FailedIDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	msg := fmt.Sprintf("%s: %d of %d reads failed (ids %s)", e.Scope, len(ids), e.Total, strings.Join(parts, ","))
	if len(ids) > 0 {
		msg += ": " + e.Failed[ids[0]].Error()
	}
	return msg
}

// Unwrap expone los errores subyacentes para errors.As / errors.Is.
func (e *PartialAggregationError) Unwrap() []error {
	ids := e.FailedIDs()
	errs := make([]error, len(ids))
	for i, id := range ids {
		errs[i] = e.Failed[id]
	}
	return errs
}

// ValidationError es una restricción del lado cliente violada antes de enviar.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// WriteRejected indica que la escritura se envió pero el ledger la rechazó o revirtió.
// Reason es el texto que reporta el transporte, sin reinterpretar.
type WriteRejected struct {
	TxHash string
	Reason string
}

func (e *WriteRejected) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("write rejected: %s", e.Reason)
	}
	return fmt.Sprintf("write rejected (tx %s): %s", e.TxHash, e.Reason)
}
