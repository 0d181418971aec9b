package domain

import "time"

// Phase es la fase temporal de un mercado.
type Phase int

const (
	PhaseLive Phase = iota
	PhaseClosed
	PhaseResolved
)

// String devuelve la etiqueta que se muestra al usuario.
func (p Phase) String() string {
	switch p {
	case PhaseLive:
		return "Live"
	case PhaseClosed:
		return "Betting closed"
	case PhaseResolved:
		return "Resolved"
	default:
		return "Unknown"
	}
}

// PositionStatus es el estado de liquidación de una posición.
type PositionStatus int

const (
	StatusPendingResolution PositionStatus = iota
	StatusLost
	StatusClaimed
	StatusWonClaimable
	StatusNoPosition
)

func (s PositionStatus) String() string {
	switch s {
	case StatusPendingResolution:
		return "Pending resolution"
	case StatusLost:
		return "Lost"
	case StatusClaimed:
		return "Claimed"
	case StatusWonClaimable:
		return "Won - claimable"
	case StatusNoPosition:
		return "No position"
	default:
		return "Unknown"
	}
}

// PositionView es el resultado de derivar el estado de una posición.
type PositionView struct {
	Status    PositionStatus
	Claimable bool
}

// DerivePhase calcula la fase de un mercado en el instante now.
// La comparación se hace siempre en segundos Unix, igual que el deadline del ledger.
func DerivePhase(m Market, now time.Time) Phase {
	if m.Resolved {
		return PhaseResolved
	}
	if now.Unix() >= m.DeadlineUnix {
		return PhaseClosed
	}
	return PhaseLive
}

// CanStake devuelve true si el mercado todavía acepta apuestas.
func CanStake(m Market, now time.Time) bool {
	return DerivePhase(m, now) == PhaseLive
}

// DerivePositionStatus evalúa una posición contra los campos resolved/winningOutcome
// del propio mercado. Los subtotales del pool no participan nunca.
// El registro en cero que el ledger devuelve sin apuesta da StatusNoPosition.
func DerivePositionStatus(m Market, p Position) PositionView {
	if !p.Exists() {
		return PositionView{Status: StatusNoPosition}
	}
	if !m.Resolved {
		return PositionView{Status: StatusPendingResolution}
	}
	if p.Outcome != m.WinningOutcome {
		return PositionView{Status: StatusLost}
	}
	if p.Claimed {
		return PositionView{Status: StatusClaimed}
	}
	return PositionView{Status: StatusWonClaimable, Claimable: true}
}

// SplitMarkets separa los mercados en vivos (activos y antes del deadline)
// y pasados, preservando el orden de entrada.
func SplitMarkets(markets []Market, now time.Time) (live, past []Market) {
	for _, m := range markets {
		if m.Active && now.Unix() < m.DeadlineUnix {
			live = append(live, m)
		} else {
			past = append(past, m)
		}
	}
	return live, past
}
