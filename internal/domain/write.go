package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// WriteKind es el tipo de operación de escritura contra el ledger.
type WriteKind string

const (
	WriteCreateMarket  WriteKind = "CREATE_MARKET"
	WriteResolveMarket WriteKind = "RESOLVE_MARKET"
	WritePlaceStake    WriteKind = "PLACE_STAKE"
	WriteClaimReward   WriteKind = "CLAIM_REWARD"
)

// WriteState es el ciclo de vida de una escritura enviada.
type WriteState string

const (
	WriteIdle       WriteState = "IDLE"
	WriteSubmitted  WriteState = "SUBMITTED"
	WriteConfirming WriteState = "CONFIRMING"
	WriteSucceeded  WriteState = "SUCCEEDED"
	WriteFailed     WriteState = "FAILED"
)

// Terminal devuelve true para Succeeded y Failed, que nunca se abandonan.
func (s WriteState) Terminal() bool {
	return s == WriteSucceeded || s == WriteFailed
}

// WriteEvent es lo que reporta el caller o el transporte sobre una escritura.
type WriteEvent string

const (
	EventSubmit    WriteEvent = "submit"    // el caller entregó la escritura al transporte
	EventAccepted  WriteEvent = "accepted"  // la tx está en el pending set
	EventFinalized WriteEvent = "finalized" // receipt con status OK
	EventRejected  WriteEvent = "rejected"  // revert, rechazo o timeout
)

// Transition es la función de transición de la máquina de estados de escrituras.
func Transition(from WriteState, ev WriteEvent) (WriteState, error) {
	switch {
	case from == WriteIdle && ev == EventSubmit:
		return WriteSubmitted, nil
	case from == WriteSubmitted && ev == EventAccepted:
		return WriteConfirming, nil
	case from == WriteConfirming && ev == EventFinalized:
		return WriteSucceeded, nil
	case (from == WriteSubmitted || from == WriteConfirming) && ev == EventRejected:
		return WriteFailed, nil
	}
	return from, fmt.Errorf("domain.Transition: %s on %s", ev, from)
}

// WriteRequest es una escritura tipada. Solo uno de los campos de args está presente,
// el que corresponde a Kind.
type WriteRequest struct {
	Kind    WriteKind
	Create  *CreateMarketArgs
	Resolve *ResolveMarketArgs
	Stake   *PlaceStakeArgs
	Claim   *ClaimRewardArgs
}

// CreateMarketArgs son los argumentos de createEvent.
type CreateMarketArgs struct {
	Title        string
	Description  string
	DeadlineUnix int64
}

// ResolveMarketArgs son los argumentos de resolveEvent.
type ResolveMarketArgs struct {
	MarketID       MarketID
	WinningOutcome Outcome
}

// PlaceStakeArgs son los argumentos de placeBet. Stake viaja como value de la tx.
type PlaceStakeArgs struct {
	MarketID MarketID
	Outcome  Outcome
	Stake    *big.Int // wei
}

// ClaimRewardArgs son los argumentos de claimReward.
type ClaimRewardArgs struct {
	MarketID MarketID
}

// NewCreateMarket arma un WriteRequest de creación de mercado.
func NewCreateMarket(title, description string, deadline time.Time) WriteRequest {
	return WriteRequest{Kind: WriteCreateMarket, Create: &CreateMarketArgs{
		Title: title, Description: description, DeadlineUnix: deadline.Unix(),
	}}
}

// NewResolveMarket arma un WriteRequest de resolución.
func NewResolveMarket(id MarketID, winning Outcome) WriteRequest {
	return WriteRequest{Kind: WriteResolveMarket, Resolve: &ResolveMarketArgs{MarketID: id, WinningOutcome: winning}}
}

// NewPlaceStake arma un WriteRequest de apuesta.
func NewPlaceStake(id MarketID, outcome Outcome, stake *big.Int) WriteRequest {
	return WriteRequest{Kind: WritePlaceStake, Stake: &PlaceStakeArgs{MarketID: id, Outcome: outcome, Stake: stake}}
}

// NewClaimReward arma un WriteRequest de cobro.
func NewClaimReward(id MarketID) WriteRequest {
	return WriteRequest{Kind: WriteClaimReward, Claim: &ClaimRewardArgs{MarketID: id}}
}

// MarketID devuelve el mercado al que apunta la escritura (0 para CreateMarket).
func (r WriteRequest) MarketID() MarketID {
	switch r.Kind {
	case WriteResolveMarket:
		return r.Resolve.MarketID
	case WritePlaceStake:
		return r.Stake.MarketID
	case WriteClaimReward:
		return r.Claim.MarketID
	}
	return 0
}

// Validate aplica las restricciones sin estado externo. now es el instante de envío.
// Las comprobaciones que requieren lecturas (owner, deadline de ResolveMarket)
// las hace el tracker.
func (r WriteRequest) Validate(now time.Time) error {
	switch r.Kind {
	case WriteCreateMarket:
		if r.Create == nil {
			return &ValidationError{Field: "args", Reason: "missing create arguments"}
		}
		if strings.TrimSpace(r.Create.Title) == "" {
			return &ValidationError{Field: "title", Reason: "must not be empty"}
		}
		if r.Create.DeadlineUnix <= now.Unix() {
			return &ValidationError{Field: "deadline", Reason: "must be in the future"}
		}
	case WriteResolveMarket:
		if r.Resolve == nil {
			return &ValidationError{Field: "args", Reason: "missing resolve arguments"}
		}
		if !r.Resolve.WinningOutcome.Valid() {
			return &ValidationError{Field: "winning_outcome", Reason: fmt.Sprintf("%d not in {0,1,2}", r.Resolve.WinningOutcome)}
		}
	case WritePlaceStake:
		if r.Stake == nil {
			return &ValidationError{Field: "args", Reason: "missing stake arguments"}
		}
		if !r.Stake.Outcome.Valid() {
			return &ValidationError{Field: "outcome", Reason: fmt.Sprintf("%d not in {0,1,2}", r.Stake.Outcome)}
		}
		if r.Stake.Stake == nil || r.Stake.Stake.Sign() <= 0 {
			return &ValidationError{Field: "stake", Reason: "must be positive"}
		}
	case WriteClaimReward:
		if r.Claim == nil {
			return &ValidationError{Field: "args", Reason: "missing claim arguments"}
		}
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown write kind %q", r.Kind)}
	}
	return nil
}

// ConfirmationState es lo que el transporte sabe de una tx enviada.
type ConfirmationState int

const (
	ConfirmUnknown ConfirmationState = iota // todavía no visible en el nodo
	ConfirmPending                          // en el pending set
	ConfirmFinal                            // minada, ver Success
)

// Confirmation es el reporte del transporte sobre una tx.
type Confirmation struct {
	State   ConfirmationState
	Success bool
	Reason  string // texto del transporte cuando Success es false
}
