package onchain

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/rpc"
)

// ledgerABI es el subconjunto del contrato CeloPredict que usa el cliente.
var ledgerABI abi.ABI

func init() {
	var err error
	ledgerABI, err = abi.JSON(strings.NewReader(`[
		{"type":"function","name":"owner","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"eventCount","stateMutability":"view","inputs":[],
		 "outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"getEvent","stateMutability":"view",
		 "inputs":[{"name":"eventId","type":"uint256"}],
		 "outputs":[{"name":"","type":"tuple","components":[
			{"name":"title","type":"string"},
			{"name":"description","type":"string"},
			{"name":"deadline","type":"uint256"},
			{"name":"resolved","type":"bool"},
			{"name":"winningOutcome","type":"uint8"},
			{"name":"active","type":"bool"}]}]},
		{"type":"function","name":"getPool","stateMutability":"view",
		 "inputs":[{"name":"eventId","type":"uint256"}],
		 "outputs":[{"name":"total","type":"uint256"},{"name":"o0","type":"uint256"},
			{"name":"o1","type":"uint256"},{"name":"o2","type":"uint256"}]},
		{"type":"function","name":"getBet","stateMutability":"view",
		 "inputs":[{"name":"eventId","type":"uint256"},{"name":"user","type":"address"}],
		 "outputs":[{"name":"","type":"tuple","components":[
			{"name":"amount","type":"uint256"},
			{"name":"outcome","type":"uint8"},
			{"name":"claimed","type":"bool"}]}]},
		{"type":"function","name":"getUserEvents","stateMutability":"view",
		 "inputs":[{"name":"user","type":"address"}],
		 "outputs":[{"name":"","type":"uint256[]"}]},
		{"type":"function","name":"placeBet","stateMutability":"payable",
		 "inputs":[{"name":"eventId","type":"uint256"},{"name":"outcome","type":"uint8"}],"outputs":[]},
		{"type":"function","name":"claimReward","stateMutability":"nonpayable",
		 "inputs":[{"name":"eventId","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"createEvent","stateMutability":"nonpayable",
		 "inputs":[{"name":"_title","type":"string"},{"name":"_description","type":"string"},
			{"name":"_deadline","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"resolveEvent","stateMutability":"nonpayable",
		 "inputs":[{"name":"eventId","type":"uint256"},{"name":"winningOutcome","type":"uint8"}],"outputs":[]}
	]`))
	if err != nil {
		panic("ledger abi parse: " + err.Error())
	}
}

// eventTuple es el layout de getEvent. Los nombres siguen los componentes del ABI.
type eventTuple struct {
	Title          string
	Description    string
	Deadline       *big.Int
	Resolved       bool
	WinningOutcome uint8
	Active         bool
}

// betTuple es el layout de getBet.
type betTuple struct {
	Amount  *big.Int
	Outcome uint8
	Claimed bool
}

// isRevert detecta un "execution reverted" devuelto por eth_call.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
