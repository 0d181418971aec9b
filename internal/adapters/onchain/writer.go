package onchain

// writer.go: envío firmado de escrituras al contrato CeloPredict.
//
// Por cada escritura:
//   - empaqueta el calldata (placeBet adjunta el stake como value)
//   - estima gas con +20% de margen, con fallback a un límite fijo por operación
//   - firma con la clave configurada y envía
//
// La confirmación no bloquea: Confirmation consulta receipt / pending set y el
// tracker de escrituras es quien hace polling.

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/time/rate"
)

const (
	gasPriceUpdateInterval = 5 * time.Minute
	fallbackGasPriceWei    = 25_000_000_000 // 25 gwei

	writeRatePerSec = 2
)

// Límites de gas conservadores si la estimación falla.
var fallbackGasLimit = map[domain.WriteKind]uint64{
	domain.WriteCreateMarket:  300_000,
	domain.WriteResolveMarket: 120_000,
	domain.WritePlaceStake:    200_000,
	domain.WriteClaimReward:   150_000,
}

// Backend es lo que el Writer necesita del nodo. *ethclient.Client lo cumple.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
}

// Writer implementa ports.WriteSubmitter.
type Writer struct {
	backend  Backend
	contract common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	address  common.Address
	limiter  *rate.Limiter

	// nonceMu serializa nonce + send para no reutilizar nonces en envíos concurrentes.
	nonceMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewWriter crea un Writer firmando con privateKeyHex (con o sin prefijo 0x).
func NewWriter(backend Backend, contract common.Address, chainID int64, privateKeyHex string) (*Writer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewWriter: invalid private key: %w", err)
	}
	return &Writer{
		backend:  backend,
		contract: contract,
		chainID:  big.NewInt(chainID),
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		limiter:  rate.NewLimiter(writeRatePerSec, 1),
	}, nil
}

// From devuelve la cuenta firmante.
func (w *Writer) From() common.Address {
	return w.address
}

// Submit firma y envía la escritura. Devuelve el hash en cuanto el nodo acepta la tx.
func (w *Writer) Submit(ctx context.Context, req domain.WriteRequest) (common.Hash, error) {
	data, value, err := packWrite(req)
	if err != nil {
		return common.Hash{}, err
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return common.Hash{}, fmt.Errorf("onchain.Submit: rate limiter: %w", err)
	}

	gasPrice, err := w.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("onchain.Submit: gas price: %w", err)
	}

	gasLimit, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     w.address,
		To:       &w.contract,
		GasPrice: gasPrice,
		Value:    value,
		Data:     data,
	})
	if err != nil {
		// Un revert en la estimación es un rechazo del ledger, no un fallo de red.
		if isRevert(err) {
			return common.Hash{}, &domain.WriteRejected{Reason: err.Error()}
		}
		gasLimit = fallbackGasLimit[req.Kind]
		slog.Warn("onchain: gas estimate failed, using default", "kind", req.Kind, "err", err, "limit", gasLimit)
	}
	gasLimit = gasLimit * 12 / 10

	w.nonceMu.Lock()
	defer w.nonceMu.Unlock()

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("onchain.Submit: nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &w.contract,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("onchain.Submit: sign tx: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("onchain.Submit: send tx: %w", err)
	}

	slog.Info("onchain: transaction sent",
		"kind", req.Kind,
		"market_id", req.MarketID(),
		"tx", signed.Hash().Hex(),
		"nonce", nonce,
	)
	return signed.Hash(), nil
}

// Confirmation consulta el receipt y, si todavía no existe, el pending set.
func (w *Writer) Confirmation(ctx context.Context, txHash common.Hash) (domain.Confirmation, error) {
	receipt, err := w.backend.TransactionReceipt(ctx, txHash)
	if err == nil {
		if receipt.Status == types.ReceiptStatusSuccessful {
			return domain.Confirmation{State: domain.ConfirmFinal, Success: true}, nil
		}
		return domain.Confirmation{
			State:  domain.ConfirmFinal,
			Reason: fmt.Sprintf("transaction reverted on-chain (block %s, gas used %d)", receipt.BlockNumber, receipt.GasUsed),
		}, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return domain.Confirmation{}, fmt.Errorf("onchain.Confirmation: receipt: %w", err)
	}

	_, _, err = w.backend.TransactionByHash(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return domain.Confirmation{State: domain.ConfirmUnknown}, nil
	}
	if err != nil {
		return domain.Confirmation{}, fmt.Errorf("onchain.Confirmation: tx by hash: %w", err)
	}
	// Visible en el nodo, pendiente o minada sin receipt indexado todavía.
	return domain.Confirmation{State: domain.ConfirmPending}, nil
}

// gasPrice devuelve el gas price cacheado o lo refresca cada 5 minutos (+10%).
func (w *Writer) gasPrice(ctx context.Context) (*big.Int, error) {
	w.mu.RLock()
	cached := w.cachedGasWei
	updatedAt := w.gasUpdatedAt
	w.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		slog.Warn("onchain: gas price unavailable, using fallback", "err", err)
		return big.NewInt(fallbackGasPriceWei), nil
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	w.mu.Lock()
	w.cachedGasWei = buffered
	w.gasUpdatedAt = time.Now()
	w.mu.Unlock()

	return buffered, nil
}

// packWrite traduce un WriteRequest a calldata y value.
func packWrite(req domain.WriteRequest) ([]byte, *big.Int, error) {
	var (
		data  []byte
		value = new(big.Int)
		err   error
	)
	switch req.Kind {
	case domain.WriteCreateMarket:
		a := req.Create
		data, err = ledgerABI.Pack("createEvent", a.Title, a.Description, big.NewInt(a.DeadlineUnix))
	case domain.WriteResolveMarket:
		a := req.Resolve
		data, err = ledgerABI.Pack("resolveEvent", new(big.Int).SetUint64(uint64(a.MarketID)), uint8(a.WinningOutcome))
	case domain.WritePlaceStake:
		a := req.Stake
		data, err = ledgerABI.Pack("placeBet", new(big.Int).SetUint64(uint64(a.MarketID)), uint8(a.Outcome))
		value = new(big.Int).Set(a.Stake)
	case domain.WriteClaimReward:
		data, err = ledgerABI.Pack("claimReward", new(big.Int).SetUint64(uint64(req.Claim.MarketID)))
	default:
		return nil, nil, fmt.Errorf("onchain.packWrite: unknown kind %q", req.Kind)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("onchain.packWrite: %s: %w", req.Kind, err)
	}
	return data, value, nil
}
