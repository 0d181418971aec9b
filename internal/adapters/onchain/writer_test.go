package onchain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/alejandrodnm/celopredict/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChainID = 11142220

// --- mocks ---

type mockBackend struct {
	mu          sync.Mutex
	nonce       uint64
	gasPrice    *big.Int
	gasPriceErr error
	estimate    uint64
	estimateErr error
	sendErr     error
	sent        []*types.Transaction
	lastCall    ethereum.CallMsg

	receipt    *types.Receipt
	receiptErr error
	byHashErr  error
}

func (m *mockBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return m.nonce, nil
}

func (m *mockBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return m.gasPrice, m.gasPriceErr
}

func (m *mockBackend) EstimateGas(_ context.Context, call ethereum.CallMsg) (uint64, error) {
	m.mu.Lock()
	m.lastCall = call
	m.mu.Unlock()
	return m.estimate, m.estimateErr
}

func (m *mockBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	m.sent = append(m.sent, tx)
	m.mu.Unlock()
	return nil
}

func (m *mockBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	return m.receipt, m.receiptErr
}

func (m *mockBackend) TransactionByHash(_ context.Context, _ common.Hash) (*types.Transaction, bool, error) {
	if m.byHashErr != nil {
		return nil, false, m.byHashErr
	}
	return &types.Transaction{}, true, nil
}

func newTestWriter(t *testing.T, backend *mockBackend) *Writer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w, err := NewWriter(backend, contractAddr, testChainID, "0x"+hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), w.From())
	return w
}

func TestNewWriter_InvalidKey(t *testing.T) {
	_, err := NewWriter(&mockBackend{}, contractAddr, testChainID, "not-a-key")
	require.Error(t, err)
}

func TestWriter_SubmitPlaceStake(t *testing.T) {
	backend := &mockBackend{nonce: 7, gasPrice: big.NewInt(1_000_000_000), estimate: 100_000}
	w := newTestWriter(t, backend)

	stake := big.NewInt(5e17)
	hash, err := w.Submit(context.Background(), domain.NewPlaceStake(3, 2, stake))
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash(), hash)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, contractAddr, *tx.To())
	assert.Equal(t, stake.String(), tx.Value().String())
	assert.Equal(t, uint64(120_000), tx.Gas(), "estimate +20%")
	assert.Equal(t, "1100000000", tx.GasPrice().String(), "suggested +10%")
	assert.Equal(t, []byte(ledgerABI.Methods["placeBet"].ID), tx.Data()[:4])

	args, err := ledgerABI.Methods["placeBet"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(3), args[0].(*big.Int).Int64())
	assert.Equal(t, uint8(2), args[1].(uint8))

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.From(), sender)

	assert.Equal(t, w.From(), backend.lastCall.From)
	assert.Equal(t, stake.String(), backend.lastCall.Value.String())
}

func TestWriter_SubmitClaimHasNoValue(t *testing.T) {
	backend := &mockBackend{gasPrice: big.NewInt(1), estimate: 50_000}
	w := newTestWriter(t, backend)

	_, err := w.Submit(context.Background(), domain.NewClaimReward(9))
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	assert.Zero(t, backend.sent[0].Value().Sign())
	assert.Equal(t, []byte(ledgerABI.Methods["claimReward"].ID), backend.sent[0].Data()[:4])
}

func TestWriter_SubmitCreateMarketPacksArgs(t *testing.T) {
	backend := &mockBackend{gasPrice: big.NewInt(1), estimate: 200_000}
	w := newTestWriter(t, backend)

	req := domain.WriteRequest{Kind: domain.WriteCreateMarket, Create: &domain.CreateMarketArgs{
		Title: "Boca vs River", Description: "final", DeadlineUnix: 1_800_000_000,
	}}
	_, err := w.Submit(context.Background(), req)
	require.NoError(t, err)

	args, err := ledgerABI.Methods["createEvent"].Inputs.Unpack(backend.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, "Boca vs River", args[0])
	assert.Equal(t, "final", args[1])
	assert.Equal(t, int64(1_800_000_000), args[2].(*big.Int).Int64())
}

func TestWriter_EstimateRevertIsRejection(t *testing.T) {
	backend := &mockBackend{gasPrice: big.NewInt(1), estimateErr: errors.New("execution reverted: betting closed")}
	w := newTestWriter(t, backend)

	_, err := w.Submit(context.Background(), domain.NewPlaceStake(1, 0, big.NewInt(1)))

	var rejected *domain.WriteRejected
	require.True(t, errors.As(err, &rejected))
	assert.Contains(t, rejected.Reason, "betting closed")
	assert.Empty(t, backend.sent)
}

func TestWriter_EstimateFailureUsesFallbackLimit(t *testing.T) {
	backend := &mockBackend{gasPrice: big.NewInt(1), estimateErr: errors.New("timeout")}
	w := newTestWriter(t, backend)

	_, err := w.Submit(context.Background(), domain.NewClaimReward(1))
	require.NoError(t, err)
	assert.Equal(t, fallbackGasLimit[domain.WriteClaimReward]*12/10, backend.sent[0].Gas())
}

func TestWriter_GasPriceFallback(t *testing.T) {
	backend := &mockBackend{gasPriceErr: errors.New("rpc down"), estimate: 1}
	w := newTestWriter(t, backend)

	_, err := w.Submit(context.Background(), domain.NewClaimReward(1))
	require.NoError(t, err)
	assert.Equal(t, int64(fallbackGasPriceWei), backend.sent[0].GasPrice().Int64())
}

func TestWriter_SendError(t *testing.T) {
	backend := &mockBackend{gasPrice: big.NewInt(1), estimate: 1, sendErr: errors.New("nonce too low")}
	w := newTestWriter(t, backend)

	_, err := w.Submit(context.Background(), domain.NewClaimReward(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestWriter_Confirmation(t *testing.T) {
	tests := []struct {
		name    string
		backend *mockBackend
		want    domain.Confirmation
		wantErr bool
	}{
		{
			name:    "receipt success",
			backend: &mockBackend{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}},
			want:    domain.Confirmation{State: domain.ConfirmFinal, Success: true},
		},
		{
			name:    "not visible yet",
			backend: &mockBackend{receiptErr: ethereum.NotFound, byHashErr: ethereum.NotFound},
			want:    domain.Confirmation{State: domain.ConfirmUnknown},
		},
		{
			name:    "pending",
			backend: &mockBackend{receiptErr: ethereum.NotFound},
			want:    domain.Confirmation{State: domain.ConfirmPending},
		},
		{
			name:    "receipt transport error",
			backend: &mockBackend{receiptErr: errors.New("timeout")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWriter(t, tt.backend)
			got, err := w.Confirmation(context.Background(), common.HexToHash("0x01"))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriter_ConfirmationReverted(t *testing.T) {
	backend := &mockBackend{receipt: &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(123),
		GasUsed:     21_000,
	}}
	w := newTestWriter(t, backend)

	got, err := w.Confirmation(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmFinal, got.State)
	assert.False(t, got.Success)
	assert.Contains(t, got.Reason, "block 123")
}
