package wallet

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/megalucky/internal/chain"
	"github.com/alanyoungcy/megalucky/internal/domain"
	"github.com/alanyoungcy/megalucky/internal/logging"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeTxBackend struct {
	baseFee *big.Int
	nonce   uint64
	sendErr error
	sent    []*types.Transaction
}

func (f *fakeTxBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}
func (f *fakeTxBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}
func (f *fakeTxBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(7), nil }
func (f *fakeTxBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: f.baseFee}, nil
}
func (f *fakeTxBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func TestLoadKeyEmptySourceMeansNoWallet(t *testing.T) {
	_, err := LoadKey(KeySource{})
	require.ErrorIs(t, err, domain.ErrNoWallet)
	assert.True(t, KeySource{}.Empty())
}

func TestLoadKeyRejectsBadHex(t *testing.T) {
	_, err := LoadKey(KeySource{RawPrivateKey: "zz"})
	require.Error(t, err)
}

func TestEncryptDecryptKeyFile(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	blob, err := EncryptKey(key, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	loaded, err := LoadKey(KeySource{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), ethcrypto.PubkeyToAddress(loaded.PublicKey))

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
	_, err = EncryptKey(key, "")
	require.Error(t, err)
}

func TestAccessorWithoutKey(t *testing.T) {
	a := NewAccessor(nil, &fakeTxBackend{}, big.NewInt(6342), logging.Nop())
	assert.False(t, a.Connected())

	_, err := a.ConnectedAddress()
	require.ErrorIs(t, err, domain.ErrNoWallet)

	_, err = a.WriteContract(context.Background(), chain.PreparedCall{})
	require.ErrorIs(t, err, domain.ErrNoWallet)
}

func TestWriteContractDynamicFee(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	backend := &fakeTxBackend{baseFee: big.NewInt(10), nonce: 5}
	a := NewAccessor(key, backend, big.NewInt(6342), logging.Nop())

	addr, err := a.ConnectedAddress()
	require.NoError(t, err)

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	hash, err := a.WriteContract(context.Background(), chain.PreparedCall{
		From: addr, To: to, Method: "buyRandomTickets", Data: []byte{1, 2, 3, 4}, Gas: 90_000,
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, uint64(90_000), tx.Gas())
	assert.Equal(t, int64(22), tx.GasFeeCap().Int64())
	assert.Equal(t, to, *tx.To())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(6342)), tx)
	require.NoError(t, err)
	assert.Equal(t, addr, sender)
}

func TestWriteContractLegacyWhenNoBaseFee(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	backend := &fakeTxBackend{}
	a := NewAccessor(key, backend, big.NewInt(6342), logging.Nop())

	_, err = a.WriteContract(context.Background(), chain.PreparedCall{To: common.Address{1}, Gas: 21000})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, uint8(types.LegacyTxType), backend.sent[0].Type())
	assert.Equal(t, int64(7), backend.sent[0].GasPrice().Int64())
}

func TestWriteContractRejectsForeignSender(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	a := NewAccessor(key, &fakeTxBackend{}, big.NewInt(6342), logging.Nop())

	_, err = a.WriteContract(context.Background(), chain.PreparedCall{From: common.Address{9}})
	require.Error(t, err)
}

func TestWriteContractWrapsSendFailure(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	cause := errors.New("user rejected")
	a := NewAccessor(key, &fakeTxBackend{sendErr: cause}, big.NewInt(6342), logging.Nop())

	_, err = a.WriteContract(context.Background(), chain.PreparedCall{To: common.Address{1}, Method: "approve"})
	require.ErrorIs(t, err, cause)
	var cce *domain.ContractCallError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, domain.OpSend, cce.Op)
}
