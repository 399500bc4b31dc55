package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/megalucky/internal/cache/memory"
	"github.com/alanyoungcy/megalucky/internal/config"
	"github.com/alanyoungcy/megalucky/internal/logging"
)

// fakeRPC answers eth_chainId and eth_blockNumber for chain 6342.
func fakeRPC(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = "0x18c6"
		case "eth_blockNumber":
			resp["result"] = "0x2a"
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(rpcURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Chain.RPCURL = rpcURL
	cfg.Contracts.Lottery = "0x1111111111111111111111111111111111111111"
	cfg.Contracts.Token = "0x2222222222222222222222222222222222222222"
	return &cfg
}

func TestWireFallsBackToMemory(t *testing.T) {
	cfg := testConfig(fakeRPC(t).URL)

	deps, cleanup, err := Wire(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.PurchaseStore{}, deps.PurchaseStore)
	assert.IsType(t, &memory.AuditStore{}, deps.AuditStore)
	assert.IsType(t, &memory.AccessStore{}, deps.AccessStore)
	assert.IsType(t, &memory.SnapshotCache{}, deps.SnapshotCache)
	assert.IsType(t, &memory.RateLimiter{}, deps.RateLimiter)
	assert.IsType(t, &memory.LockManager{}, deps.LockManager)
	assert.IsType(t, &memory.SignalBus{}, deps.SignalBus)
	assert.Nil(t, deps.DrawArchive)
	assert.False(t, deps.Notifier.Enabled())
	assert.False(t, deps.Wallet.Connected())
	assert.NotNil(t, deps.Lottery)

	require.Len(t, deps.HealthChecks, 1)
	assert.NoError(t, deps.HealthChecks["chain"](context.Background()))
	assert.Equal(t, "MEGA Testnet", deps.Network.Name)
	assert.Equal(t, int64(6342), deps.Network.ID.Int64())
}

func TestWireConnectsWallet(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	cfg := testConfig(fakeRPC(t).URL)
	cfg.Wallet.PrivateKey = hexutil.Encode(ethcrypto.FromECDSA(key))
	cfg.Notify.DiscordWebhookURL = "https://discord.example/webhook"

	deps, cleanup, err := Wire(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	defer cleanup()

	addr, err := deps.Wallet.ConnectedAddress()
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), addr)
	assert.True(t, deps.Notifier.Enabled())
}

func TestWireRejectsBadWallet(t *testing.T) {
	cfg := testConfig(fakeRPC(t).URL)
	cfg.Wallet.PrivateKey = "not-a-key"

	_, _, err := Wire(context.Background(), cfg, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire: wallet")
}

func TestWireRejectsWrongChain(t *testing.T) {
	cfg := testConfig(fakeRPC(t).URL)
	cfg.Chain.ID = 1

	_, _, err := Wire(context.Background(), cfg, logging.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire: chain")
}

func TestNetworkOverrides(t *testing.T) {
	n := network(config.ChainConfig{
		ID:          31337,
		Name:        "local",
		RPCURL:      "http://127.0.0.1:8545",
		ExplorerURL: "https://explorer.local/",
	})
	assert.Equal(t, int64(31337), n.ID.Int64())
	assert.Equal(t, "local", n.Name)
	assert.Equal(t, "MegaExplorer", n.ExplorerName)
	assert.Equal(t, "https://explorer.local/address/0x0000000000000000000000000000000000000000", n.AddressURL(common.Address{}))
	assert.False(t, n.Testnet)
}
