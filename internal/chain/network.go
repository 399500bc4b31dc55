// Package chain talks to the lottery and payment token contracts over
// JSON-RPC: contract reads, dry-run simulation, and receipt polling.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Currency describes a chain's native currency.
type Currency struct {
	Name     string
	Symbol   string
	Decimals int
}

// Network is a static description of the target chain.
type Network struct {
	ID             *big.Int
	Name           string
	RPCURL         string
	ExplorerName   string
	ExplorerURL    string
	Multicall3     common.Address
	NativeCurrency Currency
	Testnet        bool
}

// MegaTestnet returns the MEGA testnet description.
func MegaTestnet() Network {
	return Network{
		ID:           big.NewInt(6342),
		Name:         "MEGA Testnet",
		RPCURL:       "https://carrot.megaeth.com/rpc",
		ExplorerName: "MegaExplorer",
		ExplorerURL:  "https://megaexplorer.xyz",
		Multicall3:   common.HexToAddress("0xca11bde05977b3631167028862be2a173976ca11"),
		NativeCurrency: Currency{
			Name:     "Ethereum",
			Symbol:   "ETH",
			Decimals: 18,
		},
		Testnet: true,
	}
}

// TxURL links a transaction on the block explorer.
func (n Network) TxURL(hash common.Hash) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + hash.Hex()
}

// AddressURL links an account on the block explorer.
func (n Network) AddressURL(addr common.Address) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/address/" + addr.Hex()
}

// Dial connects to rpcURL and checks that the node serves the expected chain.
// A nil expectedID skips the check.
func Dial(ctx context.Context, rpcURL string, expectedID *big.Int) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(rpcURL)
	if trimmed == "" {
		return nil, fmt.Errorf("chain: rpc url required")
	}
	client, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", trimmed, err)
	}
	if expectedID != nil {
		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("chain: chain id: %w", err)
		}
		if id.Cmp(expectedID) != 0 {
			client.Close()
			return nil, fmt.Errorf("chain: rpc serves chain %s, want %s", id, expectedID)
		}
	}
	return client, nil
}
