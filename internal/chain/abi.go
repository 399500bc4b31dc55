package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Lottery contract method names.
const (
	MethodCurrentState      = "currentState"
	MethodCurrentLotteryID  = "currentLotteryId"
	MethodCurrentDrawTime   = "currentDrawTime"
	MethodTicketPrice       = "ticketPrice"
	MethodGetUserTickets    = "getUserTickets"
	MethodGetWinningNumbers = "getWinningNumbers"
	MethodGetTotalPrizes    = "getTotalPrizes"
	MethodBuyRandomTickets  = "buyRandomTickets"
	MethodBuyCustomTicket   = "buyCustomTicket"
)

// ERC-20 method names.
const (
	MethodAllowance = "allowance"
	MethodApprove   = "approve"
	MethodBalanceOf = "balanceOf"
)

const lotteryABIJSON = `[
  {"type":"function","name":"currentState","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"currentLotteryId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"currentDrawTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"ticketPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getUserTickets","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint8[6][]"}]},
  {"type":"function","name":"getWinningNumbers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8[6]"}]},
  {"type":"function","name":"getTotalPrizes","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"buyRandomTickets","stateMutability":"nonpayable","inputs":[{"name":"count","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"buyCustomTicket","stateMutability":"nonpayable","inputs":[{"name":"numbers","type":"uint8[6]"}],"outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	lotteryABI = mustParseABI(lotteryABIJSON)
	erc20ABI   = mustParseABI(erc20ABIJSON)
)

// LotteryABI returns the parsed lottery contract ABI.
func LotteryABI() *abi.ABI { return &lotteryABI }

// ERC20ABI returns the parsed payment token ABI.
func ERC20ABI() *abi.ABI { return &erc20ABI }

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: parse abi: " + err.Error())
	}
	return parsed
}
