package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

const balanceOfABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var tokenABI = mustParseABI(balanceOfABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the read-only part of an Ethereum client.
// *ethclient.Client implements it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenBalanceSource reads balanceOf from an ERC-721 (or ERC-20) contract
// at the latest block.
type TokenBalanceSource struct {
	caller   ContractCaller
	contract common.Address
	decimals int32
	limiter  *rate.Limiter
}

// NewTokenBalanceSource creates a balance source. Calls are throttled to
// callsPerSecond; zero disables throttling. Raw balances are divided by
// 10^decimals and rounded down.
func NewTokenBalanceSource(caller ContractCaller, contract string, decimals int32, callsPerSecond float64) (*TokenBalanceSource, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("contract %q: %w", contract, core.ErrInvalidAddress)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("negative decimals: %w", core.ErrInvalidConfig)
	}

	limit := rate.Inf
	if callsPerSecond > 0 {
		limit = rate.Limit(callsPerSecond)
	}

	return &TokenBalanceSource{
		caller:   caller,
		contract: common.HexToAddress(contract),
		decimals: decimals,
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

var _ ports.BalanceSource = (*TokenBalanceSource)(nil)

// Balance returns the number of whole tokens held by address
func (s *TokenBalanceSource) Balance(ctx context.Context, address string) (uint64, error) {
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("%q: %w", address, core.ErrInvalidAddress)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	data, err := tokenABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("failed to pack call: %w", err)
	}

	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("balanceOf call failed: %w", err)
	}

	values, err := tokenABI.Unpack("balanceOf", out)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack balance: %w", err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("unexpected balanceOf output: %v", values)
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}

	return s.scale(raw)
}

func (s *TokenBalanceSource) scale(raw *big.Int) (uint64, error) {
	whole := decimal.NewFromBigInt(raw, -s.decimals).Floor().BigInt()
	if !whole.IsUint64() {
		return 0, fmt.Errorf("balance %s out of range", whole)
	}
	return whole.Uint64(), nil
}
