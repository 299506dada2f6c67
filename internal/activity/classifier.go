package activity

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-activity/internal/metrics"
)

const (
	FnPurchaseTickets = "purchaseTickets"
	FnClaimWinnings   = "claimWinnings"
	FnSupply          = "supply"
	FnWithdraw        = "withdraw"

	unknownFunction = "unknown"

	knownCallsABIJSON = `[
	{"type":"function","name":"purchaseTickets","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"referrer","type":"address"},{"name":"value","type":"uint256"},{"name":"recipient","type":"address"}]},
	{"type":"function","name":"claimWinnings","stateMutability":"nonpayable","outputs":[],"inputs":[]},
	{"type":"function","name":"supply","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","outputs":[{"name":"","type":"uint256"}],"inputs":[
		{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}]}
]`
)

var (
	knownCallsABI abi.ABI

	kindByFunction = map[string]Kind{
		FnPurchaseTickets: KindTicketPurchase,
		FnClaimWinnings:   KindWinningsClaim,
		FnSupply:          KindDeposit,
		FnWithdraw:        KindWithdrawal,
	}

	errArgumentType = errors.New("unexpected argument type")
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(knownCallsABIJSON))
	if err != nil {
		panic("failed to parse known calls ABI: " + err.Error())
	}
	knownCallsABI = parsed
}

// Contracts names the addresses the classifier recognises.
type Contracts struct {
	Lottery     common.Address
	LendingPool common.Address
	BaseAsset   common.Address
	Decimals    int32
}

// ParseContracts builds Contracts from hex strings.
func ParseContracts(lottery, pool, baseAsset string, decimals int32) (Contracts, error) {
	for name, addr := range map[string]string{"lottery": lottery, "lending pool": pool, "base asset": baseAsset} {
		if !common.IsHexAddress(addr) {
			return Contracts{}, fmt.Errorf("invalid %s address %q", name, addr)
		}
	}
	return Contracts{
		Lottery:     common.HexToAddress(lottery),
		LendingPool: common.HexToAddress(pool),
		BaseAsset:   common.HexToAddress(baseAsset),
		Decimals:    decimals,
	}, nil
}

// Classifier maps raw explorer records onto ClassifiedTransaction values.
type Classifier struct {
	contracts Contracts
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewClassifier constructs a classifier for the given contracts.
func NewClassifier(contracts Contracts, logger zerolog.Logger, m *metrics.Metrics) *Classifier {
	return &Classifier{
		contracts: contracts,
		logger:    logger.With().Str("component", "classifier").Logger(),
		metrics:   m,
	}
}

// Classify returns the classified record, or false when the record is not
// relevant or its call data cannot be decoded.
func (c *Classifier) Classify(raw RawTransaction) (tx ClassifiedTransaction, ok bool) {
	if raw.Failed() {
		return ClassifiedTransaction{}, false
	}

	to := strings.TrimSpace(raw.To)
	if !common.IsHexAddress(to) {
		return ClassifiedTransaction{}, false
	}
	dest := common.HexToAddress(to)
	if dest != c.contracts.Lottery && dest != c.contracts.LendingPool {
		return ClassifiedTransaction{}, false
	}

	data, err := hexutil.Decode(raw.Input)
	if err != nil {
		c.skip(raw.Hash, unknownFunction, fmt.Errorf("decode call data: %w", err))
		return ClassifiedTransaction{}, false
	}
	if len(data) < 4 {
		return ClassifiedTransaction{}, false
	}
	method, err := knownCallsABI.MethodById(data[:4])
	if err != nil {
		return ClassifiedTransaction{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			c.skip(raw.Hash, method.Name, fmt.Errorf("panic during decode: %v", r))
			tx, ok = ClassifiedTransaction{}, false
		}
	}()

	tx = ClassifiedTransaction{
		Hash:      raw.Hash,
		Timestamp: parseTimestamp(raw.TimeStamp),
		Kind:      kindByFunction[method.Name],
		Function:  method.Name,
		Contract:  strings.ToLower(dest.Hex()),
	}

	switch method.Name {
	case FnPurchaseTickets:
		_, value, err := c.unpack(method, data[4:])
		if err != nil {
			c.skip(raw.Hash, method.Name, err)
			return ClassifiedTransaction{}, false
		}
		amount := decimal.NewFromBigInt(value, -c.contracts.Decimals)
		tickets := amount.Floor().IntPart()
		tx.Amount = &amount
		tx.TicketCount = &tickets
	case FnSupply, FnWithdraw:
		asset, value, err := c.unpack(method, data[4:])
		if err != nil {
			c.skip(raw.Hash, method.Name, err)
			return ClassifiedTransaction{}, false
		}
		if asset != c.contracts.BaseAsset {
			return ClassifiedTransaction{}, false
		}
		amount := decimal.NewFromBigInt(value, -c.contracts.Decimals)
		tx.Amount = &amount
	case FnClaimWinnings:
		// The payout is only visible in emitted logs, which are not fetched.
	}

	c.metrics.RecordClassified(string(tx.Kind))
	return tx, true
}

// ClassifyAll classifies a batch, preserving upstream order and dropping
// irrelevant records and repeated hashes.
func (c *Classifier) ClassifyAll(raws []RawTransaction) []ClassifiedTransaction {
	out := make([]ClassifiedTransaction, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		tx, ok := c.Classify(raw)
		if !ok {
			continue
		}
		key := strings.ToLower(tx.Hash)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tx)
	}
	return out
}

// unpack decodes the leading (address, uint256) pair shared by every
// argument-carrying known call.
func (c *Classifier) unpack(method *abi.Method, args []byte) (common.Address, *big.Int, error) {
	values, err := method.Inputs.Unpack(args)
	if err != nil {
		return common.Address{}, nil, err
	}
	if len(values) < 2 {
		return common.Address{}, nil, fmt.Errorf("%s: expected at least 2 arguments, got %d", method.Name, len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("%s arg 0: %w", method.Name, errArgumentType)
	}
	value, ok := values[1].(*big.Int)
	if !ok || value == nil {
		return common.Address{}, nil, fmt.Errorf("%s arg 1: %w", method.Name, errArgumentType)
	}
	return addr, value, nil
}

func (c *Classifier) skip(hash, function string, err error) {
	c.logger.Warn().Err(err).Str("hash", hash).Str("function", function).Msg("decode skipped")
	c.metrics.RecordDecodeSkipped(function)
}

// parseTimestamp maps unparsable values to 0.
func parseTimestamp(v string) int64 {
	ts, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// EncodeCall packs call data for one of the recognised functions.
func EncodeCall(function string, args ...interface{}) ([]byte, error) {
	if _, ok := kindByFunction[function]; !ok {
		return nil, fmt.Errorf("unknown function %q", function)
	}
	return knownCallsABI.Pack(function, args...)
}
