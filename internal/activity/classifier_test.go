package activity

import (
	"math/big"
	"math/rand"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-activity/internal/metrics"
)

const (
	lotteryHex = "0xbEDd4F2beBE9E3E636161E644759f3cbe3d51B95"
	poolHex    = "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5"
	usdcHex    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	otherHex   = "0x4200000000000000000000000000000000000006"
	userHex    = "0x1111111111111111111111111111111111111111"
)

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	contracts, err := ParseContracts(lotteryHex, poolHex, usdcHex, 6)
	if err != nil {
		t.Fatalf("parse contracts: %v", err)
	}
	return NewClassifier(contracts, zerolog.Nop(), nil)
}

func pack(t *testing.T, method string, args ...any) string {
	t.Helper()
	data, err := knownCallsABI.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return hexutil.Encode(data)
}

func rawTx(hash, to, input string) RawTransaction {
	return RawTransaction{Hash: hash, To: to, Input: input, TimeStamp: "1700000000", IsError: "0", TxReceiptStatus: "1"}
}

func TestSelectorsMatchKnownConstants(t *testing.T) {
	want := map[string]string{
		FnPurchaseTickets: "0x51ab9251",
		FnClaimWinnings:   "0xb401faf1",
		FnSupply:          "0x617ba037",
		FnWithdraw:        "0x69328dec",
	}
	for name, selector := range want {
		method, ok := knownCallsABI.Methods[name]
		if !ok {
			t.Fatalf("method %s missing", name)
		}
		if got := hexutil.Encode(method.ID); got != selector {
			t.Fatalf("%s selector = %s, want %s", name, got, selector)
		}
	}
}

func TestTicketPurchaseRoundTrip(t *testing.T) {
	c := testClassifier(t)
	input := pack(t, FnPurchaseTickets, common.HexToAddress(userHex), big.NewInt(5_000_000), common.HexToAddress(userHex))

	tx, ok := c.Classify(rawTx("0xaa", strings.ToLower(lotteryHex), input))
	if !ok {
		t.Fatal("ticket purchase should classify")
	}
	if tx.Kind != KindTicketPurchase {
		t.Fatalf("kind = %s", tx.Kind)
	}
	if tx.Amount == nil || !tx.Amount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("amount = %v, want 5", tx.Amount)
	}
	if tx.TicketCount == nil || *tx.TicketCount != 5 {
		t.Fatalf("ticket count = %v, want 5", tx.TicketCount)
	}
	if tx.Timestamp != 1700000000 {
		t.Fatalf("timestamp = %d", tx.Timestamp)
	}
	if tx.Label() != "Bought 5 tickets" {
		t.Fatalf("label = %q", tx.Label())
	}
}

func TestTicketCountFloors(t *testing.T) {
	c := testClassifier(t)
	input := pack(t, FnPurchaseTickets, common.HexToAddress(userHex), big.NewInt(2_750_000), common.HexToAddress(userHex))

	tx, ok := c.Classify(rawTx("0xab", lotteryHex, input))
	if !ok {
		t.Fatal("ticket purchase should classify")
	}
	if *tx.TicketCount != 2 {
		t.Fatalf("ticket count = %d, want 2", *tx.TicketCount)
	}
	if tx.FormatAmount("USDC") != "2.75 USDC" {
		t.Fatalf("amount = %s", tx.FormatAmount("USDC"))
	}
}

func TestDepositAndWithdraw(t *testing.T) {
	c := testClassifier(t)
	supply := pack(t, FnSupply, common.HexToAddress(usdcHex), big.NewInt(12_340_000), common.HexToAddress(userHex), uint16(0))
	withdraw := pack(t, FnWithdraw, common.HexToAddress(usdcHex), big.NewInt(1_000_001), common.HexToAddress(userHex))

	dep, ok := c.Classify(rawTx("0x01", poolHex, supply))
	if !ok || dep.Kind != KindDeposit {
		t.Fatalf("supply should classify as deposit: %+v %v", dep, ok)
	}
	if !dep.Amount.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("deposit amount = %s", dep.Amount)
	}
	if dep.TicketCount != nil {
		t.Fatal("deposit must not carry a ticket count")
	}

	wd, ok := c.Classify(rawTx("0x02", poolHex, withdraw))
	if !ok || wd.Kind != KindWithdrawal {
		t.Fatalf("withdraw should classify: %+v %v", wd, ok)
	}
	if !wd.Amount.Equal(decimal.RequireFromString("1.000001")) {
		t.Fatalf("withdraw amount = %s", wd.Amount)
	}
}

func TestForeignAssetIsDropped(t *testing.T) {
	c := testClassifier(t)
	supply := pack(t, FnSupply, common.HexToAddress(otherHex), big.NewInt(1_000_000), common.HexToAddress(userHex), uint16(0))
	withdraw := pack(t, FnWithdraw, common.HexToAddress(otherHex), big.NewInt(1_000_000), common.HexToAddress(userHex))

	if _, ok := c.Classify(rawTx("0x03", poolHex, supply)); ok {
		t.Fatal("supply of another asset must be dropped")
	}
	if _, ok := c.Classify(rawTx("0x04", poolHex, withdraw)); ok {
		t.Fatal("withdraw of another asset must be dropped")
	}
}

func TestClaimHasNoAmount(t *testing.T) {
	c := testClassifier(t)
	tx, ok := c.Classify(rawTx("0x05", lotteryHex, pack(t, FnClaimWinnings)))
	if !ok || tx.Kind != KindWinningsClaim {
		t.Fatalf("claim should classify: %+v %v", tx, ok)
	}
	if tx.Amount != nil || tx.TicketCount != nil {
		t.Fatal("claim must leave amount and ticket count absent")
	}
	if tx.FormatAmount("USDC") != "--" {
		t.Fatalf("absent amount renders as --, got %s", tx.FormatAmount("USDC"))
	}
}

func TestFailedExecutionIsDropped(t *testing.T) {
	c := testClassifier(t)
	input := pack(t, FnClaimWinnings)

	failed := rawTx("0x06", lotteryHex, input)
	failed.IsError = "1"
	if _, ok := c.Classify(failed); ok {
		t.Fatal("isError=1 must be dropped")
	}

	reverted := rawTx("0x07", lotteryHex, input)
	reverted.TxReceiptStatus = "0"
	if _, ok := c.Classify(reverted); ok {
		t.Fatal("txreceipt_status=0 must be dropped")
	}
}

func TestUnknownDestinationNeverClassifies(t *testing.T) {
	c := testClassifier(t)
	rng := rand.New(rand.NewSource(42))

	inputs := []string{
		pack(t, FnClaimWinnings),
		pack(t, FnPurchaseTickets, common.HexToAddress(userHex), big.NewInt(1_000_000), common.HexToAddress(userHex)),
		pack(t, FnSupply, common.HexToAddress(usdcHex), big.NewInt(1), common.HexToAddress(userHex), uint16(0)),
		"0x",
		"",
	}
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.Intn(200))
		rng.Read(buf)
		inputs = append(inputs, hexutil.Encode(buf))
	}

	for _, to := range []string{otherHex, userHex, "", "not-an-address"} {
		for _, input := range inputs {
			if _, ok := c.Classify(rawTx("0x08", to, input)); ok {
				t.Fatalf("destination %q classified input %s", to, input)
			}
		}
	}
}

func TestMalformedArgumentsAreSkipped(t *testing.T) {
	c := testClassifier(t)

	good := rawTx("0x10", lotteryHex, pack(t, FnClaimWinnings))
	batch := []RawTransaction{
		rawTx("0x11", lotteryHex, "0x51ab9251"),
		rawTx("0x12", poolHex, "0x617ba037deadbeef"),
		rawTx("0x13", poolHex, "0x69328dec"+strings.Repeat("ff", 40)),
		rawTx("0x14", poolHex, "0xzz"),
		good,
	}

	out := c.ClassifyAll(batch)
	if len(out) != 1 || out[0].Hash != good.Hash {
		t.Fatalf("only the well-formed record should survive, got %+v", out)
	}
}

func TestClassifyAllKeepsOrderAndDropsDuplicates(t *testing.T) {
	c := testClassifier(t)
	claim := pack(t, FnClaimWinnings)
	unrelated := rawTx("0x22", otherHex, claim)

	batch := []RawTransaction{
		rawTx("0x21", lotteryHex, claim),
		unrelated,
		rawTx("0x23", lotteryHex, claim),
		rawTx("0x21", lotteryHex, claim),
	}
	out := c.ClassifyAll(batch)
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0].Hash != "0x21" || out[1].Hash != "0x23" {
		t.Fatalf("upstream order must be preserved: %s, %s", out[0].Hash, out[1].Hash)
	}
}

func TestInvalidTimestampIsZero(t *testing.T) {
	c := testClassifier(t)
	raw := rawTx("0x30", lotteryHex, pack(t, FnClaimWinnings))
	raw.TimeStamp = "yesterday"

	tx, ok := c.Classify(raw)
	if !ok {
		t.Fatal("claim should classify")
	}
	if tx.Timestamp != 0 {
		t.Fatalf("timestamp = %d, want 0", tx.Timestamp)
	}
}

func TestParseContractsRejectsGarbage(t *testing.T) {
	if _, err := ParseContracts("0x1", poolHex, usdcHex, 6); err == nil {
		t.Fatal("short address should fail")
	}
}

func TestUndecodableCallDataCountsAsSkipped(t *testing.T) {
	registry := prometheus.NewRegistry()
	contracts, err := ParseContracts(lotteryHex, poolHex, usdcHex, 6)
	if err != nil {
		t.Fatalf("parse contracts: %v", err)
	}
	c := NewClassifier(contracts, zerolog.Nop(), metrics.New(registry))

	for _, input := range []string{"0xzz", "0x617"} {
		if _, ok := c.Classify(rawTx("0x30", poolHex, input)); ok {
			t.Fatalf("input %q should not classify", input)
		}
	}
	if _, ok := c.Classify(rawTx("0x31", poolHex, "0x")); ok {
		t.Fatal("empty call data should not classify")
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var skipped float64
	for _, family := range families {
		if family.GetName() != "walletactivity_decode_skipped_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "function" && label.GetValue() == unknownFunction {
					skipped += metric.GetCounter().GetValue()
				}
			}
		}
	}
	if skipped != 2 {
		t.Fatalf("decode skips = %v, want 2", skipped)
	}
}
