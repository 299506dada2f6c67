package activity

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind is the closed set of recognised interactions.
type Kind string

const (
	KindTicketPurchase Kind = "tickets"
	KindWinningsClaim  Kind = "claim"
	KindDeposit        Kind = "deposit"
	KindWithdrawal     Kind = "withdraw"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTicketPurchase, KindWinningsClaim, KindDeposit, KindWithdrawal:
		return true
	}
	return false
}

// RawTransaction is one row of the explorer's txlist response.
type RawTransaction struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Input           string `json:"input"`
	Value           string `json:"value"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
}

// Failed reports an on-chain execution failure.
func (r RawTransaction) Failed() bool {
	return r.IsError == "1" || r.TxReceiptStatus == "0"
}

// ClassifiedTransaction is a recognised interaction ready for display.
// Values are never mutated after classification.
type ClassifiedTransaction struct {
	Hash        string           `json:"hash"`
	Timestamp   int64            `json:"timestamp"`
	Kind        Kind             `json:"kind"`
	Function    string           `json:"function"`
	Contract    string           `json:"contract"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	TicketCount *int64           `json:"ticketCount,omitempty"`
}

// Label renders the row title shown by history views.
func (t ClassifiedTransaction) Label() string {
	switch t.Kind {
	case KindTicketPurchase:
		if t.TicketCount != nil && *t.TicketCount > 0 {
			if *t.TicketCount == 1 {
				return "Bought 1 ticket"
			}
			return fmt.Sprintf("Bought %d tickets", *t.TicketCount)
		}
		return "Bought tickets"
	case KindWinningsClaim:
		return "Claimed winnings"
	case KindDeposit:
		return "Deposited"
	case KindWithdrawal:
		return "Withdrew"
	default:
		return string(t.Kind)
	}
}

// FormatAmount renders the amount with two decimals, or "--" when absent.
func (t ClassifiedTransaction) FormatAmount(symbol string) string {
	if t.Amount == nil {
		return "--"
	}
	if symbol == "" {
		return t.Amount.StringFixed(2)
	}
	return t.Amount.StringFixed(2) + " " + symbol
}
