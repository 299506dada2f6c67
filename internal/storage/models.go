package storage

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wallet-activity/internal/activity"
)

// ActivityRecord is one archived classified transaction of a watched address.
type ActivityRecord struct {
	Address     string
	Hash        string
	Kind        activity.Kind
	Function    string
	Contract    string
	Amount      *decimal.Decimal
	TicketCount *int64
	OccurredAt  time.Time
	CreatedAt   time.Time
}

// FromClassified converts an engine record for archiving under address.
func FromClassified(address string, tx activity.ClassifiedTransaction) ActivityRecord {
	return ActivityRecord{
		Address:     strings.ToLower(strings.TrimSpace(address)),
		Hash:        strings.ToLower(tx.Hash),
		Kind:        tx.Kind,
		Function:    tx.Function,
		Contract:    tx.Contract,
		Amount:      tx.Amount,
		TicketCount: tx.TicketCount,
		OccurredAt:  time.Unix(tx.Timestamp, 0).UTC(),
	}
}

// Classified converts the archived row back into the engine's record type.
func (r ActivityRecord) Classified() activity.ClassifiedTransaction {
	return activity.ClassifiedTransaction{
		Hash:        r.Hash,
		Timestamp:   r.OccurredAt.Unix(),
		Kind:        r.Kind,
		Function:    r.Function,
		Contract:    r.Contract,
		Amount:      r.Amount,
		TicketCount: r.TicketCount,
	}
}
