package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"wallet-activity/internal/activity"
)

func validAddress(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(strings.ToLower(s), "0x") && common.IsHexAddress(s)
}

// formatTimestamp renders unix seconds as "5m ago" or as a UTC date. Zero
// timestamps come from unparsable explorer values and render as "--".
func formatTimestamp(ts int64, absolute bool, now time.Time) string {
	if ts <= 0 {
		return "--"
	}
	t := time.Unix(ts, 0).UTC()
	if absolute {
		return t.Format("2006-01-02 15:04")
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Format("2006-01-02")
	}
}

func txLink(base, hash string) string {
	if base == "" {
		return hash
	}
	return strings.TrimRight(base, "/") + "/" + hash
}

func formatDecimal(d *decimal.Decimal, places int32) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(places)
}

func ticketCount(tx activity.ClassifiedTransaction) string {
	if tx.TicketCount == nil {
		return ""
	}
	return fmt.Sprint(*tx.TicketCount)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
