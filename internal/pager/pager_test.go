package pager

import (
	"fmt"
	"testing"

	"wallet-activity/internal/activity"
)

func history(n int) []activity.ClassifiedTransaction {
	out := make([]activity.ClassifiedTransaction, n)
	for i := range out {
		out[i] = activity.ClassifiedTransaction{
			Hash:      fmt.Sprintf("0x%02d", i),
			Timestamp: int64(1_700_000_000 - i),
			Kind:      activity.KindDeposit,
		}
	}
	return out
}

func TestTwelveRecordsMakeThreePages(t *testing.T) {
	p := New(5)
	p.Set(history(12))

	if got := p.TotalPages(); got != 3 {
		t.Fatalf("total pages = %d, want 3", got)
	}

	last := p.Page(2)
	if len(last) != 2 {
		t.Fatalf("page 2 has %d records, want 2", len(last))
	}
	if last[0].Hash != "0x10" || last[1].Hash != "0x11" {
		t.Fatalf("page 2 = %s,%s, want the last two records", last[0].Hash, last[1].Hash)
	}

	p.GoTo(2)
	p.Next()
	if p.Index() != 2 {
		t.Fatalf("next on the last page moved to %d", p.Index())
	}
}

func TestEmptyHistoryHasOnePage(t *testing.T) {
	p := New(0)
	if p.PageSize() != DefaultPageSize {
		t.Fatalf("page size = %d", p.PageSize())
	}
	if p.TotalPages() != 1 {
		t.Fatalf("total pages = %d, want 1", p.TotalPages())
	}
	if len(p.Current()) != 0 {
		t.Fatal("empty pager should return an empty page")
	}
	p.Prev()
	p.Next()
	if p.Index() != 0 {
		t.Fatalf("navigation on a single page moved to %d", p.Index())
	}
}

func TestNavigation(t *testing.T) {
	p := New(5)
	p.Set(history(11))

	p.Next()
	p.Next()
	if p.Index() != 2 || len(p.Current()) != 1 {
		t.Fatalf("index %d with %d records", p.Index(), len(p.Current()))
	}
	p.Prev()
	if p.Index() != 1 {
		t.Fatalf("prev moved to %d", p.Index())
	}

	p.GoTo(7)
	p.GoTo(-1)
	if p.Index() != 1 {
		t.Fatalf("out-of-range goto changed index to %d", p.Index())
	}
	if len(p.Page(9)) != 0 {
		t.Fatal("out-of-range page should be empty")
	}
}

func TestSetClampsIndex(t *testing.T) {
	p := New(5)
	p.Set(history(15))
	p.GoTo(2)

	p.Set(history(6))
	if p.Index() != 1 {
		t.Fatalf("index = %d, want clamp to 1", p.Index())
	}
	if p.Len() != 6 || len(p.All()) != 6 {
		t.Fatalf("len = %d", p.Len())
	}
}
