package pager

import (
	"sync"

	"wallet-activity/internal/activity"
)

// DefaultPageSize is the number of records per history page.
const DefaultPageSize = 5

// Pager slices the published history into fixed-size pages.
type Pager struct {
	mu      sync.RWMutex
	size    int
	records []activity.ClassifiedTransaction
	index   int
}

// New returns an empty pager. A non-positive size falls back to DefaultPageSize.
func New(size int) *Pager {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Pager{size: size}
}

// Set publishes a new result set. The current index is clamped to the new
// last page.
func (p *Pager) Set(records []activity.ClassifiedTransaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append([]activity.ClassifiedTransaction(nil), records...)
	if last := p.totalPagesLocked() - 1; p.index > last {
		p.index = last
	}
}

// Page returns page n, or an empty slice when n is out of range.
func (p *Pager) Page(n int) []activity.ClassifiedTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageLocked(n)
}

// Current returns the page at the current index.
func (p *Pager) Current() []activity.ClassifiedTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageLocked(p.index)
}

// Index reports the zero-based current page.
func (p *Pager) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index
}

// TotalPages is never below one, even for an empty history.
func (p *Pager) TotalPages() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalPagesLocked()
}

// Next advances one page; no-op on the last page.
func (p *Pager) Next() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index < p.totalPagesLocked()-1 {
		p.index++
	}
}

// Prev goes back one page; no-op on the first page.
func (p *Pager) Prev() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index > 0 {
		p.index--
	}
}

// GoTo jumps to page n. Out-of-range values are ignored.
func (p *Pager) GoTo(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 || n >= p.totalPagesLocked() {
		return
	}
	p.index = n
}

// All returns a copy of the full published list.
func (p *Pager) All() []activity.ClassifiedTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]activity.ClassifiedTransaction(nil), p.records...)
}

// Len reports the number of published records.
func (p *Pager) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// PageSize reports the configured page size.
func (p *Pager) PageSize() int {
	return p.size
}

func (p *Pager) totalPagesLocked() int {
	pages := (len(p.records) + p.size - 1) / p.size
	if pages < 1 {
		return 1
	}
	return pages
}

func (p *Pager) pageLocked(n int) []activity.ClassifiedTransaction {
	start := n * p.size
	if n < 0 || start >= len(p.records) {
		return []activity.ClassifiedTransaction{}
	}
	end := min(start+p.size, len(p.records))
	return append([]activity.ClassifiedTransaction(nil), p.records[start:end]...)
}
