package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	timestampDigits = 13
	sequenceDigits  = 6

	maxSequence = 999999
)

// Allocator issues message ids of the form "<unix ms, 13 digits>-<sequence,
// 6 digits>". Ids from one Allocator sort lexicographically in allocation
// order, including across clock steps backwards.
type Allocator struct {
	mu       sync.Mutex
	now      func() time.Time
	lastTime int64
	sequence int64
}

// ParseResult holds the components of an id.
type ParseResult struct {
	TimestampMs int64
	Sequence    int64
}

func NewAllocator() *Allocator {
	return NewAllocatorWithClock(time.Now)
}

// NewAllocatorWithClock uses now as the time source.
func NewAllocatorWithClock(now func() time.Time) *Allocator {
	return &Allocator{now: now}
}

func (a *Allocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UnixMilli()

	// A clock that stepped backwards keeps the last timestamp.
	if now < a.lastTime {
		now = a.lastTime
	}

	if now == a.lastTime {
		a.sequence++
		if a.sequence > maxSequence {
			// Sequence exhausted, wait for the next millisecond.
			for now <= a.lastTime {
				now = a.now().UnixMilli()
			}
			a.sequence = 0
		}
	} else {
		a.sequence = 0
	}

	a.lastTime = now
	return format(now, a.sequence)
}

func format(ts, seq int64) string {
	return fmt.Sprintf("%0*d-%0*d", timestampDigits, ts, sequenceDigits, seq)
}

// Parse splits an id into its timestamp and sequence.
func Parse(id string) (*ParseResult, error) {
	tsPart, seqPart, ok := strings.Cut(id, "-")
	if !ok || len(tsPart) != timestampDigits || len(seqPart) != sequenceDigits {
		return nil, fmt.Errorf("invalid message id format: %q", id)
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid sequence: %w", err)
	}
	if ts < 0 || seq < 0 {
		return nil, fmt.Errorf("invalid message id format: %q", id)
	}

	return &ParseResult{TimestampMs: ts, Sequence: seq}, nil
}
