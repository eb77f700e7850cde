package idgen

import (
	"sort"
	"sync"
	"testing"
	"time"
)

func fixedClock(ms ...int64) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		v := ms[i]
		if i < len(ms)-1 {
			i++
		}
		return time.UnixMilli(v)
	}
}

func TestNextIsStrictlyIncreasing(t *testing.T) {
	a := NewAllocator()

	prev := ""
	for i := 0; i < 10000; i++ {
		id := a.Next()
		if id <= prev {
			t.Fatalf("id %d = %q not greater than %q", i, id, prev)
		}
		prev = id
	}
}

func TestNextSequenceWithinMillisecond(t *testing.T) {
	a := NewAllocatorWithClock(fixedClock(1000, 1000, 1000, 1001))

	want := []string{
		"0000000001000-000000",
		"0000000001000-000001",
		"0000000001000-000002",
		"0000000001001-000000",
	}
	for i, w := range want {
		if got := a.Next(); got != w {
			t.Errorf("Next() #%d = %q, want %q", i, got, w)
		}
	}
}

func TestNextClockBackwards(t *testing.T) {
	a := NewAllocatorWithClock(fixedClock(5000, 4000, 4500, 5001))

	ids := []string{a.Next(), a.Next(), a.Next(), a.Next()}
	want := []string{
		"0000000005000-000000",
		"0000000005000-000001",
		"0000000005000-000002",
		"0000000005001-000000",
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Next() #%d = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestNextSequenceExhaustion(t *testing.T) {
	var reads int
	clock := fixedClock(7000, 7000, 7000, 7001)
	a := NewAllocatorWithClock(func() time.Time {
		reads++
		return clock()
	})
	a.lastTime = 7000
	a.sequence = maxSequence

	id := a.Next()
	if id != "0000000007001-000000" {
		t.Errorf("Next() after exhaustion = %q", id)
	}
	if reads != 4 {
		t.Errorf("clock read %d times, want 4 (wait until it passes 7000)", reads)
	}
	if next := a.Next(); next != "0000000007001-000001" {
		t.Errorf("Next() = %q, want 0000000007001-000001", next)
	}
}

func TestNextConcurrent(t *testing.T) {
	a := NewAllocator()

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[string]bool, workers*perWorker)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, a.Next())
			}
			if !sort.StringsAreSorted(local) {
				t.Error("ids from one goroutine are not ordered")
			}
			mu.Lock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %q", id)
				}
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("got %d unique ids, want %d", len(seen), workers*perWorker)
	}
}

func TestParse(t *testing.T) {
	res, err := Parse("0001700000000-000042")
	if err != nil {
		t.Fatal(err)
	}
	if res.TimestampMs != 1700000000 || res.Sequence != 42 {
		t.Errorf("Parse() = %+v", res)
	}

	for _, bad := range []string{"", "123", "0001700000000_000042", "000170000000a-000042", "0001700000000-00042"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) succeeded", bad)
		}
	}
}
