package membacking_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/overengineeringstudio/fsema/lib/backing"
	"github.com/overengineeringstudio/fsema/lib/backing/membacking"
	backingtesting "github.com/overengineeringstudio/fsema/lib/backing/testing"
)

func TestConformance(t *testing.T) {
	backingtesting.RunBackingTests(t, "membacking", func() backing.IBacking {
		return membacking.New(nil)
	})
}

func BenchmarkBacking(b *testing.B) {
	backingtesting.RunBackingBenchmarks(b, "membacking", func() backing.IBacking {
		return membacking.New(nil)
	})
}

// TestStrictAdmissionUnderContention hammers one key from many goroutines
// and verifies the limit is never overshot: membacking serializes each
// operation per key, so (unlike the baseline filesystem backing) there is
// no admission race to tolerate.
func TestStrictAdmissionUnderContention(t *testing.T) {
	b := membacking.New(nil)
	defer b.Close()

	const (
		limit      = 4
		goroutines = 16
		iterations = 200
	)

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			holder := fmt.Sprintf("holder-%d", g)
			for i := 0; i < iterations; i++ {
				ok, err := b.TryAcquire("key", holder, time.Minute, limit, 1)
				if err != nil {
					errs <- err
					return
				}
				if !ok {
					continue
				}

				count, err := b.GetCount("key", time.Minute)
				if err != nil {
					errs <- err
					return
				}
				if count > limit {
					errs <- fmt.Errorf("count %d exceeds limit %d", count, limit)
					return
				}

				if _, err := b.Release("key", holder, 1); err != nil {
					errs <- err
					return
				}
			}
		}(g)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// TestInstancesShareNothing pins that two instances are fully independent.
func TestInstancesShareNothing(t *testing.T) {
	b1 := membacking.New(nil)
	defer b1.Close()
	b2 := membacking.New(nil)
	defer b2.Close()

	if ok, err := b1.TryAcquire("key", "h", time.Minute, 1, 1); err != nil || !ok {
		t.Fatalf("b1 TryAcquire: ok=%v err=%v", ok, err)
	}
	if count, err := b2.GetCount("key", time.Minute); err != nil || count != 0 {
		t.Fatalf("b2 sees b1's state: count=%d err=%v", count, err)
	}
}
