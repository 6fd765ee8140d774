package testing

import (
	"fmt"
	"testing"
	"time"

	"github.com/overengineeringstudio/fsema/lib/backing"
)

// RunBackingBenchmarks runs all benchmarks for a backing implementation.
func RunBackingBenchmarks(b *testing.B, name string, factory BackingFactory) {
	b.Run(name+"/TryAcquireRelease", func(b *testing.B) {
		benchmarkTryAcquireRelease(b, factory())
	})

	b.Run(name+"/TryAcquireDenied", func(b *testing.B) {
		benchmarkTryAcquireDenied(b, factory())
	})

	b.Run(name+"/GetCountManyHolders", func(b *testing.B) {
		benchmarkGetCountManyHolders(b, factory())
	})

	b.Run(name+"/Refresh", func(b *testing.B) {
		benchmarkRefresh(b, factory())
	})
}

func benchmarkTryAcquireRelease(b *testing.B, bk backing.IBacking) {
	defer bk.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := bk.TryAcquire("bench-key", "bench-holder", time.Minute, 10, 1)
		if err != nil || !ok {
			b.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
		}
		if _, err := bk.Release("bench-key", "bench-holder", 1); err != nil {
			b.Fatalf("Release: %v", err)
		}
	}
}

func benchmarkTryAcquireDenied(b *testing.B, bk backing.IBacking) {
	defer bk.Close()

	if ok, err := bk.TryAcquire("bench-key", "occupant", time.Minute, 1, 1); err != nil || !ok {
		b.Fatalf("setup TryAcquire: ok=%v err=%v", ok, err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := bk.TryAcquire("bench-key", "challenger", time.Minute, 1, 1)
		if err != nil {
			b.Fatalf("TryAcquire: %v", err)
		}
		if ok {
			b.Fatalf("challenger admitted beyond limit")
		}
	}
}

func benchmarkGetCountManyHolders(b *testing.B, bk backing.IBacking) {
	defer bk.Close()

	const holders = 64
	for i := 0; i < holders; i++ {
		h := fmt.Sprintf("holder-%d", i)
		if ok, err := bk.TryAcquire("bench-key", h, time.Minute, holders, 1); err != nil || !ok {
			b.Fatalf("setup TryAcquire(%s): ok=%v err=%v", h, ok, err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count, err := bk.GetCount("bench-key", time.Minute)
		if err != nil {
			b.Fatalf("GetCount: %v", err)
		}
		if count != holders {
			b.Fatalf("GetCount = %d, want %d", count, holders)
		}
	}
}

func benchmarkRefresh(b *testing.B, bk backing.IBacking) {
	defer bk.Close()

	if ok, err := bk.TryAcquire("bench-key", "bench-holder", time.Minute, 10, 1); err != nil || !ok {
		b.Fatalf("setup TryAcquire: ok=%v err=%v", ok, err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := bk.Refresh("bench-key", "bench-holder", time.Minute, 10, 1)
		if err != nil || !ok {
			b.Fatalf("Refresh: ok=%v err=%v", ok, err)
		}
	}
}
