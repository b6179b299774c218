package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

func TestGuardAcquireRelease(t *testing.T) {
	guard := NewInflightGuard()
	websiteID := uuid.New()

	if !guard.TryAcquire(websiteID) {
		t.Fatal("first acquire should succeed")
	}
	if guard.TryAcquire(websiteID) {
		t.Fatal("second acquire must fail while held")
	}
	if !guard.Held(websiteID) {
		t.Error("Held() should report the website as in flight")
	}

	guard.Release(websiteID)
	if guard.Held(websiteID) {
		t.Error("Held() should be false after release")
	}
	if !guard.TryAcquire(websiteID) {
		t.Error("acquire after release should succeed")
	}
}

func TestGuardIndependentWebsites(t *testing.T) {
	guard := NewInflightGuard()
	first, second := uuid.New(), uuid.New()

	if !guard.TryAcquire(first) || !guard.TryAcquire(second) {
		t.Fatal("distinct websites must not contend")
	}
	if guard.Count() != 2 {
		t.Errorf("Count() = %d, want 2", guard.Count())
	}
}

func TestGuardReleaseUnheldIsNoOp(t *testing.T) {
	guard := NewInflightGuard()
	guard.Release(uuid.New())
	if guard.Count() != 0 {
		t.Errorf("Count() = %d, want 0", guard.Count())
	}
}

// Mutual exclusion must hold under concurrent acquisition: of N goroutines
// racing for one website, exactly one may win per acquire/release cycle.
func TestGuardMutualExclusionUnderContention(t *testing.T) {
	guard := NewInflightGuard()
	websiteID := uuid.New()

	const goroutines = 32
	const rounds = 200

	var holders atomic.Int32
	var violations atomic.Int32
	var acquired atomic.Int64

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if !guard.TryAcquire(websiteID) {
					continue
				}
				if holders.Add(1) > 1 {
					violations.Add(1)
				}
				acquired.Add(1)
				holders.Add(-1)
				guard.Release(websiteID)
			}
		}()
	}
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Fatalf("observed %d simultaneous holders of one website", v)
	}
	if acquired.Load() == 0 {
		t.Fatal("no goroutine ever acquired the guard")
	}
	if guard.Count() != 0 {
		t.Errorf("Count() = %d after all releases, want 0", guard.Count())
	}
}
