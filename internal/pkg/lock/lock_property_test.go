// Property-based tests for the in-flight guard.
package lock

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

func isHeld(ul *UserLock, userID int64) bool {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	_, ok := ul.held[userID]
	return ok
}

// TestLockAdmitsOneAtATimeProperty checks that while one caller holds a
// user, every other tryLock for that user fails.
func TestLockAdmitsOneAtATimeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")
		numAttempts := rapid.IntRange(2, 20).Draw(t, "numAttempts")

		ul := NewUserLock()
		if !ul.tryLock(userID) {
			t.Fatal("first tryLock on a fresh guard must succeed")
		}

		var successCount atomic.Int32
		var wg sync.WaitGroup
		wg.Add(numAttempts)
		startCh := make(chan struct{})

		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-startCh
				if ul.tryLock(userID) {
					successCount.Add(1)
				}
			}()
		}

		close(startCh)
		wg.Wait()

		if successCount.Load() != 0 {
			t.Fatalf("tryLock succeeded %d times while the user was held", successCount.Load())
		}

		ul.unlock(userID)
		if !ul.tryLock(userID) {
			t.Fatal("tryLock should succeed after unlock")
		}
		ul.unlock(userID)
	})
}

// TestDoNeverOverlapsProperty checks that Do never runs two functions for
// the same user at the same time and that rejected calls get ErrBusy.
func TestDoNeverOverlapsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numUsers := rapid.IntRange(1, 5).Draw(t, "numUsers")
		callsPerUser := rapid.IntRange(2, 15).Draw(t, "callsPerUser")

		ul := NewUserLock()
		active := make([]atomic.Int32, numUsers)

		var (
			overlaps atomic.Int32
			ran      atomic.Int32
			busy     atomic.Int32
			wg       sync.WaitGroup
		)
		startCh := make(chan struct{})

		for u := 0; u < numUsers; u++ {
			for c := 0; c < callsPerUser; c++ {
				wg.Add(1)
				go func(uid int) {
					defer wg.Done()
					<-startCh
					err := ul.Do(int64(uid), func() error {
						if active[uid].Add(1) > 1 {
							overlaps.Add(1)
						}
						ran.Add(1)
						active[uid].Add(-1)
						return nil
					})
					if errors.Is(err, ErrBusy) {
						busy.Add(1)
					}
				}(u)
			}
		}

		close(startCh)
		wg.Wait()

		if overlaps.Load() != 0 {
			t.Fatalf("%d overlapping calls for the same user", overlaps.Load())
		}
		if ran.Load()+busy.Load() != int32(numUsers*callsPerUser) {
			t.Fatalf("ran=%d busy=%d, expected total %d", ran.Load(), busy.Load(), numUsers*callsPerUser)
		}
		if ran.Load() < int32(numUsers) {
			t.Fatalf("each user should run at least once, ran=%d", ran.Load())
		}
		if ul.Len() != 0 {
			t.Fatalf("guard should be empty after all calls, has %d", ul.Len())
		}
	})
}

// TestLockUnlockSymmetryProperty tests that every tryLock has a corresponding unlock.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		ul := NewUserLock()

		for i := 0; i < numCycles; i++ {
			if !ul.tryLock(userID) {
				t.Fatalf("cycle %d: tryLock failed on a released user", i)
			}
			if !isHeld(ul, userID) {
				t.Fatal("user should be locked after tryLock")
			}
			ul.unlock(userID)
		}

		if isHeld(ul, userID) || ul.Len() != 0 {
			t.Fatal("lock should be released after symmetric cycles")
		}

		// Unlocking a free user is harmless.
		ul.unlock(userID)
	})
}

func TestDoPropagatesError(t *testing.T) {
	ul := NewUserLock()
	want := errors.New("boom")

	if err := ul.Do(1, func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("Do returned %v, want %v", err, want)
	}
	if isHeld(ul, 1) {
		t.Fatal("Do must release the user after fn returns")
	}
}
