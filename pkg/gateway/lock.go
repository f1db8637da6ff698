package gateway

import (
	"math/rand"
	"time"

	"github.com/gofrs/flock"

	"github.com/hack-dev/hack/pkg/apperr"
)

// tryLockWithBackoff attempts to acquire fl within timeout, using
// exponential backoff with jitter between attempts, mirroring the registry
// package's lock-retry policy.
func tryLockWithBackoff(fl *flock.Flock, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	delay := 10 * time.Millisecond
	for {
		ok, err := fl.TryLock()
		if err != nil {
			return false, apperr.Wrap(apperr.Transient, "gateway_lock_failed", "acquire gateway lock", err)
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		sleep := delay + jitter
		time.Sleep(sleep)
		delay *= 2
		if delay > 500*time.Millisecond {
			delay = 500 * time.Millisecond
		}
	}
}
