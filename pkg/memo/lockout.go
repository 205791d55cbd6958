package memo

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tradeline/degiro-go/pkg/logging"
)

// ErrLockedOut is returned by LockoutGuard.Check while a credential
// fingerprint is still inside its lockout window. It is distinct from a
// server-side rejection so callers can tell "still locked out" from
// "rejected by the server this time".
var ErrLockedOut = errors.New("credentials locked out after failed login")

// Defaults for the lockout guard.
const (
	DefaultLockoutWindow  = 4 * time.Hour
	DefaultLockoutEntries = 64
)

// lockoutKey qualifies a fingerprint with the bucket it was recorded in.
type lockoutKey struct {
	bucket      int64
	fingerprint string
}

// LockoutGuard remembers credential fingerprints that failed authentication
// and blocks further attempts for the remainder of the time bucket the
// failure was recorded in. Entries lapse implicitly when the bucket
// advances; nothing is actively evicted.
//
// The guard is caller-owned state: construct one per client and pass it to
// the login routine. There is no process-wide instance.
type LockoutGuard struct {
	window  time.Duration
	entries *lru.Cache[lockoutKey, time.Time]
	logger  zerolog.Logger

	mu    sync.Mutex
	epoch time.Time
	now   func() time.Time
}

// NewLockoutGuard creates a lockout guard. Non-positive arguments select
// DefaultLockoutEntries and DefaultLockoutWindow.
func NewLockoutGuard(maxEntries int, window time.Duration) *LockoutGuard {
	if maxEntries <= 0 {
		maxEntries = DefaultLockoutEntries
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	entries, err := lru.New[lockoutKey, time.Time](maxEntries)
	if err != nil {
		panic(err)
	}
	return &LockoutGuard{
		window:  window,
		entries: entries,
		logger:  logging.NewLogger("lockout"),
		now:     time.Now,
	}
}

// RecordFailure marks the fingerprint as failed in the current bucket.
func (g *LockoutGuard) RecordFailure(fingerprint string) {
	now, bucket := g.bucket()
	g.entries.Add(lockoutKey{bucket: bucket, fingerprint: fingerprint}, now)
	g.logger.Warn().
		Str("fingerprint", fingerprint).
		Dur("window", g.window).
		Msg("Credential fingerprint locked out")
}

// Check returns ErrLockedOut if the fingerprint failed within the current
// bucket, nil otherwise.
func (g *LockoutGuard) Check(fingerprint string) error {
	_, bucket := g.bucket()
	if _, ok := g.entries.Get(lockoutKey{bucket: bucket, fingerprint: fingerprint}); ok {
		return ErrLockedOut
	}
	return nil
}

func (g *LockoutGuard) bucket() (time.Time, int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.epoch.IsZero() {
		g.epoch = now
	}
	return now, int64(now.Sub(g.epoch) / g.window)
}
